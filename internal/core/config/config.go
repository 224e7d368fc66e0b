package config

import (
	"time"

	"github.com/polysync-labs/reconciler/internal/infra/marketdata"
	redisclient "github.com/polysync-labs/reconciler/internal/infra/redis"
	"github.com/polysync-labs/reconciler/internal/infra/storage/postgres"
	"github.com/polysync-labs/reconciler/internal/infra/venue"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Database   postgres.Config    `yaml:"database"`
	Redis      redisclient.Config `yaml:"redis"`
	Logging    LoggingConfig      `yaml:"logging"`
	MarketData marketdata.Config  `yaml:"market_data"`
	Venue      venue.Config       `yaml:"venue"`
	Queue      QueueConfig        `yaml:"queue"`
	Ingest     IngestConfig       `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// IngestConfig holds trade ingestion settings. Ingestion is off until at
// least one wallet is listed.
type IngestConfig struct {
	Wallets  []string      `yaml:"wallets"`     // followed wallets
	Interval time.Duration `yaml:"interval"`    // sync cadence
	Limit    int           `yaml:"trade_limit"` // trades per wallet per round
}

// QueueConfig holds claim and escalation settings.
type QueueConfig struct {
	BatchLimit         int           `yaml:"batch_limit"`          // items per claim
	Workers            int           `yaml:"workers"`              // fetch worker count
	ClaimInterval      time.Duration `yaml:"claim_interval"`       // sleep when queue empty
	PollInterval       time.Duration `yaml:"poll_interval"`        // order poll cadence
	PollBatchSize      int           `yaml:"poll_batch_size"`      // orders per poll round
	MaxBackoffExponent int           `yaml:"max_backoff_exponent"` // caps interval at 2^n minutes
	NotFoundThreshold  int           `yaml:"not_found_threshold"`  // consecutive misses before lost
	Retention          time.Duration `yaml:"retention"`            // 0 = keep fetched rows forever
}
