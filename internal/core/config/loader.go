package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/polysync-labs/reconciler/internal/core/backoff"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Queue.BatchLimit == 0 {
		cfg.Queue.BatchLimit = 50
	}
	if cfg.Queue.Workers == 0 {
		cfg.Queue.Workers = 4
	}
	if cfg.Queue.ClaimInterval == 0 {
		cfg.Queue.ClaimInterval = 5 * time.Second
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 30 * time.Second
	}
	if cfg.Queue.PollBatchSize == 0 {
		cfg.Queue.PollBatchSize = 100
	}
	if cfg.Queue.MaxBackoffExponent == 0 {
		cfg.Queue.MaxBackoffExponent = backoff.DefaultMaxExponent
	}
	if cfg.Queue.NotFoundThreshold == 0 {
		cfg.Queue.NotFoundThreshold = 3
	}
	if cfg.Ingest.Interval == 0 {
		cfg.Ingest.Interval = 5 * time.Minute
	}
	if cfg.Ingest.Limit == 0 {
		cfg.Ingest.Limit = 1000
	}

	return &cfg, nil
}
