package domain

import "time"

// Trade is one venue fill observed for a followed wallet. ID is the venue's
// order hash, falling back to the transaction hash when absent.
type Trade struct {
	ID          string
	ConditionID string
	Wallet      string
	Side        string
	Price       float64
	Shares      float64
	TokenID     string
	TxHash      string
	ExecutedAt  time.Time
	CreatedAt   time.Time
}
