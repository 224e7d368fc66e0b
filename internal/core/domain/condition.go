package domain

import "time"

// ConditionFetch represents one pending market-metadata lookup, keyed by the
// market's condition id. A row is created the first time a condition id is
// referenced and becomes terminal once Fetched is set.
type ConditionFetch struct {
	ConditionID string
	Fetched     bool
	LastAttempt *time.Time // nil = never attempted
	ErrorCount  int
	CreatedAt   time.Time
}
