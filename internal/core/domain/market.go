package domain

import "time"

// Market holds the metadata fetched from the market-data API for a condition.
type Market struct {
	ConditionID string
	Question    string
	EventSlug   string
	Status      string
	CloseTime   *time.Time
	UpdatedAt   time.Time
}
