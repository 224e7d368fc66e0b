package domain

import "time"

// Order mirrors an order placed on the external matching venue.
type Order struct {
	ID            string
	VenueOrderID  string
	ConditionID   string
	Side          string
	Status        OrderStatus
	NotFoundCount int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"
	OrderStatusMatched  OrderStatus = "matched"
	OrderStatusCanceled OrderStatus = "canceled"
	OrderStatusLost     OrderStatus = "lost"
)

// Terminal reports whether further venue polling of the order is meaningful.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCanceled || s == OrderStatusLost
}

// PollOutcome classifies a single venue response for a tracked order.
type PollOutcome string

const (
	OutcomeFound      PollOutcome = "found"
	OutcomeNotFound   PollOutcome = "not_found"
	OutcomeOtherError PollOutcome = "other_error"
)

// VenueOrder is the venue-side view of an order returned by a poll.
type VenueOrder struct {
	Status      string  `json:"status"`
	MatchedSize float64 `json:"matched_size"`
}
