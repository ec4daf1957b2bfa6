package search

import "time"

const (
	AggregateType = "Search"

	EventSearchPerformed = "search_performed"
)

// Query is the set of car search filters a client submitted.
type Query struct {
	Location     string   `json:"location,omitempty"`
	CarType      string   `json:"car_type,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty" validate:"omitempty,gt=0"`
	Transmission string   `json:"transmission,omitempty" validate:"omitempty,oneof=automatic manual"`
}

// SearchPerformed is emitted for every car search
type SearchPerformed struct {
	Query        Query     `json:"query"`
	ResultsCount int       `json:"results_count"`
	Timestamp    time.Time `json:"timestamp"`
}
