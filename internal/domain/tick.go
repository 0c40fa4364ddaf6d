package domain

import "time"

// Tick is a single last-traded-price update from the market feed.
type Tick struct {
	SecurityID string    // Exchange instrument identifier
	Price      float64   // Last traded price
	EventTime  time.Time // Exchange timestamp of the trade
}

// IsValid reports whether the tick carries enough data to be processed.
// Ticks with a missing instrument id or a non-positive price are dropped
// by the aggregator without any state change.
func (t Tick) IsValid() bool {
	return t.SecurityID != "" && t.Price > 0
}

// Bucket returns the 1-minute bucket the tick belongs to (EventTime truncated
// to the minute).
func (t Tick) Bucket() time.Time {
	return t.EventTime.Truncate(time.Minute)
}
