package ports

import (
	"context"
	"time"
)

// CounterStore provides atomic named counters shared across processes.
// The daily trade-count check-and-increment must happen here, not as a
// read-then-write in application code, so two workers cannot both take the
// last remaining slot.
type CounterStore interface {
	// Increment atomically adds one and returns the new value. First
	// increment of a key arms the daily expiry.
	Increment(ctx context.Context, key string) (int64, error)
	// Decrement atomically subtracts one and returns the new value.
	Decrement(ctx context.Context, key string) (int64, error)
	// AddFloat atomically adds delta to a float counter and returns the new value.
	AddFloat(ctx context.Context, key string, delta float64) (float64, error)
	// GetFloat reads a float counter; missing keys read as zero.
	GetFloat(ctx context.Context, key string) (float64, error)
	// Delete removes counters (daily reset).
	Delete(ctx context.Context, keys ...string) error
}

// PrevDayLevels is the cached previous-session OHLC for one symbol.
type PrevDayLevels struct {
	High  float64
	Low   float64
	Close float64
}

// ReferenceData is the read-only lookup of previous-day levels used to gate
// breakout entries. Population of the cache is an external concern.
type ReferenceData interface {
	// PrevDayHigh returns the previous trading day's high for the symbol and
	// whether it is present in the cache.
	PrevDayHigh(ctx context.Context, symbol string) (float64, bool, error)
	// PrevDayLevels returns the full cached OHLC record, if present.
	PrevDayLevels(ctx context.Context, symbol string) (*PrevDayLevels, bool, error)
}

// EventKind discriminates the four logical inbound channels.
type EventKind string

const (
	EventTick        EventKind = "tick"
	EventCandle      EventKind = "candle"
	EventOrderUpdate EventKind = "order_update"
	EventControl     EventKind = "control"
)

// FeedEvent is one inbound message. Exactly one payload pointer is non-nil,
// matching Kind. Stream and MessageID identify the message for acking.
type FeedEvent struct {
	Kind      EventKind
	Stream    string
	MessageID string

	Tick        *TickPayload
	Candle      *CandlePayload
	OrderUpdate *OrderUpdatePayload
	Control     *ControlPayload
}

// TickPayload mirrors domain.Tick at the wire boundary.
type TickPayload struct {
	SecurityID string    `json:"securityId"`
	Price      float64   `json:"ltp"`
	EventTime  time.Time `json:"ts"`
}

// CandlePayload is a completed bar delivered by an upstream aggregator.
type CandlePayload struct {
	Symbol     string    `json:"symbol"`
	SecurityID string    `json:"security_id"`
	BucketTime time.Time `json:"ts"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
}

// OrderUpdatePayload is a broker order event at the wire boundary.
type OrderUpdatePayload struct {
	OrderID     string    `json:"orderId"`
	Status      string    `json:"orderStatus"`
	FilledQty   int       `json:"filledQty"`
	FilledPrice float64   `json:"tradedPrice"`
	EventTime   time.Time `json:"ts"`
}

// ControlPayload is an operator signal at the wire boundary.
type ControlPayload struct {
	Action string `json:"action"`
	Token  string `json:"token,omitempty"`
}

// EventFeed is the inbound at-least-once event stream. Read blocks for at
// most `block` so the caller's loop can run time-based checks even when no
// events arrive.
type EventFeed interface {
	Read(ctx context.Context, maxCount int, block time.Duration) ([]FeedEvent, error)
	Ack(ctx context.Context, ev FeedEvent) error
}

// FeedPublisher is the outbound side used by the data worker to push ticks
// and order updates onto the streams the engine consumes.
type FeedPublisher interface {
	PublishTick(ctx context.Context, p TickPayload) error
	PublishCandle(ctx context.Context, p CandlePayload) error
	PublishOrderUpdate(ctx context.Context, p OrderUpdatePayload) error
}

// StatusReporter exposes coarse process status to the dashboard
// (STARTING/RUNNING/...), keyed per component.
type StatusReporter interface {
	SetStatus(ctx context.Context, component, status string) error
}
