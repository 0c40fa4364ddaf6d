package domain

import "time"

// TradeStatus is the lifecycle state of a breakout trade.
type TradeStatus string

const (
	StatusPendingEntry TradeStatus = "PENDING_ENTRY"
	StatusOpen         TradeStatus = "OPEN"
	StatusPendingExit  TradeStatus = "PENDING_EXIT"
	StatusClosed       TradeStatus = "CLOSED"
	StatusExpired      TradeStatus = "EXPIRED"
	StatusFailedEntry  TradeStatus = "FAILED_ENTRY"
	StatusFailedExit   TradeStatus = "FAILED_EXIT"
)

// IsTerminal reports whether the status is a final state. At most one
// non-terminal trade may exist per symbol at any time.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case StatusClosed, StatusExpired, StatusFailedEntry, StatusFailedExit:
		return true
	}
	return false
}

// ExitReason records why a trade left the OPEN/PENDING_ENTRY state.
type ExitReason string

const (
	ExitReasonTarget       ExitReason = "TARGET_HIT"
	ExitReasonStopLoss     ExitReason = "STOP_LOSS_HIT"
	ExitReasonTimeout      ExitReason = "ENTRY_TIMEOUT"
	ExitReasonInvalidated  ExitReason = "INVALIDATED_BEFORE_TRIGGER"
	ExitReasonEndOfDay     ExitReason = "END_OF_DAY"
	ExitReasonDailyPnL     ExitReason = "DAILY_PNL_LIMIT"
	ExitReasonOrderFailure ExitReason = "ORDER_FAILURE"
)

// Trade is the durable record of one breakout attempt on a symbol.
// It is created in PENDING_ENTRY by the signal evaluator; the monitor and
// the reconciliation handler drive it through the state machine.
type Trade struct {
	ID         int64
	Symbol     string
	SecurityID string
	Quantity   int // Fixed at creation

	Status TradeStatus

	// Price levels. StopLevel is the only mutable level (breakeven trail);
	// TargetLevel is recomputed once the actual fill price is known.
	EntryLevel  float64
	StopLevel   float64
	TargetLevel float64

	// Execution facts, populated as broker events confirm them.
	EntryPrice   float64
	ExitPrice    float64
	EntryOrderID string
	ExitOrderID  string
	EntryTime    time.Time
	ExitTime     time.Time
	PnL          float64
	ExitReason   ExitReason

	// Signal context.
	CandleTime  time.Time // Bucket time of the bar that produced the signal
	PrevDayHigh float64

	CreatedAt time.Time
}

// IsActive reports whether the trade still needs monitoring.
func (t *Trade) IsActive() bool {
	return !t.Status.IsTerminal()
}

// InitialRisk returns the per-share risk the trade was sized with.
func (t *Trade) InitialRisk() float64 {
	return t.EntryLevel - t.StopLevel
}

// UnrealizedPnL values an OPEN trade against a live price. Trades that have
// no confirmed entry fill contribute nothing.
func (t *Trade) UnrealizedPnL(livePrice float64) float64 {
	if t.Status != StatusOpen && t.Status != StatusPendingExit {
		return 0
	}
	if t.EntryPrice == 0 || livePrice == 0 {
		return 0
	}
	return (livePrice - t.EntryPrice) * float64(t.Quantity)
}
