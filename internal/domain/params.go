package domain

import (
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time within the trading day, stored as minutes
// since midnight in the exchange timezone.
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(parsed.Hour()*60 + parsed.Minute()), nil
}

// String renders the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Before reports whether the instant's wall-clock time (in its own location)
// falls before this time of day.
func (t TimeOfDay) Before(instant time.Time) bool {
	return instant.Hour()*60+instant.Minute() < int(t)
}

// Reached reports whether the instant's wall-clock time is at or past this
// time of day.
func (t TimeOfDay) Reached(instant time.Time) bool {
	return instant.Hour()*60+instant.Minute() >= int(t)
}

// StrategyParams are the hot-reloadable tunables of the breakout strategy.
// They are read mostly; the engine refreshes them from the params store when
// an UPDATE_CONFIG control signal arrives.
type StrategyParams struct {
	Name      string
	IsEnabled bool // Master switch; nothing is evaluated while false

	// Sizing and levels.
	PerTradeRiskAmount float64 // Rupees risked per trade; quantity = floor(amount/risk)
	EntryOffsetPct     float64 // Entry trigger = candle high * (1 + pct)
	StopOffsetPct      float64 // Stop = candle low * (1 - pct)
	RiskMultiple       float64 // Target = entry + multiple * risk
	BreakevenTriggerR  float64 // Raise stop to entry once profit exceeds this many R
	MaxCandlePct       float64 // Reject signals from bars wider than this fraction of close (0 disables)

	// Limits and session.
	MaxTotalTrades    int           // Daily admission cap, enforced via the shared counter
	MaxTradesPerStock int           // Per-symbol daily cap (uniqueness of the live trade is always enforced)
	MaxMonitorTime    time.Duration // PENDING_ENTRY expires this long after its signal candle
	SessionStart      TimeOfDay
	SessionEnd        TimeOfDay

	// Daily P&L circuit breaker (realized + unrealized).
	PnLExitEnabled  bool
	PnLProfitTarget float64
	PnLStopLoss     float64 // Positive number; breach is net P&L <= -PnLStopLoss
}

// Validate checks the invariants the engine relies on.
func (p *StrategyParams) Validate() error {
	var errs []string
	if p.PerTradeRiskAmount <= 0 {
		errs = append(errs, "PerTradeRiskAmount must be positive")
	}
	if p.EntryOffsetPct < 0 || p.StopOffsetPct < 0 {
		errs = append(errs, "offset percentages cannot be negative")
	}
	if p.RiskMultiple <= 0 {
		errs = append(errs, "RiskMultiple must be positive")
	}
	if p.BreakevenTriggerR < 0 {
		errs = append(errs, "BreakevenTriggerR cannot be negative")
	}
	if p.MaxTotalTrades <= 0 {
		errs = append(errs, "MaxTotalTrades must be positive")
	}
	if p.MaxMonitorTime <= 0 {
		errs = append(errs, "MaxMonitorTime must be positive")
	}
	if p.SessionEnd <= p.SessionStart {
		errs = append(errs, "SessionEnd must be after SessionStart")
	}
	if p.PnLExitEnabled && (p.PnLProfitTarget <= 0 || p.PnLStopLoss <= 0) {
		errs = append(errs, "PnL limits must be positive when PnL exit is enabled")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid strategy params: %s", strings.Join(errs, "; "))
	}
	return nil
}
