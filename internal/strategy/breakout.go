// Package strategy implements the breakout signal evaluator: it turns a
// completed 1-minute candle plus the cached previous-day high into at most
// one new PENDING_ENTRY trade, enforcing sizing rules and the global daily
// admission limit.
package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

// Evaluator decides whether a completed candle produces an entry signal.
type Evaluator struct {
	logger   ports.Logger
	repo     ports.TradeRepository
	counters ports.CounterStore
	refData  ports.ReferenceData
	loc      *time.Location

	// now is swappable for tests.
	now func() time.Time
}

// Config holds dependencies for the evaluator.
type Config struct {
	Logger   ports.Logger
	Repo     ports.TradeRepository
	Counters ports.CounterStore
	RefData  ports.ReferenceData
	Timezone *time.Location
}

// New creates an evaluator.
func New(cfg Config) (*Evaluator, error) {
	if cfg.Logger == nil || cfg.Repo == nil || cfg.Counters == nil || cfg.RefData == nil {
		return nil, fmt.Errorf("missing required dependencies for evaluator")
	}
	loc := cfg.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{
		logger:   cfg.Logger,
		repo:     cfg.Repo,
		counters: cfg.Counters,
		refData:  cfg.RefData,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// EvaluateCandle applies the breakout entry rule to one completed candle and
// returns the newly created PENDING_ENTRY trade, or nil when no signal was
// taken. Declines (rule not met, limits hit, zero quantity) are business
// outcomes, not errors; an error is returned only for infrastructure failures.
func (e *Evaluator) EvaluateCandle(ctx context.Context, params *domain.StrategyParams, candle *domain.Candle) (*domain.Trade, error) {
	op := "EvaluateCandle"

	if params == nil || !params.IsEnabled {
		return nil, nil
	}
	if candle.Symbol == "" {
		// Instrument not in the trading universe.
		return nil, nil
	}

	// Central uniqueness invariant: at most one non-terminal trade per
	// symbol, checked against the durable store so concurrent workers agree.
	existing, err := e.repo.FindActiveBySymbol(ctx, candle.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: active-trade lookup for %s: %w", op, candle.Symbol, err)
	}
	if existing != nil {
		return nil, nil
	}

	if params.MaxTradesPerStock > 0 {
		n, err := e.repo.CountTodayBySymbol(ctx, candle.Symbol)
		if err != nil {
			return nil, fmt.Errorf("%s: per-stock count for %s: %w", op, candle.Symbol, err)
		}
		if n >= params.MaxTradesPerStock {
			e.logger.Debug(ctx, "Per-stock trade cap reached", map[string]interface{}{
				"symbol": candle.Symbol, "count": n,
			})
			return nil, nil
		}
	}

	pdh, ok, err := e.refData.PrevDayHigh(ctx, candle.Symbol)
	if err != nil {
		// Missing reference data is recoverable/local: skip this candle.
		e.logger.Warn(ctx, "Previous-day high lookup failed, skipping candle", map[string]interface{}{
			"symbol": candle.Symbol, "error": err.Error(),
		})
		return nil, nil
	}
	if !ok || pdh <= 0 {
		return nil, nil
	}

	// Entry rule: bullish bar that crossed the previous day's high cleanly
	// within this single candle.
	if !candle.IsBullish() {
		return nil, nil
	}
	if !(candle.Open < pdh && pdh < candle.Close) {
		return nil, nil
	}
	if params.MaxCandlePct > 0 && candle.RangePct() > params.MaxCandlePct {
		e.logger.Debug(ctx, "Signal rejected: candle range above filter", map[string]interface{}{
			"symbol": candle.Symbol, "rangePct": candle.RangePct(),
		})
		return nil, nil
	}

	// Sizing.
	entryLevel := candle.High * (1 + params.EntryOffsetPct)
	stopLevel := candle.Low * (1 - params.StopOffsetPct)
	riskPerShare := entryLevel - stopLevel
	if riskPerShare <= 0 {
		return nil, nil
	}
	targetLevel := entryLevel + params.RiskMultiple*riskPerShare
	quantity := int(math.Floor(params.PerTradeRiskAmount / riskPerShare))
	if quantity <= 0 {
		return nil, nil
	}

	// Global admission: atomic check-and-increment on the shared counter.
	// The increment is rolled back on any later failure in this path.
	countKey := domain.TradeCountKey(e.now().In(e.loc))
	count, err := e.counters.Increment(ctx, countKey)
	if err != nil {
		return nil, fmt.Errorf("%s: trade counter increment: %w", op, err)
	}
	if count > int64(params.MaxTotalTrades) {
		if _, derr := e.counters.Decrement(ctx, countKey); derr != nil {
			e.logger.Error(ctx, derr, "Failed to roll back trade counter after limit check", map[string]interface{}{
				"key": countKey,
			})
		}
		e.logger.Debug(ctx, "Daily trade limit reached", map[string]interface{}{
			"count": count, "max": params.MaxTotalTrades,
		})
		return nil, nil
	}

	trade := &domain.Trade{
		Symbol:      candle.Symbol,
		SecurityID:  candle.SecurityID,
		Quantity:    quantity,
		Status:      domain.StatusPendingEntry,
		EntryLevel:  entryLevel,
		StopLevel:   stopLevel,
		TargetLevel: targetLevel,
		PrevDayHigh: pdh,
		CandleTime:  candle.BucketTime,
		CreatedAt:   e.now(),
	}

	id, err := e.repo.Create(ctx, trade)
	if err != nil {
		if _, derr := e.counters.Decrement(ctx, countKey); derr != nil {
			e.logger.Error(ctx, derr, "Failed to roll back trade counter after create failure", map[string]interface{}{
				"key": countKey,
			})
		}
		return nil, fmt.Errorf("%s: persisting trade for %s: %w", op, candle.Symbol, err)
	}
	trade.ID = id

	e.logger.Info(ctx, "Signal: pending entry created", map[string]interface{}{
		"symbol":      trade.Symbol,
		"entryLevel":  trade.EntryLevel,
		"stopLevel":   trade.StopLevel,
		"targetLevel": trade.TargetLevel,
		"quantity":    trade.Quantity,
		"prevDayHigh": trade.PrevDayHigh,
	})
	return trade, nil
}
