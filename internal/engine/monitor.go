package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

// Monitor evaluates every tracked trade against live prices and wall-clock
// time: entry triggers, pending-entry expiry, stop/target exits, the
// breakeven trail, session-end and daily P&L force exits.
type Monitor struct {
	logger   ports.Logger
	repo     ports.TradeRepository
	broker   ports.BrokerGateway
	counters ports.CounterStore
	loc      *time.Location

	// now is swappable for tests.
	now func() time.Time
}

// MonitorConfig holds dependencies for the monitor.
type MonitorConfig struct {
	Logger   ports.Logger
	Repo     ports.TradeRepository
	Broker   ports.BrokerGateway
	Counters ports.CounterStore
	Timezone *time.Location
}

// NewMonitor creates a monitor.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Logger == nil || cfg.Repo == nil || cfg.Broker == nil || cfg.Counters == nil {
		return nil, fmt.Errorf("missing required dependencies for monitor")
	}
	loc := cfg.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &Monitor{
		logger:   cfg.Logger,
		repo:     cfg.Repo,
		broker:   cfg.Broker,
		counters: cfg.Counters,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// Sweep runs one monitoring pass over the active trade book. The book is
// owned by the single engine goroutine; trades reaching a terminal state are
// removed from it here.
func (m *Monitor) Sweep(ctx context.Context, params *domain.StrategyParams, book map[string]*domain.Trade, lastPrice func(securityID string) (float64, bool)) {
	if params == nil || len(book) == 0 {
		return
	}

	now := m.now().In(m.loc)
	sessionEnded := params.SessionEnd.Reached(now)

	// Session end: force-exit everything still open. Pending entries keep
	// flowing through their expiry paths below but may no longer trigger.
	if sessionEnded {
		m.forceExitAll(ctx, book, domain.ExitReasonEndOfDay)
	} else if params.PnLExitEnabled && m.dailyPnLBreached(ctx, params, book, lastPrice, now) {
		m.forceExitAll(ctx, book, domain.ExitReasonDailyPnL)
	}

	for symbol, trade := range book {
		ltp, _ := lastPrice(trade.SecurityID)

		switch trade.Status {
		case domain.StatusPendingEntry:
			m.checkPendingEntry(ctx, params, book, symbol, trade, ltp, now, sessionEnded)
		case domain.StatusOpen:
			if ltp > 0 {
				m.checkOpen(ctx, params, book, trade, ltp)
			}
		case domain.StatusPendingExit:
			// Awaiting the broker's fill or cancel; reconciliation owns
			// the next transition.
		}
	}
}

func (m *Monitor) checkPendingEntry(ctx context.Context, params *domain.StrategyParams, book map[string]*domain.Trade, symbol string, trade *domain.Trade, ltp float64, now time.Time, sessionEnded bool) {
	// Timeout fires even with no live price.
	if now.After(trade.CandleTime.Add(params.MaxMonitorTime)) {
		m.expirePendingEntry(ctx, book, trade, domain.ExitReasonTimeout)
		return
	}
	if ltp <= 0 {
		return
	}

	// Trigger: live price crossed the entry level. Fire the market buy once;
	// with an order already live this is confirm-only and the fill arrives
	// via reconciliation.
	if ltp >= trade.EntryLevel {
		if trade.EntryOrderID != "" {
			return
		}
		// No new positions after the end-of-day cutoff; the setup retires
		// through the timeout path instead.
		if sessionEnded {
			return
		}
		orderID, err := m.broker.PlaceOrder(ctx, ports.OrderRequest{
			SecurityID: trade.SecurityID,
			Side:       domain.Buy,
			Quantity:   trade.Quantity,
			Type:       domain.OrderTypeMarket,
		})
		if err != nil {
			// Left in PENDING_ENTRY; the next sweep retries while the
			// trigger condition holds.
			m.logger.Error(ctx, err, "Entry market order failed", map[string]interface{}{
				"symbol": symbol, "tradeID": trade.ID,
			})
			return
		}
		trade.EntryOrderID = orderID
		if err := m.repo.Update(ctx, trade); err != nil {
			// Order live with no durable record of its id: the dangerous
			// partial-failure window. The startup orphan scan repairs it.
			m.logger.Error(ctx, err, "ALERT: entry order live but trade record update failed", map[string]interface{}{
				"alert": "orphan_order", "symbol": symbol, "orderID": orderID, "tradeID": trade.ID,
			})
		}
		m.logger.Info(ctx, "Entry triggered, market buy placed", map[string]interface{}{
			"symbol": symbol, "orderID": orderID, "ltp": ltp, "entryLevel": trade.EntryLevel,
		})
		return
	}

	// Invalidated before trigger: price fell through the stop.
	if ltp <= trade.StopLevel {
		m.expirePendingEntry(ctx, book, trade, domain.ExitReasonInvalidated)
	}
}

// expirePendingEntry moves PENDING_ENTRY to EXPIRED, cancels any live entry
// order best-effort, and frees the daily admission slot. The counter is
// decremented only when the optimistic transition succeeded, so duplicate
// paths (monitor expiry racing a broker cancel event) cannot double-decrement.
func (m *Monitor) expirePendingEntry(ctx context.Context, book map[string]*domain.Trade, trade *domain.Trade, reason domain.ExitReason) {
	trade.ExitReason = reason
	err := m.repo.TransitionStatus(ctx, trade, domain.StatusPendingEntry, domain.StatusExpired)
	if errors.Is(err, ports.ErrStaleTransition) {
		m.logger.Debug(ctx, "Pending entry already transitioned elsewhere", map[string]interface{}{
			"symbol": trade.Symbol, "tradeID": trade.ID,
		})
		delete(book, trade.Symbol)
		return
	}
	if err != nil {
		m.logger.Error(ctx, err, "Failed to expire pending entry", map[string]interface{}{
			"symbol": trade.Symbol, "tradeID": trade.ID,
		})
		return
	}

	if trade.EntryOrderID != "" {
		// Best effort: the broker is the source of truth and reconciliation
		// corrects any mismatch later.
		if cerr := m.broker.CancelOrder(ctx, trade.EntryOrderID); cerr != nil && !errors.Is(cerr, ports.ErrOrderNotFound) {
			m.logger.Warn(ctx, "Cancel of expired entry order failed", map[string]interface{}{
				"symbol": trade.Symbol, "orderID": trade.EntryOrderID, "error": cerr.Error(),
			})
		}
	}

	key := domain.TradeCountKey(m.now().In(m.loc))
	if _, derr := m.counters.Decrement(ctx, key); derr != nil {
		m.logger.Error(ctx, derr, "Failed to free daily trade slot after expiry", map[string]interface{}{
			"key": key, "tradeID": trade.ID,
		})
	}
	delete(book, trade.Symbol)
	m.logger.Info(ctx, "Pending entry expired", map[string]interface{}{
		"symbol": trade.Symbol, "reason": string(reason),
	})
}

func (m *Monitor) checkOpen(ctx context.Context, params *domain.StrategyParams, book map[string]*domain.Trade, trade *domain.Trade, ltp float64) {
	// Stop-loss is checked before target: with target > entry > stop only
	// one can hold for a single price, but if both ever compute true the
	// safety-critical branch wins.
	if ltp <= trade.StopLevel {
		m.requestExit(ctx, trade, domain.ExitReasonStopLoss)
		return
	}
	if ltp >= trade.TargetLevel {
		m.requestExit(ctx, trade, domain.ExitReasonTarget)
		return
	}

	// Breakeven trail: once profit exceeds the configured R-multiple, raise
	// the stop to the entry price. Monotonic and one-shot: after the raise
	// the guard stop < entry no longer holds.
	if trade.StopLevel < trade.EntryPrice {
		risk := trade.EntryPrice - trade.StopLevel
		trigger := trade.EntryPrice + params.BreakevenTriggerR*risk
		if ltp >= trigger {
			trade.StopLevel = trade.EntryPrice
			if err := m.repo.Update(ctx, trade); err != nil {
				m.logger.Error(ctx, err, "Failed to persist breakeven stop", map[string]interface{}{
					"symbol": trade.Symbol, "tradeID": trade.ID,
				})
				return
			}
			m.logger.Info(ctx, "Stop raised to breakeven", map[string]interface{}{
				"symbol": trade.Symbol, "stopLevel": trade.StopLevel,
			})
		}
	}
}

// requestExit places the market sell and moves OPEN to PENDING_EXIT. On
// order failure the trade stays OPEN and the next sweep retries.
func (m *Monitor) requestExit(ctx context.Context, trade *domain.Trade, reason domain.ExitReason) {
	orderID, err := m.broker.PlaceOrder(ctx, ports.OrderRequest{
		SecurityID: trade.SecurityID,
		Side:       domain.Sell,
		Quantity:   trade.Quantity,
		Type:       domain.OrderTypeMarket,
	})
	if err != nil {
		m.logger.Error(ctx, err, "Exit market order failed, position remains open", map[string]interface{}{
			"symbol": trade.Symbol, "tradeID": trade.ID, "reason": string(reason),
		})
		return
	}

	trade.ExitOrderID = orderID
	trade.ExitReason = reason
	err = m.repo.TransitionStatus(ctx, trade, domain.StatusOpen, domain.StatusPendingExit)
	if errors.Is(err, ports.ErrStaleTransition) {
		// Reconciliation raced us on this trade after the sell went out.
		// The broker events will settle the final state.
		m.logger.Warn(ctx, "Exit placed but trade left OPEN concurrently", map[string]interface{}{
			"symbol": trade.Symbol, "orderID": orderID,
		})
		return
	}
	if err != nil {
		m.logger.Error(ctx, err, "ALERT: exit order live but trade record update failed", map[string]interface{}{
			"alert": "orphan_order", "symbol": trade.Symbol, "orderID": orderID,
		})
		return
	}
	m.logger.Info(ctx, "Exit sent", map[string]interface{}{
		"symbol": trade.Symbol, "reason": string(reason), "orderID": orderID,
	})
}

func (m *Monitor) forceExitAll(ctx context.Context, book map[string]*domain.Trade, reason domain.ExitReason) {
	for _, trade := range book {
		if trade.Status == domain.StatusOpen {
			m.requestExit(ctx, trade, reason)
		}
	}
}

// dailyPnLBreached computes realized plus unrealized P&L for the day and
// reports whether either circuit-breaker level is hit.
func (m *Monitor) dailyPnLBreached(ctx context.Context, params *domain.StrategyParams, book map[string]*domain.Trade, lastPrice func(string) (float64, bool), now time.Time) bool {
	realized, err := m.counters.GetFloat(ctx, domain.DailyPnLKey(now))
	if err != nil {
		m.logger.Warn(ctx, "Daily P&L read failed, skipping circuit breaker", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}

	net := realized
	for _, trade := range book {
		if ltp, ok := lastPrice(trade.SecurityID); ok {
			net += trade.UnrealizedPnL(ltp)
		}
	}

	if net >= params.PnLProfitTarget {
		m.logger.Info(ctx, "Daily profit target reached, flattening", map[string]interface{}{"net": net})
		return true
	}
	if net <= -params.PnLStopLoss {
		m.logger.Info(ctx, "Daily stop loss breached, flattening", map[string]interface{}{"net": net})
		return true
	}
	return false
}
