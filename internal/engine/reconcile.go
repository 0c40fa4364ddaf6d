package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

// Reconciler applies authoritative broker order events to trade state.
// Delivery is at-least-once, so every transition is guarded by an optimistic
// status precondition: a duplicate event finds the "from" state gone and
// becomes a no-op instead of double-counting P&L or counters.
type Reconciler struct {
	logger   ports.Logger
	repo     ports.TradeRepository
	counters ports.CounterStore
	loc      *time.Location

	now func() time.Time
}

// ReconcilerConfig holds dependencies for the reconciler.
type ReconcilerConfig struct {
	Logger   ports.Logger
	Repo     ports.TradeRepository
	Counters ports.CounterStore
	Timezone *time.Location
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Logger == nil || cfg.Repo == nil || cfg.Counters == nil {
		return nil, fmt.Errorf("missing required dependencies for reconciler")
	}
	loc := cfg.Timezone
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{
		logger:   cfg.Logger,
		repo:     cfg.Repo,
		counters: cfg.Counters,
		loc:      loc,
		now:      time.Now,
	}, nil
}

// HandleOrderUpdate locates the trade owning the order and applies the
// matching transition. Events for orders this system never placed are
// ignored.
func (r *Reconciler) HandleOrderUpdate(ctx context.Context, params *domain.StrategyParams, update *domain.OrderUpdate, book map[string]*domain.Trade) error {
	if update == nil || update.OrderID == "" {
		return nil
	}

	trade, isEntry, err := r.findTrade(ctx, update.OrderID, book)
	if err != nil {
		return fmt.Errorf("reconcile: locating trade for order %s: %w", update.OrderID, err)
	}
	if trade == nil {
		r.logger.Debug(ctx, "Order update for unknown order, ignoring", map[string]interface{}{
			"orderID": update.OrderID,
		})
		return nil
	}

	switch {
	case update.Status == domain.OrderStatusTraded && isEntry:
		return r.confirmEntryFill(ctx, params, trade, update, book)
	case update.Status == domain.OrderStatusTraded && !isEntry:
		return r.confirmExitFill(ctx, trade, update, book)
	case update.Status.IsTerminalFailure() && isEntry:
		return r.failEntry(ctx, trade, update, book)
	case update.Status.IsTerminalFailure() && !isEntry:
		return r.revertFailedExit(ctx, trade, update)
	}
	return nil
}

// findTrade checks the in-memory book first (fast path), then the durable
// store, which covers restarts and events missed while down.
func (r *Reconciler) findTrade(ctx context.Context, orderID string, book map[string]*domain.Trade) (*domain.Trade, bool, error) {
	for _, t := range book {
		if t.EntryOrderID == orderID {
			return t, true, nil
		}
		if t.ExitOrderID == orderID {
			return t, false, nil
		}
	}
	return r.repo.FindByOrderID(ctx, orderID)
}

func (r *Reconciler) confirmEntryFill(ctx context.Context, params *domain.StrategyParams, trade *domain.Trade, update *domain.OrderUpdate, book map[string]*domain.Trade) error {
	if trade.Status != domain.StatusPendingEntry {
		// Duplicate or late event; already applied.
		return nil
	}

	trade.EntryPrice = update.FilledPrice
	trade.EntryTime = r.now()
	// Target is recomputed from the actual fill so the reward stays an exact
	// multiple of the real per-share risk, not the estimated trigger price.
	if params != nil && params.RiskMultiple > 0 && trade.EntryPrice > trade.StopLevel {
		trade.TargetLevel = trade.EntryPrice + params.RiskMultiple*(trade.EntryPrice-trade.StopLevel)
	}

	err := r.repo.TransitionStatus(ctx, trade, domain.StatusPendingEntry, domain.StatusOpen)
	if errors.Is(err, ports.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: confirming entry fill for trade %d: %w", trade.ID, err)
	}

	book[trade.Symbol] = trade
	r.logger.Info(ctx, "Entry fill confirmed", map[string]interface{}{
		"symbol": trade.Symbol, "entryPrice": trade.EntryPrice, "targetLevel": trade.TargetLevel,
	})
	return nil
}

func (r *Reconciler) confirmExitFill(ctx context.Context, trade *domain.Trade, update *domain.OrderUpdate, book map[string]*domain.Trade) error {
	if trade.Status != domain.StatusOpen && trade.Status != domain.StatusPendingExit {
		return nil
	}

	from := trade.Status
	trade.ExitPrice = update.FilledPrice
	trade.ExitTime = r.now()
	trade.PnL = (trade.ExitPrice - trade.EntryPrice) * float64(trade.Quantity)

	err := r.repo.TransitionStatus(ctx, trade, from, domain.StatusClosed)
	if errors.Is(err, ports.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: closing trade %d: %w", trade.ID, err)
	}

	// P&L is booked exactly once: only the goroutine that won the optimistic
	// transition reaches this point.
	key := domain.DailyPnLKey(r.now().In(r.loc))
	if _, aerr := r.counters.AddFloat(ctx, key, trade.PnL); aerr != nil {
		r.logger.Error(ctx, aerr, "Failed to book realized P&L", map[string]interface{}{
			"key": key, "tradeID": trade.ID, "pnl": trade.PnL,
		})
	}

	delete(book, trade.Symbol)
	r.logger.Info(ctx, "Exit fill confirmed, trade closed", map[string]interface{}{
		"symbol": trade.Symbol, "exitPrice": trade.ExitPrice, "pnl": trade.PnL,
	})
	return nil
}

func (r *Reconciler) failEntry(ctx context.Context, trade *domain.Trade, update *domain.OrderUpdate, book map[string]*domain.Trade) error {
	if trade.Status != domain.StatusPendingEntry {
		return nil
	}

	trade.ExitReason = domain.ExitReasonOrderFailure
	err := r.repo.TransitionStatus(ctx, trade, domain.StatusPendingEntry, domain.StatusFailedEntry)
	if errors.Is(err, ports.ErrStaleTransition) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile: failing entry for trade %d: %w", trade.ID, err)
	}

	key := domain.TradeCountKey(r.now().In(r.loc))
	if _, derr := r.counters.Decrement(ctx, key); derr != nil {
		r.logger.Error(ctx, derr, "Failed to free daily trade slot after entry failure", map[string]interface{}{
			"key": key, "tradeID": trade.ID,
		})
	}

	delete(book, trade.Symbol)
	r.logger.Warn(ctx, "Entry order failed at broker", map[string]interface{}{
		"symbol": trade.Symbol, "orderStatus": string(update.Status),
	})
	return nil
}

// revertFailedExit puts a trade whose exit order was cancelled or rejected
// back to OPEN: the position is still live and must not be silently lost.
func (r *Reconciler) revertFailedExit(ctx context.Context, trade *domain.Trade, update *domain.OrderUpdate) error {
	if trade.Status != domain.StatusPendingExit {
		return nil
	}

	// The cleared exit fields ride along on the optimistic update and are
	// restored when the transition is lost, so the shared copy keeps the
	// order id the durable store still holds.
	exitOrderID, exitReason := trade.ExitOrderID, trade.ExitReason
	trade.ExitOrderID = ""
	trade.ExitReason = ""
	err := r.repo.TransitionStatus(ctx, trade, domain.StatusPendingExit, domain.StatusOpen)
	if err != nil {
		trade.ExitOrderID, trade.ExitReason = exitOrderID, exitReason
		if errors.Is(err, ports.ErrStaleTransition) {
			return nil
		}
		return fmt.Errorf("reconcile: reverting failed exit for trade %d: %w", trade.ID, err)
	}

	r.logger.Warn(ctx, "Exit order failed, position reverted to OPEN", map[string]interface{}{
		"symbol": trade.Symbol, "orderStatus": string(update.Status),
	})
	return nil
}
