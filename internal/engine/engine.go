// Package engine hosts the trade lifecycle state machine: a single consumer
// goroutine reads ticks, candles, order updates and control signals from the
// event feed, drives the candle aggregator, the breakout evaluator, the
// position monitor and the reconciliation handler, and owns the in-memory
// active-trade book (a read-through cache over the durable store).
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/marketdata"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
	"github.com/jravi291980-star/ravinderalgo/internal/strategy"
)

const statusComponent = "algo-engine"

// Engine orchestrates the strategy process.
type Engine struct {
	logger     ports.Logger
	feed       ports.EventFeed
	repo       ports.TradeRepository
	paramsRepo ports.ParamsRepository
	broker     ports.BrokerGateway
	counters   ports.CounterStore
	status     ports.StatusReporter

	agg     *marketdata.Aggregator
	eval    *strategy.Evaluator
	monitor *Monitor
	recon   *Reconciler

	loc             *time.Location
	pollBlock       time.Duration
	pollBatch       int
	monitorInterval time.Duration

	// State owned by the consumer goroutine.
	params *domain.StrategyParams
	book   map[string]*domain.Trade // symbol -> active trade
	runCtx context.Context
}

// Config holds the engine's dependencies and loop tuning.
type Config struct {
	Logger     ports.Logger
	Feed       ports.EventFeed
	Repo       ports.TradeRepository
	ParamsRepo ports.ParamsRepository
	Broker     ports.BrokerGateway
	Counters   ports.CounterStore
	RefData    ports.ReferenceData
	Status     ports.StatusReporter
	Symbols    map[string]string // security id -> symbol
	Timezone   *time.Location

	PollBlock       time.Duration
	PollBatch       int
	MonitorInterval time.Duration
}

// New wires the engine and its components.
func New(cfg Config) (*Engine, error) {
	if cfg.Logger == nil || cfg.Feed == nil || cfg.Repo == nil || cfg.ParamsRepo == nil ||
		cfg.Broker == nil || cfg.Counters == nil || cfg.RefData == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}
	loc := cfg.Timezone
	if loc == nil {
		loc = time.UTC
	}
	if cfg.PollBlock <= 0 {
		cfg.PollBlock = 100 * time.Millisecond
	}
	if cfg.PollBatch <= 0 {
		cfg.PollBatch = 200
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Second
	}

	e := &Engine{
		logger:          cfg.Logger,
		feed:            cfg.Feed,
		repo:            cfg.Repo,
		paramsRepo:      cfg.ParamsRepo,
		broker:          cfg.Broker,
		counters:        cfg.Counters,
		status:          cfg.Status,
		loc:             loc,
		pollBlock:       cfg.PollBlock,
		pollBatch:       cfg.PollBatch,
		monitorInterval: cfg.MonitorInterval,
		book:            make(map[string]*domain.Trade),
	}

	agg, err := marketdata.New(marketdata.Config{
		Logger:  cfg.Logger,
		Symbols: cfg.Symbols,
		Emit:    e.onCandleClosed,
	})
	if err != nil {
		return nil, err
	}
	e.agg = agg

	eval, err := strategy.New(strategy.Config{
		Logger:   cfg.Logger,
		Repo:     cfg.Repo,
		Counters: cfg.Counters,
		RefData:  cfg.RefData,
		Timezone: loc,
	})
	if err != nil {
		return nil, err
	}
	e.eval = eval

	mon, err := NewMonitor(MonitorConfig{
		Logger:   cfg.Logger,
		Repo:     cfg.Repo,
		Broker:   cfg.Broker,
		Counters: cfg.Counters,
		Timezone: loc,
	})
	if err != nil {
		return nil, err
	}
	e.monitor = mon

	rec, err := NewReconciler(ReconcilerConfig{
		Logger:   cfg.Logger,
		Repo:     cfg.Repo,
		Counters: cfg.Counters,
		Timezone: loc,
	})
	if err != nil {
		return nil, err
	}
	e.recon = rec

	return e, nil
}

// Start runs the consumer loop until the context is cancelled or a shutdown
// signal arrives.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.runCtx = ctx

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		e.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	e.setStatus(ctx, "STARTING")

	if err := e.loadParams(ctx); err != nil {
		return err
	}
	if err := e.loadActiveTrades(ctx); err != nil {
		return err
	}
	e.reconcileOrphanOrders(ctx)

	e.setStatus(ctx, "RUNNING")
	e.logger.Info(ctx, "Algo engine running", map[string]interface{}{
		"activeTrades": len(e.book),
		"enabled":      e.params != nil && e.params.IsEnabled,
	})

	lastSweep := time.Time{}
	for {
		if ctx.Err() != nil {
			e.setStatus(context.Background(), "STOPPED")
			e.logger.Info(context.Background(), "Algo engine stopped")
			return nil
		}

		events, err := e.feed.Read(ctx, e.pollBatch, e.pollBlock)
		if err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error(ctx, err, "Event feed read failed, backing off")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, ev := range events {
			e.handleEvent(ctx, ev)
			// Ack even after a handler error: a poison message must not
			// wedge the consumer group.
			if aerr := e.feed.Ack(ctx, ev); aerr != nil {
				e.logger.Warn(ctx, "Event ack failed", map[string]interface{}{
					"stream": ev.Stream, "messageID": ev.MessageID, "error": aerr.Error(),
				})
			}
		}

		// The bounded read timeout guarantees this runs even with no data,
		// so pending-entry timeouts and session-end exits always fire.
		if len(events) > 0 || time.Since(lastSweep) >= e.monitorInterval {
			e.monitor.Sweep(ctx, e.params, e.book, e.agg.LastPrice)
			lastSweep = time.Now()
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev ports.FeedEvent) {
	switch ev.Kind {
	case ports.EventTick:
		if ev.Tick == nil {
			return
		}
		e.agg.Ingest(domain.Tick{
			SecurityID: ev.Tick.SecurityID,
			Price:      ev.Tick.Price,
			EventTime:  ev.Tick.EventTime.In(e.loc),
		})

	case ports.EventCandle:
		if ev.Candle == nil {
			return
		}
		e.onCandleClosed(&domain.Candle{
			Symbol:     ev.Candle.Symbol,
			SecurityID: ev.Candle.SecurityID,
			BucketTime: ev.Candle.BucketTime,
			Open:       ev.Candle.Open,
			High:       ev.Candle.High,
			Low:        ev.Candle.Low,
			Close:      ev.Candle.Close,
		})

	case ports.EventOrderUpdate:
		if ev.OrderUpdate == nil {
			return
		}
		update := &domain.OrderUpdate{
			OrderID:     ev.OrderUpdate.OrderID,
			Status:      domain.OrderStatus(ev.OrderUpdate.Status),
			FilledQty:   ev.OrderUpdate.FilledQty,
			FilledPrice: ev.OrderUpdate.FilledPrice,
			EventTime:   ev.OrderUpdate.EventTime,
		}
		if err := e.recon.HandleOrderUpdate(ctx, e.params, update, e.book); err != nil {
			e.logger.Error(ctx, err, "Order update handling failed", map[string]interface{}{
				"orderID": ev.OrderUpdate.OrderID,
			})
		}

	case ports.EventControl:
		if ev.Control == nil {
			return
		}
		e.handleControl(ctx, ev.Control)

	default:
		e.logger.Debug(ctx, "Unknown event kind ignored", map[string]interface{}{
			"kind": string(ev.Kind), "stream": ev.Stream,
		})
	}
}

// onCandleClosed feeds each completed bar to the signal evaluator. The
// in-memory book gives the fast uniqueness check; the evaluator re-checks
// against the durable store for cross-process safety.
func (e *Engine) onCandleClosed(candle *domain.Candle) {
	ctx := e.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	if candle.Symbol == "" {
		return
	}
	if _, exists := e.book[candle.Symbol]; exists {
		return
	}

	trade, err := e.eval.EvaluateCandle(ctx, e.params, candle)
	if err != nil {
		e.logger.Error(ctx, err, "Candle evaluation failed", map[string]interface{}{
			"symbol": candle.Symbol,
		})
		return
	}
	if trade != nil {
		e.book[trade.Symbol] = trade
	}
}

func (e *Engine) handleControl(ctx context.Context, c *ports.ControlPayload) {
	switch domain.ControlAction(c.Action) {
	case domain.ControlReloadConfig:
		if err := e.loadParams(ctx); err != nil {
			e.logger.Error(ctx, err, "Config reload failed")
			return
		}
		if err := e.loadActiveTrades(ctx); err != nil {
			e.logger.Error(ctx, err, "Active trade reload failed")
			return
		}
		e.logger.Info(ctx, "Config reloaded", map[string]interface{}{
			"enabled": e.params != nil && e.params.IsEnabled,
		})
	case domain.ControlTokenRefresh:
		e.broker.SetAccessToken(c.Token)
		e.logger.Info(ctx, "Broker access token refreshed")
	default:
		e.logger.Debug(ctx, "Unknown control action ignored", map[string]interface{}{"action": c.Action})
	}
}

// loadParams pulls the strategy tunables from the params store. A missing
// row means the strategy has never been configured: the engine runs disabled
// until an UPDATE_CONFIG arrives.
func (e *Engine) loadParams(ctx context.Context) error {
	params, err := e.paramsRepo.Load(ctx)
	if errors.Is(err, ports.ErrNotFound) {
		e.logger.Warn(ctx, "No strategy params configured, engine idle until UPDATE_CONFIG")
		e.params = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading strategy params: %w", err)
	}
	if verr := params.Validate(); verr != nil {
		return fmt.Errorf("loaded strategy params rejected: %w", verr)
	}
	e.params = params
	return nil
}

// loadActiveTrades rebuilds the in-memory book from the durable store.
func (e *Engine) loadActiveTrades(ctx context.Context) error {
	trades, err := e.repo.FindActive(ctx)
	if err != nil {
		return fmt.Errorf("loading active trades: %w", err)
	}
	book := make(map[string]*domain.Trade, len(trades))
	for _, t := range trades {
		book[t.Symbol] = t
	}
	e.book = book
	e.logger.Info(ctx, "Active trades loaded", map[string]interface{}{"count": len(book)})
	return nil
}

// reconcileOrphanOrders is the restart safety net for the partial-failure
// window where a broker order went live but the trade record write failed:
// any of today's pending buy orders not referenced by a local trade is
// cancelled and reported loudly.
func (e *Engine) reconcileOrphanOrders(ctx context.Context) {
	orders, err := e.broker.ListOrders(ctx)
	if err != nil {
		e.logger.Warn(ctx, "Orphan-order scan skipped: order list unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	for _, o := range orders {
		if o.Side != domain.Buy || o.Status.IsTerminalFailure() || o.Status == domain.OrderStatusTraded {
			continue
		}
		trade, _, ferr := e.repo.FindByOrderID(ctx, o.OrderID)
		if ferr != nil {
			e.logger.Error(ctx, ferr, "Orphan-order scan lookup failed", map[string]interface{}{
				"orderID": o.OrderID,
			})
			continue
		}
		if trade != nil {
			continue
		}

		e.logger.Error(ctx, errors.New("orphan order detected"), "ALERT: live order with no local trade record, cancelling", map[string]interface{}{
			"alert": "orphan_order", "orderID": o.OrderID, "securityID": o.SecurityID,
		})
		if cerr := e.broker.CancelOrder(ctx, o.OrderID); cerr != nil && !errors.Is(cerr, ports.ErrOrderNotFound) {
			e.logger.Error(ctx, cerr, "Orphan order cancel failed, manual intervention required", map[string]interface{}{
				"orderID": o.OrderID,
			})
		}
	}
}

func (e *Engine) setStatus(ctx context.Context, status string) {
	if e.status == nil {
		return
	}
	if err := e.status.SetStatus(ctx, statusComponent, status); err != nil {
		e.logger.Warn(ctx, "Status update failed", map[string]interface{}{
			"status": status, "error": err.Error(),
		})
	}
}
