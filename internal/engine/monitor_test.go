package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
)

func newTestMonitor(t *testing.T, repo *mockRepo, broker *mockBroker, counters *mockCounters) *Monitor {
	t.Helper()
	m, err := NewMonitor(MonitorConfig{
		Logger:   &mockLogger{},
		Repo:     repo,
		Broker:   broker,
		Counters: counters,
		Timezone: time.UTC,
	})
	require.NoError(t, err)
	m.now = func() time.Time { return testNow }
	return m
}

func staticPrices(prices map[string]float64) func(string) (float64, bool) {
	return func(id string) (float64, bool) {
		p, ok := prices[id]
		return p, ok
	}
}

func TestSweepTriggersEntryOnce(t *testing.T) {
	trade := pendingEntryTrade()
	repo := newMockRepo(trade)
	broker := &mockBroker{placeOrderID: "ord-entry-1"}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}
	prices := staticPrices(map[string]float64{"2885": 100.05})

	m.Sweep(context.Background(), engineTestParams(), book, prices)

	require.Len(t, broker.placed, 1)
	assert.Equal(t, domain.Buy, broker.placed[0].Side)
	assert.Equal(t, domain.OrderTypeMarket, broker.placed[0].Type)
	assert.Equal(t, 985, broker.placed[0].Quantity)
	assert.Equal(t, "ord-entry-1", trade.EntryOrderID)
	assert.Equal(t, 1, repo.updates)
	// Still pending until the fill event arrives.
	assert.Equal(t, domain.StatusPendingEntry, trade.Status)

	// A second sweep at the same price must not fire a duplicate order.
	m.Sweep(context.Background(), engineTestParams(), book, prices)
	assert.Len(t, broker.placed, 1)
}

func TestSweepEntryOrderFailureRetainsPendingEntry(t *testing.T) {
	trade := pendingEntryTrade()
	repo := newMockRepo(trade)
	broker := &mockBroker{placeErr: errors.New("broker down")}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 100.05}))

	assert.Empty(t, trade.EntryOrderID)
	assert.Equal(t, domain.StatusPendingEntry, trade.Status)
	assert.Contains(t, book, "RELIANCE")
}

func TestSweepEntryRecordFailureRaisesOrphanAlert(t *testing.T) {
	trade := pendingEntryTrade()
	repo := newMockRepo(trade)
	repo.updateErr = errors.New("db down")
	broker := &mockBroker{placeOrderID: "ord-1"}
	logger := &mockLogger{}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	m.logger = logger
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 100.05}))

	require.NotEmpty(t, logger.errorMsgs)
	assert.Contains(t, logger.errorMsgs[0], "ALERT")
}

func TestSweepExpiresPendingEntryOnTimeout(t *testing.T) {
	trade := pendingEntryTrade()
	trade.CandleTime = testNow.Add(-7 * time.Minute) // Past the 6 minute window.
	trade.EntryOrderID = "ord-stale"
	repo := newMockRepo(trade)
	broker := &mockBroker{}
	counters := newMockCounters()
	counters.counts[domain.TradeCountKey(testNow)] = 3
	m := newTestMonitor(t, repo, broker, counters)
	book := map[string]*domain.Trade{"RELIANCE": trade}

	// Timeout applies even with no live price for the instrument.
	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(nil))

	assert.Equal(t, domain.StatusExpired, trade.Status)
	assert.Equal(t, domain.ExitReasonTimeout, trade.ExitReason)
	assert.Equal(t, []string{"ord-stale"}, broker.cancelled)
	assert.Equal(t, int64(2), counters.counts[domain.TradeCountKey(testNow)])
	assert.NotContains(t, book, "RELIANCE")
}

func TestSweepInvalidatesPendingEntryBelowStop(t *testing.T) {
	trade := pendingEntryTrade()
	repo := newMockRepo(trade)
	counters := newMockCounters()
	counters.counts[domain.TradeCountKey(testNow)] = 1
	m := newTestMonitor(t, repo, &mockBroker{}, counters)
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 97.5}))

	assert.Equal(t, domain.StatusExpired, trade.Status)
	assert.Equal(t, domain.ExitReasonInvalidated, trade.ExitReason)
	assert.Equal(t, int64(0), counters.counts[domain.TradeCountKey(testNow)])
	assert.NotContains(t, book, "RELIANCE")
}

func TestSweepExpiryStaleTransitionDoesNotDecrement(t *testing.T) {
	trade := pendingEntryTrade()
	trade.CandleTime = testNow.Add(-10 * time.Minute)
	repo := newMockRepo(trade)
	repo.statuses[trade.ID] = domain.StatusOpen // Another path already advanced it.
	counters := newMockCounters()
	counters.counts[domain.TradeCountKey(testNow)] = 2
	m := newTestMonitor(t, repo, &mockBroker{}, counters)
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(nil))

	assert.Equal(t, int64(2), counters.counts[domain.TradeCountKey(testNow)])
	assert.NotContains(t, book, "RELIANCE")
}

func TestSweepOpenStopLossExit(t *testing.T) {
	trade := openTrade()
	repo := newMockRepo(trade)
	broker := &mockBroker{placeOrderID: "ord-exit-1"}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 97.9}))

	require.Len(t, broker.placed, 1)
	assert.Equal(t, domain.Sell, broker.placed[0].Side)
	assert.Equal(t, domain.StatusPendingExit, trade.Status)
	assert.Equal(t, domain.ExitReasonStopLoss, trade.ExitReason)
	assert.Equal(t, "ord-exit-1", trade.ExitOrderID)
	// Stays in the book until the fill confirms.
	assert.Contains(t, book, "RELIANCE")
}

func TestSweepOpenTargetExit(t *testing.T) {
	trade := openTrade()
	repo := newMockRepo(trade)
	broker := &mockBroker{placeOrderID: "ord-exit-2"}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": trade.TargetLevel + 0.01}))

	require.Len(t, broker.placed, 1)
	assert.Equal(t, domain.ExitReasonTarget, trade.ExitReason)
	assert.Equal(t, domain.StatusPendingExit, trade.Status)
}

func TestSweepExitOrderFailureKeepsPositionOpen(t *testing.T) {
	trade := openTrade()
	repo := newMockRepo(trade)
	broker := &mockBroker{placeErr: errors.New("broker down")}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 97.9}))

	assert.Equal(t, domain.StatusOpen, trade.Status)
	assert.Empty(t, trade.ExitOrderID)
}

func TestSweepBreakevenTrailFiresOnce(t *testing.T) {
	trade := openTrade()
	trade.EntryPrice = 100
	trade.StopLevel = 98
	trade.TargetLevel = 105.084
	repo := newMockRepo(trade)
	m := newTestMonitor(t, repo, &mockBroker{}, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}
	// Trigger = 100 + 1.25 * (100 - 98) = 102.5.
	prices := staticPrices(map[string]float64{"2885": 102.5})

	m.Sweep(context.Background(), engineTestParams(), book, prices)

	assert.Equal(t, 100.0, trade.StopLevel)
	assert.Equal(t, 1, repo.updates)

	// One-shot: the raised stop no longer sits below entry.
	m.Sweep(context.Background(), engineTestParams(), book, prices)
	assert.Equal(t, 100.0, trade.StopLevel)
	assert.Equal(t, 1, repo.updates)
}

func TestSweepBreakevenNotReached(t *testing.T) {
	trade := openTrade()
	trade.EntryPrice = 100
	trade.StopLevel = 98
	trade.TargetLevel = 105.084
	repo := newMockRepo(trade)
	m := newTestMonitor(t, repo, &mockBroker{}, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 102.49}))

	assert.Equal(t, 98.0, trade.StopLevel)
	assert.Equal(t, 0, repo.updates)
}

func TestSweepSessionEndForcesOpenExits(t *testing.T) {
	open := openTrade()
	pending := pendingEntryTrade()
	pending.ID = 2
	pending.Symbol = "TCS"
	pending.SecurityID = "11536"
	repo := newMockRepo(open, pending)
	broker := &mockBroker{placeOrderID: "ord-eod"}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	m.now = func() time.Time { return time.Date(2026, 8, 28, 15, 12, 0, 0, time.UTC) }
	book := map[string]*domain.Trade{"RELIANCE": open, "TCS": pending}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 101}))

	// Only the live position is flattened; the unfilled setup expires through
	// its own timeout path.
	require.Len(t, broker.placed, 1)
	assert.Equal(t, "2885", broker.placed[0].SecurityID)
	assert.Equal(t, domain.ExitReasonEndOfDay, open.ExitReason)
	assert.Equal(t, domain.StatusPendingExit, open.Status)
}

func TestSweepSessionEndSuppressesEntryTrigger(t *testing.T) {
	trade := pendingEntryTrade()
	eod := time.Date(2026, 8, 28, 15, 13, 0, 0, time.UTC)
	trade.CandleTime = eod.Add(-time.Minute) // Inside the monitor window.
	repo := newMockRepo(trade)
	broker := &mockBroker{placeOrderID: "ord-late"}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	m.now = func() time.Time { return eod }
	book := map[string]*domain.Trade{"RELIANCE": trade}

	// Price is through the entry level, but the session is over: no market
	// buy may fire.
	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 100.05}))

	assert.Empty(t, broker.placed)
	assert.Empty(t, trade.EntryOrderID)
	assert.Equal(t, domain.StatusPendingEntry, trade.Status)
}

func TestSweepDailyPnLBreachFlattens(t *testing.T) {
	trade := openTrade()
	repo := newMockRepo(trade)
	broker := &mockBroker{placeOrderID: "ord-pnl"}
	counters := newMockCounters()
	counters.floats[domain.DailyPnLKey(testNow)] = -4800
	params := engineTestParams()
	params.PnLExitEnabled = true
	params.PnLProfitTarget = 10000
	params.PnLStopLoss = 5000
	m := newTestMonitor(t, repo, broker, counters)
	book := map[string]*domain.Trade{"RELIANCE": trade}

	// Unrealized: (99.5 - 100.05) * 985 ≈ -542, pushing net past -5000.
	m.Sweep(context.Background(), params, book, staticPrices(map[string]float64{"2885": 99.5}))

	require.Len(t, broker.placed, 1)
	assert.Equal(t, domain.ExitReasonDailyPnL, trade.ExitReason)
}

func TestSweepDailyPnLWithinBandsDoesNothing(t *testing.T) {
	trade := openTrade()
	repo := newMockRepo(trade)
	broker := &mockBroker{}
	counters := newMockCounters()
	counters.floats[domain.DailyPnLKey(testNow)] = 200
	params := engineTestParams()
	params.PnLExitEnabled = true
	params.PnLProfitTarget = 10000
	params.PnLStopLoss = 5000
	m := newTestMonitor(t, repo, broker, counters)
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), params, book, staticPrices(map[string]float64{"2885": 100.5}))

	assert.Empty(t, broker.placed)
	assert.Equal(t, domain.StatusOpen, trade.Status)
}

func TestSweepPendingExitIsLeftToReconciliation(t *testing.T) {
	trade := openTrade()
	trade.Status = domain.StatusPendingExit
	trade.ExitOrderID = "ord-exit"
	repo := newMockRepo(trade)
	broker := &mockBroker{}
	m := newTestMonitor(t, repo, broker, newMockCounters())
	book := map[string]*domain.Trade{"RELIANCE": trade}

	m.Sweep(context.Background(), engineTestParams(), book, staticPrices(map[string]float64{"2885": 97.0}))

	assert.Empty(t, broker.placed)
	assert.Equal(t, domain.StatusPendingExit, trade.Status)
}

func TestSweepNoParamsOrEmptyBook(t *testing.T) {
	repo := newMockRepo()
	broker := &mockBroker{}
	m := newTestMonitor(t, repo, broker, newMockCounters())

	m.Sweep(context.Background(), nil, map[string]*domain.Trade{"X": pendingEntryTrade()}, staticPrices(nil))
	m.Sweep(context.Background(), engineTestParams(), map[string]*domain.Trade{}, staticPrices(nil))

	assert.Empty(t, broker.placed)
}
