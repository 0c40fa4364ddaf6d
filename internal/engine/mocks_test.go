package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

// Mock implementations shared by the monitor and reconciler tests.

type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// mockRepo tracks trade statuses so the optimistic-transition contract can be
// exercised: a transition whose "from" no longer matches returns
// ErrStaleTransition, exactly like the SQLite implementation.
type mockRepo struct {
	statuses    map[int64]domain.TradeStatus
	transitions []string
	updates     int
	updateErr   error

	findByOrderTrade   *domain.Trade
	findByOrderIsEntry bool
	findByOrderErr     error

	activeTrades []*domain.Trade
}

func newMockRepo(trades ...*domain.Trade) *mockRepo {
	statuses := make(map[int64]domain.TradeStatus, len(trades))
	for _, t := range trades {
		statuses[t.ID] = t.Status
	}
	return &mockRepo{statuses: statuses}
}

func (m *mockRepo) Create(ctx context.Context, t *domain.Trade) (int64, error) { return 1, nil }

func (m *mockRepo) Update(ctx context.Context, t *domain.Trade) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates++
	return nil
}

func (m *mockRepo) TransitionStatus(ctx context.Context, t *domain.Trade, from, to domain.TradeStatus) error {
	if m.statuses[t.ID] != from {
		return fmt.Errorf("%w: trade %d expected status %s", ports.ErrStaleTransition, t.ID, from)
	}
	m.statuses[t.ID] = to
	t.Status = to
	m.transitions = append(m.transitions, fmt.Sprintf("%d:%s->%s", t.ID, from, to))
	return nil
}

func (m *mockRepo) FindActive(ctx context.Context) ([]*domain.Trade, error) {
	return m.activeTrades, nil
}

func (m *mockRepo) FindActiveBySymbol(ctx context.Context, symbol string) (*domain.Trade, error) {
	return nil, nil
}

func (m *mockRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Trade, bool, error) {
	return m.findByOrderTrade, m.findByOrderIsEntry, m.findByOrderErr
}

func (m *mockRepo) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	return 0, nil
}

func (m *mockRepo) FindClosed(ctx context.Context) ([]*domain.Trade, error) { return nil, nil }

type mockBroker struct {
	placeOrderID string
	placeErr     error
	placed       []ports.OrderRequest
	cancelErr    error
	cancelled    []string
	orders       []ports.OrderDetail
	listErr      error
	token        string
}

func (m *mockBroker) PlaceOrder(ctx context.Context, req ports.OrderRequest) (string, error) {
	if m.placeErr != nil {
		return "", m.placeErr
	}
	m.placed = append(m.placed, req)
	return m.placeOrderID, nil
}

func (m *mockBroker) CancelOrder(ctx context.Context, orderID string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockBroker) ListOrders(ctx context.Context) ([]ports.OrderDetail, error) {
	return m.orders, m.listErr
}

func (m *mockBroker) SetAccessToken(token string) { m.token = token }

type mockCounters struct {
	counts    map[string]int64
	floats    map[string]float64
	floatAdds int
	getErr    error
}

func newMockCounters() *mockCounters {
	return &mockCounters{counts: make(map[string]int64), floats: make(map[string]float64)}
}

func (m *mockCounters) Increment(ctx context.Context, key string) (int64, error) {
	m.counts[key]++
	return m.counts[key], nil
}

func (m *mockCounters) Decrement(ctx context.Context, key string) (int64, error) {
	m.counts[key]--
	return m.counts[key], nil
}

func (m *mockCounters) AddFloat(ctx context.Context, key string, delta float64) (float64, error) {
	m.floats[key] += delta
	m.floatAdds++
	return m.floats[key], nil
}

func (m *mockCounters) GetFloat(ctx context.Context, key string) (float64, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return m.floats[key], nil
}

func (m *mockCounters) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.counts, k)
		delete(m.floats, k)
	}
	return nil
}

type mockParamsRepo struct {
	params  *domain.StrategyParams
	loadErr error
	saved   []*domain.StrategyParams
}

func (m *mockParamsRepo) Load(ctx context.Context) (*domain.StrategyParams, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.params, nil
}

func (m *mockParamsRepo) Save(ctx context.Context, p *domain.StrategyParams) error {
	m.saved = append(m.saved, p)
	return nil
}

type mockFeed struct {
	events  []ports.FeedEvent
	readErr error
	acked   []string
}

func (m *mockFeed) Read(ctx context.Context, maxCount int, block time.Duration) ([]ports.FeedEvent, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	evs := m.events
	m.events = nil
	return evs, nil
}

func (m *mockFeed) Ack(ctx context.Context, ev ports.FeedEvent) error {
	m.acked = append(m.acked, ev.MessageID)
	return nil
}

type mockRefData struct {
	high  float64
	found bool
	err   error
}

func (m *mockRefData) PrevDayHigh(ctx context.Context, symbol string) (float64, bool, error) {
	return m.high, m.found, m.err
}

func (m *mockRefData) PrevDayLevels(ctx context.Context, symbol string) (*ports.PrevDayLevels, bool, error) {
	return &ports.PrevDayLevels{High: m.high}, m.found, m.err
}

type mockStatus struct {
	statuses []string
}

func (m *mockStatus) SetStatus(ctx context.Context, component, status string) error {
	m.statuses = append(m.statuses, status)
	return nil
}

// Shared fixtures.

var testNow = time.Date(2026, 8, 28, 10, 16, 0, 0, time.UTC)

func engineTestParams() *domain.StrategyParams {
	return &domain.StrategyParams{
		Name:               "breakout",
		IsEnabled:          true,
		PerTradeRiskAmount: 2000,
		EntryOffsetPct:     0.0001,
		StopOffsetPct:      0.0002,
		RiskMultiple:       2.5,
		BreakevenTriggerR:  1.25,
		MaxCandlePct:       0.007,
		MaxTotalTrades:     10,
		MaxTradesPerStock:  2,
		MaxMonitorTime:     6 * time.Minute,
		SessionStart:       mustTOD("09:45"),
		SessionEnd:         mustTOD("15:12"),
	}
}

func mustTOD(s string) domain.TimeOfDay {
	v, err := domain.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return v
}

func pendingEntryTrade() *domain.Trade {
	return &domain.Trade{
		ID:          1,
		Symbol:      "RELIANCE",
		SecurityID:  "2885",
		Quantity:    985,
		Status:      domain.StatusPendingEntry,
		EntryLevel:  100.01,
		StopLevel:   97.9804,
		TargetLevel: 105.084,
		PrevDayHigh: 99.5,
		CandleTime:  testNow.Add(-time.Minute),
		CreatedAt:   testNow.Add(-time.Minute),
	}
}

func openTrade() *domain.Trade {
	t := pendingEntryTrade()
	t.Status = domain.StatusOpen
	t.EntryOrderID = "ord-entry-1"
	t.EntryPrice = 100.05
	t.EntryTime = testNow.Add(-30 * time.Second)
	t.TargetLevel = 100.05 + 2.5*(100.05-97.9804)
	return t
}
