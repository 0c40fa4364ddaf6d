package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "ravinderalgo-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath:   dbPath,
		Logger:   &mockLogger{},
		Timezone: time.UTC,
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func newTrade(symbol string) *domain.Trade {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Trade{
		Symbol:      symbol,
		SecurityID:  "2885",
		Quantity:    985,
		Status:      domain.StatusPendingEntry,
		EntryLevel:  100.01,
		StopLevel:   97.9804,
		TargetLevel: 105.084,
		PrevDayHigh: 99.5,
		CandleTime:  now.Add(-time.Minute),
		CreatedAt:   now,
	}
}

func TestRepository_CreateAndFindActiveBySymbol(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := newTrade("RELIANCE")
	id, err := repo.Create(ctx, trade)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))
	trade.ID = id

	found, err := repo.FindActiveBySymbol(ctx, "RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
	assert.Equal(t, domain.StatusPendingEntry, found.Status)
	assert.InDelta(t, 100.01, found.EntryLevel, 1e-9)
	assert.InDelta(t, 97.9804, found.StopLevel, 1e-9)
	assert.True(t, found.EntryTime.IsZero())
	assert.True(t, found.ExitTime.IsZero())

	// No active trade for an unknown symbol: nil without error.
	none, err := repo.FindActiveBySymbol(ctx, "TCS")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRepository_UpdateNotFound(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	trade := newTrade("RELIANCE")
	trade.ID = 999

	err := repo.Update(context.Background(), trade)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_UpdatePersistsMutableFields(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := newTrade("RELIANCE")
	id, err := repo.Create(ctx, trade)
	require.NoError(t, err)
	trade.ID = id

	trade.EntryOrderID = "ord-1"
	trade.EntryPrice = 100.05
	trade.EntryTime = time.Now().UTC().Truncate(time.Second)
	trade.StopLevel = 100.05
	require.NoError(t, repo.Update(ctx, trade))

	found, err := repo.FindActiveBySymbol(ctx, "RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "ord-1", found.EntryOrderID)
	assert.InDelta(t, 100.05, found.EntryPrice, 1e-9)
	assert.InDelta(t, 100.05, found.StopLevel, 1e-9)
	assert.WithinDuration(t, trade.EntryTime, found.EntryTime, time.Second)
}

func TestRepository_TransitionStatus(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := newTrade("RELIANCE")
	id, err := repo.Create(ctx, trade)
	require.NoError(t, err)
	trade.ID = id

	trade.EntryPrice = 100.05
	err = repo.TransitionStatus(ctx, trade, domain.StatusPendingEntry, domain.StatusOpen)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, trade.Status)

	// The same transition again finds the row in OPEN: stale, zero rows.
	err = repo.TransitionStatus(ctx, trade, domain.StatusPendingEntry, domain.StatusOpen)
	assert.ErrorIs(t, err, ports.ErrStaleTransition)

	found, err := repo.FindActiveBySymbol(ctx, "RELIANCE")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.StatusOpen, found.Status)
}

func TestRepository_FindByOrderID(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := newTrade("RELIANCE")
	trade.EntryOrderID = "ord-entry"
	trade.ExitOrderID = "ord-exit"
	id, err := repo.Create(ctx, trade)
	require.NoError(t, err)

	found, isEntry, err := repo.FindByOrderID(ctx, "ord-entry")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)
	assert.True(t, isEntry)

	found, isEntry, err = repo.FindByOrderID(ctx, "ord-exit")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.False(t, isEntry)

	found, _, err = repo.FindByOrderID(ctx, "ord-unknown")
	require.NoError(t, err)
	assert.Nil(t, found)

	found, _, err = repo.FindByOrderID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepository_FindActiveAndClosed(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	pending := newTrade("RELIANCE")
	_, err := repo.Create(ctx, pending)
	require.NoError(t, err)

	open := newTrade("TCS")
	open.Status = domain.StatusOpen
	_, err = repo.Create(ctx, open)
	require.NoError(t, err)

	closed := newTrade("INFY")
	closed.Status = domain.StatusClosed
	closed.EntryPrice = 100.05
	closed.ExitPrice = 105.10
	closed.PnL = (105.10 - 100.05) * 985
	closed.ExitReason = domain.ExitReasonTarget
	closed.EntryTime = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	closed.ExitTime = time.Now().UTC().Truncate(time.Second)
	closedID, err := repo.Create(ctx, closed)
	require.NoError(t, err)
	closed.ID = closedID
	require.NoError(t, repo.Update(ctx, closed))

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	closedTrades, err := repo.FindClosed(ctx)
	require.NoError(t, err)
	require.Len(t, closedTrades, 1)
	assert.Equal(t, "INFY", closedTrades[0].Symbol)
	assert.Equal(t, domain.ExitReasonTarget, closedTrades[0].ExitReason)
	assert.InDelta(t, closed.PnL, closedTrades[0].PnL, 1e-9)
}

func TestRepository_CountTodayBySymbol(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.Create(ctx, newTrade("RELIANCE"))
	require.NoError(t, err)

	second := newTrade("RELIANCE")
	second.Status = domain.StatusExpired
	_, err = repo.Create(ctx, second)
	require.NoError(t, err)

	old := newTrade("RELIANCE")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -2)
	_, err = repo.Create(ctx, old)
	require.NoError(t, err)

	count, err := repo.CountTodayBySymbol(ctx, "RELIANCE")
	require.NoError(t, err)
	// Terminal trades still count toward the per-stock daily cap.
	assert.Equal(t, 2, count)

	count, err = repo.CountTodayBySymbol(ctx, "TCS")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestRepository_CountTodayBySymbolDayBoundary(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	repo.now = func() time.Time { return time.Date(2026, 8, 28, 10, 16, 0, 0, time.UTC) }

	today := newTrade("RELIANCE")
	today.CreatedAt = time.Date(2026, 8, 28, 0, 1, 0, 0, time.UTC)
	_, err := repo.Create(ctx, today)
	require.NoError(t, err)

	lastNight := newTrade("RELIANCE")
	lastNight.CreatedAt = time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC)
	_, err = repo.Create(ctx, lastNight)
	require.NoError(t, err)

	count, err := repo.CountTodayBySymbol(ctx, "RELIANCE")
	require.NoError(t, err)
	// Only the trade created after midnight (exchange time) counts.
	assert.Equal(t, 1, count)
}

func TestRepository_ParamsNotSeeded(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := repo.Load(context.Background())
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_ParamsSaveLoadRoundtrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	start, err := domain.ParseTimeOfDay("09:45")
	require.NoError(t, err)
	end, err := domain.ParseTimeOfDay("15:12")
	require.NoError(t, err)

	params := &domain.StrategyParams{
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
		SessionStart:       start,
		SessionEnd:         end,
		PnLExitEnabled:     true,
		PnLProfitTarget:    10000,
		PnLStopLoss:        5000,
	}
	require.NoError(t, repo.Save(ctx, params))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, loaded)

	// Upsert: saving again replaces the single row.
	params.MaxTotalTrades = 5
	params.IsEnabled = false
	require.NoError(t, repo.Save(ctx, params))

	loaded, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, loaded.MaxTotalTrades)
	assert.False(t, loaded.IsEnabled)
}
