package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
	"github.com/jravi291980-star/ravinderalgo/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRepository and ports.ParamsRepository
// using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	loc    *time.Location

	// now is swappable for tests.
	now func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath   string
	Logger   ports.Logger
	Timezone *time.Location // Exchange timezone for "today" queries; defaults to local
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/ravinderalgo.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode so the dashboard process can read while the engine writes.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	loc := cfg.Timezone
	if loc == nil {
		loc = time.Local
	}

	repo := &Repository{db: db, logger: cfg.Logger, loc: loc, now: time.Now}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	cfg.Logger.Info(context.Background(), "SQLite repository ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		security_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL,
		entry_level REAL NOT NULL,
		stop_level REAL NOT NULL,
		target_level REAL NOT NULL,
		entry_price REAL NOT NULL DEFAULT 0,
		exit_price REAL NOT NULL DEFAULT 0,
		entry_order_id TEXT NOT NULL DEFAULT '',
		exit_order_id TEXT NOT NULL DEFAULT '',
		entry_time TIMESTAMP DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		pnl REAL NOT NULL DEFAULT 0,
		exit_reason TEXT NOT NULL DEFAULT '',
		candle_ts TIMESTAMP NOT NULL,
		prev_day_high REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades (symbol, status);
	CREATE INDEX IF NOT EXISTS idx_trades_entry_order ON trades (entry_order_id);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_order ON trades (exit_order_id);

	CREATE TABLE IF NOT EXISTS strategy_params (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL,
		is_enabled INTEGER NOT NULL DEFAULT 0,
		per_trade_risk_amount REAL NOT NULL,
		entry_offset_pct REAL NOT NULL,
		stop_offset_pct REAL NOT NULL,
		risk_multiple REAL NOT NULL,
		breakeven_trigger_r REAL NOT NULL,
		max_candle_pct REAL NOT NULL,
		max_total_trades INTEGER NOT NULL,
		max_trades_per_stock INTEGER NOT NULL,
		max_monitor_seconds INTEGER NOT NULL,
		session_start TEXT NOT NULL,
		session_end TEXT NOT NULL,
		pnl_exit_enabled INTEGER NOT NULL DEFAULT 0,
		pnl_profit_target REAL NOT NULL DEFAULT 0,
		pnl_stop_loss REAL NOT NULL DEFAULT 0
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository implementation ---

const tradeColumns = `id, symbol, security_id, quantity, status, entry_level, stop_level, target_level,
	entry_price, exit_price, entry_order_id, exit_order_id, entry_time, exit_time,
	pnl, exit_reason, candle_ts, prev_day_high, created_at`

// Create saves a new trade and returns its assigned ID.
func (r *Repository) Create(ctx context.Context, t *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (symbol, security_id, quantity, status, entry_level, stop_level, target_level,
		entry_price, exit_price, entry_order_id, exit_order_id, pnl, exit_reason, candle_ts, prev_day_high, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		t.Symbol, t.SecurityID, t.Quantity, t.Status, t.EntryLevel, t.StopLevel, t.TargetLevel,
		t.EntryPrice, t.ExitPrice, t.EntryOrderID, t.ExitOrderID, t.PnL, t.ExitReason, t.CandleTime, t.PrevDayHigh, t.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("%w: inserting trade for %s: %v", ports.ErrQueryFailed, t.Symbol, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: reading inserted trade id: %v", ports.ErrQueryFailed, err)
	}
	return id, nil
}

// Update persists all mutable fields of an existing trade.
func (r *Repository) Update(ctx context.Context, t *domain.Trade) error {
	const query = `
	UPDATE trades SET status = ?, stop_level = ?, target_level = ?, entry_price = ?, exit_price = ?,
		entry_order_id = ?, exit_order_id = ?, entry_time = ?, exit_time = ?, pnl = ?, exit_reason = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		t.Status, t.StopLevel, t.TargetLevel, t.EntryPrice, t.ExitPrice,
		t.EntryOrderID, t.ExitOrderID, nullTime(t.EntryTime), nullTime(t.ExitTime), t.PnL, t.ExitReason,
		t.ID)
	if err != nil {
		return fmt.Errorf("%w: updating trade %d: %v", ports.ErrUpdateFailed, t.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected for trade %d: %v", ports.ErrUpdateFailed, t.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: trade %d", ports.ErrNotFound, t.ID)
	}
	return nil
}

// TransitionStatus atomically moves a trade between statuses. The WHERE
// clause carries the expected "from" status so a lost race (or a duplicate
// reconciliation event) affects zero rows and surfaces as ErrStaleTransition.
func (r *Repository) TransitionStatus(ctx context.Context, t *domain.Trade, from, to domain.TradeStatus) error {
	const query = `
	UPDATE trades SET status = ?, stop_level = ?, target_level = ?, entry_price = ?, exit_price = ?,
		entry_order_id = ?, exit_order_id = ?, entry_time = ?, exit_time = ?, pnl = ?, exit_reason = ?
	WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		to, t.StopLevel, t.TargetLevel, t.EntryPrice, t.ExitPrice,
		t.EntryOrderID, t.ExitOrderID, nullTime(t.EntryTime), nullTime(t.ExitTime), t.PnL, t.ExitReason,
		t.ID, from)
	if err != nil {
		return fmt.Errorf("%w: transitioning trade %d %s->%s: %v", ports.ErrUpdateFailed, t.ID, from, to, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected for trade %d: %v", ports.ErrUpdateFailed, t.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: trade %d expected status %s", ports.ErrStaleTransition, t.ID, from)
	}
	t.Status = to
	return nil
}

// FindActive returns all non-terminal trades.
func (r *Repository) FindActive(ctx context.Context) ([]*domain.Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE status IN (?, ?, ?) ORDER BY created_at`, tradeColumns)
	rows, err := r.db.QueryContext(ctx, query,
		domain.StatusPendingEntry, domain.StatusOpen, domain.StatusPendingExit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying active trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// FindActiveBySymbol returns the non-terminal trade for a symbol, if any.
func (r *Repository) FindActiveBySymbol(ctx context.Context, symbol string) (*domain.Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE symbol = ? AND status IN (?, ?, ?) LIMIT 1`, tradeColumns)
	row := r.db.QueryRowContext(ctx, query, symbol,
		domain.StatusPendingEntry, domain.StatusOpen, domain.StatusPendingExit)

	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: querying active trade for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	return t, nil
}

// FindByOrderID locates a trade whose entry or exit order id matches.
func (r *Repository) FindByOrderID(ctx context.Context, orderID string) (*domain.Trade, bool, error) {
	if orderID == "" {
		return nil, false, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE entry_order_id = ? OR exit_order_id = ? LIMIT 1`, tradeColumns)
	row := r.db.QueryRowContext(ctx, query, orderID, orderID)

	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: querying trade for order %s: %v", ports.ErrQueryFailed, orderID, err)
	}
	return t, t.EntryOrderID == orderID, nil
}

// CountTodayBySymbol counts trades created today (exchange time) for a symbol.
func (r *Repository) CountTodayBySymbol(ctx context.Context, symbol string) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE symbol = ? AND created_at >= ?`
	now := r.now().In(r.loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)

	var count int
	if err := r.db.QueryRowContext(ctx, query, symbol, startOfDay).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: counting today's trades for %s: %v", ports.ErrQueryFailed, symbol, err)
	}
	return count, nil
}

// FindClosed returns closed trades ordered by exit time ascending.
func (r *Repository) FindClosed(ctx context.Context) ([]*domain.Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE status = ? ORDER BY exit_time`, tradeColumns)
	rows, err := r.db.QueryContext(ctx, query, domain.StatusClosed)
	if err != nil {
		return nil, fmt.Errorf("%w: querying closed trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// --- ParamsRepository implementation ---

// Load returns the current strategy params.
func (r *Repository) Load(ctx context.Context) (*domain.StrategyParams, error) {
	const query = `
	SELECT name, is_enabled, per_trade_risk_amount, entry_offset_pct, stop_offset_pct, risk_multiple,
		breakeven_trigger_r, max_candle_pct, max_total_trades, max_trades_per_stock, max_monitor_seconds,
		session_start, session_end, pnl_exit_enabled, pnl_profit_target, pnl_stop_loss
	FROM strategy_params WHERE id = 1`

	var (
		p              domain.StrategyParams
		monitorSeconds int
		startStr       string
		endStr         string
	)
	err := r.db.QueryRowContext(ctx, query).Scan(
		&p.Name, &p.IsEnabled, &p.PerTradeRiskAmount, &p.EntryOffsetPct, &p.StopOffsetPct, &p.RiskMultiple,
		&p.BreakevenTriggerR, &p.MaxCandlePct, &p.MaxTotalTrades, &p.MaxTradesPerStock, &monitorSeconds,
		&startStr, &endStr, &p.PnLExitEnabled, &p.PnLProfitTarget, &p.PnLStopLoss)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: strategy params not seeded", ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading strategy params: %v", ports.ErrQueryFailed, err)
	}

	p.MaxMonitorTime = time.Duration(monitorSeconds) * time.Second
	if p.SessionStart, err = domain.ParseTimeOfDay(startStr); err != nil {
		return nil, fmt.Errorf("stored session_start invalid: %w", err)
	}
	if p.SessionEnd, err = domain.ParseTimeOfDay(endStr); err != nil {
		return nil, fmt.Errorf("stored session_end invalid: %w", err)
	}
	return &p, nil
}

// Save persists the params (upsert of the single row).
func (r *Repository) Save(ctx context.Context, p *domain.StrategyParams) error {
	const query = `
	INSERT INTO strategy_params (id, name, is_enabled, per_trade_risk_amount, entry_offset_pct, stop_offset_pct,
		risk_multiple, breakeven_trigger_r, max_candle_pct, max_total_trades, max_trades_per_stock,
		max_monitor_seconds, session_start, session_end, pnl_exit_enabled, pnl_profit_target, pnl_stop_loss)
	VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name, is_enabled = excluded.is_enabled,
		per_trade_risk_amount = excluded.per_trade_risk_amount,
		entry_offset_pct = excluded.entry_offset_pct, stop_offset_pct = excluded.stop_offset_pct,
		risk_multiple = excluded.risk_multiple, breakeven_trigger_r = excluded.breakeven_trigger_r,
		max_candle_pct = excluded.max_candle_pct, max_total_trades = excluded.max_total_trades,
		max_trades_per_stock = excluded.max_trades_per_stock, max_monitor_seconds = excluded.max_monitor_seconds,
		session_start = excluded.session_start, session_end = excluded.session_end,
		pnl_exit_enabled = excluded.pnl_exit_enabled, pnl_profit_target = excluded.pnl_profit_target,
		pnl_stop_loss = excluded.pnl_stop_loss`

	_, err := r.db.ExecContext(ctx, query,
		p.Name, p.IsEnabled, p.PerTradeRiskAmount, p.EntryOffsetPct, p.StopOffsetPct,
		p.RiskMultiple, p.BreakevenTriggerR, p.MaxCandlePct, p.MaxTotalTrades, p.MaxTradesPerStock,
		int(p.MaxMonitorTime.Seconds()), p.SessionStart.String(), p.SessionEnd.String(),
		p.PnLExitEnabled, p.PnLProfitTarget, p.PnLStopLoss)
	if err != nil {
		return fmt.Errorf("%w: saving strategy params: %v", ports.ErrUpdateFailed, err)
	}
	return nil
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*domain.Trade, error) {
	var (
		t         domain.Trade
		entryTime sql.NullTime
		exitTime  sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.Symbol, &t.SecurityID, &t.Quantity, &t.Status, &t.EntryLevel, &t.StopLevel, &t.TargetLevel,
		&t.EntryPrice, &t.ExitPrice, &t.EntryOrderID, &t.ExitOrderID, &entryTime, &exitTime,
		&t.PnL, &t.ExitReason, &t.CandleTime, &t.PrevDayHigh, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if entryTime.Valid {
		t.EntryTime = entryTime.Time
	}
	if exitTime.Valid {
		t.ExitTime = exitTime.Time
	}
	return &t, nil
}

func scanTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scanning trade row: %v", ports.ErrQueryFailed, err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating trade rows: %v", ports.ErrQueryFailed, err)
	}
	return trades, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
