package ports

import (
	"context"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
)

// TradeRepository is the durable store of trade records. It is the source of
// truth for trade state; the engine's in-memory active map is only a
// latency optimization refreshed from here.
type TradeRepository interface {
	// Create saves a new trade and returns its assigned ID.
	Create(ctx context.Context, t *domain.Trade) (int64, error)

	// Update persists all mutable fields of an existing trade.
	Update(ctx context.Context, t *domain.Trade) error

	// TransitionStatus atomically moves a trade from one status to another,
	// persisting the trade's mutable fields in the same statement. Returns
	// ErrStaleTransition if the stored status no longer equals `from`, which
	// makes duplicate reconciliation events harmless no-ops.
	TransitionStatus(ctx context.Context, t *domain.Trade, from, to domain.TradeStatus) error

	// FindActive returns all non-terminal trades (PENDING_ENTRY, OPEN,
	// PENDING_EXIT), used to rebuild the in-memory index on startup and on
	// config reload.
	FindActive(ctx context.Context) ([]*domain.Trade, error)

	// FindActiveBySymbol returns the non-terminal trade for a symbol, if any.
	// Returns nil, nil when there is none.
	FindActiveBySymbol(ctx context.Context, symbol string) (*domain.Trade, error)

	// FindByOrderID locates a trade whose entry or exit order id matches.
	// Returns the trade and whether the match was the entry leg, or nil, false,
	// nil when no trade references the order.
	FindByOrderID(ctx context.Context, orderID string) (t *domain.Trade, isEntry bool, err error)

	// CountTodayBySymbol counts trades created today for a symbol (per-stock cap).
	CountTodayBySymbol(ctx context.Context, symbol string) (int, error)

	// FindClosed returns closed trades ordered by exit time ascending, for
	// reporting.
	FindClosed(ctx context.Context) ([]*domain.Trade, error)
}

// ParamsRepository stores the hot-reloadable strategy tunables.
type ParamsRepository interface {
	// Load returns the current strategy params. Returns ErrNotFound if none
	// have been seeded yet.
	Load(ctx context.Context) (*domain.StrategyParams, error)

	// Save persists the params (upsert of the single row).
	Save(ctx context.Context, p *domain.StrategyParams) error
}
