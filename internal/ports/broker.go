package ports

import (
	"context"
	"time"

	"github.com/jravi291980-star/ravinderalgo/internal/domain"
)

// OrderRequest describes an order to be placed with the broker.
type OrderRequest struct {
	SecurityID    string
	Side          domain.OrderSide
	Quantity      int
	Type          domain.OrderType
	TriggerPrice  float64 // Only for stop-trigger orders
	CorrelationID string  // Client-side id for tracing across systems
}

// OrderDetail is the broker's view of an order, returned by status queries.
type OrderDetail struct {
	OrderID      string
	SecurityID   string
	Side         domain.OrderSide
	Quantity     int
	Status       domain.OrderStatus
	AvgFillPrice float64
	PlacedAt     time.Time
}

// BrokerGateway is the narrow order-management surface of the broker.
// Side effects are external and irreversible once accepted: an order id
// returned from PlaceOrder is a commit point the caller must record.
type BrokerGateway interface {
	// PlaceOrder submits an order and returns the broker order id.
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)

	// CancelOrder requests cancellation of a live order. Returns
	// ErrOrderNotFound if the broker no longer knows the order (already
	// filled or cancelled), which callers may treat as success.
	CancelOrder(ctx context.Context, orderID string) error

	// ListOrders returns all of today's orders. Used by the startup orphan
	// scan to detect orders placed before a persistence failure.
	ListOrders(ctx context.Context) ([]OrderDetail, error)

	// SetAccessToken re-arms the gateway with a fresh session token
	// (TOKEN_REFRESH control signal).
	SetAccessToken(token string)
}
