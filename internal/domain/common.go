package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the broker order type.
type OrderType string

const (
	OrderTypeMarket      OrderType = "MARKET"
	OrderTypeStopTrigger OrderType = "STOP_LOSS_MARKET"
)

// OrderStatus is the broker-reported status carried on order update events.
type OrderStatus string

const (
	OrderStatusTraded    OrderStatus = "TRADED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
)

// IsTerminalFailure reports whether the broker status means the order will
// never fill.
func (s OrderStatus) IsTerminalFailure() bool {
	return s == OrderStatusCancelled || s == OrderStatusRejected || s == OrderStatusExpired
}
