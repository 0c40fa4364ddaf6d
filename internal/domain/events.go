package domain

import "time"

// OrderUpdate is an authoritative broker event about one order.
// Delivery is at-least-once; consumers must be idempotent.
type OrderUpdate struct {
	OrderID     string
	Status      OrderStatus
	FilledQty   int
	FilledPrice float64
	EventTime   time.Time
}

// ControlAction names an operator signal delivered on the control channel.
type ControlAction string

const (
	ControlReloadConfig ControlAction = "UPDATE_CONFIG"
	ControlTokenRefresh ControlAction = "TOKEN_REFRESH"
)

// ControlSignal is an operator command to the running engine.
type ControlSignal struct {
	Action ControlAction
	Token  string // Populated for TOKEN_REFRESH
}
