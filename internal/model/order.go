package model

import "fmt"

// OrderStatus is a lifecycle state of an Order. Unlike a bare string enum,
// transitions are validated by Order.TransitionTo so a caller cannot move an
// order backward or out of a terminal state by mistake.
type OrderStatus string

const (
	OrderPending          OrderStatus = "PENDING"
	OrderOpen             OrderStatus = "OPEN"
	OrderPartiallyFilled  OrderStatus = "PARTIALLY_FILLED"
	OrderExecuted         OrderStatus = "EXECUTED"
	OrderCanceled         OrderStatus = "CANCELED"
	OrderFailed           OrderStatus = "FAILED"
)

// Terminal reports whether status is one from which no further transition
// is possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderExecuted, OrderCanceled, OrderFailed:
		return true
	default:
		return false
	}
}

var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:         {OrderOpen: true, OrderFailed: true},
	OrderOpen:            {OrderPartiallyFilled: true, OrderExecuted: true, OrderCanceled: true},
	OrderPartiallyFilled: {OrderExecuted: true, OrderCanceled: true, OrderPartiallyFilled: true},
}

// Action is buy or sell. The executor only ever places buys; sell exists so
// the type mirrors the venue adapter's full order vocabulary.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// OrderType is limit or market.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// TimeInForce controls how long an order rests before it is canceled.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// Order is owned by whichever service is currently driving its lifecycle:
// the Executor persists creation and terminal failures it observes
// synchronously, the Reconciler persists status updates discovered by
// polling.
type Order struct {
	ID            int64       `json:"id"`
	ClientOrderID string      `json:"client_order_id"`
	Venue         Venue       `json:"venue"`
	MarketID      string      `json:"market_id"`
	Side          Side        `json:"side"`
	Action        Action      `json:"action"`
	OrderType     OrderType   `json:"order_type"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	Size          int64       `json:"size"`
	Price         int64       `json:"price"`
	MaxPrice      int64       `json:"max_price"`
	VenueOrderID  string      `json:"venue_order_id"`
	Status        OrderStatus `json:"status"`
	FillSize      int64       `json:"fill_size"`
}

// TransitionTo moves the order to next if the transition is legal, and
// enforces FillSize <= Size along the way. It rejects any attempt to leave a
// terminal state and any decrease in FillSize.
func (o *Order) TransitionTo(next OrderStatus, fillSize int64) error {
	if o.Status.Terminal() {
		return fmt.Errorf("order %s: cannot transition out of terminal state %s", o.ClientOrderID, o.Status)
	}
	if fillSize < o.FillSize {
		return fmt.Errorf("order %s: fill_size must not decrease (%d -> %d)", o.ClientOrderID, o.FillSize, fillSize)
	}
	if fillSize > o.Size {
		return fmt.Errorf("order %s: fill_size %d exceeds size %d", o.ClientOrderID, fillSize, o.Size)
	}
	if o.Status == next {
		o.FillSize = fillSize
		return nil
	}
	if !allowedTransitions[o.Status][next] {
		return fmt.Errorf("order %s: illegal transition %s -> %s", o.ClientOrderID, o.Status, next)
	}
	o.Status = next
	o.FillSize = fillSize
	return nil
}

// Trade is an append-only fill receipt attached to an Order.
type Trade struct {
	OrderID     int64  `json:"order_id"`
	VenueTradeID string `json:"venue_trade_id"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price"`
	ExecutedAt  int64  `json:"executed_at"`
}
