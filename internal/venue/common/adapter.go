// Package common defines the single venue adapter contract every market
// implementation (Kalshi, Polymarket, the in-memory test venue) satisfies.
// It is the same shape as the teacher's internal/exchanges/common.ExchangeClient
// — one interface, one implementation per venue, injected into a Manager —
// collapsed from that interface's 24 methods (ticker/kline/websocket
// streaming, TWAP/stop-loss order types, position risk, latency stats) down
// to the seven operations a binary-event-contract arbitrage pipeline
// actually drives.
package common

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/eventarb/crossvenue/internal/model"
)

// Adapter is implemented once per venue. Every method takes a context so a
// caller can bound venue latency with context.WithTimeout rather than rely
// on a client-global timeout.
type Adapter interface {
	// Venue reports which model.Venue this adapter speaks for.
	Venue() model.Venue

	// FindNewMarkets returns one page of the venue's open markets. An empty
	// cursor requests the first page; the returned cursor is opaque and,
	// passed back, requests the following page. An adapter returns an empty
	// cursor when it knows there is no following page.
	FindNewMarkets(ctx context.Context, cursor string) (markets []model.Market, nextCursor string, err error)

	// GetMarkets returns the current definition of the given markets.
	GetMarkets(ctx context.Context, marketIDs []string) ([]model.Market, error)

	// GetOrderBooks returns the current YES/NO order books for the given
	// markets, normalizing venue-native price ticks into tenths-of-cent.
	GetOrderBooks(ctx context.Context, marketIDs []string) ([]model.OrderBook, error)

	// GetBalance returns available trading balance in the venue's native
	// unit (US dollars for both Kalshi and Polymarket), as a
	// decimal.Decimal since this is the one place fractional venue-native
	// amounts are genuine rather than an artifact of float math.
	GetBalance(ctx context.Context) (decimal.Decimal, error)

	// PlaceOrder submits order and returns the venue's own order
	// identifier. order.ClientOrderID is the idempotency key: a retried
	// call with the same ClientOrderID must not create a second order.
	PlaceOrder(ctx context.Context, order model.Order) (venueOrderID string, err error)

	// CancelOrder requests cancellation of the order identified by
	// venueOrderID. Canceling an order already terminal is not an error.
	CancelOrder(ctx context.Context, venueOrderID string) error

	// GetOrderStatus returns the order's current status, total filled
	// size, and any trades not previously reported.
	GetOrderStatus(ctx context.Context, venueOrderID string) (OrderStatusReport, error)
}

// OrderStatusReport is GetOrderStatus's result.
type OrderStatusReport struct {
	Status   model.OrderStatus
	FillSize int64
	Trades   []model.Trade
}
