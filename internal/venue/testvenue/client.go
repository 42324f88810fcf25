// Package testvenue implements common.Adapter entirely in memory, grounded
// on backend/platform/TestPlatform.py's role: a venue-shaped stand-in that
// needs no network access, usable for local runs and tests. Where the
// Python original fabricated random books on every call, this
// implementation is deterministic and caller-configured, so tests can
// assert on exact sizing and execution outcomes.
package testvenue

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/internal/verror"
)

// Client is an in-memory venue. Construct it with New (the zero value has
// nil maps and panics on first write); register markets and books with
// SetMarket/SetBook before use.
type Client struct {
	mu      sync.Mutex
	markets map[string]model.Market
	books   map[string]model.OrderBook
	orders  map[string]*trackedOrder
	balance decimal.Decimal
	nextID  int64

	// FailPlacement, when set, makes PlaceOrder fail for this market ID —
	// used to exercise the executor's abort-and-cancel-other-leg path.
	FailPlacement map[string]bool
}

type trackedOrder struct {
	order  model.Order
	status model.OrderStatus
}

func New() *Client {
	return &Client{
		markets: make(map[string]model.Market),
		books:   make(map[string]model.OrderBook),
		orders:  make(map[string]*trackedOrder),
		balance: decimal.NewFromInt(100000),
	}
}

func (c *Client) Venue() model.Venue { return model.VenueTest }

// SetMarket registers a market for later lookup.
func (c *Client) SetMarket(m model.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[m.MarketID] = m
}

// SetBook registers the current order book for a market.
func (c *Client) SetBook(b model.OrderBook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[b.MarketID] = b
}

func (c *Client) FindNewMarkets(ctx context.Context, cursor string) ([]model.Market, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	markets := make([]model.Market, 0, len(c.markets))
	for _, m := range c.markets {
		markets = append(markets, m)
	}
	return markets, "", nil
}

func (c *Client) GetMarkets(ctx context.Context, marketIDs []string) ([]model.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Market, 0, len(marketIDs))
	for _, id := range marketIDs {
		if m, ok := c.markets[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) GetOrderBooks(ctx context.Context, marketIDs []string) ([]model.OrderBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.OrderBook, 0, len(marketIDs))
	for _, id := range marketIDs {
		if b, ok := c.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, nil
}

// PlaceOrder fills immediately at the order's limit price unless
// FailPlacement marks the market as a forced failure.
func (c *Client) PlaceOrder(ctx context.Context, order model.Order) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailPlacement[order.MarketID] {
		return "", verror.New(verror.VenueRejection, "PlaceOrder", fmt.Errorf("test venue: forced failure for market %s", order.MarketID))
	}

	c.nextID++
	venueOrderID := fmt.Sprintf("test-order-%d", c.nextID)
	c.orders[venueOrderID] = &trackedOrder{order: order, status: model.OrderExecuted}
	return venueOrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.orders[venueOrderID]
	if !ok {
		return verror.New(verror.VenueRejection, "CancelOrder", fmt.Errorf("unknown order %s", venueOrderID))
	}
	if !t.status.Terminal() {
		t.status = model.OrderCanceled
	}
	return nil
}

func (c *Client) GetOrderStatus(ctx context.Context, venueOrderID string) (common.OrderStatusReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.orders[venueOrderID]
	if !ok {
		return common.OrderStatusReport{}, verror.New(verror.VenueRejection, "GetOrderStatus", fmt.Errorf("unknown order %s", venueOrderID))
	}
	fillSize := int64(0)
	if t.status == model.OrderExecuted {
		fillSize = t.order.Size
	}
	return common.OrderStatusReport{Status: t.status, FillSize: fillSize}, nil
}
