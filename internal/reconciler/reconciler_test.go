package reconciler

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/internal/venue/testvenue"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// fakeStore is an in-memory reconcilerStore: it lets these tests drive a
// sweep against seeded orders without a real Postgres connection.
type fakeStore struct {
	mu     sync.Mutex
	orders []model.Order
	trades []model.Trade
}

func (s *fakeStore) NonTerminalOrders(ctx context.Context) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if !o.Status.Terminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateOrder(ctx context.Context, o model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.orders {
		if s.orders[i].ID == o.ID {
			s.orders[i] = o
			return nil
		}
	}
	return nil
}

func (s *fakeStore) InsertTrades(ctx context.Context, trades []model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trades...)
	return nil
}

func (s *fakeStore) byID(id int64) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o
		}
	}
	return model.Order{}
}

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{ServiceName: "test", LogLevel: "error", LogFormat: "text"})
}

// TestReconcileOne_RefreshesSurvivingOrderFromVenue covers scenario S7:
// an order left OPEN when the executor crashed is picked up by a sweep,
// its real status is fetched from the venue, and the refreshed status and
// fill are persisted — independent of whatever placed the order.
func TestReconcileOne_RefreshesSurvivingOrderFromVenue(t *testing.T) {
	s := &fakeStore{orders: []model.Order{
		{ID: 1, ClientOrderID: "co-1", Venue: model.VenueTest, MarketID: "m-1", VenueOrderID: "test-order-1", Size: 10, Status: model.OrderOpen},
	}}

	venue := testvenue.New()
	venueOrderID, err := venue.PlaceOrder(context.Background(), model.Order{MarketID: "m-1", Size: 10})
	require.NoError(t, err)
	s.orders[0].VenueOrderID = venueOrderID

	r := New(s, map[model.Venue]common.Adapter{model.VenueTest: venue}, testLogger())
	r.sweepOnce(context.Background())

	refreshed := s.byID(1)
	assert.Equal(t, model.OrderExecuted, refreshed.Status)
	assert.Equal(t, int64(10), refreshed.FillSize)
}

// TestSweepOnce_SkipsOrdersWithNoRegisteredAdapter covers the case where a
// non-terminal order belongs to a venue the reconciler has no adapter for:
// the sweep must skip it without touching the store, not panic.
func TestSweepOnce_SkipsOrdersWithNoRegisteredAdapter(t *testing.T) {
	s := &fakeStore{orders: []model.Order{
		{ID: 1, ClientOrderID: "co-1", Venue: model.VenueKalshi, MarketID: "m-1", VenueOrderID: "k-1", Size: 10, Status: model.OrderOpen},
	}}

	r := New(s, map[model.Venue]common.Adapter{}, testLogger())
	r.sweepOnce(context.Background())

	refreshed := s.byID(1)
	assert.Equal(t, model.OrderOpen, refreshed.Status)
}

// TestSweepOnce_IgnoresAlreadyTerminalOrders asserts terminal orders never
// reach reconcileOne at all.
func TestSweepOnce_IgnoresAlreadyTerminalOrders(t *testing.T) {
	s := &fakeStore{orders: []model.Order{
		{ID: 1, ClientOrderID: "co-1", Venue: model.VenueTest, MarketID: "m-1", VenueOrderID: "gone", Size: 10, Status: model.OrderExecuted, FillSize: 10},
	}}

	venue := testvenue.New()
	r := New(s, map[model.Venue]common.Adapter{model.VenueTest: venue}, testLogger())
	r.sweepOnce(context.Background())

	refreshed := s.byID(1)
	assert.Equal(t, model.OrderExecuted, refreshed.Status)
	assert.Equal(t, int64(10), refreshed.FillSize)
}
