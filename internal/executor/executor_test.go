package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/internal/venue/testvenue"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// stuckAdapter wraps a testvenue.Client but never reports a placed order as
// EXECUTED, so waitForExecution can only time out — used to exercise the
// chunk barrier's timeout path, which testvenue.Client's instant fills
// otherwise never trigger.
type stuckAdapter struct {
	*testvenue.Client
}

func (a stuckAdapter) GetOrderStatus(ctx context.Context, venueOrderID string) (common.OrderStatusReport, error) {
	return common.OrderStatusReport{Status: model.OrderOpen, FillSize: 0}, nil
}

// fakeOrderStore is an in-memory orderStore: it lets these tests drive a
// full Execute call without a real Postgres connection, the same way
// testvenue.Client stands in for a real venue.
type fakeOrderStore struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]model.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[int64]model.Order)}
}

func (s *fakeOrderStore) InsertOrder(ctx context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	s.orders[o.ID] = *o
	return nil
}

func (s *fakeOrderStore) UpdateOrder(ctx context.Context, o model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *fakeOrderStore) all() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out
}

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{ServiceName: "test", LogLevel: "error", LogFormat: "text"})
}

// TestExecute_ChunkedExecutionFillsEntireOpportunity covers scenario S5:
// an opportunity larger than one chunk must be split, placed leg-by-leg
// per chunk, and every chunk's pair of orders must reach EXECUTED before
// Execute reports success.
func TestExecute_ChunkedExecutionFillsEntireOpportunity(t *testing.T) {
	s := newFakeOrderStore()
	e := New(s, testLogger(), time.Second)
	e.pollInterval = time.Millisecond

	adapter1, adapter2 := testvenue.New(), testvenue.New()
	market1 := model.Market{Venue: model.VenueKalshi, MarketID: "m-1"}
	market2 := model.Market{Venue: model.VenuePolymarket, MarketID: "m-2"}
	opp := model.Opportunity{Type: model.OppYes1No2, Shares: 25, MaxPrice1: 400, MaxPrice2: 450}

	err := e.Execute(context.Background(), market1, market2, adapter1, adapter2, opp)
	require.NoError(t, err)

	orders := s.all()
	// chunkSize = 25/10 = 2, so 25 shares take 12 full chunks of 2 plus a
	// final chunk of 1: 13 chunks, two orders (one per leg) apiece.
	require.Len(t, orders, 26)

	var leg1Filled, leg2Filled int64
	for _, o := range orders {
		assert.Equal(t, model.OrderExecuted, o.Status)
		assert.Equal(t, o.Size, o.FillSize)
		switch o.MarketID {
		case "m-1":
			leg1Filled += o.FillSize
		case "m-2":
			leg2Filled += o.FillSize
		}
	}
	assert.Equal(t, int64(25), leg1Filled)
	assert.Equal(t, int64(25), leg2Filled)
}

// TestExecute_AbortsWhenOneLegFailsToPlace covers scenario S6: if one leg
// of a chunk fails to place, Execute must abort immediately and the leg
// that did place must never be left reported as EXECUTED.
func TestExecute_AbortsWhenOneLegFailsToPlace(t *testing.T) {
	s := newFakeOrderStore()
	e := New(s, testLogger(), time.Second)
	e.pollInterval = time.Millisecond

	adapter1, adapter2 := testvenue.New(), testvenue.New()
	adapter2.FailPlacement = map[string]bool{"m-2": true}

	market1 := model.Market{Venue: model.VenueKalshi, MarketID: "m-1"}
	market2 := model.Market{Venue: model.VenuePolymarket, MarketID: "m-2"}
	opp := model.Opportunity{Type: model.OppYes1No2, Shares: 10, MaxPrice1: 400, MaxPrice2: 450}

	err := e.Execute(context.Background(), market1, market2, adapter1, adapter2, opp)
	require.Error(t, err)

	var sawFailed bool
	for _, o := range s.all() {
		assert.NotEqual(t, model.OrderExecuted, o.Status, "a leg must never be left EXECUTED once its sibling leg failed to place")
		if o.MarketID == "m-2" {
			assert.Equal(t, model.OrderFailed, o.Status)
			sawFailed = true
		}
	}
	assert.True(t, sawFailed, "the leg that failed to place must be persisted as FAILED")
}

// TestExecute_AbortsOnChunkBarrierTimeout covers Testable Property 6 (the
// chunk barrier): if one leg never reaches EXECUTED, Execute must not
// proceed past that chunk, and the leg stuck open must be canceled.
func TestExecute_AbortsOnChunkBarrierTimeout(t *testing.T) {
	s := newFakeOrderStore()
	e := New(s, testLogger(), 5*time.Millisecond)
	e.pollInterval = time.Millisecond

	adapter1 := testvenue.New()
	adapter2 := stuckAdapter{testvenue.New()}
	market1 := model.Market{Venue: model.VenueKalshi, MarketID: "m-1"}
	market2 := model.Market{Venue: model.VenuePolymarket, MarketID: "stuck-market"}
	opp := model.Opportunity{Type: model.OppYes1No2, Shares: 5, MaxPrice1: 400, MaxPrice2: 450}

	err := e.Execute(context.Background(), market1, market2, adapter1, adapter2, opp)
	require.Error(t, err)

	var sawCanceled bool
	for _, o := range s.all() {
		if o.MarketID == "stuck-market" {
			assert.Equal(t, model.OrderCanceled, o.Status, "the leg that never reached EXECUTED must be canceled once the barrier times out")
			sawCanceled = true
		}
	}
	assert.True(t, sawCanceled)
}
