package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrder() Order {
	return Order{ClientOrderID: "co-1", Venue: VenueTest, MarketID: "m-1", Size: 100, Status: OrderPending}
}

func TestOrder_TransitionTo_HappyPath(t *testing.T) {
	o := newTestOrder()

	require.NoError(t, o.TransitionTo(OrderOpen, 0))
	assert.Equal(t, OrderOpen, o.Status)

	require.NoError(t, o.TransitionTo(OrderPartiallyFilled, 40))
	assert.Equal(t, int64(40), o.FillSize)

	require.NoError(t, o.TransitionTo(OrderExecuted, 100))
	assert.Equal(t, OrderExecuted, o.Status)
	assert.True(t, o.Status.Terminal())
}

func TestOrder_TransitionTo_RejectsLeavingTerminalState(t *testing.T) {
	o := newTestOrder()
	require.NoError(t, o.TransitionTo(OrderOpen, 0))
	require.NoError(t, o.TransitionTo(OrderCanceled, 0))

	err := o.TransitionTo(OrderOpen, 0)
	assert.Error(t, err)
	assert.Equal(t, OrderCanceled, o.Status)
}

func TestOrder_TransitionTo_RejectsIllegalJump(t *testing.T) {
	o := newTestOrder()
	err := o.TransitionTo(OrderExecuted, 100)
	assert.Error(t, err)
	assert.Equal(t, OrderPending, o.Status)
}

func TestOrder_TransitionTo_RejectsDecreasingFillSize(t *testing.T) {
	o := newTestOrder()
	require.NoError(t, o.TransitionTo(OrderOpen, 0))
	require.NoError(t, o.TransitionTo(OrderPartiallyFilled, 50))

	err := o.TransitionTo(OrderPartiallyFilled, 30)
	assert.Error(t, err)
	assert.Equal(t, int64(50), o.FillSize)
}

func TestOrder_TransitionTo_RejectsFillSizeBeyondOrderSize(t *testing.T) {
	o := newTestOrder()
	require.NoError(t, o.TransitionTo(OrderOpen, 0))

	err := o.TransitionTo(OrderExecuted, 150)
	assert.Error(t, err)
}

func TestOrder_TransitionTo_SameStatusUpdatesFillSize(t *testing.T) {
	o := newTestOrder()
	require.NoError(t, o.TransitionTo(OrderOpen, 0))
	require.NoError(t, o.TransitionTo(OrderPartiallyFilled, 10))
	require.NoError(t, o.TransitionTo(OrderPartiallyFilled, 20))
	assert.Equal(t, int64(20), o.FillSize)
}

func TestCanonicalize_IsOrderIndependent(t *testing.T) {
	a := MarketKey{Venue: VenueKalshi, MarketID: "b"}
	b := MarketKey{Venue: VenuePolymarket, MarketID: "a"}

	assert.Equal(t, Canonicalize(a, b), Canonicalize(b, a))
	assert.Equal(t, "a", Canonicalize(a, b).Market1.MarketID)
}
