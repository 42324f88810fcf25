package testvenue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventarb/crossvenue/internal/model"
)

func TestFindNewMarkets_ReturnsEverythingRegisteredWithNoCursor(t *testing.T) {
	c := New()
	c.SetMarket(model.Market{Venue: model.VenueTest, MarketID: "m-1", Name: "one"})
	c.SetMarket(model.Market{Venue: model.VenueTest, MarketID: "m-2", Name: "two"})

	markets, cursor, err := c.FindNewMarkets(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, cursor)
	assert.Len(t, markets, 2)
}

func TestPlaceOrder_FillsImmediatelyUnlessForcedToFail(t *testing.T) {
	c := New()
	order := model.Order{ClientOrderID: "co-1", MarketID: "m-1", Size: 10}

	venueOrderID, err := c.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.NotEmpty(t, venueOrderID)

	report, err := c.GetOrderStatus(context.Background(), venueOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderExecuted, report.Status)
	assert.Equal(t, int64(10), report.FillSize)
}

func TestPlaceOrder_RespectsForcedFailure(t *testing.T) {
	c := New()
	c.FailPlacement = map[string]bool{"m-1": true}

	_, err := c.PlaceOrder(context.Background(), model.Order{MarketID: "m-1", Size: 10})
	assert.Error(t, err)
}

func TestCancelOrder_UnknownOrderFails(t *testing.T) {
	c := New()
	err := c.CancelOrder(context.Background(), "does-not-exist")
	assert.Error(t, err)
}

func TestCancelOrder_TerminalOrderIsLeftAlone(t *testing.T) {
	c := New()
	venueOrderID, err := c.PlaceOrder(context.Background(), model.Order{MarketID: "m-1", Size: 10})
	require.NoError(t, err)

	// Placement already fills the order (terminal), so cancel must not
	// flip it back to canceled.
	require.NoError(t, c.CancelOrder(context.Background(), venueOrderID))

	report, err := c.GetOrderStatus(context.Background(), venueOrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderExecuted, report.Status)
}

func TestGetOrderStatus_UnknownOrderFails(t *testing.T) {
	c := New()
	_, err := c.GetOrderStatus(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestGetMarkets_FiltersToRequestedIDs(t *testing.T) {
	c := New()
	c.SetMarket(model.Market{Venue: model.VenueTest, MarketID: "m-1"})
	c.SetMarket(model.Market{Venue: model.VenueTest, MarketID: "m-2"})

	markets, err := c.GetMarkets(context.Background(), []string{"m-2", "missing"})
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "m-2", markets[0].MarketID)
}
