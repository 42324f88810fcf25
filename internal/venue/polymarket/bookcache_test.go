package polymarket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(config.ObservabilityConfig{ServiceName: "test", LogLevel: "error", LogFormat: "text"})
}

func TestBookCache_GetMissesWhenNeverPopulated(t *testing.T) {
	bc := newBookCache("wss://example.invalid", testLogger())
	_, ok := bc.get("m-1")
	assert.False(t, ok)
}

func TestBookCache_HandleMessageUpdatesYesAndNoSidesIndependently(t *testing.T) {
	bc := newBookCache("wss://example.invalid", testLogger())
	bc.watch("m-1", [2]string{"yes-token", "no-token"})

	bc.handleMessage([]byte(`{"event_type":"book","asset_id":"yes-token","bids":[{"price":"0.40","size":"10"}],"asks":[{"price":"0.45","size":"20"}]}`))
	bc.handleMessage([]byte(`{"event_type":"book","asset_id":"no-token","bids":[{"price":"0.50","size":"5"}],"asks":[{"price":"0.55","size":"8"}]}`))

	book, ok := bc.get("m-1")
	require.True(t, ok)
	require.Len(t, book.Yes.Ask, 1)
	assert.Equal(t, int64(450), book.Yes.Ask[0].Price)
	require.Len(t, book.No.Bid, 1)
	assert.Equal(t, int64(500), book.No.Bid[0].Price)
}

func TestBookCache_HandleMessageIgnoresUnknownAssetID(t *testing.T) {
	bc := newBookCache("wss://example.invalid", testLogger())
	bc.watch("m-1", [2]string{"yes-token", "no-token"})

	bc.handleMessage([]byte(`{"event_type":"book","asset_id":"stranger-token","bids":[],"asks":[]}`))

	_, ok := bc.get("m-1")
	assert.False(t, ok, "a message for an unwatched asset must not populate any market's cache")
}

func TestBookCache_GetTreatsStaleEntryAsMiss(t *testing.T) {
	bc := newBookCache("wss://example.invalid", testLogger())
	bc.watch("m-1", [2]string{"yes-token", "no-token"})
	bc.handleMessage([]byte(`{"event_type":"book","asset_id":"yes-token","bids":[],"asks":[{"price":"0.3","size":"1"}]}`))

	bc.mu.Lock()
	c := bc.books["m-1"]
	c.cachedAt = time.Now().Add(-2 * staleAfter)
	bc.books["m-1"] = c
	bc.mu.Unlock()

	_, ok := bc.get("m-1")
	assert.False(t, ok)
}

func TestBookCache_MarketForTokenResolvesEitherSide(t *testing.T) {
	bc := newBookCache("wss://example.invalid", testLogger())
	bc.watch("m-1", [2]string{"yes-token", "no-token"})

	marketID, ok := bc.marketForToken("no-token")
	require.True(t, ok)
	assert.Equal(t, "m-1", marketID)

	_, ok = bc.marketForToken("unknown")
	assert.False(t, ok)
}
