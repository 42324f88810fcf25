package cosine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventarb/crossvenue/internal/similarity"
)

func TestInMemoryIndex_QueryExcludesSameVenueAndWrongKind(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	query := similarity.Embed("fed rate cut march 2026")

	require.NoError(t, idx.Upsert(ctx, []similarity.Item{
		{MarketID: "kalshi-1", Venue: "kalshi", Kind: similarity.KindName, Vector: similarity.Embed("fed rate cut march 2026")},
		{MarketID: "kalshi-1", Venue: "kalshi", Kind: similarity.KindRules, Vector: similarity.Embed("resolves yes if the fed cuts")},
		{MarketID: "poly-1", Venue: "polymarket", Kind: similarity.KindName, Vector: similarity.Embed("fed rate cut march 2026")},
		{MarketID: "poly-2", Venue: "polymarket", Kind: similarity.KindName, Vector: similarity.Embed("will it snow in denver")},
	}))

	matches, err := idx.Query(ctx, query, similarity.KindName, "kalshi", 3)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "poly-1", matches[0].MarketID, "closest match should rank first")
	for _, m := range matches {
		assert.NotEqual(t, "kalshi", m.Venue)
	}
}

func TestInMemoryIndex_QueryRespectsTopK(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Upsert(ctx, []similarity.Item{
			{MarketID: string(rune('a' + i)), Venue: "polymarket", Kind: similarity.KindName, Vector: similarity.Embed("market text")},
		}))
	}

	matches, err := idx.Query(ctx, similarity.Embed("market text"), similarity.KindName, "kalshi", 3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}
