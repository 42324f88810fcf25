// Package cosine is an in-process stand-in for the Pinecone index
// SimilarityManager maintains: the same upsert-by-id, query-top-K-with-
// metadata-filter shape, collapsed to a brute-force cosine scan since the
// concrete vector database is out of scope per spec.md §1.
package cosine

import (
	"context"
	"sort"
	"sync"

	"github.com/eventarb/crossvenue/internal/similarity"
)

type entry struct {
	marketID string
	venue    string
	kind     similarity.Kind
	vector   similarity.Vector
}

// InMemoryIndex stores every upserted vector in a map keyed by
// "<venue>/<market_id>/<kind>", mirroring Pinecone's "<market_id>-<type>"
// vector IDs but additionally scoped by venue.
type InMemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{entries: make(map[string]entry)}
}

func key(venue, marketID string, kind similarity.Kind) string {
	return venue + "/" + marketID + "/" + string(kind)
}

func (idx *InMemoryIndex) Upsert(ctx context.Context, items []similarity.Item) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, item := range items {
		idx.entries[key(item.Venue, item.MarketID, item.Kind)] = entry{
			marketID: item.MarketID, venue: item.Venue, kind: item.Kind, vector: item.Vector,
		}
	}
	return nil
}

func (idx *InMemoryIndex) Query(ctx context.Context, vector similarity.Vector, kind similarity.Kind, excludeVenue string, topK int) ([]similarity.Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := make([]similarity.Match, 0, len(idx.entries))
	for _, e := range idx.entries {
		if e.kind != kind || e.venue == excludeVenue {
			continue
		}
		matches = append(matches, similarity.Match{
			MarketID: e.marketID, Venue: e.venue, Score: similarity.Cosine(vector, e.vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
