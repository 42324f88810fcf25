package model

// Market is identified by (Venue, MarketID) where MarketID is venue-unique.
// Markets are never mutated in place: a re-ingest replaces the row. Closed
// markets are never destroyed; they simply stop being returned by
// FindNewMarkets.
type Market struct {
	Venue          Venue  `json:"venue"`
	MarketID       string `json:"market_id"`
	Name           string `json:"name"`
	Rules          string `json:"rules"`
	CloseTimestamp int64  `json:"close_timestamp"`
}

// Key returns the stable identity of a market across the system.
func (m Market) Key() MarketKey {
	return MarketKey{Venue: m.Venue, MarketID: m.MarketID}
}

// MarketKey is the (venue, market_id) identity used as a map key and as the
// persistence primary key.
type MarketKey struct {
	Venue    Venue
	MarketID string
}

// Pair is an unordered pair of Markets from distinct venues judged
// semantically identical. Canonicalize produces one stable ordering so each
// real-world pair has exactly one persisted row.
type Pair struct {
	Market1 MarketKey `json:"market_1"`
	Market2 MarketKey `json:"market_2"`
}

// Canonicalize orders a and b lexicographically by MarketID so that
// Canonicalize(a, b) and Canonicalize(b, a) always produce the same Pair.
// The spec requires a and b come from distinct venues; callers that cannot
// guarantee this should check before calling.
func Canonicalize(a, b MarketKey) Pair {
	if a.MarketID <= b.MarketID {
		return Pair{Market1: a, Market2: b}
	}
	return Pair{Market1: b, Market2: a}
}
