// Package model holds the shared data types that flow through every stage:
// markets, order books, pairs, opportunities, orders and trades. Collapsing
// these into one package avoids the cyclic Market/OrderBook/PlatformType
// imports the original system had.
package model

// Venue identifies a tradable event-contract venue. A single enum replaces
// per-venue marker types so adapters, persistence and the stream codec all
// agree on one vocabulary.
type Venue string

const (
	VenueKalshi     Venue = "kalshi"
	VenuePolymarket Venue = "polymarket"
	VenueTest       Venue = "test"
)

func (v Venue) Valid() bool {
	switch v {
	case VenueKalshi, VenuePolymarket, VenueTest:
		return true
	default:
		return false
	}
}
