package model

// PriceLevel is one rung of a book: Price is tenths of a cent, Quantity is
// integer contracts (a venue's native fractional size already multiplied by
// 100 on ingest, per the adapter contract).
type PriceLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// BookSide holds the bid and ask ladders for one side (YES or NO) of a
// market, each sorted ascending by price.
type BookSide struct {
	Bid []PriceLevel `json:"bid"`
	Ask []PriceLevel `json:"ask"`
}

// OrderBook is a snapshot tied to (Venue, MarketID, TimestampMS). It is an
// ephemeral value flowing through the finder; persisted only for audit.
//
// Invariant: Yes.Ask[0].Price + No.Ask[0].Price < 1000 iff an arbitrage may
// exist at top-of-book.
type OrderBook struct {
	Venue       Venue    `json:"venue"`
	MarketID    string   `json:"market_id"`
	TimestampMS int64    `json:"timestamp_ms"`
	Yes         BookSide `json:"yes"`
	No          BookSide `json:"no"`
}

// SynthesizeNoFromYes derives the NO-side ask/bid ladders from a YES-only
// book using no_price = 1000 - yes_price, for venues that expose only
// YES-side depth. Quantities are carried over unchanged. Levels that would
// cross the opposing best bid are dropped, per the venue-adapter contract.
func SynthesizeNoFromYes(yes BookSide, bestOpposingNoBid int64) BookSide {
	mirror := func(levels []PriceLevel, keep func(price int64) bool) []PriceLevel {
		out := make([]PriceLevel, 0, len(levels))
		for i := len(levels) - 1; i >= 0; i-- {
			price := 1000 - levels[i].Price
			if !keep(price) {
				continue
			}
			out = append(out, PriceLevel{Price: price, Quantity: levels[i].Quantity})
		}
		return out
	}

	return BookSide{
		// A YES bid mirrors into a NO ask: the price a NO seller could hit.
		Ask: mirror(yes.Bid, func(price int64) bool {
			return bestOpposingNoBid == 0 || price > bestOpposingNoBid
		}),
		Bid: mirror(yes.Ask, func(int64) bool { return true }),
	}
}
