package arbitrage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eventarb/crossvenue/internal/logstream"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/internal/verror"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// PairMessage is the wire shape read from SimilarPairsStream, matching
// services/market_similarity's publish format.
type PairMessage struct {
	MarketID1 string `json:"market_id_1"`
	Venue1    string `json:"venue_1"`
	MarketID2 string `json:"market_id_2"`
	Venue2    string `json:"venue_2"`
}

// OpportunityMessage is the wire shape published to ArbitrageOpportunities.
type OpportunityMessage struct {
	MarketID1   string             `json:"market_id_1"`
	Venue1      string             `json:"venue_1"`
	MarketID2   string             `json:"market_id_2"`
	Venue2      string             `json:"venue_2"`
	Opportunity model.Opportunity  `json:"opportunity"`
}

// Finder is the arbitrage-finder stage: consume similar-pair notifications,
// compute sizing from live order books, publish a resulting opportunity.
// Grounded on services/arbitrage_finder/main.py's ArbitrageFinderService
// loop shape.
type Finder struct {
	stream      *logstream.Client
	adapters    map[model.Venue]common.Adapter
	logger      *observability.Logger
	group       string
	consumer    string

	ProfitThreshold  float64
	ExpectedSlippage float64
	MaxTradeCost     *int64
}

func NewFinder(stream *logstream.Client, adapters map[model.Venue]common.Adapter, logger *observability.Logger) *Finder {
	return &Finder{
		stream:   stream,
		adapters: adapters,
		logger:   logger,
		group:    "arbitrage_group",
		consumer: logstream.ConsumerName("arbitrage-consumer"),
	}
}

// Run blocks, polling SimilarPairsStream until ctx is canceled.
func (f *Finder) Run(ctx context.Context, pollInterval time.Duration) error {
	if err := f.stream.EnsureGroup(ctx, logstream.SimilarPairsStream, f.group); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.processOnce(ctx)
		}
	}
}

func (f *Finder) processOnce(ctx context.Context) {
	records, err := f.stream.Read(ctx, logstream.SimilarPairsStream, f.group, f.consumer, 10, 2*time.Second)
	if err != nil {
		return
	}

	for _, rec := range records {
		start := time.Now()
		outcome := "no_opportunity"

		var msg PairMessage
		if err := json.Unmarshal(rec.Payload, &msg); err != nil {
			f.logger.LogOutcome(ctx, "arbitrage-finder", rec.ID, "schema_error", time.Since(start))
			f.stream.Ack(ctx, logstream.SimilarPairsStream, f.group, rec.ID)
			continue
		}

		adapter1, ok1 := f.adapters[model.Venue(msg.Venue1)]
		adapter2, ok2 := f.adapters[model.Venue(msg.Venue2)]
		if !ok1 || !ok2 {
			f.logger.LogOutcome(ctx, "arbitrage-finder", rec.ID, "unknown_venue", time.Since(start))
			f.stream.Ack(ctx, logstream.SimilarPairsStream, f.group, rec.ID)
			continue
		}

		books1, err := adapter1.GetOrderBooks(ctx, []string{msg.MarketID1})
		if err != nil || len(books1) == 0 {
			f.logger.LogOutcome(ctx, "arbitrage-finder", rec.ID, "book_unavailable", time.Since(start))
			if !verror.Retryable(err) {
				f.stream.Ack(ctx, logstream.SimilarPairsStream, f.group, rec.ID)
			}
			continue
		}
		books2, err := adapter2.GetOrderBooks(ctx, []string{msg.MarketID2})
		if err != nil || len(books2) == 0 {
			f.logger.LogOutcome(ctx, "arbitrage-finder", rec.ID, "book_unavailable", time.Since(start))
			if !verror.Retryable(err) {
				f.stream.Ack(ctx, logstream.SimilarPairsStream, f.group, rec.ID)
			}
			continue
		}

		opp, found := f.evaluate(books1[0], books2[0])
		if found {
			opp.PairKey = model.Canonicalize(
				model.MarketKey{Venue: model.Venue(msg.Venue1), MarketID: msg.MarketID1},
				model.MarketKey{Venue: model.Venue(msg.Venue2), MarketID: msg.MarketID2},
			)
			f.stream.Append(ctx, logstream.ArbitrageOpportunities, OpportunityMessage{
				MarketID1: msg.MarketID1, Venue1: msg.Venue1,
				MarketID2: msg.MarketID2, Venue2: msg.Venue2,
				Opportunity: opp,
			})
			outcome = "opportunity_found"
		}

		f.logger.LogOutcome(ctx, "arbitrage-finder", rec.ID, outcome, time.Since(start))
		f.stream.Ack(ctx, logstream.SimilarPairsStream, f.group, rec.ID)
	}
}

// evaluate mirrors calculate_cross_platform_arbitrage: build both
// candidate directions (YES@1 + NO@2, YES@2 + NO@1), size each, and return
// whichever has the lower cost per share.
func (f *Finder) evaluate(ob1, ob2 model.OrderBook) (model.Opportunity, bool) {
	curveY1 := BuildCurve(toLevels(ob1.Yes.Ask))
	curveN1 := BuildCurve(toLevels(ob1.No.Ask))
	curveY2 := BuildCurve(toLevels(ob2.Yes.Ask))
	curveN2 := BuildCurve(toLevels(ob2.No.Ask))

	size1 := Size(curveY1, curveN2, f.ProfitThreshold, f.ExpectedSlippage, f.MaxTradeCost)
	size2 := Size(curveY2, curveN1, f.ProfitThreshold, f.ExpectedSlippage, f.MaxTradeCost)

	var candidates []model.Opportunity
	if size1.Shares > 0 && Admissible(size1.Shares, curveY1, curveN2) {
		candidates = append(candidates, model.Opportunity{
			Type: model.OppYes1No2, Shares: size1.Shares, TotalCost: size1.TotalCost,
			CostPerShare: float64(size1.TotalCost) / float64(size1.Shares),
			MaxPrice1:    marginalPriceAt(size1.Shares, curveY1), MaxPrice2: marginalPriceAt(size1.Shares, curveN2),
		})
	}
	if size2.Shares > 0 && Admissible(size2.Shares, curveY2, curveN1) {
		candidates = append(candidates, model.Opportunity{
			Type: model.OppYes2No1, Shares: size2.Shares, TotalCost: size2.TotalCost,
			CostPerShare: float64(size2.TotalCost) / float64(size2.Shares),
			MaxPrice1:    marginalPriceAt(size2.Shares, curveN1), MaxPrice2: marginalPriceAt(size2.Shares, curveY2),
		})
	}

	if len(candidates) == 0 {
		return model.Opportunity{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.CostPerShare < best.CostPerShare {
			best = c
		}
	}
	return best, true
}

func toLevels(levels []model.PriceLevel) []Level {
	out := make([]Level, len(levels))
	for i, l := range levels {
		out[i] = Level{Price: l.Price, Quantity: l.Quantity}
	}
	return out
}
