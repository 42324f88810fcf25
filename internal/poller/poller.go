// Package poller implements the market-poller stage: on a timer, ask every
// configured venue adapter for its current set of live markets, persist
// each, and publish a normalized record to market_events. Grounded on
// services/market_poller/main.py's MarketPollingService.poll_markets.
package poller

import (
	"context"
	"time"

	"github.com/eventarb/crossvenue/internal/logstream"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/store"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// maxPagesPerSweep bounds FindNewMarkets pagination per adapter per tick,
// a safety valve the original's single fixed limit=100 call never needed
// because it never paginated at all.
const maxPagesPerSweep = 10

// MarketEventMessage is the wire shape published to MarketEventsStream,
// matching spec.md §6's market_events record.
type MarketEventMessage struct {
	MarketID       string `json:"market_id"`
	Venue          string `json:"venue"`
	Name           string `json:"name"`
	Rules          string `json:"rules"`
	CloseTimestamp int64  `json:"close_timestamp"`
}

// Poller owns one polling sweep across every adapter.
type Poller struct {
	stream   *logstream.Client
	store    *store.Store
	adapters map[model.Venue]common.Adapter
	logger   *observability.Logger
}

func New(stream *logstream.Client, s *store.Store, adapters map[model.Venue]common.Adapter, logger *observability.Logger) *Poller {
	return &Poller{stream: stream, store: s, adapters: adapters, logger: logger}
}

// Run blocks, sweeping every adapter on interval until ctx is canceled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *Poller) sweepOnce(ctx context.Context) {
	p.logger.Info(ctx, "poller: polling for new markets")
	for venue, adapter := range p.adapters {
		p.pollAdapter(ctx, venue, adapter)
	}
}

func (p *Poller) pollAdapter(ctx context.Context, venue model.Venue, adapter common.Adapter) {
	start := time.Now()
	var cursor string
	var total int

	for page := 0; page < maxPagesPerSweep; page++ {
		markets, nextCursor, err := adapter.FindNewMarkets(ctx, cursor)
		if err != nil {
			p.logger.Error(ctx, "poller: find_new_markets failed", err, map[string]interface{}{"venue": venue})
			break
		}

		for _, market := range markets {
			if err := p.store.UpsertMarket(ctx, market); err != nil {
				p.logger.Error(ctx, "poller: upsert_market failed", err, map[string]interface{}{"venue": venue, "market_id": market.MarketID})
				continue
			}
			p.stream.Append(ctx, logstream.MarketEventsStream, MarketEventMessage{
				MarketID: market.MarketID, Venue: string(market.Venue),
				Name: market.Name, Rules: market.Rules, CloseTimestamp: market.CloseTimestamp,
			})
			total++
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	p.logger.LogOutcome(ctx, "market-poller", string(venue), "swept", time.Since(start), map[string]interface{}{"markets_found": total})
}
