package similarity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eventarb/crossvenue/internal/logstream"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/store"
	"github.com/eventarb/crossvenue/internal/verror"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// MarketEventMessage is the wire shape read from MarketEventsStream,
// matching spec.md §6's market_events record.
type MarketEventMessage struct {
	MarketID       string `json:"market_id"`
	Venue          string `json:"venue"`
	Name           string `json:"name"`
	Rules          string `json:"rules"`
	CloseTimestamp int64  `json:"close_timestamp"`
}

// PairMessage is the wire shape published to market_pairs (spec.md §6).
type PairMessage struct {
	MarketID1 string `json:"market_id_1"`
	Venue1    string `json:"venue_1"`
	MarketID2 string `json:"market_id_2"`
	Venue2    string `json:"venue_2"`
}

// Matcher is the similarity-matcher stage: ensure-persisted, embed and
// upsert, query top-K candidates from opposing venues, judge each, dedupe
// in-batch, persist and publish confirmed pairs. Grounded on
// services/market_similarity/main.py's MarketSimilarityService.
// process_market_events.
type Matcher struct {
	stream *logstream.Client
	store  *store.Store
	index  Index
	judge  Judge
	logger *observability.Logger

	group    string
	consumer string
	topK     int
}

func NewMatcher(stream *logstream.Client, s *store.Store, index Index, judge Judge, logger *observability.Logger) *Matcher {
	return &Matcher{
		stream: stream, store: s, index: index, judge: judge, logger: logger,
		group:    "similarity_group",
		consumer: logstream.ConsumerName("similarity-consumer"),
		topK:     3,
	}
}

// Run blocks, polling MarketEventsStream until ctx is canceled.
func (m *Matcher) Run(ctx context.Context, pollInterval time.Duration) error {
	if err := m.stream.EnsureGroup(ctx, logstream.MarketEventsStream, m.group); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.processOnce(ctx)
		}
	}
}

func (m *Matcher) processOnce(ctx context.Context) {
	records, err := m.stream.Read(ctx, logstream.MarketEventsStream, m.group, m.consumer, 10, 2*time.Second)
	if err != nil {
		return
	}

	for _, rec := range records {
		start := time.Now()
		outcome := m.processRecord(ctx, rec)
		m.logger.LogOutcome(ctx, "similarity-matcher", rec.ID, outcome, time.Since(start))

		// Mirrors the original's ack-on-success, leave-pending-on-
		// exception behavior: store/index infra failures are left
		// unacked for redelivery, everything else (including a judge
		// failure, which fails closed rather than propagating) acks.
		switch outcome {
		case "store_error", "index_error":
		default:
			m.stream.Ack(ctx, logstream.MarketEventsStream, m.group, rec.ID)
		}
	}
}

func (m *Matcher) processRecord(ctx context.Context, rec logstream.Record) string {
	var evt MarketEventMessage
	if err := json.Unmarshal(rec.Payload, &evt); err != nil {
		return "schema_error"
	}

	market := model.Market{
		Venue: model.Venue(evt.Venue), MarketID: evt.MarketID,
		Name: evt.Name, Rules: evt.Rules, CloseTimestamp: evt.CloseTimestamp,
	}

	if err := m.store.UpsertMarket(ctx, market); err != nil {
		return "store_error"
	}

	nameVec, rulesVec := Embed(market.Name), Embed(market.Rules)
	if err := m.index.Upsert(ctx, []Item{
		{MarketID: market.MarketID, Venue: string(market.Venue), Kind: KindName, Vector: nameVec},
		{MarketID: market.MarketID, Venue: string(market.Venue), Kind: KindRules, Vector: rulesVec},
	}); err != nil {
		return "index_error"
	}

	matches, err := m.index.Query(ctx, nameVec, KindName, string(market.Venue), m.topK)
	if err != nil {
		return "index_error"
	}
	if len(matches) == 0 {
		return "no_candidates"
	}

	candidateIDs := make([]model.MarketKey, 0, len(matches))
	seen := make(map[model.MarketKey]bool)
	for _, match := range matches {
		key := model.MarketKey{Venue: model.Venue(match.Venue), MarketID: match.MarketID}
		if !seen[key] {
			seen[key] = true
			candidateIDs = append(candidateIDs, key)
		}
	}

	candidates, err := m.store.GetMarkets(ctx, "")
	if err != nil {
		return "store_error"
	}

	confirmedAny := false
	judgeFailed := false
	published := make(map[model.Pair]bool)

	for _, key := range candidateIDs {
		candidate, ok := findCandidate(candidates, key)
		if !ok {
			continue
		}

		identical, err := m.judge.IsIdentical(ctx, market.Name, market.Rules, candidate.Name, candidate.Rules)
		if err != nil {
			// Fail closed: a judge error means "not confirmed", never
			// an excuse to retry the whole record, per spec.md §4.3.
			judgeFailed = true
			continue
		}
		if !identical {
			continue
		}

		pair := model.Canonicalize(market.Key(), candidate.Key())
		if published[pair] {
			continue
		}
		published[pair] = true
		confirmedAny = true

		if err := m.store.InsertPairIgnore(ctx, pair); err != nil && !verror.Is(err, verror.PersistenceConflict) {
			continue
		}
		m.stream.Append(ctx, logstream.SimilarPairsStream, PairMessage{
			MarketID1: pair.Market1.MarketID, Venue1: string(pair.Market1.Venue),
			MarketID2: pair.Market2.MarketID, Venue2: string(pair.Market2.Venue),
		})
	}

	if confirmedAny {
		return "pairs_published"
	}
	if judgeFailed {
		return "no_confirmed_pairs"
	}
	return "no_match"
}

func findCandidate(markets []model.Market, key model.MarketKey) (model.Market, bool) {
	for _, mkt := range markets {
		if mkt.Key() == key {
			return mkt, true
		}
	}
	return model.Market{}, false
}
