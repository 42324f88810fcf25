package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eventarb/crossvenue/internal/arbitrage"
	"github.com/eventarb/crossvenue/internal/logstream"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/store"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// Service is the trade-executor stage: consume opportunities, resolve the
// two markets and adapters involved, hand off to Executor.Execute.
// Grounded on services/trade_executor/main.py's TradeExecutionService loop.
type Service struct {
	stream   *logstream.Client
	store    *store.Store
	adapters map[model.Venue]common.Adapter
	executor *Executor
	logger   *observability.Logger
	group    string
	consumer string
}

func NewService(stream *logstream.Client, s *store.Store, adapters map[model.Venue]common.Adapter, exec *Executor, logger *observability.Logger) *Service {
	return &Service{
		stream:   stream,
		store:    s,
		adapters: adapters,
		executor: exec,
		logger:   logger,
		group:    "trade_execution_group",
		consumer: logstream.ConsumerName("trade-executor"),
	}
}

func (s *Service) Run(ctx context.Context, pollInterval time.Duration) error {
	if err := s.stream.EnsureGroup(ctx, logstream.ArbitrageOpportunities, s.group); err != nil {
		return err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.processOnce(ctx)
		}
	}
}

func (s *Service) processOnce(ctx context.Context) {
	records, err := s.stream.Read(ctx, logstream.ArbitrageOpportunities, s.group, s.consumer, 5, 2*time.Second)
	if err != nil {
		return
	}

	for _, rec := range records {
		start := time.Now()

		var msg arbitrage.OpportunityMessage
		if err := json.Unmarshal(rec.Payload, &msg); err != nil {
			s.logger.LogOutcome(ctx, "trade-executor", rec.ID, "schema_error", time.Since(start))
			s.stream.Ack(ctx, logstream.ArbitrageOpportunities, s.group, rec.ID)
			continue
		}

		markets, err := s.store.GetMarkets(ctx, "")
		if err != nil {
			s.logger.LogOutcome(ctx, "trade-executor", rec.ID, "store_error", time.Since(start))
			continue
		}
		market1, ok1 := findMarket(markets, model.Venue(msg.Venue1), msg.MarketID1)
		market2, ok2 := findMarket(markets, model.Venue(msg.Venue2), msg.MarketID2)
		adapter1, ok3 := s.adapters[model.Venue(msg.Venue1)]
		adapter2, ok4 := s.adapters[model.Venue(msg.Venue2)]

		if !ok1 || !ok2 || !ok3 || !ok4 {
			s.logger.LogOutcome(ctx, "trade-executor", rec.ID, "missing_market_or_adapter", time.Since(start))
			s.stream.Ack(ctx, logstream.ArbitrageOpportunities, s.group, rec.ID)
			continue
		}

		outcome := "executed"
		if err := s.executor.Execute(ctx, market1, market2, adapter1, adapter2, msg.Opportunity); err != nil {
			outcome = "execution_failed"
		}

		s.logger.LogOutcome(ctx, "trade-executor", rec.ID, outcome, time.Since(start))
		s.stream.Ack(ctx, logstream.ArbitrageOpportunities, s.group, rec.ID)
	}
}

func findMarket(markets []model.Market, venue model.Venue, marketID string) (model.Market, bool) {
	for _, m := range markets {
		if m.Venue == venue && m.MarketID == marketID {
			return m, true
		}
	}
	return model.Market{}, false
}
