// Package executor implements the chunked symmetric execution protocol: an
// arbitrage opportunity's total share count is split into chunks, both legs
// of each chunk are placed together, and the executor aborts (canceling
// whichever leg placed) the instant either leg fails or the chunk does not
// reach EXECUTED on both legs within a timeout. Grounded line-for-line on
// backend/core/ExecuteArbitrage.py's place_arbitrage_orders and
// _wait_for_execution.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// orderStore is the subset of *store.Store that Execute needs, carved out
// the same way common.Adapter stands in for a venue: it lets tests drive a
// full Execute call against an in-memory fake instead of a real Postgres
// connection. *store.Store satisfies this interface unmodified.
type orderStore interface {
	InsertOrder(ctx context.Context, o *model.Order) error
	UpdateOrder(ctx context.Context, o model.Order) error
}

// Executor drives one opportunity's chunked execution.
type Executor struct {
	store        orderStore
	logger       *observability.Logger
	pollTimeout  time.Duration
	pollInterval time.Duration
}

func New(s orderStore, logger *observability.Logger, pollTimeout time.Duration) *Executor {
	return &Executor{store: s, logger: logger, pollTimeout: pollTimeout, pollInterval: time.Second}
}

// clampPrice mirrors max(1, min(round(priceTenths/10), 99)): converts a
// tenths-of-cent price into whole cents and clamps to Kalshi/Polymarket's
// shared [1,99] order-price range.
func clampPrice(priceTenths int64) int64 {
	cents := (priceTenths + 5) / 10 // round to nearest cent
	if cents < 1 {
		return 1
	}
	if cents > 99 {
		return 99
	}
	return cents
}

// Execute places and monitors every chunk of opp between venue1/market1 and
// venue2/market2, persisting each order before and after placement. It
// returns the last error encountered, or nil if every chunk executed.
func (e *Executor) Execute(ctx context.Context, market1, market2 model.Market, adapter1, adapter2 common.Adapter, opp model.Opportunity) error {
	totalShares := opp.Shares
	var sharesExecuted int64

	maxPrice1 := clampPrice(opp.MaxPrice1) * 10
	maxPrice2 := clampPrice(opp.MaxPrice2) * 10

	chunkSize := totalShares / 10
	if chunkSize < 1 {
		chunkSize = 1
	}

	side1, side2 := opp.Legs()

	e.logger.Info(ctx, "executor: starting arbitrage execution", map[string]interface{}{
		"market_1": market1.MarketID, "market_2": market2.MarketID, "total_shares": totalShares,
	})

	for sharesExecuted < totalShares {
		size := chunkSize
		if remaining := totalShares - sharesExecuted; remaining < size {
			size = remaining
		}

		order1 := e.newOrder(market1.Venue, market1.MarketID, side1, size, maxPrice1)
		order2 := e.newOrder(market2.Venue, market2.MarketID, side2, size, maxPrice2)

		if err := e.store.InsertOrder(ctx, &order1); err != nil {
			return fmt.Errorf("persist order 1: %w", err)
		}
		if err := e.store.InsertOrder(ctx, &order2); err != nil {
			return fmt.Errorf("persist order 2: %w", err)
		}

		venueID1, err1 := adapter1.PlaceOrder(ctx, order1)
		venueID2, err2 := adapter2.PlaceOrder(ctx, order2)

		if err1 != nil || err2 != nil {
			e.logger.Error(ctx, "executor: chunk placement failed, aborting", nil, map[string]interface{}{
				"market_1": market1.MarketID, "market_2": market2.MarketID,
			})
			e.failAndCancel(ctx, adapter1, &order1, venueID1, err1)
			e.failAndCancel(ctx, adapter2, &order2, venueID2, err2)
			return fmt.Errorf("chunk placement failed: leg1=%v leg2=%v", err1, err2)
		}

		order1.VenueOrderID, order2.VenueOrderID = venueID1, venueID2
		if err := order1.TransitionTo(model.OrderOpen, 0); err == nil {
			e.store.UpdateOrder(ctx, order1)
		}
		if err := order2.TransitionTo(model.OrderOpen, 0); err == nil {
			e.store.UpdateOrder(ctx, order2)
		}

		if !e.waitForExecution(ctx, adapter1, &order1, adapter2, &order2) {
			e.logger.Error(ctx, "executor: chunk barrier failed, halting", nil, map[string]interface{}{
				"market_1": market1.MarketID, "market_2": market2.MarketID,
			})
			return fmt.Errorf("chunk barrier failed after %d/%d shares", sharesExecuted, totalShares)
		}

		sharesExecuted += size
	}

	e.logger.Info(ctx, "executor: arbitrage execution complete", map[string]interface{}{
		"market_1": market1.MarketID, "market_2": market2.MarketID, "total_shares": totalShares,
	})
	return nil
}

func (e *Executor) newOrder(venue model.Venue, marketID string, side model.Side, size, maxPrice int64) model.Order {
	return model.Order{
		ClientOrderID: uuid.NewString(),
		Venue:         venue,
		MarketID:      marketID,
		Side:          side,
		Action:        model.ActionBuy,
		OrderType:     model.OrderTypeMarket,
		TimeInForce:   model.TIFIOC,
		Size:          size,
		Price:         maxPrice,
		MaxPrice:      maxPrice,
		Status:        model.OrderPending,
	}
}

func (e *Executor) failAndCancel(ctx context.Context, adapter common.Adapter, order *model.Order, venueOrderID string, placeErr error) {
	if placeErr != nil {
		order.TransitionTo(model.OrderFailed, order.FillSize)
		e.store.UpdateOrder(ctx, *order)
		return
	}
	if venueOrderID != "" {
		order.VenueOrderID = venueOrderID
		order.TransitionTo(model.OrderOpen, order.FillSize)
		adapter.CancelOrder(ctx, venueOrderID)
		order.TransitionTo(model.OrderCanceled, order.FillSize)
		e.store.UpdateOrder(ctx, *order)
	}
}

// waitForExecution polls both orders until both report EXECUTED, a
// terminal failure status is observed on either, or pollTimeout elapses.
// On a failure status or a timeout it cancels whichever leg is still OPEN
// or PARTIALLY_FILLED; if ctx is canceled it returns false without
// canceling either leg.
func (e *Executor) waitForExecution(ctx context.Context, adapter1 common.Adapter, order1 *model.Order, adapter2 common.Adapter, order2 *model.Order) bool {
	deadline := time.Now().Add(e.pollTimeout)
	o1Filled, o2Filled := false, false

	for time.Now().Before(deadline) {
		if !o1Filled {
			if report, err := adapter1.GetOrderStatus(ctx, order1.VenueOrderID); err == nil {
				e.applyStatus(ctx, order1, report)
				if order1.Status == model.OrderExecuted {
					o1Filled = true
				}
			}
		}
		if !o2Filled {
			if report, err := adapter2.GetOrderStatus(ctx, order2.VenueOrderID); err == nil {
				e.applyStatus(ctx, order2, report)
				if order2.Status == model.OrderExecuted {
					o2Filled = true
				}
			}
		}

		if o1Filled && o2Filled {
			return true
		}

		if isDeadTerminal(order1.Status) || isDeadTerminal(order2.Status) {
			e.cancelIfOpen(ctx, adapter1, order1)
			e.cancelIfOpen(ctx, adapter2, order2)
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(e.pollInterval):
		}
	}

	e.cancelIfOpen(ctx, adapter1, order1)
	e.cancelIfOpen(ctx, adapter2, order2)
	return false
}

func isDeadTerminal(status model.OrderStatus) bool {
	return status == model.OrderCanceled || status == model.OrderFailed
}

func (e *Executor) applyStatus(ctx context.Context, order *model.Order, report common.OrderStatusReport) {
	if err := order.TransitionTo(report.Status, report.FillSize); err != nil {
		return
	}
	e.store.UpdateOrder(ctx, *order)
}

func (e *Executor) cancelIfOpen(ctx context.Context, adapter common.Adapter, order *model.Order) {
	if order.Status != model.OrderOpen && order.Status != model.OrderPartiallyFilled {
		return
	}
	adapter.CancelOrder(ctx, order.VenueOrderID)
	if err := order.TransitionTo(model.OrderCanceled, order.FillSize); err == nil {
		e.store.UpdateOrder(ctx, *order)
	}
}
