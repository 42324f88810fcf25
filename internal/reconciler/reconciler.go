// Package reconciler implements the independent reconciliation loop:
// periodically scan every non-terminal order, refresh its status from the
// venue that owns it, and persist whatever changed. It never cancels an
// order — that only happens inside the executor (the placed leg of a chunk
// whose other leg failed to place, and at the chunk barrier). Grounded
// on services/trade_reconciliation/main.py's TradeReconciliationService.
package reconciler

import (
	"context"
	"time"

	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// reconcilerStore is the subset of *store.Store a sweep needs, carved out
// the same way executor.orderStore stands in for its own store dependency:
// tests drive a full sweep against an in-memory fake instead of a real
// Postgres connection. *store.Store satisfies this interface unmodified.
type reconcilerStore interface {
	NonTerminalOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrder(ctx context.Context, o model.Order) error
	InsertTrades(ctx context.Context, trades []model.Trade) error
}

// Reconciler owns one sweep cycle.
type Reconciler struct {
	store    reconcilerStore
	adapters map[model.Venue]common.Adapter
	logger   *observability.Logger
}

func New(s reconcilerStore, adapters map[model.Venue]common.Adapter, logger *observability.Logger) *Reconciler {
	return &Reconciler{store: s, adapters: adapters, logger: logger}
}

// Run blocks, sweeping on interval until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Reconciler) sweepOnce(ctx context.Context) {
	start := time.Now()
	orders, err := r.store.NonTerminalOrders(ctx)
	if err != nil {
		r.logger.Error(ctx, "reconciler: failed to list non-terminal orders", err, nil)
		return
	}
	if len(orders) == 0 {
		r.logger.LogOutcome(ctx, "reconciler", "-", "no_unsettled_orders", time.Since(start))
		return
	}

	for _, order := range orders {
		r.reconcileOne(ctx, order)
	}
	r.logger.LogOutcome(ctx, "reconciler", "-", "swept", time.Since(start), map[string]interface{}{"count": len(orders)})
}

func (r *Reconciler) reconcileOne(ctx context.Context, order model.Order) {
	adapter, ok := r.adapters[order.Venue]
	if !ok {
		r.logger.Warn(ctx, "reconciler: no adapter for venue", map[string]interface{}{"venue": order.Venue, "order_id": order.ID})
		return
	}

	report, err := adapter.GetOrderStatus(ctx, order.VenueOrderID)
	if err != nil {
		r.logger.Error(ctx, "reconciler: get_order_status failed", err, map[string]interface{}{"order_id": order.ID})
		return
	}

	if err := order.TransitionTo(report.Status, report.FillSize); err != nil {
		r.logger.Warn(ctx, "reconciler: ignoring illegal transition reported by venue", map[string]interface{}{"order_id": order.ID, "error": err.Error()})
		return
	}

	if err := r.store.UpdateOrder(ctx, order); err != nil {
		r.logger.Error(ctx, "reconciler: persist order update failed", err, map[string]interface{}{"order_id": order.ID})
		return
	}

	if len(report.Trades) > 0 {
		for i := range report.Trades {
			report.Trades[i].OrderID = order.ID
		}
		if err := r.store.InsertTrades(ctx, report.Trades); err != nil {
			r.logger.Error(ctx, "reconciler: persist trades failed", err, map[string]interface{}{"order_id": order.ID})
		}
	}
}
