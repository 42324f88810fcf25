// Command reconciler runs the independent reconciliation loop: periodically
// refreshes every non-terminal order's status from its venue and persists
// whatever changed. Grounded on services/trade_reconciliation/main.py.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/internal/reconciler"
	"github.com/eventarb/crossvenue/internal/store"
	"github.com/eventarb/crossvenue/internal/venue"
	"github.com/eventarb/crossvenue/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg.Observability.ServiceName = "reconciler"
	logger := observability.NewLogger(cfg.Observability)

	db, err := store.New(cfg.Database, logger)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer db.Close()

	adapters, err := venue.BuildAdapters(cfg, logger)
	if err != nil {
		log.Fatalf("build venue adapters: %v", err)
	}

	checker := observability.NewHealthChecker()
	checker.RegisterCheck("database", observability.DatabaseHealthCheck(db.Ping))
	healthServer := observability.NewHealthServer(checker, cfg.Observability.ServiceName)

	metrics := observability.NewMetrics()

	router := mux.NewRouter()
	healthServer.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Observability.MetricsPort)
		if err := http.ListenAndServe(addr, router); err != nil {
			logger.Error(context.Background(), "reconciler: health/metrics server stopped", err, nil)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := reconciler.New(db, adapters, logger)
	logger.Info(ctx, "reconciler: starting", map[string]interface{}{"interval": cfg.Polling.ReconciliationInterval.String()})
	if err := r.Run(ctx, cfg.Polling.ReconciliationInterval); err != nil && ctx.Err() == nil {
		logger.Error(ctx, "reconciler: stopped with error", err, nil)
	}
	logger.Info(context.Background(), "reconciler: shut down gracefully")
}
