// Command market-poller runs the market-poller stage: periodically asks
// every configured venue adapter for its live markets and publishes each to
// market_events. Grounded on services/market_poller/main.py.
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
	"github.com/eventarb/crossvenue/internal/logstream"
	"github.com/eventarb/crossvenue/internal/poller"
	"github.com/eventarb/crossvenue/internal/store"
	"github.com/eventarb/crossvenue/internal/venue"
	"github.com/eventarb/crossvenue/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg.Observability.ServiceName = "market-poller"
	logger := observability.NewLogger(cfg.Observability)

	stream, err := logstream.NewClient(cfg.Redis, logger)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer stream.Close()

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
	checker.RegisterCheck("redis", observability.RedisHealthCheck(stream.Ping))
	checker.RegisterCheck("database", observability.DatabaseHealthCheck(db.Ping))
	healthServer := observability.NewHealthServer(checker, cfg.Observability.ServiceName)

	metrics := observability.NewMetrics()

	router := mux.NewRouter()
	healthServer.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Observability.MetricsPort)
		if err := http.ListenAndServe(addr, router); err != nil {
			logger.Error(context.Background(), "market-poller: health/metrics server stopped", err, nil)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := poller.New(stream, db, adapters, logger)
	logger.Info(ctx, "market-poller: starting", map[string]interface{}{"interval": cfg.Polling.MarketPollerInterval.String()})
	if err := p.Run(ctx, cfg.Polling.MarketPollerInterval); err != nil && ctx.Err() == nil {
		logger.Error(ctx, "market-poller: stopped with error", err, nil)
	}
	logger.Info(context.Background(), "market-poller: shut down gracefully")
}
