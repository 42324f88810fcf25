// Command arbitrage-finder runs the arbitrage-finder stage: consumes
// market_pairs, fetches both venues' order books, sizes both candidate
// directions, and publishes the winning opportunity to opportunities.
// Grounded on services/arbitrage_finder/main.py.
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

	"github.com/eventarb/crossvenue/internal/arbitrage"
	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/internal/logstream"
	"github.com/eventarb/crossvenue/internal/venue"
	"github.com/eventarb/crossvenue/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg.Observability.ServiceName = "arbitrage-finder"
	logger := observability.NewLogger(cfg.Observability)

	stream, err := logstream.NewClient(cfg.Redis, logger)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer stream.Close()

	adapters, err := venue.BuildAdapters(cfg, logger)
	if err != nil {
		log.Fatalf("build venue adapters: %v", err)
	}

	checker := observability.NewHealthChecker()
	checker.RegisterCheck("redis", observability.RedisHealthCheck(stream.Ping))
	healthServer := observability.NewHealthServer(checker, cfg.Observability.ServiceName)

	metrics := observability.NewMetrics()

	router := mux.NewRouter()
	healthServer.RegisterRoutes(router)
	router.Handle("/metrics", metrics.Handler())
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Observability.MetricsPort)
		if err := http.ListenAndServe(addr, router); err != nil {
			logger.Error(context.Background(), "arbitrage-finder: health/metrics server stopped", err, nil)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finder := arbitrage.NewFinder(stream, adapters, logger)
	finder.ProfitThreshold = cfg.Arbitrage.ProfitThreshold
	finder.ExpectedSlippage = cfg.Arbitrage.ExpectedSlippage
	finder.MaxTradeCost = cfg.Arbitrage.MaxTradeCost

	logger.Info(ctx, "arbitrage-finder: starting", map[string]interface{}{"interval": cfg.Polling.ArbitrageInterval.String()})
	if err := finder.Run(ctx, cfg.Polling.ArbitrageInterval); err != nil && ctx.Err() == nil {
		logger.Error(ctx, "arbitrage-finder: stopped with error", err, nil)
	}
	logger.Info(context.Background(), "arbitrage-finder: shut down gracefully")
}
