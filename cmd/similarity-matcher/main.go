// Command similarity-matcher runs the similarity-matcher stage: consumes
// market_events, indexes and queries for cross-venue candidates, confirms
// identity via a judge, and publishes confirmed pairs to market_pairs.
// Grounded on services/market_similarity/main.py.
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
	"github.com/eventarb/crossvenue/internal/similarity"
	"github.com/eventarb/crossvenue/internal/similarity/cosine"
	"github.com/eventarb/crossvenue/internal/store"
	"github.com/eventarb/crossvenue/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg.Observability.ServiceName = "similarity-matcher"
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

	index := cosine.NewInMemoryIndex()

	var judge similarity.Judge
	if cfg.OpenAI.APIKey != "" {
		judge = similarity.NewOpenAIJudge("", cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	} else {
		judge = similarity.StubJudge{Verdict: false}
		logger.Warn(context.Background(), "similarity-matcher: no OPENAI_API_KEY set, running with a fail-closed stub judge", nil)
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
			logger.Error(context.Background(), "similarity-matcher: health/metrics server stopped", err, nil)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	matcher := similarity.NewMatcher(stream, db, index, judge, logger)
	logger.Info(ctx, "similarity-matcher: starting", map[string]interface{}{"interval": cfg.Polling.SimilarityInterval.String()})
	if err := matcher.Run(ctx, cfg.Polling.SimilarityInterval); err != nil && ctx.Err() == nil {
		logger.Error(ctx, "similarity-matcher: stopped with error", err, nil)
	}
	logger.Info(context.Background(), "similarity-matcher: shut down gracefully")
}
