//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/internal/logstream"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// TestStoreAndLogstreamIntegration exercises Store and logstream.Client
// against real Postgres and Redis containers: ingest a market, persist a
// pair, append the corresponding stream record, and read it back through a
// consumer group exactly the way market-poller and similarity-matcher do in
// production.
func TestStoreAndLogstreamIntegration(t *testing.T) {
	ctx := context.Background()
	logger := observability.NewLogger(config.ObservabilityConfig{ServiceName: "integration-test", LogLevel: "error", LogFormat: "text"})

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "crossvenue_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: pgReq, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgHost, err := pgC.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/crossvenue_test?sslmode=disable", pgHost, pgPort.Port())

	redisReq := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: redisReq, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisC.Terminate(ctx) })

	redisHost, err := redisC.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	db, err := New(config.DatabaseConfig{
		URL:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Minute,
		QueryTimeout:    5 * time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.db.ExecContext(ctx, schemaSQL)
	require.NoError(t, err)

	stream, err := logstream.NewClient(config.RedisConfig{
		URL:             fmt.Sprintf("redis://%s:%s/0", redisHost, redisPort.Port()),
		PoolSize:        5,
		MinIdleConns:    1,
		PoolTimeout:     5 * time.Second,
		MaxRetries:      2,
		MinRetryBackoff: 10 * time.Millisecond,
		MaxRetryBackoff: 100 * time.Millisecond,
		ReadBlock:       2 * time.Second,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })

	kalshiMarket := model.Market{Venue: model.VenueKalshi, MarketID: "FED-MAR26", Name: "Fed cuts rates in March 2026", Rules: "Resolves YES if FOMC cuts.", CloseTimestamp: 1780000000}
	polyMarket := model.Market{Venue: model.VenuePolymarket, MarketID: "fed-cut-mar-2026", Name: "Will the Fed cut rates in March 2026?", Rules: "Resolves YES if FOMC cuts.", CloseTimestamp: 1780000000}

	require.NoError(t, db.UpsertMarket(ctx, kalshiMarket))
	require.NoError(t, db.UpsertMarket(ctx, polyMarket))

	stored, err := db.GetMarkets(ctx, "")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	pair := model.Canonicalize(kalshiMarket.Key(), polyMarket.Key())
	require.NoError(t, db.InsertPairIgnore(ctx, pair))
	require.NoError(t, db.InsertPairIgnore(ctx, pair), "inserting the same pair twice must be idempotent")

	pairs, err := db.ListPairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	const group = "integration_test_group"
	require.NoError(t, stream.EnsureGroup(ctx, logstream.MarketEventsStream, group))
	require.NoError(t, stream.EnsureGroup(ctx, logstream.MarketEventsStream, group), "group creation must tolerate BUSYGROUP")

	stream.Append(ctx, logstream.MarketEventsStream, kalshiMarket)

	records, err := stream.Read(ctx, logstream.MarketEventsStream, group, "integration-consumer", 10, 3*time.Second)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Contains(t, string(records[0].Payload), kalshiMarket.MarketID)

	stream.Ack(ctx, logstream.MarketEventsStream, group, records[0].ID)

	_, err = stream.Read(ctx, logstream.MarketEventsStream, group, "integration-consumer", 10, 500*time.Millisecond)
	require.ErrorIs(t, err, logstream.ErrNoMessages, "acked record must not be redelivered")
}
