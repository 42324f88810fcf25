// Package logstream wraps redis.Client's stream commands (XADD,
// XGROUP CREATE, XREADGROUP, XACK) into the four operations every stage of
// the pipeline needs, mirroring cache/RedisManager.py's shape: append never
// blocks the caller on a transient Redis error, group creation is
// idempotent, and reads only ever see this consumer's undelivered entries.
package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// Stream names, shared by every stage binary that reads or writes them.
const (
	MarketEventsStream       = "market_events_stream"
	SimilarPairsStream       = "similar_market_pairs_stream"
	ArbitrageOpportunities   = "arbitrage_opportunities_stream"
)

// Record is one entry read back from a stream: an opaque message ID plus its
// field map, still JSON-encoded under the "payload" field.
type Record struct {
	ID      string
	Payload []byte
}

// Client is a thin wrapper over redis.Client scoped to stream operations.
type Client struct {
	rdb    *redis.Client
	logger *observability.Logger
}

// NewClient builds a redis.Client from cfg using the same pool-tuning knobs
// as the rest of this codebase's Redis consumers, then verifies
// connectivity with a bounded ping.
func NewClient(cfg config.RedisConfig, logger *observability.Logger) (*Client, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.PoolTimeout = cfg.PoolTimeout
	opt.MaxRetries = cfg.MaxRetries
	opt.MinRetryBackoff = cfg.MinRetryBackoff
	opt.MaxRetryBackoff = cfg.MaxRetryBackoff

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{rdb: rdb, logger: logger}, nil
}

// Ping is exposed directly for the /healthz redis check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Append XADDs payload, JSON-marshaled, to stream. A failure here is logged
// and swallowed rather than returned: whatever the caller already persisted
// is unaffected, but the record is not appended, Append does not retry, and
// the downstream stage only sees it if the caller appends it again. This
// mirrors add_to_stream's catch-and-log.
func (c *Client) Append(ctx context.Context, stream string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error(ctx, "logstream: marshal payload", err, map[string]interface{}{"stream": stream})
		return
	}
	err = c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"payload": string(data)},
	}).Err()
	if err != nil {
		c.logger.Error(ctx, "logstream: xadd failed", err, map[string]interface{}{"stream": stream})
	}
}

// EnsureGroup creates group on stream starting from the beginning of
// history ("0"), creating the stream itself if absent. BUSYGROUP is treated
// as success since the group already existing is the expected steady-state
// case on every restart.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ConsumerName derives a stable-per-process consumer identity from the
// hostname, so two replicas of the same stage binary never collide on the
// same consumer name inside a group.
func ConsumerName(prefix string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", prefix, host)
}

// ErrNoMessages is returned by Read when the block window elapsed with
// nothing new delivered to this consumer.
var ErrNoMessages = errors.New("logstream: no messages")

// Read blocks up to block waiting for up to count new (">") entries
// delivered to consumer within group on stream. A Redis error is logged and
// reported as ErrNoMessages so the caller's poll loop treats it the same as
// an empty read and simply retries next tick.
func (c *Client) Read(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]Record, error) {
	res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoMessages
		}
		c.logger.Error(ctx, "logstream: xreadgroup failed", err, map[string]interface{}{"stream": stream, "group": group})
		return nil, ErrNoMessages
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, ErrNoMessages
	}

	records := make([]Record, 0, len(res[0].Messages))
	for _, msg := range res[0].Messages {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			c.logger.Warn(ctx, "logstream: message missing payload field", map[string]interface{}{"id": msg.ID, "stream": stream})
			continue
		}
		records = append(records, Record{ID: msg.ID, Payload: []byte(raw)})
	}
	return records, nil
}

// Ack XACKs id within group on stream. Like Append, failures are logged,
// not propagated: at worst the message is redelivered and the stage's
// processing must already be idempotent to tolerate that.
func (c *Client) Ack(ctx context.Context, stream, group, id string) {
	if err := c.rdb.XAck(ctx, stream, group, id).Err(); err != nil {
		c.logger.Error(ctx, "logstream: xack failed", err, map[string]interface{}{"stream": stream, "group": group, "id": id})
	}
}
