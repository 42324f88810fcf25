// Package store persists markets, pairs, order books, orders, and trades to
// Postgres via database/sql and github.com/lib/pq, grounded on the
// teacher's pkg/database.DB wrapper (connection-pool configuration,
// structured-logger-wrapped queries) trimmed of its generic query cache and
// read-replica routing: order/market persistence here is small,
// write-heavy traffic that a query cache would not help.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/eventarb/crossvenue/internal/config"
	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/verror"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// schemaSQL is the DDL applied against a fresh database by deployment
// tooling and by this package's own integration test; Store itself never
// executes it outside of tests.
//
//go:embed schema.sql
var schemaSQL string

// Store wraps *sql.DB with the operations every stage needs.
type Store struct {
	db           *sql.DB
	logger       *observability.Logger
	queryTimeout time.Duration
}

// New opens a Postgres connection pool sized per cfg and verifies
// connectivity with a bounded ping, mirroring NewPostgresDB's shape.
func New(cfg config.DatabaseConfig, logger *observability.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db, logger: logger, queryTimeout: cfg.QueryTimeout}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), which this package treats as a successful idempotent
// insert rather than an error, per the "duplicate means already done"
// design for PersistenceConflict.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// UpsertMarket inserts market, or updates its mutable fields if the
// (venue, market_id) pair already exists.
func (s *Store) UpsertMarket(ctx context.Context, m model.Market) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO markets (venue, market_id, name, rules, close_timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (venue, market_id) DO UPDATE
		SET name = EXCLUDED.name, rules = EXCLUDED.rules, close_timestamp = EXCLUDED.close_timestamp
	`, string(m.Venue), m.MarketID, m.Name, m.Rules, m.CloseTimestamp)
	if err != nil {
		return verror.New(verror.Unexpected, "UpsertMarket", err)
	}
	return nil
}

// MarketsExist reports which of the given keys already have a row.
func (s *Store) MarketsExist(ctx context.Context, keys []model.MarketKey) (map[model.MarketKey]bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	exists := make(map[model.MarketKey]bool, len(keys))
	for _, k := range keys {
		var found bool
		err := s.db.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM markets WHERE venue = $1 AND market_id = $2)
		`, string(k.Venue), k.MarketID).Scan(&found)
		if err != nil {
			return nil, verror.New(verror.Unexpected, "MarketsExist", err)
		}
		exists[k] = found
	}
	return exists, nil
}

// GetMarkets returns every known market, optionally filtered to venue if
// venue is non-empty.
func (s *Store) GetMarkets(ctx context.Context, venue model.Venue) ([]model.Market, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	query := `SELECT venue, market_id, name, rules, close_timestamp FROM markets`
	args := []interface{}{}
	if venue != "" {
		query += ` WHERE venue = $1`
		args = append(args, string(venue))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, verror.New(verror.Unexpected, "GetMarkets", err)
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var m model.Market
		var venueStr string
		if err := rows.Scan(&venueStr, &m.MarketID, &m.Name, &m.Rules, &m.CloseTimestamp); err != nil {
			return nil, verror.New(verror.Unexpected, "GetMarkets", err)
		}
		m.Venue = model.Venue(venueStr)
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// InsertPairIgnore records pair as a discovered similar-market pair. A
// unique-constraint violation (the pair was already recorded, in either
// canonical order) is treated as success.
func (s *Store) InsertPairIgnore(ctx context.Context, pair model.Pair) error {
	pair = model.Canonicalize(pair.Market1, pair.Market2)
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_pairs (venue_1, market_id_1, venue_2, market_id_2)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, string(pair.Market1.Venue), pair.Market1.MarketID, string(pair.Market2.Venue), pair.Market2.MarketID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return verror.New(verror.Unexpected, "InsertPairIgnore", err)
	}
	return nil
}

// ListPairs returns every recorded market pair.
func (s *Store) ListPairs(ctx context.Context) ([]model.Pair, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT venue_1, market_id_1, venue_2, market_id_2 FROM market_pairs`)
	if err != nil {
		return nil, verror.New(verror.Unexpected, "ListPairs", err)
	}
	defer rows.Close()

	var pairs []model.Pair
	for rows.Next() {
		var p model.Pair
		var v1, v2 string
		if err := rows.Scan(&v1, &p.Market1.MarketID, &v2, &p.Market2.MarketID); err != nil {
			return nil, verror.New(verror.Unexpected, "ListPairs", err)
		}
		p.Market1.Venue, p.Market2.Venue = model.Venue(v1), model.Venue(v2)
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// GetCanonicalPair looks up the stored pair matching the canonical ordering
// of a and b, returning sql.ErrNoRows if none is recorded.
func (s *Store) GetCanonicalPair(ctx context.Context, a, b model.MarketKey) (model.Pair, error) {
	pair := model.Canonicalize(a, b)
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM market_pairs WHERE venue_1=$1 AND market_id_1=$2 AND venue_2=$3 AND market_id_2=$4)
	`, string(pair.Market1.Venue), pair.Market1.MarketID, string(pair.Market2.Venue), pair.Market2.MarketID).Scan(&exists)
	if err != nil {
		return model.Pair{}, verror.New(verror.Unexpected, "GetCanonicalPair", err)
	}
	if !exists {
		return model.Pair{}, sql.ErrNoRows
	}
	return pair, nil
}

// InsertOrderBooks records an audit snapshot of books. No stage in this
// repository calls it, and nothing reads the table back through Store.
func (s *Store) InsertOrderBooks(ctx context.Context, books []model.OrderBook) error {
	if len(books) == 0 {
		return nil
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return verror.New(verror.Unexpected, "InsertOrderBooks", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO order_book_snapshots (venue, market_id, timestamp_ms, side, price, quantity, is_bid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return verror.New(verror.Unexpected, "InsertOrderBooks", err)
	}
	defer stmt.Close()

	for _, b := range books {
		for _, lvl := range b.Yes.Bid {
			if _, err := stmt.ExecContext(ctx, string(b.Venue), b.MarketID, b.TimestampMS, "yes", lvl.Price, lvl.Quantity, true); err != nil {
				return verror.New(verror.Unexpected, "InsertOrderBooks", err)
			}
		}
		for _, lvl := range b.Yes.Ask {
			if _, err := stmt.ExecContext(ctx, string(b.Venue), b.MarketID, b.TimestampMS, "yes", lvl.Price, lvl.Quantity, false); err != nil {
				return verror.New(verror.Unexpected, "InsertOrderBooks", err)
			}
		}
		for _, lvl := range b.No.Bid {
			if _, err := stmt.ExecContext(ctx, string(b.Venue), b.MarketID, b.TimestampMS, "no", lvl.Price, lvl.Quantity, true); err != nil {
				return verror.New(verror.Unexpected, "InsertOrderBooks", err)
			}
		}
		for _, lvl := range b.No.Ask {
			if _, err := stmt.ExecContext(ctx, string(b.Venue), b.MarketID, b.TimestampMS, "no", lvl.Price, lvl.Quantity, false); err != nil {
				return verror.New(verror.Unexpected, "InsertOrderBooks", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return verror.New(verror.Unexpected, "InsertOrderBooks", err)
	}
	return nil
}

// InsertOrder inserts order and sets its ID to the generated primary key. A
// duplicate client_order_id (the executor retried a chunk it already
// placed) is reported via verror.PersistenceConflict so the caller can
// treat it as "already placed" instead of failing the chunk.
func (s *Store) InsertOrder(ctx context.Context, o *model.Order) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (client_order_id, venue, market_id, side, action, order_type, time_in_force, size, price, max_price, venue_order_id, status, fill_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, o.ClientOrderID, string(o.Venue), o.MarketID, string(o.Side), string(o.Action), string(o.OrderType),
		string(o.TimeInForce), o.Size, o.Price, o.MaxPrice, o.VenueOrderID, string(o.Status), o.FillSize,
	).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return verror.New(verror.PersistenceConflict, "InsertOrder", err)
		}
		return verror.New(verror.Unexpected, "InsertOrder", err)
	}
	return nil
}

// UpdateOrder persists o's current status/fill_size/venue_order_id.
func (s *Store) UpdateOrder(ctx context.Context, o model.Order) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, fill_size = $2, venue_order_id = $3 WHERE id = $4
	`, string(o.Status), o.FillSize, o.VenueOrderID, o.ID)
	if err != nil {
		return verror.New(verror.Unexpected, "UpdateOrder", err)
	}
	return nil
}

// NonTerminalOrders returns every order not in a terminal status, for the
// reconciler's sweep.
func (s *Store) NonTerminalOrders(ctx context.Context) ([]model.Order, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_order_id, venue, market_id, side, action, order_type, time_in_force, size, price, max_price, venue_order_id, status, fill_size
		FROM orders
		WHERE status NOT IN ('EXECUTED', 'CANCELED', 'FAILED')
	`)
	if err != nil {
		return nil, verror.New(verror.Unexpected, "NonTerminalOrders", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var venue, side, action, orderType, tif, status string
		if err := rows.Scan(&o.ID, &o.ClientOrderID, &venue, &o.MarketID, &side, &action, &orderType, &tif,
			&o.Size, &o.Price, &o.MaxPrice, &o.VenueOrderID, &status, &o.FillSize); err != nil {
			return nil, verror.New(verror.Unexpected, "NonTerminalOrders", err)
		}
		o.Venue, o.Side, o.Action, o.OrderType, o.TimeInForce, o.Status =
			model.Venue(venue), model.Side(side), model.Action(action), model.OrderType(orderType), model.TimeInForce(tif), model.OrderStatus(status)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// InsertTrades appends trades as fill receipts. Duplicate venue_trade_id is
// swallowed: the reconciler may observe the same fill across two sweeps.
func (s *Store) InsertTrades(ctx context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return verror.New(verror.Unexpected, "InsertTrades", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (order_id, venue_trade_id, quantity, price, executed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (venue_trade_id) DO NOTHING
	`)
	if err != nil {
		return verror.New(verror.Unexpected, "InsertTrades", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx, t.OrderID, t.VenueTradeID, t.Quantity, t.Price, t.ExecutedAt); err != nil {
			return verror.New(verror.Unexpected, "InsertTrades", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return verror.New(verror.Unexpected, "InsertTrades", err)
	}
	return nil
}
