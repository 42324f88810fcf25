package polymarket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// staleAfter bounds how long a cached book is trusted before GetOrderBooks
// falls back to a direct REST fetch.
const staleAfter = 5 * time.Second

type cachedBook struct {
	book     model.OrderBook
	cachedAt time.Time
}

// bookCache holds the most recently streamed order book per market ID,
// refreshed in the background by a websocket subscription to the CLOB's
// market channel. Grounded on the teacher's
// internal/exchanges/binance.WebSocketManager (single long-lived
// connection, reconnect-with-backoff, fan the decoded message out to a
// per-symbol cache rather than a subscriber channel, since this system has
// only one consumer: the adapter's own GetOrderBooks).
type bookCache struct {
	wsURL  string
	logger *observability.Logger

	mu      sync.RWMutex
	books   map[string]cachedBook // market_id (condition id) -> book
	tokenOf map[string][2]string  // market_id -> [yes_token, no_token], populated by the caller
}

func newBookCache(wsURL string, logger *observability.Logger) *bookCache {
	return &bookCache{
		wsURL:   wsURL,
		logger:  logger,
		books:   make(map[string]cachedBook),
		tokenOf: make(map[string][2]string),
	}
}

// watch registers marketID/tokens so a future book message for
// either token gets attributed back to this market.
func (bc *bookCache) watch(marketID string, tokens [2]string) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.tokenOf[marketID] = tokens
}

func (bc *bookCache) get(marketID string) (model.OrderBook, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	c, ok := bc.books[marketID]
	if !ok || time.Since(c.cachedAt) > staleAfter {
		return model.OrderBook{}, false
	}
	return c.book, true
}

func (bc *bookCache) marketForToken(tokenID string) (string, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	for marketID, tkds := range bc.tokenOf {
		if tkds[0] == tokenID || tkds[1] == tokenID {
			return marketID, true
		}
	}
	return "", false
}

// wsBookMessage mirrors the CLOB market channel's book event
// (event_type "book").
type wsBookMessage struct {
	EventType string          `json:"event_type"`
	AssetID   string          `json:"asset_id"`
	Bids      []clobBookLevel `json:"bids"`
	Asks      []clobBookLevel `json:"asks"`
}

// run dials wsURL and processes book events until ctx is canceled. A failed
// dial is retried after a backoff that starts at one second and doubles
// after each further failure until it reaches 30s or more; when an open
// connection ends, run redials at once, and a successful dial resets the
// backoff to one second. It never
// returns an error to the caller: a broken stream only means GetOrderBooks
// falls back to REST, it does not fail the adapter.
func (bc *bookCache) run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, bc.wsURL, nil)
		if err != nil {
			bc.logger.Warn(ctx, "polymarket: book-cache websocket dial failed", map[string]interface{}{"error": err.Error()})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		bc.processConnection(ctx, conn)
		conn.Close()
	}
}

func (bc *bookCache) processConnection(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			bc.handleMessage(data)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

func (bc *bookCache) handleMessage(data []byte) {
	var msg wsBookMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.EventType != "book" {
		return
	}

	marketID, ok := bc.marketForToken(msg.AssetID)
	if !ok {
		return
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()
	tkds := bc.tokenOf[marketID]
	existing := bc.books[marketID].book
	existing.Venue = model.VenuePolymarket
	existing.MarketID = marketID
	existing.TimestampMS = time.Now().UnixMilli()
	if msg.AssetID == tkds[0] {
		existing.Yes = model.BookSide{Bid: levelsFromCLOB(msg.Bids), Ask: levelsFromCLOB(msg.Asks)}
	} else {
		existing.No = model.BookSide{Bid: levelsFromCLOB(msg.Bids), Ask: levelsFromCLOB(msg.Asks)}
	}
	bc.books[marketID] = cachedBook{book: existing, cachedAt: time.Now()}
}
