// Package polymarket implements common.Adapter against Polymarket's Gamma
// (market metadata) and CLOB (orderbook/order) REST APIs, grounded on
// backend/platform/PolyMarketPlatform.py for endpoint shapes and price/size
// scaling, and on 0xtitan6-polymarket-mm's Auth for EIP-712 order signing
// and L2 HMAC request headers (auth.go in this package).
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventarb/crossvenue/internal/model"
	"github.com/eventarb/crossvenue/internal/venue/common"
	"github.com/eventarb/crossvenue/internal/verror"
	"github.com/eventarb/crossvenue/pkg/observability"
)

// Config holds everything the client needs to talk to Polymarket.
type Config struct {
	ClobBaseURL  string
	GammaBaseURL string
	WSBaseURL    string
	PrivateKey   string
	Funder       string
	ChainID      int64
	Credentials  Credentials
	Timeout      time.Duration
}

// Client implements common.Adapter for Polymarket.
type Client struct {
	logger     *observability.Logger
	config     Config
	httpClient *http.Client
	auth       *Auth
	cache      *bookCache

	mu         sync.Mutex
	tokenCache map[string][2]string // market_id (condition id) -> [yes_token, no_token]
}

func NewClient(logger *observability.Logger, cfg Config) (*Client, error) {
	if cfg.ClobBaseURL == "" {
		cfg.ClobBaseURL = "https://clob.polymarket.com"
	}
	if cfg.GammaBaseURL == "" {
		cfg.GammaBaseURL = "https://gamma-api.polymarket.com"
	}
	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	auth, err := NewAuth(cfg.PrivateKey, cfg.Funder, cfg.ChainID, cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("polymarket: %w", err)
	}

	c := &Client{
		logger:     logger,
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		auth:       auth,
		cache:      newBookCache(cfg.WSBaseURL, logger),
		tokenCache: make(map[string][2]string),
	}
	go c.cache.run(context.Background())
	return c, nil
}

func (c *Client) Venue() model.Venue { return model.VenuePolymarket }

func (c *Client) getJSON(ctx context.Context, fullURL string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return 0, verror.New(verror.Unexpected, "polymarket.getJSON", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, verror.New(verror.Transient, "polymarket.getJSON", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, verror.New(verror.Transient, "polymarket.getJSON", err)
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, verror.New(verror.VenueRejection, "polymarket.getJSON", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, verror.New(verror.SchemaDecode, "polymarket.getJSON", err)
		}
	}
	return resp.StatusCode, nil
}

type gammaMarket struct {
	ConditionID    string `json:"conditionId"`
	Question       string `json:"question"`
	Description    string `json:"description"`
	EndDate        string `json:"endDate"`
	EndDateISO     string `json:"endDateIso"`
	ClobTokenIDsRaw string `json:"clobTokenIds"`
}

func (m gammaMarket) tokenIDs() ([2]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDsRaw), &ids); err != nil || len(ids) < 2 {
		return [2]string{}, fmt.Errorf("malformed clobTokenIds for %s", m.ConditionID)
	}
	return [2]string{ids[0], ids[1]}, nil
}

// FindNewMarkets pages through the Gamma API's open/active market listing.
// cursor is the page offset stringified, since Gamma paginates by offset
// rather than an opaque token.
func (c *Client) FindNewMarkets(ctx context.Context, cursor string) ([]model.Market, string, error) {
	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}
	fullURL := fmt.Sprintf("%s/markets?order=id&closed=false&active=true&ascending=false&limit=500&offset=%d", c.config.GammaBaseURL, offset)

	var raw []gammaMarket
	if _, err := c.getJSON(ctx, fullURL, &raw); err != nil {
		return nil, cursor, err
	}

	markets := make([]model.Market, 0, len(raw))
	for _, m := range raw {
		if m.EndDateISO == "" {
			continue
		}
		markets = append(markets, toModelMarket(m))
	}
	return markets, strconv.Itoa(offset + 500), nil
}

func toModelMarket(m gammaMarket) model.Market {
	var closeTS int64
	if t, err := time.Parse("2006-01-02T15:04:05Z", m.EndDate); err == nil {
		closeTS = t.Unix()
	}
	return model.Market{
		Venue:          model.VenuePolymarket,
		MarketID:       m.ConditionID,
		Name:           m.Question,
		Rules:          m.Description,
		CloseTimestamp: closeTS,
	}
}

// GetMarkets looks up markets by condition ID, scanning Gamma's listing
// page by page until every requested ID is found, mirroring
// PolyMarketPlatform.py's get_markets.
func (c *Client) GetMarkets(ctx context.Context, marketIDs []string) ([]model.Market, error) {
	want := make(map[string]bool, len(marketIDs))
	for _, id := range marketIDs {
		want[id] = true
	}

	var found []model.Market
	seen := make(map[string]bool)
	offset := 0
	for len(seen) < len(want) {
		fullURL := fmt.Sprintf("%s/markets?order=id&closed=false&active=true&ascending=false&limit=500&offset=%d", c.config.GammaBaseURL, offset)
		var raw []gammaMarket
		if _, err := c.getJSON(ctx, fullURL, &raw); err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			break
		}
		for _, m := range raw {
			if want[m.ConditionID] && !seen[m.ConditionID] {
				found = append(found, toModelMarket(m))
				seen[m.ConditionID] = true
				if tkds, err := m.tokenIDs(); err == nil {
					c.mu.Lock()
					c.tokenCache[m.ConditionID] = tkds
					c.mu.Unlock()
				}
			}
		}
		offset += 500
	}
	return found, nil
}

func (c *Client) tokenIDsFor(ctx context.Context, marketID string) ([2]string, error) {
	c.mu.Lock()
	tkds, ok := c.tokenCache[marketID]
	c.mu.Unlock()
	if ok {
		c.cache.watch(marketID, tkds)
		return tkds, nil
	}
	if _, err := c.GetMarkets(ctx, []string{marketID}); err != nil {
		return [2]string{}, err
	}
	c.mu.Lock()
	tkds, ok = c.tokenCache[marketID]
	c.mu.Unlock()
	if !ok {
		return [2]string{}, verror.New(verror.SchemaDecode, "tokenIDsFor", fmt.Errorf("no clob token ids for %s", marketID))
	}
	c.cache.watch(marketID, tkds)
	return tkds, nil
}

type clobBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type clobBook struct {
	Bids []clobBookLevel `json:"bids"`
	Asks []clobBookLevel `json:"asks"`
}

func levelsFromCLOB(levels []clobBookLevel) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(levels))
	for _, l := range levels {
		price, err1 := decimal.NewFromString(l.Price)
		size, err2 := decimal.NewFromString(l.Size)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, model.PriceLevel{Price: price.Shift(3).IntPart(), Quantity: size.Shift(2).IntPart()})
	}
	return out
}

// GetOrderBooks serves each market's book from the websocket-fed cache when
// it is fresh, falling back to a direct CLOB REST fetch on a cache miss or
// stale entry. Polymarket exposes real two-sided YES and NO books, unlike
// Kalshi, so no bid-to-ask mirroring is needed either way.
func (c *Client) GetOrderBooks(ctx context.Context, marketIDs []string) ([]model.OrderBook, error) {
	books := make([]model.OrderBook, 0, len(marketIDs))
	for _, marketID := range marketIDs {
		tkds, err := c.tokenIDsFor(ctx, marketID)
		if err != nil {
			return nil, err
		}

		if book, ok := c.cache.get(marketID); ok {
			books = append(books, book)
			continue
		}

		var yesBook, noBook clobBook
		if _, err := c.getJSON(ctx, fmt.Sprintf("%s/book?token_id=%s", c.config.ClobBaseURL, url.QueryEscape(tkds[0])), &yesBook); err != nil {
			return nil, err
		}
		if _, err := c.getJSON(ctx, fmt.Sprintf("%s/book?token_id=%s", c.config.ClobBaseURL, url.QueryEscape(tkds[1])), &noBook); err != nil {
			return nil, err
		}

		books = append(books, model.OrderBook{
			Venue:       model.VenuePolymarket,
			MarketID:    marketID,
			TimestampMS: time.Now().UnixMilli(),
			Yes:         model.BookSide{Bid: levelsFromCLOB(yesBook.Bids), Ask: levelsFromCLOB(yesBook.Asks)},
			No:          model.BookSide{Bid: levelsFromCLOB(noBook.Bids), Ask: levelsFromCLOB(noBook.Asks)},
		})
	}
	return books, nil
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

// GetBalance returns available USDC collateral balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	path := "/balance"
	headers, err := c.auth.l2Headers(http.MethodGet, path, "")
	if err != nil {
		return decimal.Zero, verror.New(verror.Unexpected, "GetBalance", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ClobBaseURL+path, nil)
	if err != nil {
		return decimal.Zero, verror.New(verror.Unexpected, "GetBalance", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, verror.New(verror.Transient, "GetBalance", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, verror.New(verror.VenueRejection, "GetBalance", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var parsed balanceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, verror.New(verror.SchemaDecode, "GetBalance", err)
	}
	bal, err := decimal.NewFromString(parsed.Balance)
	if err != nil {
		return decimal.Zero, verror.New(verror.SchemaDecode, "GetBalance", err)
	}
	return bal, nil
}

type postOrderResponse struct {
	Order struct {
		ID string `json:"id"`
	} `json:"order"`
}

// PlaceOrder signs and submits a CTF Exchange order. Price converts
// tenths-of-cent back into Polymarket's native [0,1] decimal price;
// quantity converts lots back into native share units.
func (c *Client) PlaceOrder(ctx context.Context, order model.Order) (string, error) {
	tkds, err := c.tokenIDsFor(ctx, order.MarketID)
	if err != nil {
		return "", err
	}
	tokenID := tkds[0]
	if order.Side == model.SideNo {
		tokenID = tkds[1]
	}

	price := float64(order.Price) / 1000.0
	if order.OrderType == model.OrderTypeMarket {
		price = float64(order.MaxPrice) / 1000.0
	}
	shares := decimal.New(order.Size, -2) // lots -> native shares
	makerAmount := shares.Mul(decimal.NewFromFloat(price)).Shift(6).BigInt()  // USDC has 6 decimals
	takerAmount := shares.Shift(6).BigInt()

	side := 0 // BUY
	signed, err := c.auth.signOrder(tokenID, makerAmount, takerAmount, side, time.Now().UnixNano())
	if err != nil {
		return "", verror.New(verror.Unexpected, "PlaceOrder", err)
	}

	payload := map[string]interface{}{
		"order":     signed,
		"owner":     c.auth.creds.APIKey,
		"orderType": clobOrderType(order.TimeInForce),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", verror.New(verror.Unexpected, "PlaceOrder", err)
	}

	path := "/order"
	headers, err := c.auth.l2Headers(http.MethodPost, path, string(data))
	if err != nil {
		return "", verror.New(verror.Unexpected, "PlaceOrder", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ClobBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return "", verror.New(verror.Unexpected, "PlaceOrder", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", verror.New(verror.Transient, "PlaceOrder", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", verror.New(verror.VenueRejection, "PlaceOrder", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var parsed postOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", verror.New(verror.SchemaDecode, "PlaceOrder", err)
	}
	return parsed.Order.ID, nil
}

func clobOrderType(tif model.TimeInForce) string {
	switch tif {
	case model.TIFFOK, model.TIFIOC:
		return "FOK"
	default:
		return "GTC"
	}
}

// CancelOrder requests cancellation of venueOrderID.
func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	path := "/order"
	payload := map[string]string{"orderID": venueOrderID}
	data, _ := json.Marshal(payload)

	headers, err := c.auth.l2Headers(http.MethodDelete, path, string(data))
	if err != nil {
		return verror.New(verror.Unexpected, "CancelOrder", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.ClobBaseURL+path, bytes.NewReader(data))
	if err != nil {
		return verror.New(verror.Unexpected, "CancelOrder", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return verror.New(verror.Transient, "CancelOrder", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return verror.New(verror.VenueRejection, "CancelOrder", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
	return nil
}

type getOrderResponse struct {
	Status      string `json:"status"`
	SizeMatched string `json:"size_matched"`
}

var polymarketStatusMap = map[string]model.OrderStatus{
	"open":             model.OrderOpen,
	"filled":           model.OrderExecuted,
	"cancelled":        model.OrderCanceled,
	"partially_filled": model.OrderPartiallyFilled,
}

// GetOrderStatus returns the current status and filled size, converting
// size_matched's native share units back into lots.
func (c *Client) GetOrderStatus(ctx context.Context, venueOrderID string) (common.OrderStatusReport, error) {
	path := "/data/order/" + url.PathEscape(venueOrderID)
	headers, err := c.auth.l2Headers(http.MethodGet, path, "")
	if err != nil {
		return common.OrderStatusReport{}, verror.New(verror.Unexpected, "GetOrderStatus", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.ClobBaseURL+path, nil)
	if err != nil {
		return common.OrderStatusReport{}, verror.New(verror.Unexpected, "GetOrderStatus", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.OrderStatusReport{}, verror.New(verror.Transient, "GetOrderStatus", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return common.OrderStatusReport{}, verror.New(verror.VenueRejection, "GetOrderStatus", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var parsed getOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return common.OrderStatusReport{}, verror.New(verror.SchemaDecode, "GetOrderStatus", err)
	}

	mapped, ok := polymarketStatusMap[strings.ToLower(parsed.Status)]
	if !ok {
		mapped = model.OrderOpen
	}
	matched, _ := decimal.NewFromString(parsed.SizeMatched)
	return common.OrderStatusReport{Status: mapped, FillSize: matched.Shift(2).IntPart()}, nil
}
