// Package pricing looks up historical fiat quotes from a CoinGecko-compatible
// API.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"taxbridge/internal/cache"
	"taxbridge/internal/core"
	"taxbridge/internal/log"
	"taxbridge/internal/valuation"
)

const (
	DefaultBaseURL = "https://api.coingecko.com"
	DefaultCoin    = "ethereum"
	DefaultFiat    = "usd"

	serviceName  = "pricing"
	apiKeyHeader = "x-cg-demo-api-key"
	maxBodySize  = 4 << 20
)

type Config struct {
	BaseURL   string
	APIKey    string
	Coin      string
	Fiat      string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Client fetches one quote per calendar day. Found quotes are cached; absent
// ones are not, so a later request may still find them.
type Client struct {
	cfg        Config
	httpClient *http.Client
	quotes     *cache.LRUCache[decimal.Decimal]
	logger     *log.Logger
}

type historyResponse struct {
	MarketData *struct {
		CurrentPrice map[string]json.RawMessage `json:"current_price"`
	} `json:"market_data"`
}

func New(cfg Config, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Coin == "" {
		cfg.Coin = DefaultCoin
	}
	if cfg.Fiat == "" {
		cfg.Fiat = DefaultFiat
	}
	cfg.Fiat = strings.ToLower(cfg.Fiat)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		quotes:     cache.NewLRUCache[decimal.Decimal](cfg.CacheSize, cfg.CacheTTL),
		logger:     logger.WithComponent(log.ComponentPricing),
	}
}

// Fiat returns the lower-case fiat code quotes are expressed in.
func (c *Client) Fiat() string { return c.cfg.Fiat }

// Cache exposes the quote cache so it can be registered for cleanup.
func (c *Client) Cache() cache.Cleaner { return c.quotes }

// ValidateDate checks the dd-mm-yyyy form of a lookup key.
func ValidateDate(date string) error {
	if len(date) != len(valuation.DateLayout) {
		return fmt.Errorf("date %q must be dd-mm-yyyy", date)
	}
	if _, err := time.Parse(valuation.DateLayout, date); err != nil {
		return fmt.Errorf("date %q must be dd-mm-yyyy", date)
	}
	return nil
}

// FetchPrice returns the quote for date. The boolean is false when the
// upstream has no positive price for that day.
func (c *Client) FetchPrice(ctx context.Context, date string) (decimal.Decimal, bool, error) {
	if err := ValidateDate(date); err != nil {
		return decimal.Zero, false, core.NewValidation("date", err)
	}

	key := c.cfg.Coin + "/" + c.cfg.Fiat + "/" + date
	if price, ok := c.quotes.Get(key); ok {
		return price, true, nil
	}

	price, found, err := c.fetch(ctx, date)
	if err != nil {
		c.logger.WarnContext(ctx, "Price lookup failed", log.FieldDateKey, date, log.FieldError, err.Error())
		return decimal.Zero, false, core.NewUpstream(serviceName, err)
	}
	if !found {
		c.logger.DebugContext(ctx, "No price for date", log.FieldDateKey, date)
		return decimal.Zero, false, nil
	}
	c.quotes.Set(key, price)
	return price, true, nil
}

func (c *Client) fetch(ctx context.Context, date string) (decimal.Decimal, bool, error) {
	q := url.Values{}
	q.Set("date", date)
	q.Set("localization", "false")
	endpoint := fmt.Sprintf("%s/api/v3/coins/%s/history?%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.Coin), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("request history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, false, fmt.Errorf("history returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("read history body: %w", err)
	}
	return parsePrice(body, c.cfg.Fiat)
}

var errBadPrice = errors.New("price is not a number")

func parsePrice(body []byte, fiat string) (decimal.Decimal, bool, error) {
	var payload historyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, false, fmt.Errorf("decode history: %w", err)
	}
	if payload.MarketData == nil {
		return decimal.Zero, false, nil
	}
	raw, ok := payload.MarketData.CurrentPrice[fiat]
	if !ok || string(raw) == "null" {
		return decimal.Zero, false, nil
	}
	var price decimal.Decimal
	if err := json.Unmarshal(raw, &price); err != nil {
		return decimal.Zero, false, fmt.Errorf("%w: %v", errBadPrice, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, false, nil
	}
	return price, true, nil
}
