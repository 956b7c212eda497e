// Package explorer fetches wallet transaction histories from an
// Etherscan-compatible block explorer API.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
)

const (
	DefaultMainnetURL = "https://api.etherscan.io"
	DefaultSepoliaURL = "https://api-sepolia.etherscan.io"

	serviceName = "explorer"
	emptyResult = "No transactions found"
	maxBodySize = 32 << 20
)

// Endpoint is the base URL and credential used for one network.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Config selects endpoints per network.
type Config struct {
	Mainnet Endpoint
	Sepolia Endpoint
	Timeout time.Duration
}

// Client retrieves transaction lists. It is safe for concurrent use.
type Client struct {
	endpoints  map[core.Network]Endpoint
	httpClient *http.Client
	logger     *log.Logger
}

type txListResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// New builds a Client. A missing sepolia key falls back to the mainnet key.
func New(cfg Config, logger *log.Logger) *Client {
	if cfg.Mainnet.BaseURL == "" {
		cfg.Mainnet.BaseURL = DefaultMainnetURL
	}
	if cfg.Sepolia.BaseURL == "" {
		cfg.Sepolia.BaseURL = DefaultSepoliaURL
	}
	if cfg.Sepolia.APIKey == "" {
		cfg.Sepolia.APIKey = cfg.Mainnet.APIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		endpoints: map[core.Network]Endpoint{
			core.NetworkMainnet: cfg.Mainnet,
			core.NetworkSepolia: cfg.Sepolia,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.WithComponent(log.ComponentExplorer),
	}
}

// FetchTransactions returns the full transaction history of address on
// network, newest first.
func (c *Client) FetchTransactions(ctx context.Context, address string, network core.Network) ([]core.Transaction, error) {
	if err := core.ValidateAddress(address); err != nil {
		return nil, core.NewValidation("address", err)
	}
	ep, ok := c.endpoints[network]
	if !ok {
		return nil, core.NewValidation("network", core.ErrInvalidNetwork)
	}

	body, err := c.get(ctx, ep, address)
	if err != nil {
		c.logger.WarnContext(ctx, "Explorer request failed",
			log.FieldWallet, address, log.FieldNetwork, network.String(), log.FieldError, err.Error())
		return nil, core.NewUpstream(serviceName, err)
	}

	txs, err := decode(body)
	if err != nil {
		c.logger.WarnContext(ctx, "Explorer response rejected",
			log.FieldWallet, address, log.FieldNetwork, network.String(), log.FieldError, err.Error())
		return nil, core.NewUpstream(serviceName, err)
	}

	sortNewestFirst(txs)
	c.logger.DebugContext(ctx, "Transactions fetched",
		log.FieldWallet, address, log.FieldNetwork, network.String(), log.FieldTxCount, len(txs))
	return txs, nil
}

func (c *Client) get(ctx context.Context, ep Endpoint, address string) ([]byte, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("action", "txlist")
	q.Set("address", address)
	q.Set("sort", "desc")
	if ep.APIKey != "" {
		q.Set("apikey", ep.APIKey)
	}
	endpoint := strings.TrimRight(ep.BaseURL, "/") + "/api?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", redact(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request txlist: %w", redact(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("txlist returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read txlist body: %w", err)
	}
	return body, nil
}

func decode(body []byte) ([]core.Transaction, error) {
	var payload txListResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode txlist: %w", err)
	}
	if payload.Status != "1" {
		if payload.Message == emptyResult {
			return []core.Transaction{}, nil
		}
		// On failure the result field holds a human readable reason.
		var reason string
		_ = json.Unmarshal(payload.Result, &reason)
		return nil, fmt.Errorf("txlist status %q: %s %s", payload.Status, payload.Message, reason)
	}

	var txs []core.Transaction
	if err := json.Unmarshal(payload.Result, &txs); err != nil {
		return nil, fmt.Errorf("decode txlist result: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

// sortNewestFirst orders by timestamp descending, keeping upstream order for
// ties. Unparsable timestamps sort last.
func sortNewestFirst(txs []core.Transaction) {
	key := func(tx core.Transaction) int64 {
		n, err := strconv.ParseInt(strings.TrimSpace(tx.TimeStamp), 10, 64)
		if err != nil {
			return -1
		}
		return n
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return key(txs[i]) > key(txs[j])
	})
}

// redact strips the request URL, which carries the API key, from transport errors.
func redact(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}
