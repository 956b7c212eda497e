// Package country serves the ISO 3166 country reference list from a
// restcountries-compatible API.
package country

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
)

const (
	DefaultBaseURL = "https://restcountries.com"
	DefaultTTL     = 24 * time.Hour

	serviceName = "countries"
	listKey     = "list"
	maxBodySize = 8 << 20
)

// Country is one entry of the reference list.
type Country struct {
	Name    string `json:"name"`
	ISOCode string `json:"isoCode"`
}

type apiCountry struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA2 string `json:"cca2"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	TTL     time.Duration
}

// Client caches both the full list and single-code lookups.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *gocache.Cache
	logger     *log.Logger
}

func New(cfg Config, logger *log.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      gocache.New(cfg.TTL, cfg.TTL*2),
		logger:     logger.WithComponent(log.ComponentCountry),
	}
}

// List returns every country with both a name and an ISO code, sorted by name.
func (c *Client) List(ctx context.Context) ([]Country, error) {
	if v, ok := c.cache.Get(listKey); ok {
		return v.([]Country), nil
	}

	var raw []apiCountry
	if err := c.get(ctx, "/v3.1/all?fields=name,cca2", &raw); err != nil {
		c.logger.WarnContext(ctx, "Country list unavailable", log.FieldError, err.Error())
		return nil, core.NewUpstream(serviceName, err)
	}

	list := make([]Country, 0, len(raw))
	for _, rc := range raw {
		if rc.CCA2 == "" || rc.Name.Common == "" {
			continue
		}
		list = append(list, Country{Name: rc.Name.Common, ISOCode: strings.ToUpper(rc.CCA2)})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})

	c.cache.SetDefault(listKey, list)
	for _, ct := range list {
		c.cache.SetDefault(codeKey(ct.ISOCode), ct.Name)
	}
	return list, nil
}

// Resolve returns the common name of an ISO alpha-2 code.
func (c *Client) Resolve(ctx context.Context, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 {
		return "", core.NewValidation("country", fmt.Errorf("invalid code %q", code))
	}
	if v, ok := c.cache.Get(codeKey(code)); ok {
		return v.(string), nil
	}

	var raw []apiCountry
	if err := c.get(ctx, "/v3.1/alpha/"+url.PathEscape(code), &raw); err != nil {
		return "", core.NewUpstream(serviceName, err)
	}
	if len(raw) == 0 || raw[0].Name.Common == "" {
		return "", core.NewNotFound("unknown country " + code)
	}
	c.cache.SetDefault(codeKey(code), raw[0].Name.Common)
	return raw[0].Name.Common, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request countries: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("countries returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(out); err != nil {
		return fmt.Errorf("decode countries: %w", err)
	}
	return nil
}

func codeKey(code string) string { return "code:" + code }
