// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"taxbridge/internal/core"
	"taxbridge/internal/services"
)

// maxFormBody bounds JSON and form bodies of profile requests.
const maxFormBody = 64 << 10

// profileFields are the request keys of a company profile.
var profileFields = []string{
	"name", "tax_id", "city", "country", "postal_code", "address", "duns_id", "logo_url",
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxFormBody+1))
	if p.err == nil && len(p.body) > maxFormBody {
		p.err = core.NewValidation("request body too large", nil)
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.IsJSONContent() || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = core.NewValidation("malformed JSON body", err)
			return p.err
		}
		return nil
	}

	var err error
	if p.formData, err = url.ParseQuery(string(p.body)); err != nil {
		p.err = core.NewValidation("malformed form body", err)
	}
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	v, _ := p.Lookup(key)
	return v
}

// Lookup is Get that also reports whether key was sent at all.
func (p *RequestBodyParser) Lookup(key string) (string, bool) {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val))), true
		}
		return "", false
	}
	if p.formData != nil {
		if vals, ok := p.formData[key]; ok && len(vals) > 0 {
			return strings.TrimSpace(sanitizeInput(vals[0])), true
		}
	}
	return "", false
}

// IsJSONContent reports whether the Content-Type announces JSON.
func (p *RequestBodyParser) IsJSONContent() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(p.contentType)), "application/json")
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// Profile builds a full company profile from the parsed body.
func (p *RequestBodyParser) Profile() core.CompanyProfile {
	return core.CompanyProfile{
		WalletAddress: p.Get("wallet_address"),
		Name:          p.Get("name"),
		TaxID:         p.Get("tax_id"),
		City:          p.Get("city"),
		Country:       p.Get("country"),
		PostalCode:    p.Get("postal_code"),
		Address:       p.Get("address"),
		DUNSID:        p.Get("duns_id"),
		LogoURL:       p.Get("logo_url"),
	}
}

// Patch builds a partial update holding only the keys that were sent.
func (p *RequestBodyParser) Patch() core.ProfilePatch {
	var patch core.ProfilePatch
	targets := map[string]**string{
		"name":        &patch.Name,
		"tax_id":      &patch.TaxID,
		"city":        &patch.City,
		"country":     &patch.Country,
		"postal_code": &patch.PostalCode,
		"address":     &patch.Address,
		"duns_id":     &patch.DUNSID,
		"logo_url":    &patch.LogoURL,
	}
	for _, key := range profileFields {
		if v, ok := p.Lookup(key); ok {
			*targets[key] = stringPtr(v)
		}
	}
	return patch
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseLedgerQuery reads the wallet, network and time frame parameters.
// The address itself is validated by the ledger pipeline.
func ParseLedgerQuery(query url.Values) (services.LedgerQuery, error) {
	network, err := core.ParseNetwork(query.Get("network"))
	if err != nil {
		return services.LedgerQuery{}, core.NewValidation("network", err)
	}
	tf, err := core.ParseTimeFrame(query.Get("timeframe"), query.Get("from"), query.Get("to"))
	if err != nil {
		return services.LedgerQuery{}, core.NewValidation("timeframe", err)
	}
	return services.LedgerQuery{
		Address:   sanitizeInput(query.Get("address")),
		Network:   network,
		TimeFrame: tf,
	}, nil
}
