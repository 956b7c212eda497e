// Package core holds the wallet ledger domain: transactions, valuations,
// company profiles, time frames and the error taxonomy.
package core

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	NetworkMainnet Network = "mainnet"
	NetworkSepolia Network = "sepolia"
)

const (
	ThisMonth TimeFrameKind = "thisMonth"
	LastMonth TimeFrameKind = "lastMonth"
	LastYear  TimeFrameKind = "lastYear"
	Custom    TimeFrameKind = "custom"
)

type (
	// Network identifies the chain an explorer request is sent to.
	Network string

	TimeFrameKind string

	// Transaction is a wallet transaction as reported by the block explorer.
	// Value is an integer string in wei and TimeStamp is UNIX seconds.
	Transaction struct {
		Hash      string `json:"hash"`
		From      string `json:"from"`
		To        string `json:"to"`
		Value     string `json:"value"`
		TimeStamp string `json:"timeStamp"`
	}

	// TimeFrame selects the reporting interval. From and To are only used by
	// Custom and are calendar days in yyyy-mm-dd form.
	TimeFrame struct {
		Kind TimeFrameKind
		From string
		To   string
	}

	CompanyProfile struct {
		WalletAddress string `json:"wallet_address"`
		Name          string `json:"name"`
		TaxID         string `json:"tax_id"`
		City          string `json:"city"`
		Country       string `json:"country"`
		PostalCode    string `json:"postal_code"`
		Address       string `json:"address"`
		DUNSID        string `json:"duns_id"`
		LogoURL       string `json:"logo_url,omitempty"`
	}

	// ProfilePatch carries a partial profile update. Nil fields are left untouched.
	ProfilePatch struct {
		Name       *string `json:"name,omitempty"`
		TaxID      *string `json:"tax_id,omitempty"`
		City       *string `json:"city,omitempty"`
		Country    *string `json:"country,omitempty"`
		PostalCode *string `json:"postal_code,omitempty"`
		Address    *string `json:"address,omitempty"`
		DUNSID     *string `json:"duns_id,omitempty"`
		LogoURL    *string `json:"logo_url,omitempty"`
	}
)

var (
	ErrEmptyAddress    = errors.New("wallet address is required")
	ErrInvalidAddress  = errors.New("invalid wallet address")
	ErrInvalidNetwork  = errors.New("invalid network")
	ErrInvalidTimeSpan = errors.New("invalid time frame")
	ErrEmptyPatch      = errors.New("no fields to update")
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseNetwork maps a request value to a known network. An empty value
// selects mainnet; "testnet" is accepted as an alias of sepolia.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mainnet":
		return NetworkMainnet, nil
	case "sepolia", "testnet":
		return NetworkSepolia, nil
	default:
		return "", ErrInvalidNetwork
	}
}

func (n Network) String() string {
	return string(n)
}

// ValidateAddress checks that s looks like a 20-byte hex account address.
func ValidateAddress(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return ErrEmptyAddress
	}
	if !addressPattern.MatchString(s) {
		return ErrInvalidAddress
	}
	return nil
}

// Time returns the transaction instant.
func (t Transaction) Time() (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(t.TimeStamp), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0), nil
}

// ParseTimeFrame builds a TimeFrame from request values. An empty kind
// defaults to ThisMonth. Custom bounds are kept verbatim; a missing bound is
// not an error here, it yields an empty selection when filtering.
func ParseTimeFrame(kind, from, to string) (TimeFrame, error) {
	tf := TimeFrame{Kind: TimeFrameKind(strings.TrimSpace(kind)), From: strings.TrimSpace(from), To: strings.TrimSpace(to)}
	switch tf.Kind {
	case "":
		tf.Kind = ThisMonth
	case ThisMonth, LastMonth, LastYear, Custom:
	default:
		return TimeFrame{}, ErrInvalidTimeSpan
	}
	return tf, nil
}

func (p CompanyProfile) Validate() error {
	if strings.TrimSpace(p.WalletAddress) == "" {
		return ErrEmptyAddress
	}
	if len(p.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if c := strings.TrimSpace(p.Country); c != "" && len(c) != 2 {
		return errors.New("country must be an ISO 3166-1 alpha-2 code")
	}
	if !validLogoURL(strings.TrimSpace(p.LogoURL)) {
		return errors.New("logo_url must be an image data url or an http(s) url")
	}
	return nil
}

var logoDataURLRe = regexp.MustCompile(`^data:image/[\w.+-]+;base64,`)

// validLogoURL accepts the shapes a logo store hands out: root-relative
// paths, absolute http(s) URLs and inline image data URLs.
func validLogoURL(raw string) bool {
	if raw == "" || logoDataURLRe.MatchString(raw) {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https":
		return u.Host != ""
	case "":
		return u.Host == "" && strings.HasPrefix(u.Path, "/")
	}
	return false
}

// IsEmpty reports whether the patch changes nothing.
func (p ProfilePatch) IsEmpty() bool {
	return p.Name == nil && p.TaxID == nil && p.City == nil && p.Country == nil &&
		p.PostalCode == nil && p.Address == nil && p.DUNSID == nil && p.LogoURL == nil
}

// Apply returns a copy of profile with the patch fields set.
func (p ProfilePatch) Apply(profile CompanyProfile) CompanyProfile {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&profile.Name, p.Name)
	set(&profile.TaxID, p.TaxID)
	set(&profile.City, p.City)
	set(&profile.Country, p.Country)
	set(&profile.PostalCode, p.PostalCode)
	set(&profile.Address, p.Address)
	set(&profile.DUNSID, p.DUNSID)
	set(&profile.LogoURL, p.LogoURL)
	return profile
}
