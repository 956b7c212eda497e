package core

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// WeiDecimals is the number of decimal places between wei and ether.
// Shifting is exact, unlike division which rounds to DivisionPrecision.
const WeiDecimals = 18

var ErrInvalidAmount = errors.New("invalid amount")

type (
	// Valuation is the fiat value of one transaction. When Available is false
	// no price was obtained and Amount must be ignored; it is never reported as
	// zero.
	Valuation struct {
		Amount    decimal.Decimal
		Available bool
	}

	// Valuations maps transaction hash to its fiat valuation.
	Valuations map[string]Valuation
)

// ParseWei parses an integer wei string.
func ParseWei(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ValueETH converts the transaction value from wei to ether.
func (t Transaction) ValueETH() (decimal.Decimal, error) {
	wei, err := ParseWei(t.Value)
	if err != nil {
		return decimal.Zero, err
	}
	return wei.Shift(-WeiDecimals), nil
}

// FormatETH renders a wei string as ether without trailing zeros, falling
// back to the raw value when it cannot be parsed.
func FormatETH(wei string) string {
	d, err := ParseWei(wei)
	if err != nil {
		return wei
	}
	return d.Shift(-WeiDecimals).String()
}

// Available builds a valuation holding amount.
func Available(amount decimal.Decimal) Valuation {
	return Valuation{Amount: amount, Available: true}
}

// Unavailable is the valuation of a transaction without a price.
func Unavailable() Valuation {
	return Valuation{}
}

// Fixed renders the fiat amount with two decimals, or "" when unavailable.
func (v Valuation) Fixed() string {
	if !v.Available {
		return ""
	}
	return v.Amount.StringFixed(2)
}

// MarshalJSON renders an unavailable valuation as null.
func (v Valuation) MarshalJSON() ([]byte, error) {
	if !v.Available {
		return []byte("null"), nil
	}
	return []byte(v.Amount.StringFixed(2)), nil
}

func (v *Valuation) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Unavailable()
		return nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*v = Available(d)
	return nil
}

// Get returns the valuation for hash, unavailable when missing.
func (vs Valuations) Get(hash string) Valuation {
	if v, ok := vs[hash]; ok {
		return v
	}
	return Unavailable()
}

// CountUnavailable returns how many of txs have no fiat value.
func (vs Valuations) CountUnavailable(txs []Transaction) int {
	n := 0
	for _, tx := range txs {
		if !vs.Get(tx.Hash).Available {
			n++
		}
	}
	return n
}
