package google

import (
	"fmt"
	"strings"
	"time"

	"taxbridge/internal/core"
)

// Header is written to row 1 of an empty sheet. Column A holds the key.
var Header = []any{
	"Wallet Address", "Name", "Tax ID", "City", "Country", "Postal Code",
	"Address", "D-U-N-S ID", "Logo URL", "Version", "Synced At",
}

// lastColumn is the column letter of the final Header entry.
const lastColumn = "K"

// findRow returns the 1-based sheet row whose first cell equals wallet, or 0.
func findRow(values [][]any, wallet string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(fmt.Sprint(row[0])), strings.TrimSpace(wallet)) {
			return i + 1
		}
	}
	return 0
}

func profileRow(p core.CompanyProfile, version int64, now time.Time) []any {
	return []any{
		p.WalletAddress, p.Name, p.TaxID, p.City, p.Country, p.PostalCode,
		p.Address, p.DUNSID, p.LogoURL, version, now.UTC().Format(time.RFC3339),
	}
}
