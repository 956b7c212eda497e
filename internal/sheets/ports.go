// Package sheets defines the spreadsheet mirror the sync worker writes to.
package sheets

import (
	"context"

	"taxbridge/internal/core"
)

// ProfileMirror keeps one spreadsheet row per company profile.
type ProfileMirror interface {
	// UpsertProfile writes p, replacing the row of the same wallet when
	// present, and returns a reference to the written row.
	UpsertProfile(ctx context.Context, p core.CompanyProfile, version int64) (rowRef string, err error)
}
