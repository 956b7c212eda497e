// Package memory is an in-process ProfileMirror used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"taxbridge/internal/core"
	ports "taxbridge/internal/sheets"
)

// Row is one mirrored profile.
type Row struct {
	Profile core.CompanyProfile
	Version int64
}

type Mirror struct {
	mu    sync.Mutex
	order []string
	rows  map[string]Row
}

var _ ports.ProfileMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{rows: make(map[string]Row)}
}

func (m *Mirror) UpsertProfile(_ context.Context, p core.CompanyProfile, version int64) (string, error) {
	if strings.TrimSpace(p.WalletAddress) == "" {
		return "", core.ErrEmptyAddress
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := strings.ToLower(p.WalletAddress)
	if _, ok := m.rows[k]; !ok {
		m.order = append(m.order, k)
	}
	m.rows[k] = Row{Profile: p, Version: version}
	for i, key := range m.order {
		if key == k {
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	return "", nil
}

// Rows returns the mirrored rows in first-write order.
func (m *Mirror) Rows() []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Row, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.rows[k])
	}
	return out
}
