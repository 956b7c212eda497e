// Package memory is a process-local profile store for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"

	"taxbridge/internal/core"
)

type record struct {
	profile core.CompanyProfile
	version int64
}

// Store keeps profiles keyed by lower-cased wallet address, in insertion order.
type Store struct {
	mu    sync.Mutex
	order []string
	items map[string]*record
}

func New() *Store {
	return &Store{items: make(map[string]*record)}
}

func key(wallet string) string {
	return strings.ToLower(strings.TrimSpace(wallet))
}

func (s *Store) Create(_ context.Context, p core.CompanyProfile) (core.CompanyProfile, error) {
	if err := p.Validate(); err != nil {
		return core.CompanyProfile{}, core.NewValidation("profile", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(p.WalletAddress)
	if _, ok := s.items[k]; ok {
		return core.CompanyProfile{}, core.NewConflict("profile already exists for wallet", nil)
	}
	s.items[k] = &record{profile: p, version: 1}
	s.order = append(s.order, k)
	return p, nil
}

func (s *Store) Get(_ context.Context, wallet string) (core.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[key(wallet)]
	if !ok {
		return core.CompanyProfile{}, core.NewNotFound("profile not found")
	}
	return r.profile, nil
}

func (s *Store) List(_ context.Context, wallet string) ([]core.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []core.CompanyProfile{}
	if wallet != "" {
		if r, ok := s.items[key(wallet)]; ok {
			out = append(out, r.profile)
		}
		return out, nil
	}
	for _, k := range s.order {
		out = append(out, s.items[k].profile)
	}
	return out, nil
}

func (s *Store) Update(_ context.Context, wallet string, patch core.ProfilePatch) (core.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[key(wallet)]
	if !ok {
		return core.CompanyProfile{}, core.NewNotFound("profile not found")
	}
	next := patch.Apply(r.profile)
	if err := next.Validate(); err != nil {
		return core.CompanyProfile{}, core.NewValidation("profile", err)
	}
	r.profile = next
	r.version++
	return next, nil
}

func (s *Store) Version(_ context.Context, wallet string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.items[key(wallet)]
	if !ok {
		return 0, core.NewNotFound("profile not found")
	}
	return r.version, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
