package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taxbridge/internal/amqp"
	"taxbridge/internal/core"
	"taxbridge/internal/sheets/memory"
	"taxbridge/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]core.CompanyProfile
	versions map[string]int64
	synced   map[string]int64
	errored  map[string]int
	pending  []storage.PendingSyncProfile
}

func newFakeStore(profiles ...core.CompanyProfile) *fakeStore {
	s := &fakeStore{
		profiles: map[string]core.CompanyProfile{},
		versions: map[string]int64{},
		synced:   map[string]int64{},
		errored:  map[string]int{},
	}
	for _, p := range profiles {
		s.profiles[p.WalletAddress] = p
		s.versions[p.WalletAddress] = 1
		s.pending = append(s.pending, storage.PendingSyncProfile{WalletAddress: p.WalletAddress, Version: 1})
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, wallet string) (core.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[wallet]
	if !ok {
		return core.CompanyProfile{}, core.NewNotFound("profile not found")
	}
	return p, nil
}

func (s *fakeStore) Version(_ context.Context, wallet string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[wallet]
	if !ok {
		return 0, core.NewNotFound("profile not found")
	}
	return v, nil
}

func (s *fakeStore) GetPendingSync(_ context.Context, limit int) ([]storage.PendingSyncProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.PendingSyncProfile
	for _, p := range s.pending {
		if _, done := s.synced[p.WalletAddress]; done {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) MarkSynced(_ context.Context, wallet string, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced[wallet] = version
	return nil
}

func (s *fakeStore) MarkSyncError(_ context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errored[wallet]++
	return nil
}

func (s *fakeStore) syncedVersion(wallet string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.synced[wallet]
	return v, ok
}

type failingMirror struct{}

func (failingMirror) UpsertProfile(context.Context, core.CompanyProfile, int64) (string, error) {
	return "", errors.New("sheets down")
}

func TestHandleSyncMessage(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(core.CompanyProfile{WalletAddress: "0xaaa", Name: "Acme"})
	store.versions["0xaaa"] = 3
	mirror := memory.New()
	w := NewSyncWorker(store, mirror, 10, nil)

	if err := w.HandleSyncMessage(ctx, amqp.NewProfileSyncMessage("0xaaa", 1)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	rows := mirror.Rows()
	if len(rows) != 1 || rows[0].Profile.Name != "Acme" || rows[0].Version != 3 {
		t.Fatalf("expected latest version mirrored, got %+v", rows)
	}
	if v, ok := store.syncedVersion("0xaaa"); !ok || v != 3 {
		t.Fatalf("expected version 3 marked synced, got %d %v", v, ok)
	}
}

func TestHandleSyncMessage_MissingProfileIsAcked(t *testing.T) {
	w := NewSyncWorker(newFakeStore(), memory.New(), 10, nil)
	if err := w.HandleSyncMessage(context.Background(), amqp.NewProfileSyncMessage("0xgone", 1)); err != nil {
		t.Fatalf("expected nil for missing profile, got %v", err)
	}
}

func TestHandleSyncMessage_MirrorFailure(t *testing.T) {
	store := newFakeStore(core.CompanyProfile{WalletAddress: "0xaaa"})
	w := NewSyncWorker(store, failingMirror{}, 10, nil)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewProfileSyncMessage("0xaaa", 1)); err == nil {
		t.Fatal("expected error so the message is requeued")
	}
	if store.errored["0xaaa"] != 1 {
		t.Fatalf("expected sync error recorded, got %d", store.errored["0xaaa"])
	}
	if _, ok := store.syncedVersion("0xaaa"); ok {
		t.Fatal("profile must not be marked synced")
	}
}

func TestProcessPending(t *testing.T) {
	store := newFakeStore(
		core.CompanyProfile{WalletAddress: "0x1"},
		core.CompanyProfile{WalletAddress: "0x2"},
		core.CompanyProfile{WalletAddress: "0x3"},
	)
	mirror := memory.New()
	w := NewSyncWorker(store, mirror, 2, nil)

	n, err := w.ProcessPending(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("first batch: synced %d (%v)", n, err)
	}
	n, err = w.ProcessPending(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("second batch: synced %d (%v)", n, err)
	}
	if len(mirror.Rows()) != 3 {
		t.Fatalf("expected 3 mirrored rows, got %d", len(mirror.Rows()))
	}
}

func TestStartupSyncCheck_ContinuesPastFailures(t *testing.T) {
	store := newFakeStore(core.CompanyProfile{WalletAddress: "0x1"})
	store.pending = append([]storage.PendingSyncProfile{{WalletAddress: "0xgone", Version: 1}}, store.pending...)
	mirror := memory.New()
	w := NewSyncWorker(store, mirror, 1, nil)

	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("startup check: %v", err)
	}
	if _, ok := store.syncedVersion("0x1"); !ok {
		t.Fatal("valid profile should sync despite an earlier failure")
	}
}

func TestPollerLifecycle(t *testing.T) {
	store := newFakeStore(core.CompanyProfile{WalletAddress: "0x1"})
	p := NewPoller(NewSyncWorker(store, memory.New(), 10, nil), 10*time.Millisecond)
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("second start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := store.syncedVersion("0x1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("poller never synced the pending profile")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("poller still running after stop")
	}
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
