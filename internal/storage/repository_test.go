package storage

import (
	"context"
	"path/filepath"
	"testing"

	"taxbridge/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "taxbridge.db"), nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepositoryCreateGetList(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	p := core.CompanyProfile{
		WalletAddress: "0x00000000219ab540356cBB839Cbe05303d7705Fa",
		Name:          "Acme", TaxID: "IT01", City: "Milano", Country: "IT",
		PostalCode: "20100", DUNSID: "123456789", LogoURL: "/logos/acme-logo_1.png",
	}
	if _, err := repo.Create(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(ctx, core.CompanyProfile{WalletAddress: "0x00000000219AB540356CBB839CBE05303D7705FA"}); !core.IsKind(err, core.KindConflict) {
		t.Fatalf("expected conflict on duplicate wallet, got %v", err)
	}

	got, err := repo.Get(ctx, "0x00000000219ab540356cbb839cbe05303d7705fa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != p {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, p)
	}
	if _, err := repo.Get(ctx, "0xmissing"); !core.IsKind(err, core.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := repo.Create(ctx, core.CompanyProfile{WalletAddress: "0xbeta", Name: "Beta"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	all, err := repo.List(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 profiles, got %d (%v)", len(all), err)
	}
	filtered, err := repo.List(ctx, "0xbeta")
	if err != nil || len(filtered) != 1 || filtered[0].Name != "Beta" {
		t.Fatalf("unexpected filtered list %+v (%v)", filtered, err)
	}
	none, err := repo.List(ctx, "0xnone")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %+v (%v)", none, err)
	}
}

func TestRepositoryUpdateAndSync(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	wallet := "0xabc"
	if _, err := repo.Create(ctx, core.CompanyProfile{WalletAddress: wallet, Name: "Old"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := repo.GetPendingSync(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0].Version != 1 {
		t.Fatalf("expected one pending v1, got %+v (%v)", pending, err)
	}

	name := "New"
	updated, err := repo.Update(ctx, wallet, core.ProfilePatch{Name: &name})
	if err != nil || updated.Name != "New" {
		t.Fatalf("update: %+v %v", updated, err)
	}

	// A stale version must not clear the pending flag.
	if err := repo.MarkSynced(ctx, wallet, 1); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if pending, _ := repo.GetPendingSync(ctx, 10); len(pending) != 1 || pending[0].Version != 2 {
		t.Fatalf("expected pending v2, got %+v", pending)
	}

	if err := repo.MarkSynced(ctx, wallet, 2); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	if pending, _ := repo.GetPendingSync(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected nothing pending, got %+v", pending)
	}

	if err := repo.MarkSyncError(ctx, wallet); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	if pending, _ := repo.GetPendingSync(ctx, 10); len(pending) != 1 {
		t.Fatalf("errored profiles are retried, got %+v", pending)
	}

	if _, err := repo.Update(ctx, "0xnone", core.ProfilePatch{Name: &name}); !core.IsKind(err, core.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	bad := "ITA"
	if _, err := repo.Update(ctx, wallet, core.ProfilePatch{Country: &bad}); !core.IsKind(err, core.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if v, err := repo.Version(ctx, wallet); err != nil || v != 2 {
		t.Fatalf("expected version 2, got %d (%v)", v, err)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 2; i++ {
		v, err := RunMigrations(path)
		if err != nil || v != 1 {
			t.Fatalf("run %d: version %d err %v", i, v, err)
		}
	}
}
