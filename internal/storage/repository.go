// Package storage persists company profiles in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

// PendingSyncProfile is the minimal data a sync message carries.
type PendingSyncProfile struct {
	WalletAddress string
	Version       int64
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time keeps SQLite from returning SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("SQLite profile store ready", "path", dbPath, "schema_version", version)

	return &SQLiteRepository{db: db, queries: New(db), logger: logger}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Create(ctx context.Context, p core.CompanyProfile) (core.CompanyProfile, error) {
	row, err := r.queries.CreateProfile(ctx, CreateProfileParams{
		WalletAddress: p.WalletAddress,
		Name:          p.Name,
		TaxID:         p.TaxID,
		City:          p.City,
		Country:       p.Country,
		PostalCode:    p.PostalCode,
		Address:       p.Address,
		DunsID:        p.DUNSID,
		LogoUrl:       p.LogoURL,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.CompanyProfile{}, core.NewConflict("profile already exists for wallet", err)
		}
		return core.CompanyProfile{}, fmt.Errorf("create profile: %w", err)
	}

	r.logger.InfoContext(ctx, "Profile saved to SQLite", "id", row.ID, log.FieldWallet, row.WalletAddress)
	return row.Profile(), nil
}

func (r *SQLiteRepository) Get(ctx context.Context, wallet string) (core.CompanyProfile, error) {
	row, err := r.queries.GetProfile(ctx, wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.CompanyProfile{}, core.NewNotFound("profile not found")
		}
		return core.CompanyProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return row.Profile(), nil
}

// List returns every profile, or only the one of wallet when it is set.
func (r *SQLiteRepository) List(ctx context.Context, wallet string) ([]core.CompanyProfile, error) {
	if wallet != "" {
		p, err := r.Get(ctx, wallet)
		if core.IsKind(err, core.KindNotFound) {
			return []core.CompanyProfile{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []core.CompanyProfile{p}, nil
	}

	rows, err := r.queries.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]core.CompanyProfile, len(rows))
	for i, row := range rows {
		out[i] = row.Profile()
	}
	return out, nil
}

// Update applies patch inside a transaction and bumps the sync version.
func (r *SQLiteRepository) Update(ctx context.Context, wallet string, patch core.ProfilePatch) (core.CompanyProfile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.CompanyProfile{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	current, err := q.GetProfile(ctx, wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.CompanyProfile{}, core.NewNotFound("profile not found")
		}
		return core.CompanyProfile{}, fmt.Errorf("load profile: %w", err)
	}

	next := patch.Apply(current.Profile())
	if err := next.Validate(); err != nil {
		return core.CompanyProfile{}, core.NewValidation("profile", err)
	}

	row, err := q.UpdateProfile(ctx, UpdateProfileParams{
		Name:          next.Name,
		TaxID:         next.TaxID,
		City:          next.City,
		Country:       next.Country,
		PostalCode:    next.PostalCode,
		Address:       next.Address,
		DunsID:        next.DUNSID,
		LogoUrl:       next.LogoURL,
		WalletAddress: current.WalletAddress,
	})
	if err != nil {
		return core.CompanyProfile{}, fmt.Errorf("update profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.CompanyProfile{}, fmt.Errorf("commit update: %w", err)
	}

	r.logger.InfoContext(ctx, "Profile updated", log.FieldWallet, row.WalletAddress, "version", row.Version)
	return row.Profile(), nil
}

// Version returns the current sync version of a profile.
func (r *SQLiteRepository) Version(ctx context.Context, wallet string) (int64, error) {
	row, err := r.queries.GetProfile(ctx, wallet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, core.NewNotFound("profile not found")
		}
		return 0, fmt.Errorf("get profile version: %w", err)
	}
	return row.Version, nil
}

// GetPendingSync returns profiles not yet mirrored, oldest change first.
func (r *SQLiteRepository) GetPendingSync(ctx context.Context, limit int) ([]PendingSyncProfile, error) {
	rows, err := r.queries.GetPendingSyncProfiles(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync profiles: %w", err)
	}
	out := make([]PendingSyncProfile, len(rows))
	for i, row := range rows {
		out[i] = PendingSyncProfile{WalletAddress: row.WalletAddress, Version: row.Version}
	}
	return out, nil
}

// MarkSynced records a successful mirror of version. A newer edit keeps the
// profile pending.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, wallet string, version int64) error {
	n, err := r.queries.MarkProfileSynced(ctx, wallet, version)
	if err != nil {
		return fmt.Errorf("mark profile synced: %w", err)
	}
	if n == 0 {
		r.logger.DebugContext(ctx, "Profile changed since sync, left pending", log.FieldWallet, wallet, "version", version)
		return nil
	}
	r.logger.InfoContext(ctx, "Profile marked as synced", log.FieldWallet, wallet, "version", version)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, wallet string) error {
	if err := r.queries.MarkProfileSyncError(ctx, wallet); err != nil {
		return fmt.Errorf("mark profile sync error: %w", err)
	}
	r.logger.WarnContext(ctx, "Profile marked with sync error", log.FieldWallet, wallet)
	return nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
