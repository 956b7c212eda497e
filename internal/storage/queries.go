package storage

import (
	"context"
)

const profileColumns = `id, wallet_address, name, tax_id, city, country, postal_code, address, duns_id, logo_url, version, sync_status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (CompanyProfileRow, error) {
	var i CompanyProfileRow
	err := row.Scan(
		&i.ID,
		&i.WalletAddress,
		&i.Name,
		&i.TaxID,
		&i.City,
		&i.Country,
		&i.PostalCode,
		&i.Address,
		&i.DunsID,
		&i.LogoUrl,
		&i.Version,
		&i.SyncStatus,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createProfile = `-- name: CreateProfile :one
INSERT INTO company_profiles (wallet_address, name, tax_id, city, country, postal_code, address, duns_id, logo_url)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + profileColumns

type CreateProfileParams struct {
	WalletAddress string
	Name          string
	TaxID         string
	City          string
	Country       string
	PostalCode    string
	Address       string
	DunsID        string
	LogoUrl       string
}

func (q *Queries) CreateProfile(ctx context.Context, arg CreateProfileParams) (CompanyProfileRow, error) {
	row := q.db.QueryRowContext(ctx, createProfile,
		arg.WalletAddress,
		arg.Name,
		arg.TaxID,
		arg.City,
		arg.Country,
		arg.PostalCode,
		arg.Address,
		arg.DunsID,
		arg.LogoUrl,
	)
	return scanProfile(row)
}

const getProfile = `-- name: GetProfile :one
SELECT ` + profileColumns + ` FROM company_profiles WHERE wallet_address = ? LIMIT 1`

func (q *Queries) GetProfile(ctx context.Context, walletAddress string) (CompanyProfileRow, error) {
	return scanProfile(q.db.QueryRowContext(ctx, getProfile, walletAddress))
}

const listProfiles = `-- name: ListProfiles :many
SELECT ` + profileColumns + ` FROM company_profiles ORDER BY created_at, id`

func (q *Queries) ListProfiles(ctx context.Context) ([]CompanyProfileRow, error) {
	return q.queryProfiles(ctx, listProfiles)
}

const updateProfile = `-- name: UpdateProfile :one
UPDATE company_profiles
SET name = ?, tax_id = ?, city = ?, country = ?, postal_code = ?, address = ?, duns_id = ?, logo_url = ?,
    version = version + 1, sync_status = 'pending', updated_at = CURRENT_TIMESTAMP
WHERE wallet_address = ?
RETURNING ` + profileColumns

type UpdateProfileParams struct {
	Name          string
	TaxID         string
	City          string
	Country       string
	PostalCode    string
	Address       string
	DunsID        string
	LogoUrl       string
	WalletAddress string
}

func (q *Queries) UpdateProfile(ctx context.Context, arg UpdateProfileParams) (CompanyProfileRow, error) {
	row := q.db.QueryRowContext(ctx, updateProfile,
		arg.Name,
		arg.TaxID,
		arg.City,
		arg.Country,
		arg.PostalCode,
		arg.Address,
		arg.DunsID,
		arg.LogoUrl,
		arg.WalletAddress,
	)
	return scanProfile(row)
}

const getPendingSyncProfiles = `-- name: GetPendingSyncProfiles :many
SELECT ` + profileColumns + ` FROM company_profiles
WHERE sync_status IN ('pending', 'error')
ORDER BY updated_at, id
LIMIT ?`

func (q *Queries) GetPendingSyncProfiles(ctx context.Context, limit int64) ([]CompanyProfileRow, error) {
	return q.queryProfiles(ctx, getPendingSyncProfiles, limit)
}

const markProfileSynced = `-- name: MarkProfileSynced :execrows
UPDATE company_profiles SET sync_status = 'synced' WHERE wallet_address = ? AND version = ?`

func (q *Queries) MarkProfileSynced(ctx context.Context, walletAddress string, version int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, markProfileSynced, walletAddress, version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const markProfileSyncError = `-- name: MarkProfileSyncError :exec
UPDATE company_profiles SET sync_status = 'error' WHERE wallet_address = ?`

func (q *Queries) MarkProfileSyncError(ctx context.Context, walletAddress string) error {
	_, err := q.db.ExecContext(ctx, markProfileSyncError, walletAddress)
	return err
}

func (q *Queries) queryProfiles(ctx context.Context, query string, args ...interface{}) ([]CompanyProfileRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CompanyProfileRow
	for rows.Next() {
		i, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
