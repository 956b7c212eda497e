package storage

import (
	"database/sql"

	"taxbridge/internal/core"
)

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusError   = "error"
)

type CompanyProfileRow struct {
	ID            int64
	WalletAddress string
	Name          string
	TaxID         string
	City          string
	Country       string
	PostalCode    string
	Address       string
	DunsID        string
	LogoUrl       string
	Version       int64
	SyncStatus    string
	CreatedAt     sql.NullTime
	UpdatedAt     sql.NullTime
}

func (r CompanyProfileRow) Profile() core.CompanyProfile {
	return core.CompanyProfile{
		WalletAddress: r.WalletAddress,
		Name:          r.Name,
		TaxID:         r.TaxID,
		City:          r.City,
		Country:       r.Country,
		PostalCode:    r.PostalCode,
		Address:       r.Address,
		DUNSID:        r.DunsID,
		LogoURL:       r.LogoUrl,
	}
}
