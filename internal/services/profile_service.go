package services

import (
	"context"
	"strings"

	"taxbridge/internal/core"
	"taxbridge/internal/log"
)

// ProfileStore persists company profiles keyed by wallet address.
type ProfileStore interface {
	Create(ctx context.Context, p core.CompanyProfile) (core.CompanyProfile, error)
	Get(ctx context.Context, wallet string) (core.CompanyProfile, error)
	List(ctx context.Context, wallet string) ([]core.CompanyProfile, error)
	Update(ctx context.Context, wallet string, patch core.ProfilePatch) (core.CompanyProfile, error)
	Version(ctx context.Context, wallet string) (int64, error)
	Ping(ctx context.Context) error
}

// SyncPublisher announces that a profile version needs mirroring.
type SyncPublisher interface {
	PublishProfileSync(ctx context.Context, wallet string, version int64) error
}

// ProfileService saves profiles and publishes a sync message after every
// write. Publishing is best effort.
type ProfileService struct {
	store     ProfileStore
	publisher SyncPublisher
	logger    *log.Logger
}

// NewProfileService wires store and an optional publisher.
func NewProfileService(store ProfileStore, publisher SyncPublisher, logger *log.Logger) *ProfileService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ProfileService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentProfile),
	}
}

func (s *ProfileService) Create(ctx context.Context, p core.CompanyProfile) (core.CompanyProfile, error) {
	p = trimProfile(p)
	if err := p.Validate(); err != nil {
		return core.CompanyProfile{}, core.NewValidation("profile", err)
	}

	created, err := s.store.Create(ctx, p)
	if err != nil {
		return core.CompanyProfile{}, err
	}

	s.publish(ctx, created.WalletAddress)
	return created, nil
}

func (s *ProfileService) Get(ctx context.Context, wallet string) (core.CompanyProfile, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return core.CompanyProfile{}, core.NewValidation("wallet_address", core.ErrEmptyAddress)
	}
	return s.store.Get(ctx, wallet)
}

// List returns every profile, or only the one of wallet when it is set.
func (s *ProfileService) List(ctx context.Context, wallet string) ([]core.CompanyProfile, error) {
	return s.store.List(ctx, strings.TrimSpace(wallet))
}

func (s *ProfileService) Update(ctx context.Context, wallet string, patch core.ProfilePatch) (core.CompanyProfile, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return core.CompanyProfile{}, core.NewValidation("wallet_address", core.ErrEmptyAddress)
	}
	if patch.IsEmpty() {
		return core.CompanyProfile{}, core.NewValidation("profile", core.ErrEmptyPatch)
	}

	updated, err := s.store.Update(ctx, wallet, trimPatch(patch))
	if err != nil {
		return core.CompanyProfile{}, err
	}

	s.publish(ctx, updated.WalletAddress)
	return updated, nil
}

func (s *ProfileService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *ProfileService) publish(ctx context.Context, wallet string) {
	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No sync publisher, skipping sync message", log.FieldWallet, wallet)
		return
	}
	version, err := s.store.Version(ctx, wallet)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to read profile version", log.FieldWallet, wallet, "error", err)
		return
	}
	// The profile is saved; the pending-sync sweep picks it up if this fails.
	if err := s.publisher.PublishProfileSync(ctx, wallet, version); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish sync message",
			log.FieldWallet, wallet, "version", version, "error", err)
	}
}

func trimProfile(p core.CompanyProfile) core.CompanyProfile {
	for _, f := range []*string{&p.WalletAddress, &p.Name, &p.TaxID, &p.City, &p.Country, &p.PostalCode, &p.Address, &p.DUNSID, &p.LogoURL} {
		*f = strings.TrimSpace(*f)
	}
	p.Country = strings.ToUpper(p.Country)
	return p
}

func trimPatch(p core.ProfilePatch) core.ProfilePatch {
	for _, f := range []**string{&p.Name, &p.TaxID, &p.City, &p.Country, &p.PostalCode, &p.Address, &p.DUNSID, &p.LogoURL} {
		if *f != nil {
			v := strings.TrimSpace(**f)
			*f = &v
		}
	}
	if p.Country != nil {
		v := strings.ToUpper(*p.Country)
		p.Country = &v
	}
	return p
}
