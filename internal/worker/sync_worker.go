// Package worker mirrors company profiles from the profile store to the
// spreadsheet, driven by AMQP messages and a pending-sync sweep.
package worker

import (
	"context"
	"fmt"

	"taxbridge/internal/amqp"
	"taxbridge/internal/core"
	"taxbridge/internal/log"
	"taxbridge/internal/sheets"
	"taxbridge/internal/storage"
)

// SyncStore is the part of the profile repository the worker needs.
type SyncStore interface {
	Get(ctx context.Context, wallet string) (core.CompanyProfile, error)
	Version(ctx context.Context, wallet string) (int64, error)
	GetPendingSync(ctx context.Context, limit int) ([]storage.PendingSyncProfile, error)
	MarkSynced(ctx context.Context, wallet string, version int64) error
	MarkSyncError(ctx context.Context, wallet string) error
}

type SyncWorker struct {
	store     SyncStore
	mirror    sheets.ProfileMirror
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(store SyncStore, mirror sheets.ProfileMirror, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		store:     store,
		mirror:    mirror,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleSyncMessage mirrors the profile named by msg. The current stored
// version is written, so a stale message still syncs the latest data. A
// profile that no longer exists is acknowledged without error.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ProfileSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldWallet, msg.WalletAddress,
		"version", msg.Version)

	err := w.syncProfile(ctx, msg.WalletAddress)
	if core.IsKind(err, core.KindNotFound) {
		w.logger.WarnContext(ctx, "Profile gone before sync, dropping message", log.FieldWallet, msg.WalletAddress)
		return nil
	}
	return err
}

// ProcessPending mirrors up to one batch of profiles still pending or in
// error. It covers messages lost while the broker or worker was down.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced int, err error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger pending sweep when the worker starts.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.GetPendingSync(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending profiles: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending profiles", "count", len(pending))

	synced := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		if err := w.syncProfile(ctx, p.WalletAddress); err != nil {
			w.logger.ErrorContext(ctx, "Failed to sync profile", log.FieldWallet, p.WalletAddress, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) syncProfile(ctx context.Context, wallet string) error {
	version, err := w.store.Version(ctx, wallet)
	if err != nil {
		return fmt.Errorf("get profile version: %w", err)
	}
	profile, err := w.store.Get(ctx, wallet)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}

	ref, err := w.mirror.UpsertProfile(ctx, profile, version)
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, wallet); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", log.FieldWallet, wallet, "error", markErr)
		}
		return fmt.Errorf("mirror profile: %w", err)
	}

	// The mirror already holds the data; a failed mark only means a
	// redundant resync later.
	if err := w.store.MarkSynced(ctx, wallet, version); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark as synced", log.FieldWallet, wallet, "error", err)
	}

	w.logger.InfoContext(ctx, "Profile synced",
		log.FieldWallet, wallet,
		"version", version,
		"sheets_ref", ref)
	return nil
}
