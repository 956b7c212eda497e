package main

import (
	"context"
	"errors"
	"os"
	"time"

	"taxbridge/internal/amqp"
	"taxbridge/internal/cli"
	"taxbridge/internal/log"
	gsheet "taxbridge/internal/sheets/google"
	"taxbridge/internal/storage"
	"taxbridge/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	workerLog := logger.WithComponent(log.ComponentWorker)

	if err := cfg.ValidateWorker(); err != nil {
		workerLog.Error("Worker configuration incomplete", "error", err)
		os.Exit(1)
	}
	workerLog.Info("Starting taxbridge-worker")

	// SQLite holds the profiles and their sync state
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		workerLog.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	sheetsClient, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID: cfg.GoogleSpreadsheetID,
		SheetName:     cfg.GoogleProfilesSheetName,
	}, logger)
	if err != nil {
		workerLog.Error("Failed to initialize Google Sheets client", "error", err)
		_ = repo.Close()
		os.Exit(1)
	}
	workerLog.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		workerLog.Error("Failed to initialize AMQP client", "error", err)
		_ = repo.Close()
		os.Exit(1)
	}

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, cfg.SyncBatchSize, logger)
	poller := worker.NewPoller(syncWorker, cfg.SyncInterval)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := poller.Stop(shutdownCtx); err != nil {
			workerLog.Error("Poller shutdown error", "error", err)
		}
		if err := amqpClient.Close(); err != nil {
			workerLog.Error("AMQP close error", "error", err)
		}
		if err := repo.Close(); err != nil {
			workerLog.Error("SQLite close error", "error", err)
		}
	})

	// Profiles written while the worker was down are still pending
	workerLog.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		workerLog.Error("Failed startup sync check", "error", err)
	}

	go func() {
		err := amqpClient.ConsumeProfileSync(ctx, syncWorker.HandleSyncMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			workerLog.Error("Message consumption failed", "error", err)
		}
	}()

	if err := poller.Start(ctx); err != nil {
		workerLog.Error("Failed to start poller", "error", err)
	}

	cli.WaitForShutdown(ctx, done)
	workerLog.Info("Worker stopped")
}
