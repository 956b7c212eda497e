package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"taxbridge/internal/backend"
	"taxbridge/internal/cache"
	"taxbridge/internal/cli"
	"taxbridge/internal/config"
	"taxbridge/internal/country"
	"taxbridge/internal/explorer"
	apphttp "taxbridge/internal/http"
	"taxbridge/internal/logo"
	"taxbridge/internal/pricing"
	"taxbridge/internal/report"
	"taxbridge/internal/services"
	"taxbridge/internal/valuation"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	loc := cfg.Location()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize profile store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	logos, closeLogos, err := newLogoStore(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize logo store", "error", err, "backend", cfg.LogoBackend)
		os.Exit(1)
	}

	caches := cache.NewManager(logger)

	explorerClient := explorer.New(explorer.Config{
		Mainnet: explorer.Endpoint{BaseURL: cfg.EtherscanMainnetURL, APIKey: cfg.EtherscanAPIKey},
		Sepolia: explorer.Endpoint{BaseURL: cfg.EtherscanSepoliaURL, APIKey: cfg.EtherscanSepoliaAPIKey},
		Timeout: cfg.ExternalTimeout,
	}, logger)

	priceClient := pricing.New(pricing.Config{
		BaseURL:   cfg.CoinGeckoURL,
		APIKey:    cfg.CoinGeckoAPIKey,
		Coin:      cfg.PriceCoin,
		Fiat:      cfg.FiatCode,
		Timeout:   cfg.ExternalTimeout,
		CacheSize: cfg.PriceCacheSize,
		CacheTTL:  cfg.PriceCacheTTL,
	}, logger)
	caches.Register(priceClient.Cache())
	caches.StartCleanup(10 * time.Minute)

	countries := country.New(country.Config{BaseURL: cfg.CountriesURL, Timeout: cfg.ExternalTimeout}, logger)

	profiles := services.NewProfileService(result.Store, result.Publisher, logger)
	exporter := report.NewExporter(countries, logo.NewFetcher(logos), loc, logger)
	ledger := services.NewLedgerService(
		explorerClient,
		priceClient,
		valuation.NewJoiner(cfg.PriceConcurrency, logger),
		exporter,
		profiles,
		services.LedgerConfig{Fiat: priceClient.Fiat(), Location: loc},
		logger,
	)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:       ledger,
		Profiles:     profiles,
		Transactions: explorerClient,
		Prices:       priceClient,
		Fiat:         priceClient.Fiat(),
		Countries:    countries,
		Logos:        logos,
		Caches:       caches,
		Logger:       logger,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxUploadBytes:     cfg.MaxUploadBytes,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := result.Cleanup(); err != nil {
			logger.Error("Profile store cleanup error", "error", err)
		}
		if err := closeLogos(); err != nil {
			logger.Error("Logo store cleanup error", "error", err)
		}
	})

	logger.Info("Starting taxbridge server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"logo_backend", cfg.LogoBackend,
		"fiat", priceClient.Fiat(),
		"timezone", loc.String(),
		"profile_sync", cfg.SyncEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// newLogoStore opens the logo backend selected by LOGO_BACKEND.
func newLogoStore(ctx context.Context, cfg *config.Config) (logo.Resolver, func() error, error) {
	switch cfg.LogoBackend {
	case "gcs":
		store, err := logo.NewGCSStore(ctx, cfg.LogoGCSBucket, cfg.LogoAllowOverwrite)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := logo.NewLocalStore(cfg.LogoDir, cfg.LogoPublicURL, cfg.LogoAllowOverwrite)
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}
}
