package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int
	MaxUploadBytes     int64

	LogLevel string

	// Profile store
	DataBackend  string
	SQLiteDBPath string

	// AMQP (optional; empty URL disables profile sync)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Block explorer
	EtherscanAPIKey        string
	EtherscanSepoliaAPIKey string
	EtherscanMainnetURL    string
	EtherscanSepoliaURL    string

	// Pricing
	CoinGeckoAPIKey  string
	CoinGeckoURL     string
	PriceCoin        string
	FiatCode         string
	PriceConcurrency int
	PriceCacheSize   int
	PriceCacheTTL    time.Duration

	CountriesURL    string
	ReportTimezone  string
	ExternalTimeout time.Duration

	// Logos
	LogoBackend        string
	LogoDir            string
	LogoPublicURL      string
	LogoGCSBucket      string
	LogoAllowOverwrite bool

	// Google Sheets mirror
	GoogleSpreadsheetID     string
	GoogleProfilesSheetName string

	// Worker
	SyncBatchSize int
	SyncInterval  time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		MaxUploadBytes:     getEnvInt64("MAX_UPLOAD_BYTES", 5<<20),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/taxbridge.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "taxbridge"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_profiles"),

		EtherscanAPIKey:        getEnv("ETHERSCAN_API_KEY", ""),
		EtherscanSepoliaAPIKey: getEnv("ETHERSCAN_SEPOLIA_API_KEY", ""),
		EtherscanMainnetURL:    getEnv("ETHERSCAN_MAINNET_URL", "https://api.etherscan.io"),
		EtherscanSepoliaURL:    getEnv("ETHERSCAN_SEPOLIA_URL", "https://api-sepolia.etherscan.io"),

		CoinGeckoAPIKey:  getEnv("COINGECKO_API_KEY", ""),
		CoinGeckoURL:     getEnv("COINGECKO_URL", "https://api.coingecko.com"),
		PriceCoin:        getEnv("PRICE_COIN", "ethereum"),
		FiatCode:         strings.ToLower(getEnv("FIAT_CODE", "usd")),
		PriceConcurrency: getEnvInt("PRICE_CONCURRENCY", 8),
		PriceCacheSize:   getEnvInt("PRICE_CACHE_SIZE", 1024),
		PriceCacheTTL:    getEnvDuration("PRICE_CACHE_TTL", 24*time.Hour),

		CountriesURL:    getEnv("COUNTRIES_URL", "https://restcountries.com"),
		ReportTimezone:  getEnv("REPORT_TIMEZONE", "Local"),
		ExternalTimeout: getEnvDuration("EXTERNAL_TIMEOUT", 15*time.Second),

		LogoBackend:        getEnv("LOGO_BACKEND", "local"),
		LogoDir:            getEnv("LOGO_DIR", "./data/logos"),
		LogoPublicURL:      getEnv("LOGO_PUBLIC_URL", "/logos"),
		LogoGCSBucket:      getEnv("LOGO_GCS_BUCKET", ""),
		LogoAllowOverwrite: getEnvBool("LOGO_ALLOW_OVERWRITE", false),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleProfilesSheetName: getEnv("GOOGLE_PROFILES_SHEET_NAME", "Profiles"),

		SyncBatchSize: getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 30*time.Second),
	}
}

// Location returns the report time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SyncEnabled reports whether profile writes should be mirrored.
func (c *Config) SyncEnabled() bool {
	return c.AMQPURL != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}
	if c.DataBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	for name, raw := range map[string]string{
		"ETHERSCAN_MAINNET_URL": c.EtherscanMainnetURL,
		"ETHERSCAN_SEPOLIA_URL": c.EtherscanSepoliaURL,
		"COINGECKO_URL":         c.CoinGeckoURL,
		"COUNTRIES_URL":         c.CountriesURL,
	} {
		if u, err := url.Parse(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid %s '%s': must be an http(s) URL", name, raw))
		}
	}

	if c.PriceCoin == "" {
		errors = append(errors, "PRICE_COIN cannot be empty")
	}
	if len(c.FiatCode) != 3 {
		errors = append(errors, fmt.Sprintf("invalid fiat code '%s': must be a 3-letter currency code", c.FiatCode))
	}
	if c.PriceConcurrency < 1 || c.PriceConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid price concurrency %d: must be between 1 and 64", c.PriceConcurrency))
	}
	if c.PriceCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid price cache size %d: must be at least 1", c.PriceCacheSize))
	}
	if c.PriceCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid price cache TTL %v: must be positive", c.PriceCacheTTL))
	}
	if _, err := time.LoadLocation(c.ReportTimezone); err != nil {
		errors = append(errors, fmt.Sprintf("invalid report timezone '%s': %v", c.ReportTimezone, err))
	}
	if c.ExternalTimeout < 100*time.Millisecond || c.ExternalTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid external timeout %v: must be between 100ms and 2m", c.ExternalTimeout))
	}

	switch c.LogoBackend {
	case "local":
		if c.LogoDir == "" {
			errors = append(errors, "LOGO_DIR cannot be empty when using local logo backend")
		}
	case "gcs":
		if c.LogoGCSBucket == "" {
			errors = append(errors, "LOGO_GCS_BUCKET is required when using gcs logo backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid logo backend '%s': must be one of [local gcs]", c.LogoBackend))
	}
	if c.MaxUploadBytes < 1 || c.MaxUploadBytes > 20<<20 {
		errors = append(errors, fmt.Sprintf("invalid max upload bytes %d: must be between 1 and %d", c.MaxUploadBytes, 20<<20))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}
	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

// ValidateWorker checks the settings only the sync worker needs.
func (c *Config) ValidateWorker() error {
	var missing []string
	if c.DataBackend != "sqlite" {
		missing = append(missing, "DATA_BACKEND=sqlite")
	}
	if c.AMQPURL == "" {
		missing = append(missing, "AMQP_URL")
	}
	if c.GoogleSpreadsheetID == "" {
		missing = append(missing, "GOOGLE_SPREADSHEET_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("worker requires %s", strings.Join(missing, ", "))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
