package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds monitor configuration.
type Config struct {
	BaseURL   string `envconfig:"SELLERWATCH_BASE_URL"`
	UserAgent string `envconfig:"SELLERWATCH_USER_AGENT"`
	Token     string `envconfig:"SELLERWATCH_TOKEN"`

	ConsumerKey    string `envconfig:"SELLERWATCH_CONSUMER_KEY"`
	ConsumerSecret string `envconfig:"SELLERWATCH_CONSUMER_SECRET"`
	OAuthToken     string `envconfig:"SELLERWATCH_OAUTH_TOKEN"`
	OAuthSecret    string `envconfig:"SELLERWATCH_OAUTH_SECRET"`

	Timeout            time.Duration `envconfig:"SELLERWATCH_TIMEOUT"`
	RateLimitCapacity  int           `envconfig:"SELLERWATCH_RATE_CAPACITY"`
	RateLimitPerSecond float64       `envconfig:"SELLERWATCH_RATE_PER_SECOND"`
	MaxAttempts        int           `envconfig:"SELLERWATCH_MAX_ATTEMPTS"`
	RetryBackoff       time.Duration `envconfig:"SELLERWATCH_RETRY_BACKOFF"`
	RetryBackoffMax    time.Duration `envconfig:"SELLERWATCH_RETRY_BACKOFF_MAX"`
	ArtRetryBackoff    time.Duration `envconfig:"SELLERWATCH_ART_RETRY_BACKOFF"`
	ArtRetryBackoffMax time.Duration `envconfig:"SELLERWATCH_ART_RETRY_BACKOFF_MAX"`

	StorageType string `envconfig:"SELLERWATCH_STORAGE"` // file, sqlite, mysql, postgres, redis, memory
	DataDir     string `envconfig:"SELLERWATCH_DATA_DIR"`
	StorageDSN  string `envconfig:"SELLERWATCH_STORAGE_DSN"`
	RedisAddr   string `envconfig:"SELLERWATCH_REDIS_ADDR"`
	RedisDB     int    `envconfig:"SELLERWATCH_REDIS_DB"`
	RedisPrefix string `envconfig:"SELLERWATCH_REDIS_PREFIX"`

	FullScanInterval   time.Duration `envconfig:"SELLERWATCH_FULL_SCAN_INTERVAL"`
	QuickCheckInterval time.Duration `envconfig:"SELLERWATCH_QUICK_CHECK_INTERVAL"`
	ScheduleInterval   time.Duration `envconfig:"SELLERWATCH_SCHEDULE_INTERVAL"`
	ProgressMaxAge     time.Duration `envconfig:"SELLERWATCH_PROGRESS_MAX_AGE"`
	ReleaseCacheTTL    time.Duration `envconfig:"SELLERWATCH_RELEASE_CACHE_TTL"`
	VerifyBudget       int           `envconfig:"SELLERWATCH_VERIFY_BUDGET"`
	VinylOnly          bool          `envconfig:"SELLERWATCH_VINYL_ONLY"`
	WantlistUser       string        `envconfig:"SELLERWATCH_WANTLIST_USER"`

	ExportBatchSize int    `envconfig:"SELLERWATCH_EXPORT_BATCH_SIZE"`
	ExportWorkers   int    `envconfig:"SELLERWATCH_EXPORT_WORKERS"`
	ExportFormat    string `envconfig:"SELLERWATCH_EXPORT_FORMAT"` // csv, json, dual

	ListenAddr string `envconfig:"SELLERWATCH_LISTEN_ADDR"`
	Verbose    bool   `envconfig:"SELLERWATCH_VERBOSE"`
}

// DefaultConfig returns the defaults used against the public Discogs API.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://api.discogs.com",
		UserAgent:          "sellerwatch/1.0 +https://github.com/aluiziolira/sellerwatch",
		Timeout:            30 * time.Second,
		RateLimitCapacity:  5,
		RateLimitPerSecond: 1,
		MaxAttempts:        3,
		RetryBackoff:       5 * time.Second,
		RetryBackoffMax:    60 * time.Second,
		ArtRetryBackoff:    2 * time.Second,
		ArtRetryBackoffMax: 30 * time.Second,
		StorageType:        "file",
		DataDir:            "data",
		RedisPrefix:        "sellerwatch",
		FullScanInterval:   7 * 24 * time.Hour,
		QuickCheckInterval: 24 * time.Hour,
		ScheduleInterval:   time.Hour,
		ProgressMaxAge:     24 * time.Hour,
		ReleaseCacheTTL:    30 * 24 * time.Hour,
		VerifyBudget:       5,
		VinylOnly:          true,
		ExportBatchSize:    64,
		ExportWorkers:      2,
		ExportFormat:       "dual",
		ListenAddr:         ":8080",
	}
}

// Load reads an optional .env file and applies SELLERWATCH_* overrides to the defaults.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %q: %w", file, err)
		}
	}

	cfg := DefaultConfig()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.RateLimitCapacity <= 0 {
		return fmt.Errorf("rate limit capacity must be positive")
	}
	if c.RateLimitPerSecond <= 0 {
		return fmt.Errorf("rate limit refill must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.RetryBackoff < 0 || c.ArtRetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.ArtRetryBackoffMax > 0 && c.ArtRetryBackoff > c.ArtRetryBackoffMax {
		return fmt.Errorf("art retry backoff (%s) cannot exceed art retry backoff max (%s)", c.ArtRetryBackoff, c.ArtRetryBackoffMax)
	}
	if c.ConsumerKey != "" && (c.ConsumerSecret == "" || c.OAuthToken == "" || c.OAuthSecret == "") {
		return fmt.Errorf("oauth requires consumer secret, token and token secret")
	}

	switch strings.ToLower(c.StorageType) {
	case "file", "sqlite":
		if c.DataDir == "" {
			return fmt.Errorf("data dir cannot be empty for %s storage", c.StorageType)
		}
	case "mysql", "postgres":
		if c.StorageDSN == "" {
			return fmt.Errorf("storage dsn cannot be empty for %s storage", c.StorageType)
		}
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty for redis storage")
		}
	default:
		return fmt.Errorf("storage must be file, sqlite, mysql, postgres, redis or memory")
	}

	if c.FullScanInterval <= 0 {
		return fmt.Errorf("full scan interval must be positive")
	}
	if c.QuickCheckInterval <= 0 {
		return fmt.Errorf("quick check interval must be positive")
	}
	if c.ScheduleInterval < 0 {
		return fmt.Errorf("schedule interval cannot be negative")
	}
	if c.ProgressMaxAge <= 0 {
		return fmt.Errorf("progress max age must be positive")
	}
	if c.ReleaseCacheTTL <= 0 {
		return fmt.Errorf("release cache ttl must be positive")
	}
	if c.VerifyBudget < 0 {
		return fmt.Errorf("verify budget cannot be negative")
	}
	if c.ExportBatchSize <= 0 {
		return fmt.Errorf("export batch size must be positive")
	}
	if c.ExportWorkers <= 0 {
		return fmt.Errorf("export workers must be positive")
	}
	switch strings.ToLower(c.ExportFormat) {
	case "csv", "json", "dual":
	default:
		return fmt.Errorf("export format must be csv, json or dual")
	}

	return nil
}
