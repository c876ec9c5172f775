package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/aluiziolira/sellerwatch/config"
	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/inventory"
	"github.com/aluiziolira/sellerwatch/matcher"
	"github.com/aluiziolira/sellerwatch/monitor"
	"github.com/aluiziolira/sellerwatch/releasecache"
	"github.com/aluiziolira/sellerwatch/scraper"
	"github.com/aluiziolira/sellerwatch/storage"
	"github.com/aluiziolira/sellerwatch/wishlist"
)

// commandContext lazily builds the application shared by all subcommands.
type commandContext struct {
	envFile string
	dataDir string
	storage string
	verbose bool

	app  *app
	lock *flock.Flock
}

// app is the fully wired monitor stack.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    storage.Store
	metrics  *scraper.Metrics
	client   *discogs.Client
	cache    *releasecache.Cache
	scanner  *inventory.Scanner
	wishlist wishlist.Source
	manual   *wishlist.StoreSource
	monitor  *monitor.Monitor
}

func (c *commandContext) config() (*config.Config, error) {
	var files []string
	if c.envFile != "" {
		files = append(files, c.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if c.dataDir != "" {
		cfg.DataDir = c.dataDir
	}
	if c.storage != "" {
		cfg.StorageType = c.storage
	}
	if c.verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// open wires config, storage, the Discogs client and the monitor. baseCtx scopes
// background scans.
func (c *commandContext) open(baseCtx context.Context) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	logger, _ := newLogger(cfg.Verbose, os.Stderr)
	slog.SetDefault(logger)

	store, err := storage.Open(baseCtx, cfg)
	if err != nil {
		return nil, err
	}

	metrics := scraper.NewMetrics()
	fetcher, err := scraper.NewFetcher(scraper.FetcherConfig{
		BaseURL:   cfg.BaseURL,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Limiter:   scraper.NewRateLimiter(cfg.RateLimitCapacity, cfg.RateLimitPerSecond),
		Auth:      discogs.NewAuthenticator(cfg),
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create fetcher: %w", err)
	}

	market := scraper.NewExecutor(scraper.Policy{
		Name:           scraper.MarketplacePolicy.Name,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.RetryBackoff,
		MaxBackoff:     cfg.RetryBackoffMax,
	}, metrics, logger)
	artwork := scraper.NewExecutor(scraper.Policy{
		Name:           scraper.ArtworkPolicy.Name,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.ArtRetryBackoff,
		MaxBackoff:     cfg.ArtRetryBackoffMax,
	}, metrics, logger)
	client, err := discogs.New(cfg.BaseURL, fetcher,
		discogs.WithExecutor(market),
		discogs.WithArtworkExecutor(artwork),
		discogs.WithLogger(logger),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	cache := releasecache.New(store, client, logger, releasecache.WithStaleAfter(cfg.ReleaseCacheTTL))
	scanner := inventory.NewScanner(client, store, logger,
		inventory.WithProgressMaxAge(cfg.ProgressMaxAge),
		inventory.WithMetrics(metrics),
	)
	engine := matcher.NewEngine(cache, client, metrics, logger)

	manual := wishlist.NewStoreSource(store)
	var source wishlist.Source = manual
	if cfg.WantlistUser != "" {
		wants, err := wishlist.NewDiscogsSource(client, cfg.WantlistUser, store, logger)
		if err != nil {
			store.Close()
			return nil, err
		}
		source = wants
	}

	mon, err := monitor.New(monitor.Deps{
		Store:       store,
		Client:      client,
		Scanner:     scanner,
		Matcher:     engine,
		Cache:       cache,
		Wishlist:    source,
		Logger:      logger,
		BaseContext: baseCtx,
	}, monitor.OptionsFromConfig(cfg))
	if err != nil {
		store.Close()
		return nil, err
	}

	c.app = &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		metrics:  metrics,
		client:   client,
		cache:    cache,
		scanner:  scanner,
		wishlist: source,
		manual:   manual,
		monitor:  mon,
	}
	return c.app, nil
}

// acquireLock ensures a single scanning process per data directory.
func (c *commandContext) acquireLock(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	lockPath := filepath.Join(cfg.DataDir, "sellerwatch.lock")
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another sellerwatch process holds %s", lockPath)
	}
	c.lock = lock
	return nil
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.monitor.Wait()
		if err := c.app.store.Close(); err != nil {
			c.app.logger.Warn("failed to close storage", slog.Any("error", err))
		}
		c.app = nil
	}
	if c.lock != nil {
		_ = c.lock.Unlock()
		c.lock = nil
	}
}
