// Package monitor orchestrates seller scans and owns the persisted seller and match state.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/sellerwatch/config"
	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/inventory"
	"github.com/aluiziolira/sellerwatch/matcher"
	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/releasecache"
	"github.com/aluiziolira/sellerwatch/storage"
	"github.com/aluiziolira/sellerwatch/wishlist"
)

const (
	// DefaultVerifyBudget is how many sold candidates are re-checked per seller scan.
	DefaultVerifyBudget = 5
	// DefaultArtworkLimit caps artwork lookups per seller scan.
	DefaultArtworkLimit = 25
)

var (
	ErrSellerExists   = errors.New("seller already monitored")
	ErrSellerNotFound = errors.New("seller not found")
	ErrMatchNotFound  = errors.New("match not found")
)

// Client is the subset of the Discogs API the monitor calls directly.
type Client interface {
	User(ctx context.Context, username string) (*discogs.User, error)
	Listing(ctx context.Context, listingID int64) (*discogs.Listing, error)
	ReleaseArtwork(ctx context.Context, releaseID int) (string, error)
}

// Scanner fetches seller inventories.
type Scanner interface {
	Fetch(ctx context.Context, username string, opts inventory.Options) (inventory.Result, error)
	FetchPage(ctx context.Context, username string, page int, order discogs.SortOrder) (*discogs.InventoryPage, error)
	ClearProgress(ctx context.Context, username string) error
}

// Matcher turns inventory items into matches.
type Matcher interface {
	Match(ctx context.Context, in matcher.Input) ([]models.SellerMatch, matcher.Stats, error)
}

// ReleaseCache is refreshed before each scan.
type ReleaseCache interface {
	Refresh(ctx context.Context, masterIDs []int) (releasecache.RefreshResult, error)
}

// Deps are the collaborators of a Monitor.
type Deps struct {
	Store    storage.Store
	Client   Client
	Scanner  Scanner
	Matcher  Matcher
	Cache    ReleaseCache
	Wishlist wishlist.Source
	Logger   *slog.Logger
	// BaseContext scopes background scans. Defaults to context.Background.
	BaseContext context.Context
}

// Options tunes scan behaviour.
type Options struct {
	Defaults     models.SellerSettings
	VerifyBudget int
	ArtworkLimit int
}

// OptionsFromConfig derives monitor options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Defaults: models.SellerSettings{
			VinylOnly:               cfg.VinylOnly,
			FullScanIntervalDays:    int(cfg.FullScanInterval / (24 * time.Hour)),
			QuickCheckIntervalHours: int(cfg.QuickCheckInterval / time.Hour),
			NotifyOnNewMatch:        true,
		},
		VerifyBudget: cfg.VerifyBudget,
		ArtworkLimit: DefaultArtworkLimit,
	}
}

// Monitor runs scans and serves seller, match and settings operations.
type Monitor struct {
	store    storage.Store
	client   Client
	scanner  Scanner
	matcher  Matcher
	cache    ReleaseCache
	wishlist wishlist.Source
	logger   *slog.Logger
	baseCtx  context.Context
	opts     Options
	now      func() time.Time

	statusMu sync.RWMutex
	status   models.SellerScanStatus

	scanMu     sync.Mutex
	inProgress bool
	wg         sync.WaitGroup

	// dataMu serializes read-modify-write cycles of the sellers and matches documents.
	dataMu sync.Mutex
}

// New creates a Monitor and restores the last persisted scan status.
func New(deps Deps, opts Options) (*Monitor, error) {
	if deps.Store == nil || deps.Scanner == nil || deps.Matcher == nil || deps.Wishlist == nil {
		return nil, errors.New("monitor requires store, scanner, matcher and wishlist")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if opts.VerifyBudget < 0 {
		opts.VerifyBudget = 0
	}
	if opts.Defaults.FullScanIntervalDays <= 0 {
		opts.Defaults.FullScanIntervalDays = 7
	}
	if opts.Defaults.QuickCheckIntervalHours <= 0 {
		opts.Defaults.QuickCheckIntervalHours = 24
	}

	m := &Monitor{
		store:    deps.Store,
		client:   deps.Client,
		scanner:  deps.Scanner,
		matcher:  deps.Matcher,
		cache:    deps.Cache,
		wishlist: deps.Wishlist,
		logger:   deps.Logger.With(slog.String("component", "monitor")),
		baseCtx:  deps.BaseContext,
		opts:     opts,
		now:      time.Now,
		status:   models.SellerScanStatus{Status: models.ScanIdle},
	}
	m.restoreStatus(deps.BaseContext)
	return m, nil
}

// restoreStatus loads the persisted status. A scan interrupted by a crash is reported as an error.
func (m *Monitor) restoreStatus(ctx context.Context) {
	saved, found, err := storage.Load[models.SellerScanStatus](ctx, m.store, storage.ScanStatusPath)
	if err != nil {
		m.logger.Warn("ignoring unreadable scan status", slog.Any("error", err))
		return
	}
	if !found {
		return
	}
	if saved.Status == models.ScanScanning || saved.Status == models.ScanMatching {
		saved.Status = models.ScanError
		saved.Error = "scan interrupted by shutdown"
		saved.CurrentSeller = ""
		saved.Progress = nil
	}
	m.status = saved
}

// ScanStatus returns a copy of the current scan status.
func (m *Monitor) ScanStatus() models.SellerScanStatus {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status.Clone()
}

func (m *Monitor) updateStatus(fn func(*models.SellerScanStatus)) {
	m.statusMu.Lock()
	fn(&m.status)
	m.statusMu.Unlock()
}

func (m *Monitor) persistStatus(ctx context.Context) {
	status := m.ScanStatus()
	if err := m.store.WriteJSON(ctx, storage.ScanStatusPath, status); err != nil {
		m.logger.Warn("failed to persist scan status", slog.Any("error", err))
	}
}

// InProgress reports whether a scan is running.
func (m *Monitor) InProgress() bool {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()
	return m.inProgress
}

// Wait blocks until the running scan, if any, has finished.
func (m *Monitor) Wait() {
	m.wg.Wait()
}
