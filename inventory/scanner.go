// Package inventory fetches seller inventories page by page with resumable progress.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/scraper"
	"github.com/aluiziolira/sellerwatch/storage"
)

// DefaultProgressMaxAge is how long saved progress may be resumed.
const DefaultProgressMaxAge = 24 * time.Hour

// PageSource serves inventory pages. discogs.Client implements it.
type PageSource interface {
	InventoryPage(ctx context.Context, username string, page int, order discogs.SortOrder) (*discogs.InventoryPage, error)
}

// Options tunes a single Fetch. PagesLimit 0 means a full scan.
type Options struct {
	PagesLimit int
}

// Result is the outcome of a Fetch.
type Result struct {
	Items      []models.SellerInventoryItem
	TotalItems int
	IsComplete bool
}

// Scanner fetches inventories through a PageSource.
type Scanner struct {
	source         PageSource
	store          storage.Store
	logger         *slog.Logger
	metrics        *scraper.Metrics
	progressMaxAge time.Duration
	now            func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithProgressMaxAge overrides how old resumable progress may be.
func WithProgressMaxAge(d time.Duration) Option {
	return func(s *Scanner) {
		if d > 0 {
			s.progressMaxAge = d
		}
	}
}

// WithMetrics records scanned items.
func WithMetrics(m *scraper.Metrics) Option {
	return func(s *Scanner) {
		s.metrics = m
	}
}

// NewScanner creates a scanner persisting progress into store.
func NewScanner(source PageSource, store storage.Store, logger *slog.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{
		source:         source,
		store:          store,
		logger:         logger.With(slog.String("component", "inventory")),
		progressMaxAge: DefaultProgressMaxAge,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// collector accumulates unique listings in fetch order.
type collector struct {
	items []models.SellerInventoryItem
	seen  map[int64]struct{}
}

func newCollector(items []models.SellerInventoryItem) *collector {
	c := &collector{seen: make(map[int64]struct{}, len(items))}
	c.add(items)
	return c
}

func (c *collector) add(items []models.SellerInventoryItem) int {
	added := 0
	for _, item := range items {
		if _, dup := c.seen[item.ListingID]; dup {
			continue
		}
		c.seen[item.ListingID] = struct{}{}
		c.items = append(c.items, item)
		added++
	}
	return added
}

// Fetch collects a seller's listings newest first. Full scans persist progress after
// every page and resume recent progress; past the provider's page ceiling the remaining
// oldest listings are fetched in ascending order.
func (s *Scanner) Fetch(ctx context.Context, username string, opts Options) (Result, error) {
	full := opts.PagesLimit <= 0
	logger := s.logger.With(slog.String("seller", username))

	startPage := 1
	totalPages, totalItems := 0, 0
	got := newCollector(nil)

	if full {
		progress, ok := s.loadProgress(ctx, username)
		if ok {
			got = newCollector(progress.Items)
			startPage = progress.LastCompletedPage + 1
			totalPages, totalItems = progress.TotalPages, progress.TotalItems
			logger.Info("resuming inventory scan",
				slog.Int("page", startPage),
				slog.Int("total_pages", totalPages),
				slog.Int("items", len(got.items)),
			)
		}
	}

	lastPage := startPage - 1
	for page := startPage; ; page++ {
		if !full && page > opts.PagesLimit {
			break
		}
		if totalPages > 0 && page > totalPages {
			break
		}

		resp, err := s.source.InventoryPage(ctx, username, page, discogs.SortDesc)
		if err != nil {
			if len(got.items) == 0 {
				return Result{}, fmt.Errorf("fetch inventory %s: %w", username, err)
			}
			if scraper.IsHardLimit(err) {
				logger.Info("page ceiling reached, fetching oldest listings ascending",
					slog.Int("page", page),
					slog.Int("collected", len(got.items)),
					slog.Int("total_items", totalItems),
				)
				return s.fetchAscending(ctx, username, got, totalItems, full)
			}
			logger.Warn("inventory fetch interrupted, returning partial result",
				slog.Int("page", page),
				slog.Int("collected", len(got.items)),
				slog.Any("error", err),
			)
			return Result{Items: got.items, TotalItems: totalItems, IsComplete: false}, nil
		}

		totalPages = resp.Pagination.Pages
		totalItems = resp.Pagination.Items
		got.add(resp.Items)
		lastPage = page

		if full {
			s.saveProgress(ctx, username, models.ScanProgress{
				Items:             got.items,
				LastCompletedPage: page,
				TotalPages:        totalPages,
				TotalItems:        totalItems,
				SavedAt:           s.now(),
			})
		}
		if len(resp.Items) == 0 {
			break
		}
	}

	complete := full || lastPage >= totalPages
	if full {
		if err := s.ClearProgress(ctx, username); err != nil {
			logger.Warn("failed to clear scan progress", slog.Any("error", err))
		}
	}
	if totalItems < len(got.items) {
		totalItems = len(got.items)
	}
	s.metrics.AddItems(len(got.items))
	logger.Debug("inventory fetched",
		slog.Int("items", len(got.items)),
		slog.Int("pages", lastPage),
		slog.Bool("complete", complete),
	)
	return Result{Items: got.items, TotalItems: totalItems, IsComplete: complete}, nil
}

// fetchAscending re-reads the inventory oldest first to recover listings beyond
// the descending page ceiling.
func (s *Scanner) fetchAscending(ctx context.Context, username string, got *collector, totalItems int, full bool) (Result, error) {
	missing := totalItems - len(got.items)
	pages := (missing + discogs.PageSize - 1) / discogs.PageSize

	for page := 1; page <= pages; page++ {
		resp, err := s.source.InventoryPage(ctx, username, page, discogs.SortAsc)
		if err != nil {
			s.logger.Warn("ascending inventory fetch failed, returning partial result",
				slog.String("seller", username),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			return Result{Items: got.items, TotalItems: totalItems, IsComplete: false}, nil
		}
		got.add(resp.Items)
		if len(resp.Items) == 0 {
			break
		}
	}

	if full {
		if err := s.ClearProgress(ctx, username); err != nil {
			s.logger.Warn("failed to clear scan progress", slog.String("seller", username), slog.Any("error", err))
		}
	}
	s.metrics.AddItems(len(got.items))
	return Result{Items: got.items, TotalItems: totalItems, IsComplete: true}, nil
}

// FetchPage returns one inventory page without touching progress.
func (s *Scanner) FetchPage(ctx context.Context, username string, page int, order discogs.SortOrder) (*discogs.InventoryPage, error) {
	resp, err := s.source.InventoryPage(ctx, username, page, order)
	if err != nil {
		return nil, err
	}
	s.metrics.AddItems(len(resp.Items))
	return resp, nil
}

// ClearProgress removes a seller's resumable progress.
func (s *Scanner) ClearProgress(ctx context.Context, username string) error {
	return s.store.Delete(ctx, storage.ProgressPath(username))
}

func (s *Scanner) loadProgress(ctx context.Context, username string) (models.ScanProgress, bool) {
	progress, found, err := storage.Load[models.ScanProgress](ctx, s.store, storage.ProgressPath(username))
	if err != nil {
		s.logger.Warn("discarding unreadable scan progress", slog.String("seller", username), slog.Any("error", err))
		_ = s.ClearProgress(ctx, username)
		return models.ScanProgress{}, false
	}
	if !found {
		return models.ScanProgress{}, false
	}
	age := s.now().Sub(progress.SavedAt)
	if age >= s.progressMaxAge || progress.LastCompletedPage < 1 {
		s.logger.Info("discarding stale scan progress",
			slog.String("seller", username),
			slog.Duration("age", age),
		)
		if err := s.ClearProgress(ctx, username); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to clear scan progress", slog.String("seller", username), slog.Any("error", err))
		}
		return models.ScanProgress{}, false
	}
	return progress, true
}

func (s *Scanner) saveProgress(ctx context.Context, username string, progress models.ScanProgress) {
	if err := s.store.WriteJSON(ctx, storage.ProgressPath(username), progress); err != nil {
		s.logger.Warn("failed to save scan progress",
			slog.String("seller", username),
			slog.Int("page", progress.LastCompletedPage),
			slog.Any("error", err),
		)
	}
}
