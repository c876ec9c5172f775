package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/inventory"
	"github.com/aluiziolira/sellerwatch/matcher"
	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/storage"
)

// Scan modes.
const (
	ModeFull  = "full"
	ModeQuick = "quick"
	ModeSkip  = "skip"
)

// StartScan begins a scan of every monitored seller in the background and returns
// the status right after the transition to scanning. When a scan is already running
// the current status is returned unchanged.
func (m *Monitor) StartScan(forceFresh bool) models.SellerScanStatus {
	m.scanMu.Lock()
	if m.inProgress {
		m.scanMu.Unlock()
		return m.ScanStatus()
	}

	ctx := m.baseCtx
	sellers, err := m.Sellers(ctx)
	if err != nil {
		m.scanMu.Unlock()
		m.logger.Error("failed to load sellers", slog.Any("error", err))
		now := m.now()
		m.updateStatus(func(s *models.SellerScanStatus) {
			s.Status = models.ScanError
			s.Error = err.Error()
			s.LastScanCompleted = &now
		})
		return m.ScanStatus()
	}

	m.inProgress = true
	scanID := uuid.NewString()
	started := m.now()
	m.updateStatus(func(s *models.SellerScanStatus) {
		*s = models.SellerScanStatus{
			ScanID:            scanID,
			Status:            models.ScanScanning,
			TotalSellers:      len(sellers),
			LastScanStarted:   &started,
			LastScanCompleted: s.LastScanCompleted,
		}
	})
	m.wg.Add(1)
	m.scanMu.Unlock()

	m.persistStatus(ctx)
	go m.run(ctx, scanID, sellers, forceFresh)
	return m.ScanStatus()
}

// run scans every seller sequentially. The in-progress flag is always cleared,
// including when the scan panics.
func (m *Monitor) run(ctx context.Context, scanID string, sellers []models.MonitoredSeller, forceFresh bool) {
	logger := m.logger.With(slog.String("scan_id", scanID))
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scan panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			m.finish(ctx, fmt.Errorf("scan panicked: %v", r))
		}
		m.scanMu.Lock()
		m.inProgress = false
		m.scanMu.Unlock()
	}()

	logger.Info("scan started", slog.Int("sellers", len(sellers)), slog.Bool("force_fresh", forceFresh))

	masterIDs, err := m.wishlist.MasterIDs(ctx)
	if err != nil {
		logger.Error("failed to load wishlist", slog.Any("error", err))
		m.finish(ctx, fmt.Errorf("load wishlist: %w", err))
		return
	}
	if m.cache != nil && len(masterIDs) > 0 {
		if _, err := m.cache.Refresh(ctx, masterIDs); err != nil {
			logger.Warn("release cache refresh failed", slog.Any("error", err))
		}
	}
	settings, err := m.Settings(ctx)
	if err != nil {
		logger.Warn("using default settings", slog.Any("error", err))
		settings = m.opts.Defaults
	}

	session := matcher.NewSession(0)
	var firstErr error
	for i, seller := range sellers {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		m.updateStatus(func(s *models.SellerScanStatus) {
			s.Status = models.ScanScanning
			s.CurrentSeller = seller.Username
			s.Progress = nil
		})

		result, err := m.scanSeller(ctx, seller, masterIDs, settings, forceFresh, session)
		if err != nil {
			logger.Error("seller scan failed",
				slog.String("seller", seller.Username),
				slog.Any("error", err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("seller %s: %w", seller.Username, err)
			}
		} else {
			logger.Info("seller scanned",
				slog.String("seller", seller.Username),
				slog.String("mode", result.Mode),
				slog.Int("items", result.Items),
				slog.Bool("complete", result.Complete),
				slog.Int("new_matches", result.NewMatches),
				slog.Int("marked_sold", result.MarkedSold),
				slog.Int("reactivated", result.Reactivated),
			)
		}

		m.updateStatus(func(s *models.SellerScanStatus) {
			s.SellersScanned = i + 1
			s.NewMatches += result.NewMatches
		})
		m.persistStatus(ctx)
	}

	m.finish(ctx, firstErr)
}

func (m *Monitor) finish(ctx context.Context, err error) {
	now := m.now()
	m.updateStatus(func(s *models.SellerScanStatus) {
		s.CurrentSeller = ""
		s.LastScanCompleted = &now
		if err != nil {
			s.Status = models.ScanError
			s.Error = err.Error()
			return
		}
		s.Status = models.ScanCompleted
		s.Error = ""
	})
	m.persistStatus(ctx)
	status := m.ScanStatus()
	m.logger.Info("scan finished",
		slog.String("scan_id", status.ScanID),
		slog.String("status", string(status.Status)),
		slog.Int("sellers_scanned", status.SellersScanned),
		slog.Int("new_matches", status.NewMatches),
	)
}

// scanMode decides between a full scan, a quick check and skipping the seller.
func scanMode(seller models.MonitoredSeller, settings models.SellerSettings, forceFresh bool, now time.Time) string {
	if forceFresh || seller.LastScanned == nil || now.Sub(*seller.LastScanned) >= settings.FullScanInterval() {
		return ModeFull
	}
	lastCheck := *seller.LastScanned
	if seller.LastQuickCheck != nil && seller.LastQuickCheck.After(lastCheck) {
		lastCheck = *seller.LastQuickCheck
	}
	if now.Sub(lastCheck) >= settings.QuickCheckInterval() {
		return ModeQuick
	}
	return ModeSkip
}

func (m *Monitor) scanSeller(ctx context.Context, seller models.MonitoredSeller, masterIDs []int, settings models.SellerSettings, forceFresh bool, session *matcher.Session) (models.ScanResult, error) {
	now := m.now()
	result := models.ScanResult{Username: seller.Username, Mode: scanMode(seller, settings, forceFresh, now)}
	if result.Mode == ModeSkip {
		result.Skipped = true
		return result, nil
	}

	var fetched inventory.Result
	var err error
	switch result.Mode {
	case ModeFull:
		fetched, err = m.fetchFull(ctx, seller.Username, forceFresh)
	default:
		fetched, err = m.scanner.Fetch(ctx, seller.Username, inventory.Options{PagesLimit: 1})
	}
	if err != nil {
		return result, err
	}
	result.Items = len(fetched.Items)
	result.Complete = fetched.IsComplete

	m.updateStatus(func(s *models.SellerScanStatus) {
		s.Status = models.ScanMatching
		s.Progress = &models.MatchProgress{TotalItems: len(fetched.Items)}
	})

	existing, err := m.MatchesBySeller(ctx, seller.Username)
	if err != nil {
		return result, err
	}
	fresh, _, err := m.matcher.Match(ctx, matcher.Input{
		Items:     fetched.Items,
		SellerID:  seller.Username,
		Existing:  existing,
		Wishlist:  masterIDs,
		VinylOnly: settings.VinylOnly,
		Session:   session,
		Progress: func(p models.MatchProgress) {
			m.updateStatus(func(s *models.SellerScanStatus) {
				progress := p
				s.Progress = &progress
			})
		},
	})
	if err != nil {
		return result, fmt.Errorf("match inventory: %w", err)
	}
	m.backfillArtwork(ctx, seller.Username, existing, fresh)

	detectSold := result.Mode == ModeFull && fetched.IsComplete
	listed := make(map[int64]struct{}, len(fetched.Items))
	for _, item := range fetched.Items {
		listed[item.ListingID] = struct{}{}
	}
	summary, err := m.applyMatches(ctx, seller.Username, fresh, listed, detectSold)
	if err != nil {
		return result, err
	}
	result.NewMatches = summary.added
	result.MarkedSold = summary.sold
	result.Reactivated = summary.keptActive

	if err := m.recordInventory(ctx, seller.Username, result.Mode, fetched); err != nil {
		m.logger.Warn("failed to cache inventory", slog.String("seller", seller.Username), slog.Any("error", err))
	}
	if err := m.markScanned(ctx, seller.Username, result.Mode, fetched, summary.openCount); err != nil {
		return result, err
	}
	return result, nil
}

// fetchFull reuses a complete cached inventory when possible and falls back to a full fetch.
func (m *Monitor) fetchFull(ctx context.Context, username string, forceFresh bool) (inventory.Result, error) {
	if !forceFresh {
		cached, found, err := m.InventoryCache(ctx, username)
		if err != nil {
			m.logger.Warn("ignoring unreadable inventory cache", slog.String("seller", username), slog.Any("error", err))
		}
		if found && len(cached.Items) > 0 {
			result, ok, err := m.fetchIncremental(ctx, username, cached)
			if err != nil {
				return inventory.Result{}, err
			}
			if ok {
				return result, nil
			}
		}
	}
	return m.scanner.Fetch(ctx, username, inventory.Options{})
}

// fetchIncremental fetches pages newest first until one contains a cached listing and
// merges the new leading listings with the cached tail. ok is false when the merged
// inventory disagrees with the reported total, which means listings left the tail.
func (m *Monitor) fetchIncremental(ctx context.Context, username string, cached models.SellerInventoryCache) (inventory.Result, bool, error) {
	known := make(map[int64]struct{}, len(cached.Items))
	for _, item := range cached.Items {
		known[item.ListingID] = struct{}{}
	}

	var leading []models.SellerInventoryItem
	seen := make(map[int64]struct{})
	total := 0
	for page := 1; ; page++ {
		resp, err := m.scanner.FetchPage(ctx, username, page, discogs.SortDesc)
		if err != nil {
			if len(leading) == 0 && page == 1 {
				return inventory.Result{}, false, err
			}
			m.logger.Warn("incremental scan interrupted, falling back to full fetch",
				slog.String("seller", username),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			return inventory.Result{}, false, nil
		}
		total = resp.Pagination.Items

		hit := false
		for _, item := range resp.Items {
			if _, ok := known[item.ListingID]; ok {
				hit = true
				continue
			}
			if _, dup := seen[item.ListingID]; dup {
				continue
			}
			seen[item.ListingID] = struct{}{}
			leading = append(leading, item)
		}
		if hit || len(resp.Items) == 0 || page >= resp.Pagination.Pages {
			break
		}
	}

	merged := make([]models.SellerInventoryItem, 0, len(leading)+len(cached.Items))
	merged = append(merged, leading...)
	for _, item := range cached.Items {
		if _, dup := seen[item.ListingID]; dup {
			continue
		}
		merged = append(merged, item)
	}

	if total > 0 && len(merged) != total {
		m.logger.Info("cached inventory out of date, running full fetch",
			slog.String("seller", username),
			slog.Int("merged", len(merged)),
			slog.Int("reported", total),
		)
		return inventory.Result{}, false, nil
	}
	m.logger.Debug("incremental inventory merged",
		slog.String("seller", username),
		slog.Int("new_items", len(leading)),
		slog.Int("cached_items", len(cached.Items)),
	)
	return inventory.Result{Items: merged, TotalItems: len(merged), IsComplete: true}, true, nil
}

// recordInventory writes the inventory cache for complete fetches. Quick checks of
// larger inventories only stamp quickCheckAt on an existing cache.
func (m *Monitor) recordInventory(ctx context.Context, username, mode string, fetched inventory.Result) error {
	now := m.now()
	path := storage.InventoryPath(username)
	if fetched.IsComplete {
		doc := models.SellerInventoryCache{
			Username:   username,
			FetchedAt:  now,
			TotalItems: fetched.TotalItems,
			Items:      fetched.Items,
		}
		if mode == ModeQuick {
			doc.QuickCheckAt = &now
		}
		return m.store.WriteJSON(ctx, path, doc)
	}
	if mode != ModeQuick {
		return nil
	}
	cached, found, err := storage.Load[models.SellerInventoryCache](ctx, m.store, path)
	if err != nil || !found {
		return err
	}
	cached.QuickCheckAt = &now
	return m.store.WriteJSON(ctx, path, cached)
}

// backfillArtwork fills cover images of newly found matches.
func (m *Monitor) backfillArtwork(ctx context.Context, username string, existing, fresh []models.SellerMatch) {
	if m.client == nil || m.opts.ArtworkLimit <= 0 {
		return
	}
	known := make(map[int64]struct{}, len(existing))
	for _, match := range existing {
		if match.IsOpen() {
			known[match.ListingID] = struct{}{}
		}
	}
	looked := 0
	for i := range fresh {
		if fresh[i].CoverImage != "" || fresh[i].ReleaseID <= 0 {
			continue
		}
		if _, ok := known[fresh[i].ListingID]; ok {
			continue
		}
		if looked >= m.opts.ArtworkLimit {
			return
		}
		looked++
		image, err := m.client.ReleaseArtwork(ctx, fresh[i].ReleaseID)
		if err != nil {
			m.logger.Debug("artwork lookup failed",
				slog.String("seller", username),
				slog.Int("release_id", fresh[i].ReleaseID),
				slog.Any("error", err),
			)
			continue
		}
		fresh[i].CoverImage = image
	}
}
