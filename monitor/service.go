package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/parser"
	"github.com/aluiziolira/sellerwatch/scraper"
	"github.com/aluiziolira/sellerwatch/storage"
)

func indexOfSeller(sellers []models.MonitoredSeller, username string) int {
	for i, s := range sellers {
		if s.Username == username {
			return i
		}
	}
	return -1
}

func (m *Monitor) loadSellers(ctx context.Context) ([]models.MonitoredSeller, error) {
	sellers, _, err := storage.Load[[]models.MonitoredSeller](ctx, m.store, storage.SellersPath)
	if err != nil {
		return nil, fmt.Errorf("load sellers: %w", err)
	}
	if sellers == nil {
		sellers = []models.MonitoredSeller{}
	}
	return sellers, nil
}

func (m *Monitor) saveSellers(ctx context.Context, sellers []models.MonitoredSeller) error {
	if err := m.store.WriteJSON(ctx, storage.SellersPath, sellers); err != nil {
		return fmt.Errorf("save sellers: %w", err)
	}
	return nil
}

func (m *Monitor) loadMatches(ctx context.Context) ([]models.SellerMatch, error) {
	matches, _, err := storage.Load[[]models.SellerMatch](ctx, m.store, storage.MatchesPath)
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}
	if matches == nil {
		matches = []models.SellerMatch{}
	}
	return matches, nil
}

// writeMatchesLocked saves matches and recomputes every seller's matchCount.
// Callers hold dataMu.
func (m *Monitor) writeMatchesLocked(ctx context.Context, matches []models.SellerMatch) error {
	if err := m.store.WriteJSON(ctx, storage.MatchesPath, matches); err != nil {
		return fmt.Errorf("save matches: %w", err)
	}

	sellers, err := m.loadSellers(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(sellers))
	for _, match := range matches {
		if match.IsOpen() {
			counts[match.SellerID]++
		}
	}
	changed := false
	for i := range sellers {
		count := counts[sellers[i].Username]
		if sellers[i].MatchCount != nil && *sellers[i].MatchCount == count {
			continue
		}
		c := count
		sellers[i].MatchCount = &c
		changed = true
	}
	if !changed {
		return nil
	}
	return m.saveSellers(ctx, sellers)
}

// Sellers returns the monitored sellers.
func (m *Monitor) Sellers(ctx context.Context) ([]models.MonitoredSeller, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	return m.loadSellers(ctx)
}

// AddSeller validates username upstream and adds it to the watchlist.
func (m *Monitor) AddSeller(ctx context.Context, username string) (models.MonitoredSeller, error) {
	key := parser.NormalizeUsername(username)
	if key == "" {
		return models.MonitoredSeller{}, fmt.Errorf("username must not be empty")
	}

	m.dataMu.Lock()
	sellers, err := m.loadSellers(ctx)
	m.dataMu.Unlock()
	if err != nil {
		return models.MonitoredSeller{}, err
	}
	if indexOfSeller(sellers, key) >= 0 {
		return models.MonitoredSeller{}, ErrSellerExists
	}

	displayName := username
	if m.client != nil {
		user, err := m.client.User(ctx, key)
		if err != nil {
			if scraper.IsNotFound(err) {
				return models.MonitoredSeller{}, fmt.Errorf("%w: %s", ErrSellerNotFound, key)
			}
			return models.MonitoredSeller{}, fmt.Errorf("validate seller %s: %w", key, err)
		}
		displayName = user.DisplayName()
	}

	seller := models.MonitoredSeller{
		Username:    key,
		DisplayName: displayName,
		AddedAt:     m.now(),
	}

	m.dataMu.Lock()
	defer m.dataMu.Unlock()
	sellers, err = m.loadSellers(ctx)
	if err != nil {
		return models.MonitoredSeller{}, err
	}
	if indexOfSeller(sellers, key) >= 0 {
		return models.MonitoredSeller{}, ErrSellerExists
	}
	sellers = append(sellers, seller)
	if err := m.saveSellers(ctx, sellers); err != nil {
		return models.MonitoredSeller{}, err
	}
	m.logger.Info("seller added", slog.String("seller", key))
	return seller, nil
}

// RemoveSeller drops a seller with its matches, inventory cache and scan progress.
func (m *Monitor) RemoveSeller(ctx context.Context, username string) error {
	key := parser.NormalizeUsername(username)

	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	sellers, err := m.loadSellers(ctx)
	if err != nil {
		return err
	}
	idx := indexOfSeller(sellers, key)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSellerNotFound, key)
	}
	sellers = append(sellers[:idx], sellers[idx+1:]...)
	if err := m.saveSellers(ctx, sellers); err != nil {
		return err
	}

	matches, err := m.loadMatches(ctx)
	if err != nil {
		return err
	}
	kept := matches[:0]
	for _, match := range matches {
		if match.SellerID != key {
			kept = append(kept, match)
		}
	}
	if err := m.writeMatchesLocked(ctx, kept); err != nil {
		return err
	}

	if err := m.store.Delete(ctx, storage.InventoryPath(key)); err != nil {
		m.logger.Warn("failed to delete inventory cache", slog.String("seller", key), slog.Any("error", err))
	}
	if err := m.scanner.ClearProgress(ctx, key); err != nil {
		m.logger.Warn("failed to delete scan progress", slog.String("seller", key), slog.Any("error", err))
	}
	m.logger.Info("seller removed", slog.String("seller", key))
	return nil
}

// AllMatches returns every match, newest first.
func (m *Monitor) AllMatches(ctx context.Context) ([]models.SellerMatch, error) {
	m.dataMu.Lock()
	matches, err := m.loadMatches(ctx)
	m.dataMu.Unlock()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].DateFound.After(matches[j].DateFound)
	})
	return matches, nil
}

// MatchesBySeller returns the matches of one seller.
func (m *Monitor) MatchesBySeller(ctx context.Context, username string) ([]models.SellerMatch, error) {
	key := parser.NormalizeUsername(username)
	m.dataMu.Lock()
	matches, err := m.loadMatches(ctx)
	m.dataMu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]models.SellerMatch, 0)
	for _, match := range matches {
		if match.SellerID == key {
			out = append(out, match)
		}
	}
	return out, nil
}

// updateMatches applies fn to every match under the data lock and saves when fn reports a change.
func (m *Monitor) updateMatches(ctx context.Context, fn func(*models.SellerMatch) bool) (int, error) {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	matches, err := m.loadMatches(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	for i := range matches {
		if fn(&matches[i]) {
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := m.writeMatchesLocked(ctx, matches); err != nil {
		return 0, err
	}
	return changed, nil
}

// MarkSeen moves an active match to seen.
func (m *Monitor) MarkSeen(ctx context.Context, id string) error {
	found := false
	now := m.now()
	_, err := m.updateMatches(ctx, func(match *models.SellerMatch) bool {
		if match.ID != id {
			return false
		}
		found = true
		if match.Status != models.MatchActive {
			return false
		}
		match.Status = models.MatchSeen
		match.StatusChangedAt = &now
		return true
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return nil
}

// MarkAllSeen moves every active match to seen and returns how many changed.
func (m *Monitor) MarkAllSeen(ctx context.Context) (int, error) {
	now := m.now()
	return m.updateMatches(ctx, func(match *models.SellerMatch) bool {
		if match.Status != models.MatchActive {
			return false
		}
		match.Status = models.MatchSeen
		match.StatusChangedAt = &now
		return true
	})
}

// MarkNotified sets the notified flag on the given matches.
func (m *Monitor) MarkNotified(ctx context.Context, ids []string) (int, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return m.updateMatches(ctx, func(match *models.SellerMatch) bool {
		if _, ok := wanted[match.ID]; !ok || match.Notified {
			return false
		}
		match.Notified = true
		return true
	})
}

// PruneSold deletes sold matches whose status changed more than olderThan ago.
func (m *Monitor) PruneSold(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.now().Add(-olderThan)

	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	matches, err := m.loadMatches(ctx)
	if err != nil {
		return 0, err
	}
	kept := make([]models.SellerMatch, 0, len(matches))
	pruned := 0
	for _, match := range matches {
		if match.Status == models.MatchSold {
			changed := match.DateFound
			if match.StatusChangedAt != nil {
				changed = *match.StatusChangedAt
			}
			if changed.Before(cutoff) {
				pruned++
				continue
			}
		}
		kept = append(kept, match)
	}
	if pruned == 0 {
		return 0, nil
	}
	if err := m.writeMatchesLocked(ctx, kept); err != nil {
		return 0, err
	}
	m.logger.Info("pruned sold matches", slog.Int("count", pruned))
	return pruned, nil
}

// Settings returns the stored settings, falling back to defaults.
func (m *Monitor) Settings(ctx context.Context) (models.SellerSettings, error) {
	settings, found, err := storage.Load[models.SellerSettings](ctx, m.store, storage.SettingsPath)
	if err != nil {
		return m.opts.Defaults, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		return m.opts.Defaults, nil
	}
	if settings.FullScanIntervalDays <= 0 {
		settings.FullScanIntervalDays = m.opts.Defaults.FullScanIntervalDays
	}
	if settings.QuickCheckIntervalHours <= 0 {
		settings.QuickCheckIntervalHours = m.opts.Defaults.QuickCheckIntervalHours
	}
	return settings, nil
}

// UpdateSettings validates and stores settings.
func (m *Monitor) UpdateSettings(ctx context.Context, settings models.SellerSettings) error {
	if settings.FullScanIntervalDays <= 0 {
		return fmt.Errorf("full scan interval must be at least one day")
	}
	if settings.QuickCheckIntervalHours <= 0 {
		return fmt.Errorf("quick check interval must be at least one hour")
	}
	if err := m.store.WriteJSON(ctx, storage.SettingsPath, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// InventoryCache returns the last complete inventory of a seller.
func (m *Monitor) InventoryCache(ctx context.Context, username string) (models.SellerInventoryCache, bool, error) {
	return storage.Load[models.SellerInventoryCache](ctx, m.store, storage.InventoryPath(username))
}
