package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/sellerwatch/inventory"
	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/scraper"
)

type applySummary struct {
	added      int
	sold       int
	keptActive int
	openCount  int
}

// soldVerdict is the outcome of checking one sold candidate upstream.
type soldVerdict struct {
	sold       bool
	confidence models.StatusConfidence
	verified   bool
}

func (v soldVerdict) apply(match models.SellerMatch, now time.Time) models.SellerMatch {
	match.StatusConfidence = v.confidence
	if v.verified {
		match.LastVerifiedAt = &now
	}
	if v.sold {
		match.Status = models.MatchSold
		match.StatusChangedAt = &now
	}
	return match
}

// applyMatches swaps a seller's matches for the freshly computed set in a single write.
// With detectSold, open matches whose listing is missing from inventory become sold
// candidates; the first VerifyBudget of them are checked upstream and the rest are marked
// sold unverified. Matches still listed but no longer matched are kept as they are.
// Sold matches whose listing reappears in fresh are dropped in favour of the new match.
func (m *Monitor) applyMatches(ctx context.Context, username string, fresh []models.SellerMatch, listed map[int64]struct{}, detectSold bool) (applySummary, error) {
	var summary applySummary

	freshIDs := make(map[int64]struct{}, len(fresh))
	for _, match := range fresh {
		freshIDs[match.ListingID] = struct{}{}
	}

	var verdicts map[int64]soldVerdict
	if detectSold {
		candidates, err := m.soldCandidates(ctx, username, freshIDs, listed)
		if err != nil {
			return summary, err
		}
		verdicts = m.verifySoldCandidates(ctx, username, candidates)
	}

	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	sellers, err := m.loadSellers(ctx)
	if err != nil {
		return summary, err
	}
	if indexOfSeller(sellers, username) < 0 {
		m.logger.Info("seller removed during scan, discarding matches", slog.String("seller", username))
		return summary, nil
	}

	all, err := m.loadMatches(ctx)
	if err != nil {
		return summary, err
	}

	others := make([]models.SellerMatch, 0, len(all))
	current := make(map[int64]models.SellerMatch)
	var mine []models.SellerMatch
	for _, match := range all {
		if match.SellerID != username {
			others = append(others, match)
			continue
		}
		mine = append(mine, match)
		current[match.ListingID] = match
	}

	next := make([]models.SellerMatch, 0, len(fresh)+len(mine))
	added := make(map[int64]struct{}, len(fresh))
	for _, match := range fresh {
		if _, dup := added[match.ListingID]; dup {
			continue
		}
		added[match.ListingID] = struct{}{}
		if cur, ok := current[match.ListingID]; ok && cur.IsOpen() {
			match = keepUserState(cur, match)
		} else {
			summary.added++
		}
		next = append(next, match)
	}

	now := m.now()
	for _, old := range mine {
		if _, ok := added[old.ListingID]; ok {
			continue
		}
		verdict, checked := verdicts[old.ListingID]
		if !checked || !old.IsOpen() {
			next = append(next, old)
			continue
		}
		if verdict.sold {
			summary.sold++
		} else {
			summary.keptActive++
		}
		next = append(next, verdict.apply(old, now))
	}

	for _, match := range next {
		if match.IsOpen() {
			summary.openCount++
		}
	}

	if err := m.writeMatchesLocked(ctx, append(others, next...)); err != nil {
		return summary, err
	}
	return summary, nil
}

// soldCandidates returns the seller's open matches that are neither freshly matched
// nor present in the fetched inventory.
func (m *Monitor) soldCandidates(ctx context.Context, username string, freshIDs, listed map[int64]struct{}) ([]models.SellerMatch, error) {
	existing, err := m.MatchesBySeller(ctx, username)
	if err != nil {
		return nil, err
	}
	var candidates []models.SellerMatch
	for _, match := range existing {
		if !match.IsOpen() {
			continue
		}
		if _, ok := freshIDs[match.ListingID]; ok {
			continue
		}
		if _, ok := listed[match.ListingID]; ok {
			continue
		}
		candidates = append(candidates, match)
	}
	return candidates, nil
}

// verifySoldCandidates checks candidates upstream. It is called without dataMu held.
func (m *Monitor) verifySoldCandidates(ctx context.Context, username string, candidates []models.SellerMatch) map[int64]soldVerdict {
	verdicts := make(map[int64]soldVerdict, len(candidates))
	verified := 0
	for _, match := range candidates {
		verdicts[match.ListingID] = m.resolveSoldCandidate(ctx, username, match, &verified)
	}
	return verdicts
}

func (m *Monitor) resolveSoldCandidate(ctx context.Context, username string, match models.SellerMatch, verified *int) soldVerdict {
	if m.client == nil || *verified >= m.opts.VerifyBudget {
		return soldVerdict{sold: true, confidence: models.ConfidenceUnverified}
	}
	*verified++

	listing, err := m.client.Listing(ctx, match.ListingID)
	switch {
	case err == nil && listing.Available():
		m.logger.Info("sold candidate still for sale",
			slog.String("seller", username),
			slog.Int64("listing_id", match.ListingID),
		)
		return soldVerdict{confidence: models.ConfidenceVerified, verified: true}
	case err == nil || scraper.IsNotFound(err):
		return soldVerdict{sold: true, confidence: models.ConfidenceVerified, verified: true}
	default:
		m.logger.Warn("listing verification failed",
			slog.String("seller", username),
			slog.Int64("listing_id", match.ListingID),
			slog.Any("error", err),
		)
		return soldVerdict{sold: true, confidence: models.ConfidenceUnverified}
	}
}

// markScanned stamps scan times and sizes on the seller.
func (m *Monitor) markScanned(ctx context.Context, username, mode string, fetched inventory.Result, openCount int) error {
	m.dataMu.Lock()
	defer m.dataMu.Unlock()

	sellers, err := m.loadSellers(ctx)
	if err != nil {
		return err
	}
	idx := indexOfSeller(sellers, username)
	if idx < 0 {
		return nil
	}

	now := m.now()
	seller := sellers[idx]
	if mode == ModeFull && fetched.IsComplete {
		seller.LastScanned = &now
	}
	seller.LastQuickCheck = &now
	if fetched.TotalItems > 0 || fetched.IsComplete {
		size := fetched.TotalItems
		seller.InventorySize = &size
	}
	count := openCount
	seller.MatchCount = &count
	sellers[idx] = seller

	if err := m.saveSellers(ctx, sellers); err != nil {
		return fmt.Errorf("update seller %s: %w", username, err)
	}
	return nil
}
