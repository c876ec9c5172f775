// Package matcher turns scanned listings into wishlist matches.
package matcher

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/parser"
	"github.com/aluiziolira/sellerwatch/scraper"
)

const (
	// ProgressEvery is how many items pass between progress callbacks.
	ProgressEvery = 50
	// DefaultSessionSize bounds the per-scan release lookup cache.
	DefaultSessionSize = 10000
)

// MasterCache is the persistent release to master index.
type MasterCache interface {
	Get(ctx context.Context, releaseID int) (int, bool)
	Add(ctx context.Context, releaseID, masterID int, updateTimestamp bool)
	IsComplete(ctx context.Context, masterIDs []int) bool
	Save(ctx context.Context) error
}

// ReleaseLookup resolves release metadata upstream.
type ReleaseLookup interface {
	Release(ctx context.Context, releaseID int) (*discogs.Release, error)
}

// ProgressFunc receives matching progress.
type ProgressFunc func(models.MatchProgress)

// Session remembers release lookups for the duration of one scan.
// A stored master id of 0 records a release without a master.
type Session struct {
	masters *lru.Cache[int, int]
}

// NewSession creates a session cache holding at most size releases.
func NewSession(size int) *Session {
	if size <= 0 {
		size = DefaultSessionSize
	}
	cache, err := lru.New[int, int](size)
	if err != nil {
		panic(err)
	}
	return &Session{masters: cache}
}

// Len returns the number of remembered releases.
func (s *Session) Len() int {
	return s.masters.Len()
}

// Input is a single seller's matching job.
type Input struct {
	Items     []models.SellerInventoryItem
	SellerID  string
	Existing  []models.SellerMatch
	Wishlist  []int
	VinylOnly bool
	Session   *Session
	Progress  ProgressFunc
}

// Stats counts what Match did.
type Stats struct {
	ItemsProcessed int
	CacheHits      int
	SessionHits    int
	APICalls       int
	LookupErrors   int
	Filtered       int
	Carried        int
	NewMatches     int
}

func (s Stats) progress(total int) models.MatchProgress {
	return models.MatchProgress{
		ItemsProcessed: s.ItemsProcessed,
		TotalItems:     total,
		CacheHits:      s.CacheHits,
		APICalls:       s.APICalls,
	}
}

// Engine matches inventory items against wishlist masters.
type Engine struct {
	cache   MasterCache
	lookup  ReleaseLookup
	logger  *slog.Logger
	metrics *scraper.Metrics
	now     func() time.Time
}

// NewEngine creates a matching engine.
func NewEngine(cache MasterCache, lookup ReleaseLookup, metrics *scraper.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cache:   cache,
		lookup:  lookup,
		logger:  logger.With(slog.String("component", "matcher")),
		metrics: metrics,
		now:     time.Now,
	}
}

// Match returns the matches for in.Items. Existing open matches keep their identity,
// status and notified flag; only price, currency and condition are refreshed.
func (e *Engine) Match(ctx context.Context, in Input) ([]models.SellerMatch, Stats, error) {
	var stats Stats
	total := len(in.Items)
	logger := e.logger.With(slog.String("seller", in.SellerID))

	existing := make(map[int64]models.SellerMatch, len(in.Existing))
	for _, m := range in.Existing {
		if m.IsOpen() {
			existing[m.ListingID] = m
		}
	}
	wishlist := make(map[int]struct{}, len(in.Wishlist))
	for _, id := range in.Wishlist {
		wishlist[id] = struct{}{}
	}
	session := in.Session
	if session == nil {
		session = NewSession(0)
	}
	complete := len(wishlist) > 0 && e.cache.IsComplete(ctx, in.Wishlist)

	matches := make([]models.SellerMatch, 0)
	emitted := make(map[int64]struct{})

	for i, item := range in.Items {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		stats.ItemsProcessed = i + 1
		if i > 0 && i%ProgressEvery == 0 && in.Progress != nil {
			in.Progress(models.MatchProgress{ItemsProcessed: i, TotalItems: total, CacheHits: stats.CacheHits, APICalls: stats.APICalls})
		}

		if _, dup := emitted[item.ListingID]; dup {
			continue
		}
		if in.VinylOnly && !parser.IsVinyl(item.Format) {
			stats.Filtered++
			continue
		}

		if prior, ok := existing[item.ListingID]; ok {
			matches = append(matches, carryForward(prior, item))
			emitted[item.ListingID] = struct{}{}
			stats.Carried++
			continue
		}
		if len(wishlist) == 0 {
			continue
		}

		masterID, ok := e.resolveMaster(ctx, logger, item, complete, session, &stats)
		if !ok {
			continue
		}
		if _, wanted := wishlist[masterID]; !wanted {
			continue
		}

		matches = append(matches, e.newMatch(in.SellerID, item, masterID))
		emitted[item.ListingID] = struct{}{}
		stats.NewMatches++
	}

	if stats.APICalls > 0 {
		if err := e.cache.Save(ctx); err != nil {
			logger.Warn("failed to persist release cache", slog.Any("error", err))
		}
	}
	if in.Progress != nil {
		in.Progress(stats.progress(total))
	}
	e.metrics.AddMatches(stats.NewMatches)

	logger.Debug("matched inventory",
		slog.Int("items", total),
		slog.Int("new_matches", stats.NewMatches),
		slog.Int("carried", stats.Carried),
		slog.Int("cache_hits", stats.CacheHits),
		slog.Int("api_calls", stats.APICalls),
	)
	return matches, stats, nil
}

// resolveMaster finds the master id of an item's release. ok is false when the
// release has no master or cannot be resolved.
func (e *Engine) resolveMaster(ctx context.Context, logger *slog.Logger, item models.SellerInventoryItem, complete bool, session *Session, stats *Stats) (int, bool) {
	if item.MasterID > 0 {
		return item.MasterID, true
	}
	if masterID, ok := e.cache.Get(ctx, item.ReleaseID); ok {
		stats.CacheHits++
		e.metrics.IncLookup("cache")
		return masterID, masterID > 0
	}
	if complete {
		e.metrics.IncLookup("complete_skip")
		return 0, false
	}
	if masterID, ok := session.masters.Get(item.ReleaseID); ok {
		stats.SessionHits++
		e.metrics.IncLookup("session")
		return masterID, masterID > 0
	}
	if e.lookup == nil || item.ReleaseID <= 0 {
		return 0, false
	}

	stats.APICalls++
	e.metrics.IncLookup("api")
	release, err := e.lookup.Release(ctx, item.ReleaseID)
	if err != nil {
		stats.LookupErrors++
		logger.Warn("release lookup failed",
			slog.Int("release_id", item.ReleaseID),
			slog.Int64("listing_id", item.ListingID),
			slog.Any("error", err),
		)
		return 0, false
	}
	session.masters.Add(item.ReleaseID, release.MasterID)
	if release.MasterID > 0 {
		e.cache.Add(ctx, item.ReleaseID, release.MasterID, false)
		return release.MasterID, true
	}
	return 0, false
}

func carryForward(prior models.SellerMatch, item models.SellerInventoryItem) models.SellerMatch {
	updated := prior
	updated.Price = item.Price
	updated.Currency = item.Currency
	updated.Condition = item.Condition
	if updated.CoverImage == "" {
		updated.CoverImage = item.CoverImage
	}
	return updated
}

func (e *Engine) newMatch(sellerID string, item models.SellerInventoryItem, masterID int) models.SellerMatch {
	format := item.Format
	if format == nil {
		format = []string{}
	}
	return models.SellerMatch{
		ID:         models.MatchID(item.ListingID),
		SellerID:   sellerID,
		ReleaseID:  item.ReleaseID,
		MasterID:   masterID,
		Artist:     item.Artist,
		Title:      item.Title,
		Format:     format,
		Condition:  item.Condition,
		Price:      item.Price,
		Currency:   item.Currency,
		ListingURL: item.ListingURL,
		ListingID:  item.ListingID,
		DateFound:  e.now(),
		Notified:   false,
		Status:     models.MatchActive,
		CoverImage: item.CoverImage,
	}
}
