// Package releasecache keeps the persistent release id to master id index.
package releasecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/storage"
)

const (
	// SchemaVersion is the current on-disk schema.
	SchemaVersion = 2
	// DefaultStaleAfter is how long a master's release list stays fresh.
	DefaultStaleAfter = 30 * 24 * time.Hour
	// persistEvery bounds crash loss during Refresh to this many masters.
	persistEvery = 10
)

// VersionSource enumerates the releases of a master.
type VersionSource interface {
	MasterVersions(ctx context.Context, masterID, page int) (*discogs.VersionsPage, error)
}

// MasterEntry lists the known releases of a master and when they were fetched.
type MasterEntry struct {
	Releases  []int     `json:"releases"`
	FetchedAt time.Time `json:"fetchedAt"`
}

type document struct {
	ReleaseToMaster  map[int]int         `json:"releaseToMaster"`
	MasterToReleases map[int]MasterEntry `json:"masterToReleases"`
	LastUpdated      time.Time           `json:"lastUpdated"`
	SchemaVersion    int                 `json:"schemaVersion"`
}

func emptyDocument() document {
	return document{
		ReleaseToMaster:  make(map[int]int),
		MasterToReleases: make(map[int]MasterEntry),
		SchemaVersion:    SchemaVersion,
	}
}

// Stats summarizes cache contents.
type Stats struct {
	Releases     int       `json:"releases"`
	Masters      int       `json:"masters"`
	StaleMasters int       `json:"staleMasters"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// RefreshResult reports what Refresh did.
type RefreshResult struct {
	Fetched int
	Skipped int
	Failed  int
}

// Cache is the lazily loaded release to master index.
type Cache struct {
	store      storage.Store
	source     VersionSource
	logger     *slog.Logger
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.Mutex
	loaded bool
	dirty  bool
	doc    document
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleAfter overrides the staleness horizon.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.staleAfter = d
		}
	}
}

// New creates a cache backed by store. source may be nil when Refresh is never called.
func New(store storage.Store, source VersionSource, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:      store,
		source:     source,
		logger:     logger.With(slog.String("component", "releasecache")),
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		doc:        emptyDocument(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ensureLoaded reads and migrates the document once. Absent or corrupt documents start empty.
func (c *Cache) ensureLoaded(ctx context.Context) {
	if c.loaded {
		return
	}
	c.loaded = true
	c.doc = emptyDocument()

	var raw map[string]json.RawMessage
	err := c.store.ReadJSON(ctx, storage.ReleaseCachePath, &raw)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		c.logger.Warn("release cache unreadable, starting empty", slog.Any("error", err))
		return
	}

	migrated, err := migrate(raw)
	if err != nil {
		c.logger.Warn("release cache migration failed, starting empty", slog.Any("error", err))
		return
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		c.logger.Warn("release cache re-encode failed, starting empty", slog.Any("error", err))
		return
	}
	doc := emptyDocument()
	if err := json.Unmarshal(encoded, &doc); err != nil {
		c.logger.Warn("release cache corrupt, starting empty", slog.Any("error", err))
		return
	}
	if doc.ReleaseToMaster == nil {
		doc.ReleaseToMaster = make(map[int]int)
	}
	if doc.MasterToReleases == nil {
		doc.MasterToReleases = make(map[int]MasterEntry)
	}
	doc.SchemaVersion = SchemaVersion
	c.doc = doc
	c.dirty = migrated

	c.logger.Debug("loaded release cache",
		slog.Int("releases", len(doc.ReleaseToMaster)),
		slog.Int("masters", len(doc.MasterToReleases)),
		slog.Bool("migrated", migrated),
	)
}

// Get returns the master id of a release when known.
func (c *Cache) Get(ctx context.Context, releaseID int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded(ctx)
	masterID, ok := c.doc.ReleaseToMaster[releaseID]
	return masterID, ok
}

// Add records releaseID under masterID. The master's fetchedAt only moves when updateTimestamp is set.
func (c *Cache) Add(ctx context.Context, releaseID, masterID int, updateTimestamp bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded(ctx)
	c.addLocked(releaseID, masterID, updateTimestamp)
}

func (c *Cache) addLocked(releaseID, masterID int, updateTimestamp bool) {
	now := c.now()
	c.doc.ReleaseToMaster[releaseID] = masterID

	entry := c.doc.MasterToReleases[masterID]
	known := false
	for _, id := range entry.Releases {
		if id == releaseID {
			known = true
			break
		}
	}
	if !known {
		entry.Releases = append(entry.Releases, releaseID)
	}
	if updateTimestamp {
		entry.FetchedAt = now
	}
	c.doc.MasterToReleases[masterID] = entry
	c.doc.LastUpdated = now
	c.dirty = true
}

func (c *Cache) freshLocked(masterID int) bool {
	entry, ok := c.doc.MasterToReleases[masterID]
	if !ok || len(entry.Releases) == 0 {
		return false
	}
	return c.now().Sub(entry.FetchedAt) < c.staleAfter
}

// IsComplete reports whether every master in masterIDs has a fresh, non-empty entry.
// When true, a release missing from the cache cannot belong to any of these masters.
func (c *Cache) IsComplete(ctx context.Context, masterIDs []int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded(ctx)
	if len(masterIDs) == 0 {
		return false
	}
	for _, id := range masterIDs {
		if !c.freshLocked(id) {
			return false
		}
	}
	return true
}

// Refresh fetches the releases of every stale or missing master and persists
// the cache every few masters and at the end.
func (c *Cache) Refresh(ctx context.Context, masterIDs []int) (RefreshResult, error) {
	var result RefreshResult
	if c.source == nil {
		return result, errors.New("release cache has no version source")
	}

	ids := append([]int(nil), masterIDs...)
	sort.Ints(ids)

	processed := 0
	for _, masterID := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		c.mu.Lock()
		c.ensureLoaded(ctx)
		fresh := c.freshLocked(masterID)
		c.mu.Unlock()
		if fresh {
			result.Skipped++
			continue
		}

		releases, err := c.fetchReleases(ctx, masterID)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Failed++
			c.logger.Warn("master versions fetch failed",
				slog.Int("master_id", masterID),
				slog.Any("error", err),
			)
			continue
		}

		c.mu.Lock()
		for i, releaseID := range releases {
			c.addLocked(releaseID, masterID, i == 0)
		}
		c.mu.Unlock()
		result.Fetched++

		processed++
		if processed%persistEvery == 0 {
			if err := c.Save(ctx); err != nil {
				return result, err
			}
		}
	}

	if err := c.Save(ctx); err != nil {
		return result, err
	}
	c.logger.Info("release cache refreshed",
		slog.Int("fetched", result.Fetched),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed),
	)
	return result, nil
}

func (c *Cache) fetchReleases(ctx context.Context, masterID int) ([]int, error) {
	var releases []int
	for page := 1; ; page++ {
		resp, err := c.source.MasterVersions(ctx, masterID, page)
		if err != nil {
			return nil, err
		}
		for _, v := range resp.Versions {
			if v.ID > 0 {
				releases = append(releases, v.ID)
			}
		}
		if page >= resp.Pagination.Pages || len(resp.Versions) == 0 {
			return releases, nil
		}
	}
}

// Save persists the cache when it has unsaved changes.
func (c *Cache) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded || !c.dirty {
		return nil
	}
	if err := c.store.WriteJSON(ctx, storage.ReleaseCachePath, c.doc); err != nil {
		return fmt.Errorf("persist release cache: %w", err)
	}
	c.dirty = false
	return nil
}

// Stats returns cache counts.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoaded(ctx)
	stats := Stats{
		Releases:    len(c.doc.ReleaseToMaster),
		Masters:     len(c.doc.MasterToReleases),
		LastUpdated: c.doc.LastUpdated,
	}
	for id := range c.doc.MasterToReleases {
		if !c.freshLocked(id) {
			stats.StaleMasters++
		}
	}
	return stats
}

// Clear drops every entry and persists the empty cache.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.loaded = true
	c.doc = emptyDocument()
	c.doc.LastUpdated = c.now()
	c.dirty = true
	c.mu.Unlock()
	return c.Save(ctx)
}
