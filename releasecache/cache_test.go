package releasecache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/storage"
)

type fakeVersions struct {
	pages map[int][][]int
	calls int
	fail  map[int]bool
}

func (f *fakeVersions) MasterVersions(_ context.Context, masterID, page int) (*discogs.VersionsPage, error) {
	f.calls++
	if f.fail[masterID] {
		return nil, errors.New("upstream down")
	}
	pages := f.pages[masterID]
	resp := &discogs.VersionsPage{Pagination: discogs.Pagination{Page: page, Pages: len(pages)}}
	if page <= len(pages) {
		for _, id := range pages[page-1] {
			resp.Versions = append(resp.Versions, discogs.Version{ID: id})
		}
	}
	return resp, nil
}

func newTestCache(store storage.Store, source VersionSource, now *time.Time) *Cache {
	c := New(store, source, nil)
	c.now = func() time.Time { return *now }
	return c
}

func TestRefreshPopulatesCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeVersions{pages: map[int][][]int{
		77: {{55, 56}, {57}},
		88: {{60}},
	}}
	store := storage.NewMemoryStore()
	c := newTestCache(store, source, &now)

	result, err := c.Refresh(ctx, []int{88, 77})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Fetched != 2 || source.calls != 3 {
		t.Fatalf("result = %+v calls = %d", result, source.calls)
	}
	for release, master := range map[int]int{55: 77, 56: 77, 57: 77, 60: 88} {
		if got, ok := c.Get(ctx, release); !ok || got != master {
			t.Fatalf("Get(%d) = %d, %v want %d", release, got, ok, master)
		}
	}
	if !c.IsComplete(ctx, []int{77, 88}) {
		t.Fatalf("expected complete cache")
	}
	if !store.Has(storage.ReleaseCachePath) {
		t.Fatalf("expected cache persisted")
	}

	// A second cache instance reads what the first persisted.
	reloaded := newTestCache(store, source, &now)
	if got, ok := reloaded.Get(ctx, 57); !ok || got != 77 {
		t.Fatalf("reloaded Get(57) = %d, %v", got, ok)
	}
}

func TestRefreshSkipsFreshAndRefetchesStale(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeVersions{pages: map[int][][]int{77: {{55}}}}
	c := newTestCache(storage.NewMemoryStore(), source, &now)

	if _, err := c.Refresh(ctx, []int{77}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	now = now.Add(29 * 24 * time.Hour)
	result, err := c.Refresh(ctx, []int{77})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Skipped != 1 || source.calls != 1 {
		t.Fatalf("fresh master refetched: result %+v calls %d", result, source.calls)
	}

	now = now.Add(2 * 24 * time.Hour)
	if c.IsComplete(ctx, []int{77}) {
		t.Fatalf("stale master should make cache incomplete")
	}
	if _, err := c.Refresh(ctx, []int{77}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if source.calls != 2 || !c.IsComplete(ctx, []int{77}) {
		t.Fatalf("stale master not refetched: calls %d", source.calls)
	}
}

func TestRefreshPersistsPeriodically(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeVersions{pages: map[int][][]int{}}
	masters := make([]int, 0, 25)
	for i := 1; i <= 25; i++ {
		source.pages[i] = [][]int{{1000 + i}}
		masters = append(masters, i)
	}
	store := storage.NewMemoryStore()
	c := newTestCache(store, source, &now)

	if _, err := c.Refresh(ctx, masters); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if writes := store.Writes(storage.ReleaseCachePath); writes != 3 {
		t.Fatalf("writes = %d, want 3 (after 10, after 20, at end)", writes)
	}
}

func TestRefreshContinuesPastFailedMaster(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeVersions{
		pages: map[int][][]int{1: {{10}}, 2: {{20}}},
		fail:  map[int]bool{1: true},
	}
	c := newTestCache(storage.NewMemoryStore(), source, &now)

	result, err := c.Refresh(ctx, []int{1, 2})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Failed != 1 || result.Fetched != 1 {
		t.Fatalf("result = %+v", result)
	}
	if c.IsComplete(ctx, []int{1, 2}) {
		t.Fatalf("cache with a failed master must not be complete")
	}
}

func TestAddTimestampOnlyWhenRequested(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCache(storage.NewMemoryStore(), nil, &now)

	c.Add(ctx, 55, 77, false)
	if c.IsComplete(ctx, []int{77}) {
		t.Fatalf("master without fetch timestamp should be stale")
	}
	c.Add(ctx, 56, 77, true)
	if !c.IsComplete(ctx, []int{77}) {
		t.Fatalf("expected fresh master after timestamped add")
	}
	c.Add(ctx, 56, 77, false)
	if stats := c.Stats(ctx); stats.Releases != 2 || stats.Masters != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestIsCompleteEmptyWishlist(t *testing.T) {
	now := time.Now()
	c := newTestCache(storage.NewMemoryStore(), nil, &now)
	if c.IsComplete(context.Background(), nil) {
		t.Fatalf("empty wishlist should not report complete")
	}
}

func TestLoadMigratesV1Document(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	lastUpdated := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	legacy := map[string]any{
		"releaseToMaster":  map[string]int{"55": 77, "56": 77},
		"masterToReleases": map[string][]int{"77": {55, 56}},
		"lastUpdated":      lastUpdated,
	}
	if err := store.WriteJSON(ctx, storage.ReleaseCachePath, legacy); err != nil {
		t.Fatalf("seed: %v", err)
	}

	now := lastUpdated.Add(10 * 24 * time.Hour)
	c := newTestCache(store, nil, &now)
	if got, ok := c.Get(ctx, 56); !ok || got != 77 {
		t.Fatalf("Get(56) = %d, %v", got, ok)
	}
	if !c.IsComplete(ctx, []int{77}) {
		t.Fatalf("migrated entry should use lastUpdated as fetch time")
	}
	if err := c.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}

	saved, found, err := storage.Load[document](ctx, store, storage.ReleaseCachePath)
	if err != nil || !found {
		t.Fatalf("load saved: found %v err %v", found, err)
	}
	if saved.SchemaVersion != SchemaVersion {
		t.Fatalf("schema version = %d, want %d", saved.SchemaVersion, SchemaVersion)
	}
	if entry := saved.MasterToReleases[77]; len(entry.Releases) != 2 || !entry.FetchedAt.Equal(lastUpdated) {
		t.Fatalf("migrated entry = %+v", entry)
	}

	now = lastUpdated.Add(31 * 24 * time.Hour)
	if c.IsComplete(ctx, []int{77}) {
		t.Fatalf("migrated entry should go stale 30 days after lastUpdated")
	}
}

func TestLoadCorruptDocumentStartsEmpty(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		doc  map[string]any
	}{
		{name: "wrong shape", doc: map[string]any{"schemaVersion": 2, "releaseToMaster": "oops"}},
		{name: "future schema", doc: map[string]any{"schemaVersion": 9}},
		{name: "bad v1 masters", doc: map[string]any{"masterToReleases": "oops"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			if err := store.WriteJSON(ctx, storage.ReleaseCachePath, tt.doc); err != nil {
				t.Fatalf("seed: %v", err)
			}
			now := time.Now()
			c := newTestCache(store, nil, &now)
			if stats := c.Stats(ctx); stats.Releases != 0 || stats.Masters != 0 {
				t.Fatalf("expected empty cache, got %+v", stats)
			}
			c.Add(ctx, 1, 2, true)
			if got, ok := c.Get(ctx, 1); !ok || got != 2 {
				t.Fatalf("cache unusable after cold start")
			}
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := storage.NewMemoryStore()
	c := newTestCache(store, nil, &now)
	c.Add(ctx, 55, 77, true)
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := c.Get(ctx, 55); ok {
		t.Fatalf("expected empty cache after clear")
	}
	reloaded := newTestCache(store, nil, &now)
	if stats := reloaded.Stats(ctx); stats.Releases != 0 {
		t.Fatalf("clear not persisted: %+v", stats)
	}
}

func TestRefreshWithoutSource(t *testing.T) {
	now := time.Now()
	c := newTestCache(storage.NewMemoryStore(), nil, &now)
	if _, err := c.Refresh(context.Background(), []int{1}); err == nil {
		t.Fatalf("expected error without version source")
	}
}
