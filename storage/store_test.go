package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/sellerwatch/config"
	"github.com/aluiziolira/sellerwatch/models"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	lite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "docs.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { lite.Close() })
	return map[string]Store{
		"file":   file,
		"memory": NewMemoryStore(),
		"sqlite": lite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var missing []models.MonitoredSeller
			if err := store.ReadJSON(ctx, SellersPath, &missing); !errors.Is(err, ErrNotFound) {
				t.Fatalf("read missing = %v, want ErrNotFound", err)
			}

			sellers := []models.MonitoredSeller{
				{Username: "vinylshop", DisplayName: "Vinyl Shop", AddedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
			}
			if err := store.WriteJSON(ctx, SellersPath, sellers); err != nil {
				t.Fatalf("write: %v", err)
			}
			sellers[0].DisplayName = "Renamed"
			if err := store.WriteJSON(ctx, SellersPath, sellers); err != nil {
				t.Fatalf("overwrite: %v", err)
			}

			got, found, err := Load[[]models.MonitoredSeller](ctx, store, SellersPath)
			if err != nil || !found {
				t.Fatalf("load = found %v err %v", found, err)
			}
			if len(got) != 1 || got[0].DisplayName != "Renamed" || !got[0].AddedAt.Equal(sellers[0].AddedAt) {
				t.Fatalf("loaded %+v", got)
			}

			if err := store.Delete(ctx, SellersPath); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := store.Delete(ctx, SellersPath); err != nil {
				t.Fatalf("delete absent: %v", err)
			}
			if _, found, err := Load[[]models.MonitoredSeller](ctx, store, SellersPath); err != nil || found {
				t.Fatalf("load after delete = found %v err %v", found, err)
			}
		})
	}
}

func TestStoreRejectsEscapingPaths(t *testing.T) {
	ctx := context.Background()
	tests := []string{"", "/etc/passwd", "../outside.json", "sellers/../../outside.json"}
	for name, store := range backends(t) {
		for _, p := range tests {
			if err := store.WriteJSON(ctx, p, map[string]int{"a": 1}); err == nil {
				t.Fatalf("%s: write %q should fail", name, p)
			}
		}
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := store.WriteJSON(ctx, InventoryPath("VinylShop"), models.SellerInventoryCache{Username: "vinylshop", TotalItems: i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	entries, err := os.ReadDir(filepath.Join(dir, "sellers", "inventory"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "vinylshop.json" {
		names := []string{}
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("inventory dir = %v, want [vinylshop.json]", names)
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	full := filepath.Join(dir, filepath.FromSlash(ReleaseCachePath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string]any
	err = store.ReadJSON(context.Background(), ReleaseCachePath, &out)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestPaths(t *testing.T) {
	if got := InventoryPath(" VinylShop "); got != "sellers/inventory/vinylshop.json" {
		t.Fatalf("inventory path = %q", got)
	}
	if got := ProgressPath("VinylShop"); got != "sellers/progress/vinylshop.json" {
		t.Fatalf("progress path = %q", got)
	}
}

func TestMemoryStoreCountsWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := store.WriteJSON(ctx, MatchesPath, []int{i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if store.Writes(MatchesPath) != 2 || !store.Has(MatchesPath) {
		t.Fatalf("writes = %d has = %v", store.Writes(MatchesPath), store.Has(MatchesPath))
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	tests := []struct {
		storage string
		wantErr bool
	}{
		{storage: "file"},
		{storage: "memory"},
		{storage: "sqlite"},
		{storage: "carrier-pigeon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.storage, func(t *testing.T) {
			cfg.StorageType = tt.storage
			store, err := Open(ctx, cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer store.Close()
			if err := store.WriteJSON(ctx, SettingsPath, models.SellerSettings{VinylOnly: true}); err != nil {
				t.Fatalf("write: %v", err)
			}
		})
	}
}
