// Package wishlist supplies the set of wanted master ids.
package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/sellerwatch/discogs"
	"github.com/aluiziolira/sellerwatch/storage"
)

// DefaultMaxAge is how long a fetched wantlist is reused before refetching.
const DefaultMaxAge = 6 * time.Hour

// Source returns wishlisted master ids.
type Source interface {
	MasterIDs(ctx context.Context) ([]int, error)
}

// Document is the persisted wishlist.
type Document struct {
	MasterIDs []int     `json:"masterIds"`
	UpdatedAt time.Time `json:"updatedAt"`
	Source    string    `json:"source,omitempty"`
}

// normalize returns the positive ids sorted and deduplicated.
func normalize(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// Static is a fixed wishlist.
type Static []int

// MasterIDs implements Source.
func (s Static) MasterIDs(context.Context) ([]int, error) {
	return normalize(s), nil
}

// StoreSource reads the wishlist document from storage.
type StoreSource struct {
	store storage.Store
}

// NewStoreSource creates a storage-backed wishlist.
func NewStoreSource(store storage.Store) *StoreSource {
	return &StoreSource{store: store}
}

// MasterIDs implements Source. A missing document is an empty wishlist.
func (s *StoreSource) MasterIDs(ctx context.Context) ([]int, error) {
	doc, _, err := storage.Load[Document](ctx, s.store, storage.WishlistPath)
	if err != nil {
		return nil, fmt.Errorf("load wishlist: %w", err)
	}
	return normalize(doc.MasterIDs), nil
}

// Replace overwrites the stored wishlist.
func (s *StoreSource) Replace(ctx context.Context, ids []int) error {
	doc := Document{MasterIDs: normalize(ids), UpdatedAt: time.Now(), Source: "manual"}
	if err := s.store.WriteJSON(ctx, storage.WishlistPath, doc); err != nil {
		return fmt.Errorf("save wishlist: %w", err)
	}
	return nil
}

// WantsClient lists a user's wantlist. discogs.Client implements it.
type WantsClient interface {
	Wants(ctx context.Context, username string, page int) (*discogs.WantsPage, error)
}

// DiscogsSource derives master ids from a Discogs wantlist and caches them in storage.
type DiscogsSource struct {
	client   WantsClient
	username string
	store    storage.Store
	logger   *slog.Logger
	maxAge   time.Duration
	now      func() time.Time
}

// NewDiscogsSource creates a wantlist-backed source for username.
func NewDiscogsSource(client WantsClient, username string, store storage.Store, logger *slog.Logger) (*DiscogsSource, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("wantlist username required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscogsSource{
		client:   client,
		username: username,
		store:    store,
		logger:   logger.With(slog.String("component", "wishlist")),
		maxAge:   DefaultMaxAge,
		now:      time.Now,
	}, nil
}

// MasterIDs implements Source. A recent cached copy is reused; when the wantlist
// cannot be fetched the cached copy is served regardless of age.
func (s *DiscogsSource) MasterIDs(ctx context.Context) ([]int, error) {
	cached, found, err := storage.Load[Document](ctx, s.store, storage.WishlistPath)
	if err != nil {
		s.logger.Warn("ignoring unreadable wishlist cache", slog.Any("error", err))
		found = false
	}
	if found && cached.Source == s.source() && s.now().Sub(cached.UpdatedAt) < s.maxAge {
		return normalize(cached.MasterIDs), nil
	}

	ids, err := s.fetch(ctx)
	if err != nil {
		if found {
			s.logger.Warn("wantlist fetch failed, using cached wishlist",
				slog.String("user", s.username),
				slog.Any("error", err),
			)
			return normalize(cached.MasterIDs), nil
		}
		return nil, err
	}

	doc := Document{MasterIDs: ids, UpdatedAt: s.now(), Source: s.source()}
	if err := s.store.WriteJSON(ctx, storage.WishlistPath, doc); err != nil {
		s.logger.Warn("failed to cache wishlist", slog.Any("error", err))
	}
	return ids, nil
}

func (s *DiscogsSource) source() string {
	return "wantlist:" + strings.ToLower(s.username)
}

func (s *DiscogsSource) fetch(ctx context.Context) ([]int, error) {
	var ids []int
	for page := 1; ; page++ {
		resp, err := s.client.Wants(ctx, s.username, page)
		if err != nil {
			return nil, fmt.Errorf("fetch wantlist: %w", err)
		}
		for _, want := range resp.Wants {
			ids = append(ids, want.BasicInformation.MasterID)
		}
		if page >= resp.Pagination.Pages || len(resp.Wants) == 0 {
			break
		}
	}
	ids = normalize(ids)
	s.logger.Info("wantlist fetched", slog.String("user", s.username), slog.Int("masters", len(ids)))
	return ids, nil
}
