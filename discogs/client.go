// Package discogs wraps the Discogs REST endpoints the seller monitor uses.
package discogs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/scraper"
)

// PageSize is the largest page Discogs serves for list endpoints.
const PageSize = 100

// SortOrder selects the listing order of inventory pages.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// Client issues Discogs requests through a shared fetcher and retry policies.
type Client struct {
	baseURL string
	fetcher *scraper.Fetcher
	market  *scraper.Executor
	artwork *scraper.Executor
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithExecutor overrides the marketplace retry executor.
func WithExecutor(exec *scraper.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.market = exec
		}
	}
}

// WithArtworkExecutor overrides the executor used for artwork lookups.
func WithArtworkExecutor(exec *scraper.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.artwork = exec
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Discogs client.
func New(baseURL string, fetcher *scraper.Fetcher, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("discogs base url required")
	}
	if fetcher == nil {
		return nil, errors.New("discogs fetcher required")
	}
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.market == nil {
		client.market = scraper.NewExecutor(scraper.MarketplacePolicy, fetcher.Metrics, client.logger)
	}
	if client.artwork == nil {
		client.artwork = scraper.NewExecutor(scraper.ArtworkPolicy, fetcher.Metrics, client.logger)
	}
	return client, nil
}

// User fetches a public profile. Unknown users surface as scraper.ErrNotFound.
func (c *Client) User(ctx context.Context, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username must not be empty")
	}
	endpoint := c.baseURL + "/users/" + url.PathEscape(username)
	return scraper.Retry(ctx, c.market, func(ctx context.Context) (*User, error) {
		var user User
		if err := c.fetcher.GetJSON(ctx, "user", endpoint, &user); err != nil {
			return nil, fmt.Errorf("fetch user %s: %w", username, err)
		}
		if user.Username == "" {
			user.Username = username
		}
		return &user, nil
	})
}

// InventoryPage fetches one 100-item page of a seller's inventory sorted by listing date.
func (c *Client) InventoryPage(ctx context.Context, username string, page int, order SortOrder) (*InventoryPage, error) {
	if page < 1 {
		page = 1
	}
	if order != SortAsc {
		order = SortDesc
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(PageSize))
	params.Set("sort", "listed")
	params.Set("sort_order", string(order))
	endpoint := c.baseURL + "/users/" + url.PathEscape(username) + "/inventory?" + params.Encode()

	return scraper.Retry(ctx, c.market, func(ctx context.Context) (*InventoryPage, error) {
		var payload inventoryResponse
		if err := c.fetcher.GetJSON(ctx, "inventory", endpoint, &payload); err != nil {
			return nil, fmt.Errorf("fetch inventory %s page %d: %w", username, page, err)
		}
		result := &InventoryPage{Pagination: payload.Pagination}
		result.Items = make([]models.SellerInventoryItem, 0, len(payload.Listings))
		for _, listing := range payload.Listings {
			if listing.ID == 0 {
				continue
			}
			result.Items = append(result.Items, listing.toItem())
		}
		return result, nil
	})
}

// Listing fetches a single marketplace listing.
func (c *Client) Listing(ctx context.Context, listingID int64) (*Listing, error) {
	endpoint := c.baseURL + "/marketplace/listings/" + strconv.FormatInt(listingID, 10)
	return scraper.Retry(ctx, c.market, func(ctx context.Context) (*Listing, error) {
		var listing Listing
		if err := c.fetcher.GetJSON(ctx, "listing", endpoint, &listing); err != nil {
			return nil, fmt.Errorf("fetch listing %d: %w", listingID, err)
		}
		return &listing, nil
	})
}

// MasterVersions fetches one page of the releases belonging to a master.
func (c *Client) MasterVersions(ctx context.Context, masterID, page int) (*VersionsPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(PageSize))
	endpoint := c.baseURL + "/masters/" + strconv.Itoa(masterID) + "/versions?" + params.Encode()

	return scraper.Retry(ctx, c.market, func(ctx context.Context) (*VersionsPage, error) {
		var versions VersionsPage
		if err := c.fetcher.GetJSON(ctx, "master_versions", endpoint, &versions); err != nil {
			return nil, fmt.Errorf("fetch master %d versions page %d: %w", masterID, page, err)
		}
		return &versions, nil
	})
}

// Release fetches release metadata under the marketplace policy.
func (c *Client) Release(ctx context.Context, releaseID int) (*Release, error) {
	return c.release(ctx, c.market, "release", releaseID)
}

// ReleaseArtwork returns the cover image URL of a release under the artwork policy.
func (c *Client) ReleaseArtwork(ctx context.Context, releaseID int) (string, error) {
	release, err := c.release(ctx, c.artwork, "artwork", releaseID)
	if err != nil {
		return "", err
	}
	return release.CoverImage(), nil
}

func (c *Client) release(ctx context.Context, exec *scraper.Executor, label string, releaseID int) (*Release, error) {
	endpoint := c.baseURL + "/releases/" + strconv.Itoa(releaseID)
	return scraper.Retry(ctx, exec, func(ctx context.Context) (*Release, error) {
		var release Release
		if err := c.fetcher.GetJSON(ctx, label, endpoint, &release); err != nil {
			return nil, fmt.Errorf("fetch release %d: %w", releaseID, err)
		}
		return &release, nil
	})
}

// Wants fetches one page of a user's wantlist.
func (c *Client) Wants(ctx context.Context, username string, page int) (*WantsPage, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(PageSize))
	endpoint := c.baseURL + "/users/" + url.PathEscape(username) + "/wants?" + params.Encode()

	return scraper.Retry(ctx, c.market, func(ctx context.Context) (*WantsPage, error) {
		var wants WantsPage
		if err := c.fetcher.GetJSON(ctx, "wants", endpoint, &wants); err != nil {
			return nil, fmt.Errorf("fetch wants %s page %d: %w", username, page, err)
		}
		return &wants, nil
	})
}
