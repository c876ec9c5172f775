package discogs

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/sellerwatch/scraper"
)

const testBaseURL = "http://api.discogs.test"

func newTestClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	fetcher, err := scraper.NewFetcher(scraper.FetcherConfig{
		BaseURL:   testBaseURL,
		UserAgent: "sellerwatch-test",
		Timeout:   time.Second,
		Limiter:   scraper.NewRateLimiter(1000, 1000),
		Metrics:   scraper.NewMetrics(),
	})
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	fetcher.WithTransport(transport)

	fast := scraper.Policy{Name: "test", MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
	client, err := New(testBaseURL, fetcher,
		WithExecutor(scraper.NewExecutor(fast, nil, nil)),
		WithArtworkExecutor(scraper.NewExecutor(fast, nil, nil)),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, transport
}

const inventoryFixture = `{
  "pagination": {"page": 1, "pages": 3, "per_page": 100, "items": 250},
  "listings": [
    {
      "id": 1001,
      "status": "For Sale",
      "condition": "Very Good Plus (VG+)",
      "sleeve_condition": "Very Good (VG)",
      "uri": "https://www.discogs.com/sell/item/1001",
      "posted": "2024-03-01T10:00:00-08:00",
      "price": {"value": "12.50", "currency": "EUR"},
      "release": {"id": 55, "artist": "Can", "title": "Tago Mago", "format": "LP, Album, RE", "thumb": "https://img/55.jpg"}
    },
    {
      "id": 1002,
      "price": {"value": 7, "currency": "USD"},
      "release": {"id": 56, "description": "Neu! - Neu! 2 (LP, Album)"}
    },
    {
      "id": 1003,
      "price": null,
      "release": {"id": 57, "artist": "Faust", "title": "IV", "format": ""}
    }
  ]
}`

func TestInventoryPageNormalizesListings(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/users/vinylshop/inventory",
		func(req *http.Request) (*http.Response, error) {
			q := req.URL.Query()
			if q.Get("sort") != "listed" || q.Get("sort_order") != "desc" || q.Get("per_page") != "100" || q.Get("page") != "1" {
				return httpmock.NewStringResponse(http.StatusBadRequest, "bad query "+req.URL.RawQuery), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, inventoryFixture), nil
		})

	page, err := client.InventoryPage(context.Background(), "vinylshop", 1, SortDesc)
	if err != nil {
		t.Fatalf("inventory page: %v", err)
	}
	if page.Pagination.Pages != 3 || page.Pagination.Items != 250 {
		t.Fatalf("pagination = %+v", page.Pagination)
	}
	if len(page.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(page.Items))
	}

	first := page.Items[0]
	if first.Price != 12.5 || first.Currency != "EUR" {
		t.Fatalf("first price = %v %s, want 12.5 EUR", first.Price, first.Currency)
	}
	if strings.Join(first.Format, "|") != "LP|Album|RE" {
		t.Fatalf("first format = %v", first.Format)
	}
	if first.ListedAt == nil || first.ListedAt.UTC().Hour() != 18 {
		t.Fatalf("listedAt = %v", first.ListedAt)
	}
	if first.Condition == "" || first.SleeveCondition == "" || first.CoverImage == "" {
		t.Fatalf("first item missing fields: %+v", first)
	}

	second := page.Items[1]
	if second.Price != 7 || second.Artist != "Neu!" || second.Title != "Neu! 2" {
		t.Fatalf("second item = %+v", second)
	}
	if second.ListingURL != "https://www.discogs.com/sell/item/1002" {
		t.Fatalf("listing url fallback = %q", second.ListingURL)
	}

	third := page.Items[2]
	if third.Price != 0 || third.Format == nil || len(third.Format) != 0 {
		t.Fatalf("third item defaults = price %v format %#v", third.Price, third.Format)
	}
}

func TestInventoryPageAscendingOrder(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/users/vinylshop/inventory",
		func(req *http.Request) (*http.Response, error) {
			if req.URL.Query().Get("sort_order") != "asc" {
				return httpmock.NewStringResponse(http.StatusBadRequest, "expected asc"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"pagination":{"page":2,"pages":2},"listings":[]}`), nil
		})

	page, err := client.InventoryPage(context.Background(), "vinylshop", 2, SortAsc)
	if err != nil {
		t.Fatalf("inventory page: %v", err)
	}
	if page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("expected empty non-nil items, got %#v", page.Items)
	}
}

func TestInventoryPageHardLimitNotRetried(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/users/vinylshop/inventory",
		httpmock.NewStringResponder(http.StatusForbidden, `{"message": "Pagination above 100 disabled for inventories besides your own."}`))

	_, err := client.InventoryPage(context.Background(), "vinylshop", 101, SortDesc)
	if !scraper.IsHardLimit(err) {
		t.Fatalf("expected hard limit, got %v", err)
	}
	if calls := transport.GetTotalCallCount(); calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestInventoryPageRetriesRateLimit(t *testing.T) {
	client, transport := newTestClient(t)
	calls := 0
	transport.RegisterResponder("GET", testBaseURL+"/users/vinylshop/inventory",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, inventoryFixture), nil
		})

	page, err := client.InventoryPage(context.Background(), "vinylshop", 1, SortDesc)
	if err != nil {
		t.Fatalf("inventory page: %v", err)
	}
	if calls != 3 || len(page.Items) != 3 {
		t.Fatalf("calls = %d items = %d, want 3 and 3", calls, len(page.Items))
	}
}

func TestUserNotFound(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/users/ghost",
		httpmock.NewStringResponder(http.StatusNotFound, `{"message": "User does not exist or may have been deleted."}`))

	_, err := client.User(context.Background(), "ghost")
	if !scraper.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserDisplayName(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/users/vinylshop",
		httpmock.NewStringResponder(http.StatusOK, `{"id": 9, "username": "VinylShop", "name": "The Vinyl Shop", "num_for_sale": 250}`))

	user, err := client.User(context.Background(), "vinylshop")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if user.DisplayName() != "The Vinyl Shop" || user.NumForSale != 250 {
		t.Fatalf("user = %+v", user)
	}
	if (User{Username: "bare"}).DisplayName() != "bare" {
		t.Fatalf("display name should fall back to username")
	}
}

func TestListingAvailability(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/marketplace/listings/1001",
		httpmock.NewStringResponder(http.StatusOK, `{"id": 1001, "status": "For Sale"}`))
	transport.RegisterResponder("GET", testBaseURL+"/marketplace/listings/1002",
		httpmock.NewStringResponder(http.StatusOK, `{"id": 1002, "status": "Sold"}`))

	tests := []struct {
		id        int64
		available bool
	}{
		{id: 1001, available: true},
		{id: 1002, available: false},
	}
	for _, tt := range tests {
		listing, err := client.Listing(context.Background(), tt.id)
		if err != nil {
			t.Fatalf("listing %d: %v", tt.id, err)
		}
		if listing.Available() != tt.available {
			t.Fatalf("listing %d available = %v, want %v", tt.id, listing.Available(), tt.available)
		}
	}
}

func TestMasterVersionsAndRelease(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/masters/77/versions",
		httpmock.NewStringResponder(http.StatusOK, `{"pagination":{"page":1,"pages":1},"versions":[{"id":55},{"id":56}]}`))
	transport.RegisterResponder("GET", testBaseURL+"/releases/55",
		httpmock.NewStringResponder(http.StatusOK, `{"id":55,"master_id":77,"thumb":"https://img/thumb.jpg","images":[{"type":"secondary","uri150":"https://img/back.jpg"},{"type":"primary","uri150":"https://img/front.jpg"}]}`))

	versions, err := client.MasterVersions(context.Background(), 77, 1)
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	if len(versions.Versions) != 2 || versions.Pagination.Pages != 1 {
		t.Fatalf("versions = %+v", versions)
	}

	release, err := client.Release(context.Background(), 55)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if release.MasterID != 77 {
		t.Fatalf("master id = %d, want 77", release.MasterID)
	}

	art, err := client.ReleaseArtwork(context.Background(), 55)
	if err != nil {
		t.Fatalf("artwork: %v", err)
	}
	if art != "https://img/front.jpg" {
		t.Fatalf("artwork = %q, want primary image", art)
	}
}

func TestWants(t *testing.T) {
	client, transport := newTestClient(t)
	transport.RegisterResponder("GET", testBaseURL+"/users/collector/wants",
		httpmock.NewStringResponder(http.StatusOK, `{"pagination":{"page":1,"pages":1},"wants":[{"id":55,"basic_information":{"id":55,"master_id":77}}]}`))

	wants, err := client.Wants(context.Background(), "collector", 1)
	if err != nil {
		t.Fatalf("wants: %v", err)
	}
	if len(wants.Wants) != 1 || wants.Wants[0].BasicInformation.MasterID != 77 {
		t.Fatalf("wants = %+v", wants)
	}
}

func TestNewRequiresFetcher(t *testing.T) {
	if _, err := New(testBaseURL, nil); err == nil {
		t.Fatalf("expected error for nil fetcher")
	}
}
