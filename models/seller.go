// Package models defines data structures for the seller monitor.
package models

import (
	"strconv"
	"time"
)

// MonitoredSeller is a marketplace seller on the user's watchlist.
type MonitoredSeller struct {
	Username       string     `json:"username"`
	DisplayName    string     `json:"displayName"`
	AddedAt        time.Time  `json:"addedAt"`
	LastScanned    *time.Time `json:"lastScanned,omitempty"`
	LastQuickCheck *time.Time `json:"lastQuickCheck,omitempty"`
	InventorySize  *int       `json:"inventorySize,omitempty"`
	MatchCount     *int       `json:"matchCount,omitempty"`
}

// SellerInventoryItem is a single marketplace listing captured during a scan.
type SellerInventoryItem struct {
	ListingID       int64      `json:"listingId"`
	ReleaseID       int        `json:"releaseId"`
	MasterID        int        `json:"masterId,omitempty"`
	Artist          string     `json:"artist"`
	Title           string     `json:"title"`
	Format          []string   `json:"format"`
	Condition       string     `json:"condition"`
	SleeveCondition string     `json:"sleeveCondition,omitempty"`
	Price           float64    `json:"price"`
	Currency        string     `json:"currency"`
	ListingURL      string     `json:"listingUrl"`
	CoverImage      string     `json:"coverImage,omitempty"`
	ListedAt        *time.Time `json:"listedAt,omitempty"`
}

// SellerInventoryCache is the last complete inventory fetched for a seller.
type SellerInventoryCache struct {
	Username     string                `json:"username"`
	FetchedAt    time.Time             `json:"fetchedAt"`
	QuickCheckAt *time.Time            `json:"quickCheckAt,omitempty"`
	TotalItems   int                   `json:"totalItems"`
	Items        []SellerInventoryItem `json:"items"`
}

// ScanProgress is the resumable state of an interrupted full inventory fetch.
type ScanProgress struct {
	Items             []SellerInventoryItem `json:"items"`
	LastCompletedPage int                   `json:"lastCompletedPage"`
	TotalPages        int                   `json:"totalPages"`
	TotalItems        int                   `json:"totalItems"`
	SavedAt           time.Time             `json:"savedAt"`
}

// MatchStatus is the lifecycle state of a SellerMatch.
type MatchStatus string

const (
	MatchActive MatchStatus = "active"
	MatchSeen   MatchStatus = "seen"
	MatchSold   MatchStatus = "sold"
)

// StatusConfidence records whether a sold/active decision was confirmed upstream.
type StatusConfidence string

const (
	ConfidenceVerified   StatusConfidence = "verified"
	ConfidenceUnverified StatusConfidence = "unverified"
)

// SellerMatch is a seller listing whose release belongs to a wishlisted master.
type SellerMatch struct {
	ID               string           `json:"id"`
	SellerID         string           `json:"sellerId"`
	ReleaseID        int              `json:"releaseId"`
	MasterID         int              `json:"masterId,omitempty"`
	Artist           string           `json:"artist"`
	Title            string           `json:"title"`
	Format           []string         `json:"format"`
	Condition        string           `json:"condition"`
	Price            float64          `json:"price"`
	Currency         string           `json:"currency"`
	ListingURL       string           `json:"listingUrl"`
	ListingID        int64            `json:"listingId"`
	DateFound        time.Time        `json:"dateFound"`
	Notified         bool             `json:"notified"`
	Status           MatchStatus      `json:"status"`
	StatusChangedAt  *time.Time       `json:"statusChangedAt,omitempty"`
	StatusConfidence StatusConfidence `json:"statusConfidence,omitempty"`
	LastVerifiedAt   *time.Time       `json:"lastVerifiedAt,omitempty"`
	CoverImage       string           `json:"coverImage,omitempty"`
}

// MatchID returns the deterministic match identity for a listing.
func MatchID(listingID int64) string {
	return strconv.FormatInt(listingID, 10)
}

// IsOpen reports whether the match still counts towards a seller's matchCount.
func (m SellerMatch) IsOpen() bool {
	return m.Status != MatchSold
}

// SellerSettings holds the user-editable monitoring preferences.
type SellerSettings struct {
	VinylOnly               bool `json:"vinylOnly"`
	FullScanIntervalDays    int  `json:"fullScanIntervalDays"`
	QuickCheckIntervalHours int  `json:"quickCheckIntervalHours"`
	NotifyOnNewMatch        bool `json:"notifyOnNewMatch"`
}

// FullScanInterval converts the day-based setting to a duration.
func (s SellerSettings) FullScanInterval() time.Duration {
	return time.Duration(s.FullScanIntervalDays) * 24 * time.Hour
}

// QuickCheckInterval converts the hour-based setting to a duration.
func (s SellerSettings) QuickCheckInterval() time.Duration {
	return time.Duration(s.QuickCheckIntervalHours) * time.Hour
}
