package models

import "time"

// ScanState is a step of the global scan state machine.
type ScanState string

const (
	ScanIdle      ScanState = "idle"
	ScanScanning  ScanState = "scanning"
	ScanMatching  ScanState = "matching"
	ScanCompleted ScanState = "completed"
	ScanError     ScanState = "error"
)

// MatchProgress is published while listings are matched against the wishlist.
type MatchProgress struct {
	ItemsProcessed int `json:"itemsProcessed"`
	TotalItems     int `json:"totalItems"`
	CacheHits      int `json:"cacheHits"`
	APICalls       int `json:"apiCalls"`
}

// SellerScanStatus is the process-wide scan status polled by callers.
type SellerScanStatus struct {
	ScanID            string         `json:"scanId,omitempty"`
	Status            ScanState      `json:"status"`
	CurrentSeller     string         `json:"currentSeller,omitempty"`
	SellersScanned    int            `json:"sellersScanned"`
	TotalSellers      int            `json:"totalSellers"`
	NewMatches        int            `json:"newMatches"`
	Progress          *MatchProgress `json:"progress,omitempty"`
	LastScanStarted   *time.Time     `json:"lastScanStarted,omitempty"`
	LastScanCompleted *time.Time     `json:"lastScanCompleted,omitempty"`
	Error             string         `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand out to pollers.
func (s SellerScanStatus) Clone() SellerScanStatus {
	out := s
	if s.Progress != nil {
		p := *s.Progress
		out.Progress = &p
	}
	return out
}

// ScanResult summarizes the work done for one seller during a scan.
type ScanResult struct {
	Username    string
	Mode        string
	Items       int
	Complete    bool
	NewMatches  int
	MarkedSold  int
	Reactivated int
	Skipped     bool
}
