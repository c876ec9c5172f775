package storage

import "github.com/aluiziolira/sellerwatch/parser"

// Logical document paths.
const (
	SellersPath      = "sellers/sellers.json"
	MatchesPath      = "sellers/matches.json"
	ScanStatusPath   = "sellers/scan-status.json"
	SettingsPath     = "sellers/settings.json"
	ReleaseCachePath = "cache/release-master.json"
	WishlistPath     = "wishlist/masters.json"
)

// InventoryPath is the cached inventory document of a seller.
func InventoryPath(username string) string {
	return "sellers/inventory/" + parser.NormalizeUsername(username) + ".json"
}

// ProgressPath is the resumable scan progress document of a seller.
func ProgressPath(username string) string {
	return "sellers/progress/" + parser.NormalizeUsername(username) + ".json"
}
