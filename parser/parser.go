package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/sellerwatch/models"
)

// vinylMarkers are matched case-insensitively against each format token.
var vinylMarkers = []string{
	"vinyl",
	"lp",
	`12"`, "12”", "12″",
	`10"`, "10”", "10″",
	`7"`, "7”", "7″",
}

// ValidateMatch ensures a match carries the fields downstream consumers rely on.
func ValidateMatch(m *models.SellerMatch) error {
	if m == nil {
		return fmt.Errorf("match is nil")
	}
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("match missing id")
	}
	if strings.TrimSpace(m.SellerID) == "" {
		return fmt.Errorf("match missing seller for %s", m.ID)
	}
	if m.ListingID <= 0 {
		return fmt.Errorf("match missing listing id for %s", m.ID)
	}
	if m.ID != models.MatchID(m.ListingID) {
		return fmt.Errorf("match id %s does not match listing %d", m.ID, m.ListingID)
	}
	return nil
}

// ParsePrice converts an upstream price value to a number. Unparseable input yields 0.
func ParsePrice(raw string) float64 {
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, `"`)
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return value
}

// SplitFormats splits a listing format description on ", ".
func SplitFormats(format string) []string {
	out := []string{}
	for _, part := range strings.Split(format, ", ") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsVinyl reports whether any format token carries a vinyl marker.
func IsVinyl(formats []string) bool {
	for _, token := range formats {
		lower := strings.ToLower(token)
		for _, marker := range vinylMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// NormalizeUsername produces the storage key for a seller.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeCondition trims the grading text returned by the marketplace.
func NormalizeCondition(text string) string {
	return strings.TrimSpace(text)
}
