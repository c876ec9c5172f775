package discogs

import (
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/parser"
)

// Pagination is the paging envelope Discogs returns on list endpoints.
type Pagination struct {
	Page    int `json:"page"`
	Pages   int `json:"pages"`
	PerPage int `json:"per_page"`
	Items   int `json:"items"`
}

// User is the public profile of a Discogs user.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	NumForSale int    `json:"num_for_sale"`
	AvatarURL  string `json:"avatar_url"`
}

// DisplayName prefers the profile name over the username.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Username
}

// InventoryPage is one page of a seller's listings, normalized to models.
type InventoryPage struct {
	Pagination Pagination
	Items      []models.SellerInventoryItem
}

// ListingStatusForSale is the status of a listing that can still be bought.
const ListingStatusForSale = "For Sale"

// Listing is a single marketplace listing.
type Listing struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	URI    string `json:"uri"`
}

// Available reports whether the listing is still for sale.
func (l Listing) Available() bool {
	return l.Status == ListingStatusForSale
}

// Version is a release belonging to a master.
type Version struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Format string `json:"format"`
}

// VersionsPage is one page of a master's versions.
type VersionsPage struct {
	Pagination Pagination `json:"pagination"`
	Versions   []Version  `json:"versions"`
}

// Image is a release image reference.
type Image struct {
	Type   string `json:"type"`
	URI    string `json:"uri"`
	URI150 string `json:"uri150"`
}

// Release is the subset of release metadata the monitor needs.
type Release struct {
	ID       int     `json:"id"`
	MasterID int     `json:"master_id"`
	Title    string  `json:"title"`
	Thumb    string  `json:"thumb"`
	Images   []Image `json:"images"`
}

// CoverImage returns the best available image URL.
func (r Release) CoverImage() string {
	for _, img := range r.Images {
		if img.Type == "primary" && img.URI150 != "" {
			return img.URI150
		}
	}
	if r.Thumb != "" {
		return r.Thumb
	}
	for _, img := range r.Images {
		if img.URI150 != "" {
			return img.URI150
		}
		if img.URI != "" {
			return img.URI
		}
	}
	return ""
}

// Want is one wantlist entry.
type Want struct {
	ID               int `json:"id"`
	BasicInformation struct {
		ID       int    `json:"id"`
		MasterID int    `json:"master_id"`
		Title    string `json:"title"`
	} `json:"basic_information"`
}

// WantsPage is one page of a user's wantlist.
type WantsPage struct {
	Pagination Pagination `json:"pagination"`
	Wants      []Want     `json:"wants"`
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	*f = flexFloat(parser.ParsePrice(string(data)))
	return nil
}

type inventoryResponse struct {
	Pagination Pagination   `json:"pagination"`
	Listings   []listingDTO `json:"listings"`
}

type listingDTO struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Condition       string `json:"condition"`
	SleeveCondition string `json:"sleeve_condition"`
	URI             string `json:"uri"`
	Posted          string `json:"posted"`
	Price           *struct {
		Value    flexFloat `json:"value"`
		Currency string    `json:"currency"`
	} `json:"price"`
	Release struct {
		ID          int    `json:"id"`
		Artist      string `json:"artist"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Format      string `json:"format"`
		Thumb       string `json:"thumb"`
	} `json:"release"`
}

func (l listingDTO) toItem() models.SellerInventoryItem {
	artist, title := strings.TrimSpace(l.Release.Artist), strings.TrimSpace(l.Release.Title)
	if artist == "" || title == "" {
		descArtist, descTitle := splitDescription(l.Release.Description)
		if artist == "" {
			artist = descArtist
		}
		if title == "" {
			title = descTitle
		}
	}

	item := models.SellerInventoryItem{
		ListingID:       l.ID,
		ReleaseID:       l.Release.ID,
		Artist:          artist,
		Title:           title,
		Format:          parser.SplitFormats(l.Release.Format),
		Condition:       parser.NormalizeCondition(l.Condition),
		SleeveCondition: parser.NormalizeCondition(l.SleeveCondition),
		ListingURL:      l.URI,
		CoverImage:      l.Release.Thumb,
	}
	if item.ListingURL == "" {
		item.ListingURL = "https://www.discogs.com/sell/item/" + strconv.FormatInt(l.ID, 10)
	}
	if l.Price != nil {
		item.Price = float64(l.Price.Value)
		item.Currency = l.Price.Currency
	}
	if posted, err := time.Parse(time.RFC3339, strings.TrimSpace(l.Posted)); err == nil {
		item.ListedAt = &posted
	}
	return item
}

// splitDescription parses "Artist - Title (Format)" descriptions.
func splitDescription(desc string) (string, string) {
	desc = strings.TrimSpace(desc)
	if idx := strings.LastIndex(desc, " ("); idx > 0 && strings.HasSuffix(desc, ")") {
		desc = desc[:idx]
	}
	artist, title, ok := strings.Cut(desc, " - ")
	if !ok {
		return "", desc
	}
	return strings.TrimSpace(artist), strings.TrimSpace(title)
}
