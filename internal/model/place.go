package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// PlaceRecord is a restaurant known to the local store.
type PlaceRecord struct {
	ID             int64     `json:"id"`
	ProviderID     string    `json:"place_id,omitempty"`
	Name           string    `json:"name"`
	Cuisine        string    `json:"cuisine"`
	Location       string    `json:"location"`
	Rating         *float64  `json:"rating,omitempty"`
	PriceLevel     *int      `json:"price_level,omitempty"`
	Types          []string  `json:"types,omitempty"`
	PhotoReference string    `json:"photo_reference,omitempty"`
	MapsLink       string    `json:"maps_link,omitempty"`
	Website        string    `json:"website,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

// PlaceCandidate is the insert form of a PlaceRecord.
type PlaceCandidate struct {
	ProviderID     string
	Name           string
	Cuisine        string
	Location       string
	Rating         *float64
	PriceLevel     *int
	Types          []string
	PhotoReference string
	MapsLink       string
	Website        string
	Phone          string
}

// NaturalKey identifies the candidate when no provider id is known.
func (c PlaceCandidate) NaturalKey() string { return NaturalKey(c.Name, c.Location) }

// ProviderPlace is one place as returned by the external provider.
type ProviderPlace struct {
	PlaceID          string
	Name             string
	FormattedAddress string
	Rating           *float64
	PriceLevel       *int
	Types            []string
	Lat, Lng         *float64
	PhotoReferences  []string
	Website          string
	Phone            string
}

// HasGeometry reports whether both coordinates are known.
func (p ProviderPlace) HasGeometry() bool { return p.Lat != nil && p.Lng != nil }

const (
	MaxPhotoReferenceLen = 500
	mapsPlaceURL         = "https://www.google.com/maps/place/?q=place_id:"
)

// CandidateFromProvider maps a provider result into an insertable candidate.
// cuisine is derived by the caller.
func CandidateFromProvider(p ProviderPlace, cuisine string) PlaceCandidate {
	c := PlaceCandidate{
		ProviderID: strings.TrimSpace(p.PlaceID),
		Name:       strings.TrimSpace(p.Name),
		Cuisine:    cuisine,
		Location:   strings.TrimSpace(p.FormattedAddress),
		Rating:     p.Rating,
		PriceLevel: p.PriceLevel,
		Types:      p.Types,
		Website:    p.Website,
		Phone:      p.Phone,
	}
	if len(p.PhotoReferences) > 0 {
		ref := p.PhotoReferences[0]
		if len(ref) > MaxPhotoReferenceLen {
			ref = ref[:MaxPhotoReferenceLen]
		}
		c.PhotoReference = ref
	}
	if c.ProviderID != "" && p.HasGeometry() {
		c.MapsLink = mapsPlaceURL + c.ProviderID
	}
	return c
}

// NaturalKey hashes the case- and whitespace-normalized (name, address) pair.
func NaturalKey(name, address string) string {
	norm := func(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }
	sum := sha256.Sum256([]byte(norm(name) + "\x1f" + norm(address)))
	return hex.EncodeToString(sum[:])
}

// EnrichedPlace is a PlaceRecord with its rating context attached.
type EnrichedPlace struct {
	PlaceRecord
	PhotoURL   string          `json:"photo_url,omitempty"`
	Aggregate  RatingAggregate `json:"user_ratings"`
	UserRating *UserRating     `json:"user_rating,omitempty"`
	FromStore  bool            `json:"from_database"`
}

// Source tags where a search answer came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceProvider Source = "provider"
)

func (s Source) String() string { return string(s) }
