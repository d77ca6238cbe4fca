package model

import "time"

// SearchResult is the unified answer to a search.
type SearchResult struct {
	Places     []EnrichedPlace `json:"restaurants"`
	Source     Source          `json:"source"`
	SavedCount *int            `json:"saved_to_database,omitempty"`
	Quota      *QuotaSnapshot  `json:"api_usage,omitempty"`
}

// SearchEvent is one search outcome, recorded for reporting.
type SearchEvent struct {
	ID          string    `db:"id" json:"id"`
	Query       string    `db:"query" json:"query"`
	Location    string    `db:"location" json:"location"`
	Source      string    `db:"source" json:"source"`
	Outcome     string    `db:"outcome" json:"outcome"`
	ResultCount uint32    `db:"result_count" json:"result_count"`
	SavedCount  uint32    `db:"saved_count" json:"saved_count"`
	RequesterID int64     `db:"requester_id" json:"requester_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// ImportStatus is the per-id outcome of a provider import.
type ImportStatus string

const (
	ImportAdded  ImportStatus = "added"
	ImportExists ImportStatus = "exists"
	ImportFailed ImportStatus = "failed"
)

// ImportItem reports what happened to one requested provider id.
type ImportItem struct {
	ProviderID string       `json:"place_id"`
	Status     ImportStatus `json:"status"`
	Place      *PlaceRecord `json:"restaurant,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// ImportResult summarises a batch import.
type ImportResult struct {
	Items []ImportItem `json:"results"`
	Added int          `json:"added"`
}

// PlaceInput is a manually submitted place.
type PlaceInput struct {
	Name       string   `json:"name"`
	Cuisine    string   `json:"cuisine"`
	Location   string   `json:"location"`
	Rating     *float64 `json:"rating"`
	PriceLevel *int     `json:"price_level"`
}
