package model

import "time"

const (
	MaxReportReasonRunes      = 255
	MaxReportDescriptionRunes = 1000
	ReportStatusPending       = "pending"
)

// ReviewReport flags another user's review for moderation.
type ReviewReport struct {
	ID          int64     `json:"id"`
	RatingID    int64     `json:"rating_id"`
	ReportedBy  int64     `json:"reported_by"`
	Reason      string    `json:"reason"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
