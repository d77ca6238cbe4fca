package model

import (
	"fmt"
	"math"
	"time"
)

const (
	MinRating       = 1.0
	MaxRating       = 5.0
	MaxReviewRunes  = 1000
	notRatedSummary = "Have not been rated by users"
)

// UserRating is one user's rating of one place.
type UserRating struct {
	ID         int64     `json:"rating_id"`
	PlaceID    int64     `json:"place_id"`
	UserID     int64     `json:"user_id"`
	Rating     float64   `json:"rating"`
	ReviewText string    `json:"review_text,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RatingAggregate summarises the ratings of a single place.
type RatingAggregate struct {
	Count   int64   `json:"count"`
	Mean    float64 `json:"average"`
	Summary string  `json:"message"`
}

// NewRatingAggregate builds the aggregate from a count and an unrounded mean.
func NewRatingAggregate(count int64, mean float64) RatingAggregate {
	if count <= 0 {
		return RatingAggregate{Summary: notRatedSummary}
	}
	mean = math.Round(mean*100) / 100
	noun := "users"
	if count == 1 {
		noun = "user"
	}
	return RatingAggregate{
		Count:   count,
		Mean:    mean,
		Summary: fmt.Sprintf("Rated by %d %s (Avg: %.1f/5)", count, noun, mean),
	}
}

// AggregateOf computes the aggregate of a set of rating values.
func AggregateOf(values []float64) RatingAggregate {
	if len(values) == 0 {
		return NewRatingAggregate(0, 0)
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return NewRatingAggregate(int64(len(values)), sum/float64(len(values)))
}

// ValidRating reports whether r is a usable rating value.
func ValidRating(r float64) bool {
	return !math.IsNaN(r) && r >= MinRating && r <= MaxRating
}

// RatingAction is the outcome of a rating submission.
type RatingAction string

const (
	RatingCreated RatingAction = "created"
	RatingUpdated RatingAction = "updated"
)

func (a RatingAction) String() string { return string(a) }

// RatingResult is returned from a rating submission.
type RatingResult struct {
	Action   RatingAction `json:"action"`
	RatingID int64        `json:"rating_id"`
}
