package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserProfile holds the minimal identity data used to enrich responses.
// Authentication and profile management live outside this service; user ids
// are opaque integers issued elsewhere.
type UserProfile struct {
	ID        int64     `json:"id" db:"id"`
	Nickname  string    `json:"nickname" db:"nickname"`
	AvatarURL *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RatingStats is the aggregate of reviews a user has received
type RatingStats struct {
	ReviewCount   int64           `json:"review_count"`
	AverageRating decimal.Decimal `json:"average_rating"`
}
