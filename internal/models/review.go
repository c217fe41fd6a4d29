package models

import (
	"time"

	"github.com/google/uuid"
)

// Review represents a rating given by one participant of a request to the
// other. At most one review per (request, reviewer) pair.
type Review struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	RequestID    uuid.UUID  `json:"request_id" db:"request_id"`
	AssignmentID *uuid.UUID `json:"assignment_id,omitempty" db:"assignment_id"`
	ReviewerID   int64      `json:"reviewer_id" db:"reviewer_id"`
	RevieweeID   int64      `json:"reviewee_id" db:"reviewee_id"`
	Rating       int        `json:"rating" db:"rating"`
	Content      *string    `json:"content,omitempty" db:"content"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
