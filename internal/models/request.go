package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus represents the lifecycle state of a care request
type RequestStatus int16

const (
	RequestStatusOpen      RequestStatus = 0
	RequestStatusAssigned  RequestStatus = 1
	RequestStatusCompleted RequestStatus = 2
	RequestStatusCancelled RequestStatus = 3
	RequestStatusExpired   RequestStatus = 4
)

// String returns the human-readable name of the status
func (s RequestStatus) String() string {
	switch s {
	case RequestStatusOpen:
		return "open"
	case RequestStatusAssigned:
		return "assigned"
	case RequestStatusCompleted:
		return "completed"
	case RequestStatusCancelled:
		return "cancelled"
	case RequestStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ParseRequestStatus maps a status name back to its enum value
func ParseRequestStatus(name string) (RequestStatus, bool) {
	switch name {
	case "open":
		return RequestStatusOpen, true
	case "assigned":
		return RequestStatusAssigned, true
	case "completed":
		return RequestStatusCompleted, true
	case "cancelled":
		return RequestStatusCancelled, true
	case "expired":
		return RequestStatusExpired, true
	default:
		return 0, false
	}
}

// Category represents the enumerated help type of a care request
type Category int16

const (
	CategoryEscort    Category = 1 // school pickup / drop-off
	CategoryPlay      Category = 2
	CategoryAccompany Category = 3
	CategoryOther     Category = 4
)

// Valid reports whether c is one of the enumerated categories
func (c Category) Valid() bool {
	return c >= CategoryEscort && c <= CategoryOther
}

// CareRequest represents a posted care task.
//
// ServiceDate is the civil date's midnight stored as a UTC instant;
// StartTime/EndTime are wall-clock times-of-day stored on the 1970-01-01 UTC
// epoch day. All civil-time interpretation lives in the clock package.
type CareRequest struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	RequesterID  int64         `json:"requester_id" db:"requester_id"`
	Category     Category      `json:"category" db:"category"`
	ServiceDate  time.Time     `json:"service_date" db:"service_date"`
	StartTime    time.Time     `json:"start_time" db:"start_time"`
	EndTime      time.Time     `json:"end_time" db:"end_time"`
	Address      string        `json:"address" db:"address"`
	PlaceDetail  *string       `json:"place_detail,omitempty" db:"place_detail"`
	Detail       *string       `json:"detail,omitempty" db:"detail"`
	Note         *string       `json:"note,omitempty" db:"note"`
	ImageURL     *string       `json:"image_url,omitempty" db:"image_url"`
	ImageKey     *string       `json:"image_key,omitempty" db:"image_key"`
	RewardTokens int           `json:"reward_tokens" db:"reward_tokens"`
	Status       RequestStatus `json:"status" db:"status"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}
