package models

import (
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus represents the lifecycle state of an application
type ApplicationStatus int16

const (
	ApplicationStatusPending   ApplicationStatus = 0
	ApplicationStatusAccepted  ApplicationStatus = 1
	ApplicationStatusRejected  ApplicationStatus = 2
	ApplicationStatusWithdrawn ApplicationStatus = 3
)

// String returns the human-readable name of the status
func (s ApplicationStatus) String() string {
	switch s {
	case ApplicationStatusPending:
		return "pending"
	case ApplicationStatusAccepted:
		return "accepted"
	case ApplicationStatusRejected:
		return "rejected"
	case ApplicationStatusWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// Application represents one helper's bid on a care request.
// A helper may apply to a given request at most once (unique on
// request_id + helper_id).
type Application struct {
	ID        uuid.UUID         `json:"id" db:"id"`
	RequestID uuid.UUID         `json:"request_id" db:"request_id"`
	HelperID  int64             `json:"helper_id" db:"helper_id"`
	Message   *string           `json:"message,omitempty" db:"message"`
	Status    ApplicationStatus `json:"status" db:"status"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// Assignment represents the realized 1:1 match between a request and its
// accepted helper. It is created exactly once per request (unique on
// request_id) and survives a helper kick so mutual review stays possible.
type Assignment struct {
	ID            uuid.UUID `json:"id" db:"id"`
	RequestID     uuid.UUID `json:"request_id" db:"request_id"`
	ApplicationID uuid.UUID `json:"application_id" db:"application_id"`
	HelperID      int64     `json:"helper_id" db:"helper_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
