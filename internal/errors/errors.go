package errors

import (
	"net/http"
)

// ErrorCode represents a stable machine-readable error code
type ErrorCode string

const (
	// Identity errors
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"

	// Resource errors
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Lifecycle errors
	CodeInvalidStatus    ErrorCode = "INVALID_STATUS"
	CodeInvalidState     ErrorCode = "INVALID_STATE"
	CodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	// Race/uniqueness errors
	CodeConflict             ErrorCode = "CONFLICT"
	CodeDuplicateApplication ErrorCode = "DUPLICATE_APPLICATION"

	// Input errors
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// Time-based ineligibility
	CodeClosed             ErrorCode = "CLOSED"
	CodeReviewWindowClosed ErrorCode = "REVIEW_WINDOW_CLOSED"

	// Server errors
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format
type ErrorResponse struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id"`
}

// Common errors
var (
	ErrUnauthorizedError = &APIError{
		Code:       CodeUnauthorized,
		Message:    "Authentication required",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrForbiddenError = &APIError{
		Code:       CodeForbidden,
		Message:    "Access denied",
		HTTPStatus: http.StatusForbidden,
	}

	ErrInternalServerError = &APIError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// New creates an APIError with an explicit code, message and HTTP status
func New(code ErrorCode, message string, httpStatus int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// NewNotFound creates a not-found error for a named resource
func NewNotFound(resource string) *APIError {
	return &APIError{
		Code:       CodeNotFound,
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
	}
}

// NewConflict creates a conflict error
func NewConflict(message string) *APIError {
	return &APIError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       CodeValidation,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}
