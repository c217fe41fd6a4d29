package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/withcare/carelink/internal/errors"
	"github.com/withcare/carelink/internal/middleware"
	"github.com/withcare/carelink/internal/monitoring"
	"github.com/withcare/carelink/internal/review"
)

// handleCreateReviewForRequest records a review addressed by request id
func (s *APIServer) handleCreateReviewForRequest(c *gin.Context) {
	requestID, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}

	var in review.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	created, err := s.reviews.CreateForRequest(c.Request.Context(), requestID, middleware.GetUserID(c), in)
	if err != nil {
		respondReviewError(c, err)
		return
	}

	if m := monitoring.Get(); m != nil {
		m.ReviewsCreated.Inc()
	}
	c.JSON(http.StatusCreated, created)
}

// handleCreateReviewForAssignment records a review addressed by assignment id
func (s *APIServer) handleCreateReviewForAssignment(c *gin.Context) {
	assignmentID, ok := pathUUID(c, "id", "Assignment")
	if !ok {
		return
	}

	var in review.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	created, err := s.reviews.CreateForAssignment(c.Request.Context(), assignmentID, middleware.GetUserID(c), in)
	if err != nil {
		respondReviewError(c, err)
		return
	}

	if m := monitoring.Get(); m != nil {
		m.ReviewsCreated.Inc()
	}
	c.JSON(http.StatusCreated, created)
}

// handleListReviewable returns requests the caller may still review
func (s *APIServer) handleListReviewable(c *gin.Context) {
	entries, err := s.reviews.ListReviewable(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": entries})
}

// handleListWrittenReviews returns reviews the caller has authored
func (s *APIServer) handleListWrittenReviews(c *gin.Context) {
	result, err := s.reviews.ListWritten(c.Request.Context(), middleware.GetUserID(c), pageParam(c))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleListReceivedReviews returns reviews addressed to the caller
func (s *APIServer) handleListReceivedReviews(c *gin.Context) {
	result, err := s.reviews.ListReceived(c.Request.Context(), middleware.GetUserID(c), pageParam(c))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondReviewError maps review service errors to API errors
func respondReviewError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, review.ErrRequestNotFound):
		respondError(c, apierrors.NewNotFound("Care request"))
	case errors.Is(err, review.ErrAssignmentNotFound):
		respondError(c, apierrors.NewNotFound("Assignment"))
	case errors.Is(err, review.ErrNoAssignment):
		respondError(c, apierrors.New(apierrors.CodeInvalidState, "Care request has no assigned helper", http.StatusConflict))
	case errors.Is(err, review.ErrNotParticipant):
		respondError(c, apierrors.ErrForbiddenError)
	case errors.Is(err, review.ErrWindowNotOpen):
		respondError(c, apierrors.New(apierrors.CodeReviewWindowClosed, "Review window is not open", http.StatusBadRequest))
	case errors.Is(err, review.ErrWindowClosed):
		respondError(c, apierrors.New(apierrors.CodeReviewWindowClosed, "Review window has closed", http.StatusBadRequest))
	case errors.Is(err, review.ErrDuplicate):
		respondError(c, apierrors.NewConflict("Already reviewed this care request"))
	case errors.Is(err, review.ErrInvalidRating):
		respondError(c, apierrors.NewValidationError("rating must be between 1 and 5"))
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}
