package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/withcare/carelink/internal/application"
	apierrors "github.com/withcare/carelink/internal/errors"
	"github.com/withcare/carelink/internal/middleware"
	"github.com/withcare/carelink/internal/monitoring"
)

type applyRequest struct {
	Message string `json:"message"`
}

// handleApply submits the caller's application to a request
func (s *APIServer) handleApply(c *gin.Context) {
	requestID, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}

	// An empty body is a valid application with no message.
	var body applyRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	applied, err := s.applications.Apply(c.Request.Context(), requestID, middleware.GetUserID(c), body.Message)
	if err != nil {
		respondApplicationError(c, err)
		return
	}

	if m := monitoring.Get(); m != nil {
		m.ApplicationsTotal.Inc()
	}
	c.JSON(http.StatusCreated, applied)
}

// handleApplyList returns a request's applicants to its owner
func (s *APIServer) handleApplyList(c *gin.Context) {
	requestID, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}

	result, err := s.applications.ApplyList(c.Request.Context(), requestID, middleware.GetUserID(c), pageParam(c))
	if err != nil {
		respondApplicationError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type decideRequest struct {
	Decision application.Decision `json:"decision" binding:"required"`
}

// handleDecide accepts or rejects one application
func (s *APIServer) handleDecide(c *gin.Context) {
	requestID, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}
	applicationID, ok := pathUUID(c, "applicationId", "Application")
	if !ok {
		return
	}

	var body decideRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}
	if body.Decision != application.DecisionAccept && body.Decision != application.DecisionReject {
		respondError(c, apierrors.NewValidationError("decision must be \"accept\" or \"reject\""))
		return
	}

	result, err := s.applications.Decide(c.Request.Context(), requestID, middleware.GetUserID(c), applicationID, body.Decision)
	if err != nil {
		if errors.Is(err, application.ErrAlreadyAssigned) {
			if m := monitoring.Get(); m != nil {
				m.AcceptConflicts.Inc()
			}
		}
		respondApplicationError(c, err)
		return
	}

	if body.Decision == application.DecisionAccept {
		if m := monitoring.Get(); m != nil {
			m.AssignmentsCreated.Inc()
		}
	}
	c.JSON(http.StatusOK, result)
}

// handleKick withdraws the assigned helper from the caller's request
func (s *APIServer) handleKick(c *gin.Context) {
	requestID, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}

	withdrawn, err := s.applications.Kick(c.Request.Context(), requestID, middleware.GetUserID(c))
	if err != nil {
		respondApplicationError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawn)
}

// handleListMyApplications returns the caller's applications
func (s *APIServer) handleListMyApplications(c *gin.Context) {
	result, err := s.applications.ListMine(c.Request.Context(), middleware.GetUserID(c), pageParam(c))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondApplicationError maps application service errors to API errors
func respondApplicationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, application.ErrRequestNotFound):
		respondError(c, apierrors.NewNotFound("Care request"))
	case errors.Is(err, application.ErrApplicationNotFound):
		respondError(c, apierrors.NewNotFound("Application"))
	case errors.Is(err, application.ErrRequestNotOpen):
		respondError(c, apierrors.New(apierrors.CodeInvalidStatus, "Care request is not open", http.StatusConflict))
	case errors.Is(err, application.ErrRequestClosed):
		respondError(c, apierrors.New(apierrors.CodeClosed, "Care request is past its start time", http.StatusBadRequest))
	case errors.Is(err, application.ErrOwnRequest):
		respondError(c, apierrors.New(apierrors.CodeInvalidOperation, "Cannot apply to your own care request", http.StatusForbidden))
	case errors.Is(err, application.ErrDuplicate):
		respondError(c, apierrors.New(apierrors.CodeDuplicateApplication, "Already applied to this care request", http.StatusConflict))
	case errors.Is(err, application.ErrMessageTooLong):
		respondError(c, apierrors.NewValidationError("message must be at most 500 characters"))
	case errors.Is(err, application.ErrNotOwner):
		respondError(c, apierrors.ErrForbiddenError)
	case errors.Is(err, application.ErrAlreadyAssigned):
		respondError(c, apierrors.NewConflict("A helper is already assigned to this care request"))
	case errors.Is(err, application.ErrRejectAssigned):
		respondError(c, apierrors.New(apierrors.CodeInvalidOperation, "Cannot reject the accepted application; kick the helper instead", http.StatusConflict))
	case errors.Is(err, application.ErrNoAssignment):
		respondError(c, apierrors.New(apierrors.CodeInvalidState, "No helper is assigned to this care request", http.StatusConflict))
	case errors.Is(err, application.ErrNotAccepted):
		respondError(c, apierrors.New(apierrors.CodeInvalidState, "Assigned application is not currently accepted", http.StatusConflict))
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}
