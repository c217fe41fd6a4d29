package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apierrors "github.com/withcare/carelink/internal/errors"
	"github.com/withcare/carelink/internal/middleware"
	"github.com/withcare/carelink/internal/models"
	"github.com/withcare/carelink/internal/monitoring"
	"github.com/withcare/carelink/internal/request"
)

// pathUUID parses a UUID path parameter, responding with 404 on garbage so
// malformed ids and missing rows look the same to clients
func pathUUID(c *gin.Context, param, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		respondError(c, apierrors.NewNotFound(resource))
		return uuid.Nil, false
	}
	return id, true
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// handleCreateRequest creates a care request owned by the caller
func (s *APIServer) handleCreateRequest(c *gin.Context) {
	var in request.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	created, err := s.requests.Create(c.Request.Context(), &in, middleware.GetUserID(c))
	if err != nil {
		respondRequestError(c, err)
		return
	}

	if m := monitoring.Get(); m != nil {
		m.RequestsCreated.Inc()
	}
	c.JSON(http.StatusCreated, created)
}

// handleGetRequest returns a request's full detail view
func (s *APIServer) handleGetRequest(c *gin.Context) {
	id, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}

	detail, err := s.requests.Get(c.Request.Context(), id)
	if err != nil {
		respondRequestError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// handleUpdateRequest edits a request the caller owns
func (s *APIServer) handleUpdateRequest(c *gin.Context) {
	id, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}

	var in request.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, apierrors.NewValidationError(err.Error()))
		return
	}

	updated, err := s.requests.Update(c.Request.Context(), id, &in, middleware.GetUserID(c))
	if err != nil {
		respondRequestError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// handleDeleteRequest removes a request and everything hanging off it
func (s *APIServer) handleDeleteRequest(c *gin.Context) {
	id, ok := pathUUID(c, "id", "Care request")
	if !ok {
		return
	}

	if err := s.requests.Delete(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		respondRequestError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// handleListRequests returns the public listing with optional filters
func (s *APIServer) handleListRequests(c *gin.Context) {
	var f request.Filters

	if raw := c.Query("status"); raw != "" {
		status, ok := models.ParseRequestStatus(raw)
		if !ok {
			respondError(c, apierrors.NewValidationError("unknown status "+strconv.Quote(raw)))
			return
		}
		f.Status = &status
	}

	if raw := c.Query("category"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || !models.Category(n).Valid() {
				respondError(c, apierrors.NewValidationError("unknown category "+strconv.Quote(part)))
				return
			}
			f.Categories = append(f.Categories, models.Category(n))
		}
	}

	result, err := s.requests.List(c.Request.Context(), f, pageParam(c))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleListMyRequests returns the caller's own requests
func (s *APIServer) handleListMyRequests(c *gin.Context) {
	result, err := s.requests.ListMine(c.Request.Context(), middleware.GetUserID(c), pageParam(c))
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondRequestError maps request service errors to API errors
func respondRequestError(c *gin.Context, err error) {
	var verr *request.ValidationError
	switch {
	case errors.Is(err, request.ErrNotFound):
		respondError(c, apierrors.NewNotFound("Care request"))
	case errors.Is(err, request.ErrNotOwner):
		respondError(c, apierrors.ErrForbiddenError)
	case errors.Is(err, request.ErrCompleted):
		respondError(c, apierrors.New(apierrors.CodeInvalidStatus, "Completed care requests cannot be modified", http.StatusConflict))
	case errors.As(err, &verr):
		respondError(c, apierrors.NewValidationError(verr.Reasons))
	default:
		respondError(c, apierrors.ErrInternalServerError)
	}
}
