package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withcare/carelink/internal/application"
	"github.com/withcare/carelink/internal/assignment"
	"github.com/withcare/carelink/internal/cache"
	"github.com/withcare/carelink/internal/clock"
	"github.com/withcare/carelink/internal/config"
	apierrors "github.com/withcare/carelink/internal/errors"
	"github.com/withcare/carelink/internal/expiry"
	"github.com/withcare/carelink/internal/logging"
	"github.com/withcare/carelink/internal/middleware"
	"github.com/withcare/carelink/internal/monitoring"
	"github.com/withcare/carelink/internal/request"
	"github.com/withcare/carelink/internal/review"
)

// APIServer represents the main API server
type APIServer struct {
	config           *config.Config
	router           *gin.Engine
	db               *pgxpool.Pool
	requests         *request.Service
	applications     *application.Service
	reviews          *review.Service
	scheduler        *expiry.Scheduler
	jwtAuthenticator *middleware.JWTAuthenticator
}

// NewAPIServer creates a new API server instance
func NewAPIServer(cfg *config.Config, db *pgxpool.Pool, clk *clock.Clock, redis *cache.Redis, scheduler *expiry.Scheduler) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	ledger := assignment.NewLedger(db)
	requests := request.NewService(db, clk)
	applications := application.NewService(db, clk, ledger, redis)
	reviews := review.NewService(db, clk, redis)

	srv := &APIServer{
		config:           cfg,
		router:           router,
		db:               db,
		requests:         requests,
		applications:     applications,
		reviews:          reviews,
		scheduler:        scheduler,
		jwtAuthenticator: middleware.NewJWTAuthenticator(&cfg.JWT),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	auth := s.jwtAuthenticator.JWTAuth()

	v1 := s.router.Group("/api/v1")
	{
		// Care request routes (listing and detail are public)
		requests := v1.Group("/requests")
		{
			requests.GET("", s.handleListRequests)
			requests.POST("", auth, s.handleCreateRequest)
			requests.GET("/mine", auth, s.handleListMyRequests)
			requests.GET("/:id", s.handleGetRequest)
			requests.PUT("/:id", auth, s.handleUpdateRequest)
			requests.DELETE("/:id", auth, s.handleDeleteRequest)

			// Application routes nested under their request
			requests.POST("/:id/applications", auth, s.handleApply)
			requests.GET("/:id/applications", auth, s.handleApplyList)
			requests.POST("/:id/applications/:applicationId/decision", auth, s.handleDecide)
			requests.PUT("/:id/kick", auth, s.handleKick)
		}

		// Helper-side application routes
		applications := v1.Group("/applications")
		applications.Use(auth)
		{
			applications.GET("/mine", s.handleListMyApplications)
		}

		// Review routes
		reviews := v1.Group("/reviews")
		reviews.Use(auth)
		{
			reviews.POST("/requests/:id", s.handleCreateReviewForRequest)
			reviews.POST("/assignments/:id", s.handleCreateReviewForAssignment)
			reviews.GET("/reviewable", s.handleListReviewable)
			reviews.GET("/written", s.handleListWrittenReviews)
			reviews.GET("/received", s.handleListReceivedReviews)
		}

		// Admin routes: manual sweep triggers
		admin := v1.Group("/admin")
		admin.Use(auth)
		{
			admin.POST("/sweeps/expiry", s.handleRunExpirySweep)
			admin.POST("/sweeps/auto-complete", s.handleRunAutoCompleteSweep)
		}
	}
}

// Health check handler
func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// handleRunExpirySweep triggers an immediate expiry sweep
func (s *APIServer) handleRunExpirySweep(c *gin.Context) {
	affected, err := s.scheduler.RunExpiryNow(c.Request.Context())
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": affected})
}

// handleRunAutoCompleteSweep triggers an immediate auto-complete sweep
func (s *APIServer) handleRunAutoCompleteSweep(c *gin.Context) {
	affected, err := s.scheduler.RunAutoCompleteNow(c.Request.Context())
	if err != nil {
		respondError(c, apierrors.ErrInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": affected})
}

// respondError sends a standardized error response
func respondError(c *gin.Context, err *apierrors.APIError) {
	requestID, _ := c.Get("request_id")
	reqIDStr, _ := requestID.(string)

	c.JSON(err.HTTPStatus, apierrors.ErrorResponse{
		Error:     *err,
		RequestID: reqIDStr,
	})
}
