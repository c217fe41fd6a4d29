package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/withcare/carelink/internal/application"
	"github.com/withcare/carelink/internal/clock"
	"github.com/withcare/carelink/internal/config"
	apierrors "github.com/withcare/carelink/internal/errors"
	"github.com/withcare/carelink/internal/middleware"
	"github.com/withcare/carelink/internal/review"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key-for-jwt-testing-32chars"

func testServer(t *testing.T) *APIServer {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{Env: "test"},
		JWT:    config.JWTConfig{Secret: testSecret, Issuer: "carelink"},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	clk, err := clock.New("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}
	// No database behind this server; only routing, auth and input
	// validation are exercised here.
	return NewAPIServer(cfg, nil, clk, nil, nil)
}

func testToken(t *testing.T, userID int64) string {
	t.Helper()
	now := time.Now()
	claims := &middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "carelink",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestHealthCheck(t *testing.T) {
	srv := testServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestProtectedRoutes_RequireAuth(t *testing.T) {
	srv := testServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/requests"},
		{http.MethodGet, "/api/v1/requests/mine"},
		{http.MethodPut, "/api/v1/requests/8b9df0f1-0000-0000-0000-000000000001"},
		{http.MethodDelete, "/api/v1/requests/8b9df0f1-0000-0000-0000-000000000001"},
		{http.MethodPost, "/api/v1/requests/8b9df0f1-0000-0000-0000-000000000001/applications"},
		{http.MethodGet, "/api/v1/requests/8b9df0f1-0000-0000-0000-000000000001/applications"},
		{http.MethodPut, "/api/v1/requests/8b9df0f1-0000-0000-0000-000000000001/kick"},
		{http.MethodGet, "/api/v1/applications/mine"},
		{http.MethodPost, "/api/v1/reviews/requests/8b9df0f1-0000-0000-0000-000000000001"},
		{http.MethodGet, "/api/v1/reviews/reviewable"},
		{http.MethodGet, "/api/v1/reviews/written"},
		{http.MethodGet, "/api/v1/reviews/received"},
		{http.MethodPost, "/api/v1/admin/sweeps/expiry"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Router().ServeHTTP(w, httptest.NewRequest(rt.method, rt.path, nil))

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}

			var resp apierrors.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("bad error body: %v", err)
			}
			if resp.Error.Code != apierrors.CodeUnauthorized {
				t.Errorf("error code = %s, want %s", resp.Error.Code, apierrors.CodeUnauthorized)
			}
		})
	}
}

func TestCreateRequest_RejectsMalformedBody(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", bytes.NewBufferString(`{"category":`))
	req.Header.Set("Authorization", "Bearer "+testToken(t, 7))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDecide_RejectsUnknownDecision(t *testing.T) {
	srv := testServer(t)

	body := bytes.NewBufferString(`{"decision":"maybe"}`)
	req := httptest.NewRequest(http.MethodPost,
		"/api/v1/requests/8b9df0f1-0000-0000-0000-000000000001/applications/8b9df0f1-0000-0000-0000-000000000002/decision", body)
	req.Header.Set("Authorization", "Bearer "+testToken(t, 7))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400; body: %s", w.Code, w.Body.String())
	}
	var resp apierrors.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if resp.Error.Code != apierrors.CodeValidation {
		t.Errorf("error code = %s, want %s", resp.Error.Code, apierrors.CodeValidation)
	}
}

func TestRequestDetail_MalformedIDLooksLikeMissing(t *testing.T) {
	srv := testServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/requests/not-a-uuid", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListRequests_RejectsBadFilters(t *testing.T) {
	srv := testServer(t)

	for _, path := range []string{
		"/api/v1/requests?status=sideways",
		"/api/v1/requests?category=9",
		"/api/v1/requests?category=abc",
	} {
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, w.Code)
		}
	}
}

// TestTimeIneligibilityStatuses pins the statuses for failures a client can
// only discover by the clock: they are bad requests, not conflicts, and both
// sides of the review window share one code.
func TestTimeIneligibilityStatuses(t *testing.T) {
	tests := []struct {
		name    string
		respond func(*gin.Context)
		status  int
		code    apierrors.ErrorCode
	}{
		{
			"apply after start",
			func(c *gin.Context) { respondApplicationError(c, application.ErrRequestClosed) },
			http.StatusBadRequest, apierrors.CodeClosed,
		},
		{
			"review before window opens",
			func(c *gin.Context) { respondReviewError(c, review.ErrWindowNotOpen) },
			http.StatusBadRequest, apierrors.CodeReviewWindowClosed,
		},
		{
			"review after window closes",
			func(c *gin.Context) { respondReviewError(c, review.ErrWindowClosed) },
			http.StatusBadRequest, apierrors.CodeReviewWindowClosed,
		},
		{
			"lost accept race stays a conflict",
			func(c *gin.Context) { respondApplicationError(c, application.ErrAlreadyAssigned) },
			http.StatusConflict, apierrors.CodeConflict,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			tt.respond(c)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			var resp apierrors.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("bad error body: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("error code = %s, want %s", resp.Error.Code, tt.code)
			}
		})
	}
}
