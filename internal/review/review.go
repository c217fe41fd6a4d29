package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/withcare/carelink/internal/cache"
	"github.com/withcare/carelink/internal/clock"
	"github.com/withcare/carelink/internal/logging"
	"github.com/withcare/carelink/internal/models"
)

// Service errors
var (
	ErrRequestNotFound    = errors.New("care request not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrNoAssignment       = errors.New("care request has no assigned helper")
	ErrNotParticipant     = errors.New("caller is not a party to this care request")
	ErrWindowNotOpen      = errors.New("service has not ended yet")
	ErrWindowClosed       = errors.New("review window has closed")
	ErrDuplicate          = errors.New("already reviewed this care request")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
)

// ReviewWindow is how long after the service end either party may review
const ReviewWindow = 72 * time.Hour

const defaultPageSize = 10

// Service owns reviews and the completion transitions they drive
type Service struct {
	db    *pgxpool.Pool
	clock *clock.Clock
	cache *cache.Redis
	log   zerolog.Logger
}

// NewService creates a new review service
func NewService(db *pgxpool.Pool, clk *clock.Clock, c *cache.Redis) *Service {
	return &Service{
		db:    db,
		clock: clk,
		cache: c,
		log:   logging.NewLogger("review"),
	}
}

// WindowState classifies an instant against a service end instant
type WindowState int

const (
	WindowNotOpen WindowState = iota
	WindowOpen
	WindowClosed
)

// Window reports whether now falls inside [endAt, endAt+ReviewWindow].
// Both boundaries are inclusive.
func Window(now, endAt time.Time) WindowState {
	if now.Before(endAt) {
		return WindowNotOpen
	}
	if now.After(endAt.Add(ReviewWindow)) {
		return WindowClosed
	}
	return WindowOpen
}

// Input is a review submission
type Input struct {
	Rating  int    `json:"rating" binding:"required"`
	Content string `json:"content"`
}

// CreateForRequest records a review addressed by its request id. The
// reviewer must be the requester or the assigned helper; the counterparty
// is derived, never supplied. A requester review marks the request
// Completed.
func (s *Service) CreateForRequest(ctx context.Context, requestID uuid.UUID, reviewerID int64, in Input) (*models.Review, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	asg, err := s.loadAssignment(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, req, asg, reviewerID, in)
}

// CreateForAssignment records a review addressed by its assignment id
func (s *Service) CreateForAssignment(ctx context.Context, assignmentID uuid.UUID, reviewerID int64, in Input) (*models.Review, error) {
	var asg models.Assignment
	err := s.db.QueryRow(ctx, `
		SELECT id, request_id, application_id, helper_id, created_at
		FROM assignments
		WHERE id = $1
	`, assignmentID).Scan(&asg.ID, &asg.RequestID, &asg.ApplicationID, &asg.HelperID, &asg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	req, err := s.loadRequest(ctx, asg.RequestID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, req, &asg, reviewerID, in)
}

func (s *Service) create(ctx context.Context, req *models.CareRequest, asg *models.Assignment, reviewerID int64, in Input) (*models.Review, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, ErrInvalidRating
	}

	var revieweeID int64
	switch reviewerID {
	case req.RequesterID:
		revieweeID = asg.HelperID
	case asg.HelperID:
		revieweeID = req.RequesterID
	default:
		return nil, ErrNotParticipant
	}

	endAt := s.clock.Compose(req.ServiceDate, req.EndTime)
	switch Window(s.clock.Now(), endAt) {
	case WindowNotOpen:
		return nil, ErrWindowNotOpen
	case WindowClosed:
		return nil, ErrWindowClosed
	}

	var content *string
	if c := strings.TrimSpace(in.Content); c != "" {
		content = &c
	}

	// The insert and the requester-driven completion flip commit together
	// so a review can never land on a request left in a stale status.
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var out models.Review
	err = tx.QueryRow(ctx, `
		INSERT INTO reviews (request_id, assignment_id, reviewer_id, reviewee_id, rating, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, request_id, assignment_id, reviewer_id, reviewee_id, rating, content, created_at
	`, req.ID, asg.ID, reviewerID, revieweeID, in.Rating, content).Scan(
		&out.ID, &out.RequestID, &out.AssignmentID, &out.ReviewerID,
		&out.RevieweeID, &out.Rating, &out.Content, &out.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create review: %w", err)
	}

	// The requester's review is what closes out the request.
	if reviewerID == req.RequesterID && req.Status != models.RequestStatusCompleted {
		if _, err := tx.Exec(ctx, `
			UPDATE care_requests SET status = $1, updated_at = NOW() WHERE id = $2
		`, models.RequestStatusCompleted, req.ID); err != nil {
			return nil, fmt.Errorf("failed to complete care request: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit review transaction: %w", err)
	}

	s.cache.InvalidateRatingStats(ctx, revieweeID)

	s.log.Info().
		Str("request_id", req.ID.String()).
		Int64("reviewer_id", reviewerID).
		Int64("reviewee_id", revieweeID).
		Int("rating", in.Rating).
		Msg("Review created")

	return &out, nil
}

// AutoCompleteOverdue marks requests Completed once their review window has
// closed with no review from either party. Every non-Completed status
// qualifies, so never-matched requests the expiry sweep flipped to Expired
// still reach the same terminal state. Returns the number of requests
// transitioned; the sweep is idempotent.
func (s *Service) AutoCompleteOverdue(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-ReviewWindow)
	tag, err := s.db.Exec(ctx, `
		UPDATE care_requests r
		SET status = $1, updated_at = NOW()
		WHERE r.status <> $1
		  AND (r.service_date + (r.end_time - '1970-01-01 00:00:00+00'::timestamptz)) < $2
		  AND NOT EXISTS (SELECT 1 FROM reviews v WHERE v.request_id = r.id)
	`, models.RequestStatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to auto-complete overdue requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReviewableEntry is a request the caller may still review
type ReviewableEntry struct {
	Request      models.CareRequest `json:"request"`
	AssignmentID uuid.UUID          `json:"assignment_id"`
	Counterparty models.UserProfile `json:"counterparty"`
	ReviewBy     time.Time          `json:"review_by"`
}

// ListReviewable returns requests the caller was party to whose window is
// open and which the caller has not reviewed yet
func (s *Service) ListReviewable(ctx context.Context, userID int64) ([]ReviewableEntry, error) {
	now := s.clock.Now()
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.requester_id, r.category, r.service_date, r.start_time,
			r.end_time, r.address, r.reward_tokens, r.status, r.created_at, r.updated_at,
			s.id, s.helper_id,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM assignments s
		JOIN care_requests r ON r.id = s.request_id
		JOIN users u ON u.id = CASE WHEN r.requester_id = $1 THEN s.helper_id ELSE r.requester_id END
		WHERE (r.requester_id = $1 OR s.helper_id = $1)
		  AND NOT EXISTS (
			SELECT 1 FROM reviews v WHERE v.request_id = r.id AND v.reviewer_id = $1
		  )
		ORDER BY r.service_date ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviewable requests: %w", err)
	}
	defer rows.Close()

	var out []ReviewableEntry
	for rows.Next() {
		var e ReviewableEntry
		var helperID int64
		if err := rows.Scan(
			&e.Request.ID, &e.Request.RequesterID, &e.Request.Category,
			&e.Request.ServiceDate, &e.Request.StartTime, &e.Request.EndTime,
			&e.Request.Address, &e.Request.RewardTokens, &e.Request.Status,
			&e.Request.CreatedAt, &e.Request.UpdatedAt,
			&e.AssignmentID, &helperID,
			&e.Counterparty.ID, &e.Counterparty.Nickname,
			&e.Counterparty.AvatarURL, &e.Counterparty.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reviewable request: %w", err)
		}
		endAt := s.clock.Compose(e.Request.ServiceDate, e.Request.EndTime)
		if Window(now, endAt) != WindowOpen {
			continue
		}
		e.ReviewBy = endAt.Add(ReviewWindow)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviewable requests: %w", err)
	}
	return out, nil
}

// Entry is a review together with the other party's profile
type Entry struct {
	Review models.Review      `json:"review"`
	Other  models.UserProfile `json:"other"`
}

// List is one page of reviews
type List struct {
	Items      []Entry `json:"items"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
}

// ListWritten returns reviews the caller has authored, newest-first
func (s *Service) ListWritten(ctx context.Context, userID int64, page int) (*List, error) {
	return s.list(ctx, "reviewer_id", "reviewee_id", userID, page)
}

// ListReceived returns reviews addressed to the caller, newest-first
func (s *Service) ListReceived(ctx context.Context, userID int64, page int) (*List, error) {
	return s.list(ctx, "reviewee_id", "reviewer_id", userID, page)
}

func (s *Service) list(ctx context.Context, selfCol, otherCol string, userID int64, page int) (*List, error) {
	if page < 1 {
		page = 1
	}

	var total int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM reviews WHERE %s = $1`, selfCol), userID,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT v.id, v.request_id, v.assignment_id, v.reviewer_id, v.reviewee_id,
			v.rating, v.content, v.created_at,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM reviews v
		JOIN users u ON u.id = v.%s
		WHERE v.%s = $1
		ORDER BY v.created_at DESC
		LIMIT $2 OFFSET $3
	`, otherCol, selfCol), userID, defaultPageSize, (page-1)*defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	result := &List{
		Page:       page,
		TotalPages: (total + defaultPageSize - 1) / defaultPageSize,
	}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.Review.ID, &e.Review.RequestID, &e.Review.AssignmentID,
			&e.Review.ReviewerID, &e.Review.RevieweeID,
			&e.Review.Rating, &e.Review.Content, &e.Review.CreatedAt,
			&e.Other.ID, &e.Other.Nickname, &e.Other.AvatarURL, &e.Other.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		result.Items = append(result.Items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reviews: %w", err)
	}
	return result, nil
}

func (s *Service) loadRequest(ctx context.Context, id uuid.UUID) (*models.CareRequest, error) {
	var req models.CareRequest
	err := s.db.QueryRow(ctx, `
		SELECT id, requester_id, service_date, start_time, end_time, status
		FROM care_requests
		WHERE id = $1
	`, id).Scan(
		&req.ID, &req.RequesterID, &req.ServiceDate,
		&req.StartTime, &req.EndTime, &req.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to load care request: %w", err)
	}
	return &req, nil
}

func (s *Service) loadAssignment(ctx context.Context, requestID uuid.UUID) (*models.Assignment, error) {
	var asg models.Assignment
	err := s.db.QueryRow(ctx, `
		SELECT id, request_id, application_id, helper_id, created_at
		FROM assignments
		WHERE request_id = $1
	`, requestID).Scan(&asg.ID, &asg.RequestID, &asg.ApplicationID, &asg.HelperID, &asg.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoAssignment
		}
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	return &asg, nil
}
