package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/withcare/carelink/internal/clock"
	"github.com/withcare/carelink/internal/logging"
	"github.com/withcare/carelink/internal/models"
)

// Service errors
var (
	ErrNotFound  = errors.New("care request not found")
	ErrNotOwner  = errors.New("caller does not own this care request")
	ErrCompleted = errors.New("care request is already completed")
)

// Tokens rewarded per this many minutes of service time
const minutesPerToken = 10

const defaultPageSize = 10

// ValidationError carries the reasons a create/update input was rejected
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid care request: " + strings.Join(e.Reasons, ", ")
}

// Input is the caller-supplied payload for creating or editing a request
type Input struct {
	Category    int16   `json:"category" binding:"required"`
	ServiceDate string  `json:"service_date" binding:"required"`
	StartTime   string  `json:"start_time" binding:"required"`
	EndTime     string  `json:"end_time" binding:"required"`
	Address     string  `json:"address" binding:"required"`
	PlaceDetail *string `json:"place_detail,omitempty"`
	Detail      *string `json:"detail,omitempty"`
	Note        *string `json:"note,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	ImageKey    *string `json:"image_key,omitempty"`
}

// Service owns the CareRequest entity
type Service struct {
	db    *pgxpool.Pool
	clock *clock.Clock
	log   zerolog.Logger
}

// NewService creates a new request service
func NewService(db *pgxpool.Pool, clk *clock.Clock) *Service {
	return &Service{
		db:    db,
		clock: clk,
		log:   logging.NewLogger("request"),
	}
}

// RewardTokens computes the reward for a service window. It is a pure
// function of the stored start/end times-of-day; callers must never persist
// any other value.
func RewardTokens(start, end time.Time) int {
	minutes := clock.MinutesBetween(start, end)
	if minutes <= 0 {
		return 0
	}
	return minutes / minutesPerToken
}

// parsed is the storage-ready form of a validated Input
type parsed struct {
	serviceDate time.Time
	startTime   time.Time
	endTime     time.Time
	reward      int
}

// validate checks an input against the creation rules and converts it to the
// storage representation. Service date must be today or later in civil time,
// start must precede end, address must be present.
func (s *Service) validate(in *Input) (*parsed, error) {
	var reasons []string

	if !models.Category(in.Category).Valid() {
		reasons = append(reasons, "category must be between 1 and 4")
	}

	var p parsed
	var err error

	if p.serviceDate, err = s.clock.ParseServiceDate(in.ServiceDate); err != nil {
		reasons = append(reasons, "service_date must be formatted as "+clock.DateLayout)
	} else if p.serviceDate.Before(s.clock.StartOfTodayUTC()) {
		reasons = append(reasons, "service_date must be today or later")
	}

	if p.startTime, err = clock.ParseTimeOfDay(in.StartTime); err != nil {
		reasons = append(reasons, "start_time must be formatted as "+clock.TimeOfDayLayout)
	}
	if p.endTime, err = clock.ParseTimeOfDay(in.EndTime); err != nil {
		reasons = append(reasons, "end_time must be formatted as "+clock.TimeOfDayLayout)
	}
	if !p.startTime.IsZero() && !p.endTime.IsZero() && !p.startTime.Before(p.endTime) {
		reasons = append(reasons, "end_time must be after start_time")
	}

	if len(strings.TrimSpace(in.Address)) < 2 {
		reasons = append(reasons, "address is required")
	}

	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	p.reward = RewardTokens(p.startTime, p.endTime)
	return &p, nil
}

// Create validates the input, computes the reward and persists an Open request
func (s *Service) Create(ctx context.Context, in *Input, ownerID int64) (*models.CareRequest, error) {
	p, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	var req models.CareRequest
	err = s.db.QueryRow(ctx, `
		INSERT INTO care_requests
			(requester_id, category, service_date, start_time, end_time,
			 address, place_detail, detail, note, image_url, image_key,
			 reward_tokens, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, requester_id, category, service_date, start_time, end_time,
			address, place_detail, detail, note, image_url, image_key,
			reward_tokens, status, created_at, updated_at
	`, ownerID, in.Category, p.serviceDate, p.startTime, p.endTime,
		strings.TrimSpace(in.Address), in.PlaceDetail, in.Detail, in.Note,
		in.ImageURL, in.ImageKey, p.reward, models.RequestStatusOpen,
	).Scan(
		&req.ID, &req.RequesterID, &req.Category, &req.ServiceDate, &req.StartTime,
		&req.EndTime, &req.Address, &req.PlaceDetail, &req.Detail, &req.Note,
		&req.ImageURL, &req.ImageKey, &req.RewardTokens, &req.Status,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create care request: %w", err)
	}

	s.log.Info().
		Str("request_id", req.ID.String()).
		Int64("requester_id", ownerID).
		Int("reward_tokens", req.RewardTokens).
		Msg("Care request created")

	return &req, nil
}

// ApplicantEntry is an application enriched with its helper's profile
type ApplicantEntry struct {
	Application models.Application  `json:"application"`
	Helper      models.UserProfile  `json:"helper"`
	Stats       *models.RatingStats `json:"stats,omitempty"`
}

// AssignedHelper is an assignment enriched with the helper's profile
type AssignedHelper struct {
	Assignment models.Assignment  `json:"assignment"`
	Helper     models.UserProfile `json:"helper"`
}

// Detail is a care request with its participants and review aggregates
type Detail struct {
	Request        models.CareRequest  `json:"request"`
	Requester      models.UserProfile  `json:"requester"`
	RequesterStats models.RatingStats  `json:"requester_stats"`
	Applications   []ApplicantEntry    `json:"applications"`
	Assignment     *AssignedHelper     `json:"assignment,omitempty"`
	ReviewCount    int64               `json:"review_count"`
}

// Get fetches a request with its requester profile, applications and
// assignment attached.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Detail, error) {
	var d Detail
	err := s.db.QueryRow(ctx, `
		SELECT r.id, r.requester_id, r.category, r.service_date, r.start_time,
			r.end_time, r.address, r.place_detail, r.detail, r.note,
			r.image_url, r.image_key, r.reward_tokens, r.status,
			r.created_at, r.updated_at,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM care_requests r
		JOIN users u ON u.id = r.requester_id
		WHERE r.id = $1
	`, id).Scan(
		&d.Request.ID, &d.Request.RequesterID, &d.Request.Category,
		&d.Request.ServiceDate, &d.Request.StartTime, &d.Request.EndTime,
		&d.Request.Address, &d.Request.PlaceDetail, &d.Request.Detail,
		&d.Request.Note, &d.Request.ImageURL, &d.Request.ImageKey,
		&d.Request.RewardTokens, &d.Request.Status,
		&d.Request.CreatedAt, &d.Request.UpdatedAt,
		&d.Requester.ID, &d.Requester.Nickname, &d.Requester.AvatarURL,
		&d.Requester.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get care request: %w", err)
	}

	stats, err := s.ratingStats(ctx, d.Request.RequesterID)
	if err != nil {
		// Enrichment only; never blocks the detail fetch.
		s.log.Warn().Err(err).Int64("user_id", d.Request.RequesterID).Msg("Failed to load rating stats")
	} else {
		d.RequesterStats = *stats
	}

	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.request_id, a.helper_id, a.message, a.status, a.created_at,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM applications a
		JOIN users u ON u.id = a.helper_id
		WHERE a.request_id = $1
		ORDER BY a.created_at DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e ApplicantEntry
		if err := rows.Scan(
			&e.Application.ID, &e.Application.RequestID, &e.Application.HelperID,
			&e.Application.Message, &e.Application.Status, &e.Application.CreatedAt,
			&e.Helper.ID, &e.Helper.Nickname, &e.Helper.AvatarURL, &e.Helper.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		d.Applications = append(d.Applications, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}

	var a AssignedHelper
	err = s.db.QueryRow(ctx, `
		SELECT s.id, s.request_id, s.application_id, s.helper_id, s.created_at,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM assignments s
		JOIN users u ON u.id = s.helper_id
		WHERE s.request_id = $1
	`, id).Scan(
		&a.Assignment.ID, &a.Assignment.RequestID, &a.Assignment.ApplicationID,
		&a.Assignment.HelperID, &a.Assignment.CreatedAt,
		&a.Helper.ID, &a.Helper.Nickname, &a.Helper.AvatarURL, &a.Helper.CreatedAt,
	)
	switch {
	case err == nil:
		d.Assignment = &a
	case errors.Is(err, pgx.ErrNoRows):
		// unmatched request
	default:
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}

	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reviews WHERE request_id = $1`, id,
	).Scan(&d.ReviewCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count reviews: %w", err)
	}

	return &d, nil
}

// Update re-validates the input and rewrites the request in place. The
// status is never touched here; only the lifecycle owners flip it.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in *Input, callerID int64) (*models.CareRequest, error) {
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.RequesterID != callerID {
		return nil, ErrNotOwner
	}
	if existing.Status == models.RequestStatusCompleted {
		return nil, ErrCompleted
	}

	p, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	var req models.CareRequest
	err = s.db.QueryRow(ctx, `
		UPDATE care_requests
		SET category = $2, service_date = $3, start_time = $4, end_time = $5,
			address = $6, place_detail = $7, detail = $8, note = $9,
			image_url = COALESCE($10, image_url),
			image_key = COALESCE($11, image_key),
			reward_tokens = $12, updated_at = now()
		WHERE id = $1
		RETURNING id, requester_id, category, service_date, start_time, end_time,
			address, place_detail, detail, note, image_url, image_key,
			reward_tokens, status, created_at, updated_at
	`, id, in.Category, p.serviceDate, p.startTime, p.endTime,
		strings.TrimSpace(in.Address), in.PlaceDetail, in.Detail, in.Note,
		in.ImageURL, in.ImageKey, p.reward,
	).Scan(
		&req.ID, &req.RequesterID, &req.Category, &req.ServiceDate, &req.StartTime,
		&req.EndTime, &req.Address, &req.PlaceDetail, &req.Detail, &req.Note,
		&req.ImageURL, &req.ImageKey, &req.RewardTokens, &req.Status,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update care request: %w", err)
	}

	return &req, nil
}

// Delete hard-deletes a request and everything hanging off it. Reviews,
// assignment, applications and the request itself go in one transaction,
// in that dependency order.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, callerID int64) error {
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if existing.RequesterID != callerID {
		return ErrNotOwner
	}
	if existing.Status == models.RequestStatusCompleted {
		return ErrCompleted
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM reviews WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete reviews: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM assignments WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM applications WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete applications: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM care_requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete care request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	s.log.Info().
		Str("request_id", id.String()).
		Int64("requester_id", callerID).
		Msg("Care request deleted")

	return nil
}

// Filters narrows the public listing
type Filters struct {
	Status     *models.RequestStatus
	Categories []models.Category
}

// ListItem is a request with its requester's display data
type ListItem struct {
	Request   models.CareRequest `json:"request"`
	Requester models.UserProfile `json:"requester"`
}

// ListResult is one page of the public listing
type ListResult struct {
	Items      []ListItem `json:"items"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
}

// List returns requests newest-first with optional status and category filters
func (s *Service) List(ctx context.Context, f Filters, page int) (*ListResult, error) {
	if page < 1 {
		page = 1
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)

	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("r.status = $%d", len(args)))
	}
	if len(f.Categories) > 0 {
		args = append(args, f.Categories)
		where = append(where, fmt.Sprintf("r.category = ANY($%d)", len(args)))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	err := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM care_requests r %s`, whereSQL), args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count care requests: %w", err)
	}

	args = append(args, defaultPageSize, (page-1)*defaultPageSize)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT r.id, r.requester_id, r.category, r.service_date, r.start_time,
			r.end_time, r.address, r.place_detail, r.detail, r.note,
			r.image_url, r.image_key, r.reward_tokens, r.status,
			r.created_at, r.updated_at,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM care_requests r
		JOIN users u ON u.id = r.requester_id
		%s
		ORDER BY r.created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereSQL, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query care requests: %w", err)
	}
	defer rows.Close()

	result := &ListResult{
		Page:       page,
		TotalPages: (total + defaultPageSize - 1) / defaultPageSize,
	}
	for rows.Next() {
		var item ListItem
		if err := rows.Scan(
			&item.Request.ID, &item.Request.RequesterID, &item.Request.Category,
			&item.Request.ServiceDate, &item.Request.StartTime, &item.Request.EndTime,
			&item.Request.Address, &item.Request.PlaceDetail, &item.Request.Detail,
			&item.Request.Note, &item.Request.ImageURL, &item.Request.ImageKey,
			&item.Request.RewardTokens, &item.Request.Status,
			&item.Request.CreatedAt, &item.Request.UpdatedAt,
			&item.Requester.ID, &item.Requester.Nickname, &item.Requester.AvatarURL,
			&item.Requester.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan care request: %w", err)
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating care requests: %w", err)
	}

	return result, nil
}

// MineItem is an owned request with its applicant context
type MineItem struct {
	Request           models.CareRequest  `json:"request"`
	PendingApplicants int                 `json:"pending_applicants"`
	Helper            *models.UserProfile `json:"helper,omitempty"`
}

// MineResult is one page of the owner projection
type MineResult struct {
	Items      []MineItem `json:"items"`
	Page       int        `json:"page"`
	TotalPages int        `json:"total_pages"`
}

// ListMine returns the caller's own requests, newest-first, each with its
// pending applicant count and the accepted helper when one exists.
func (s *Service) ListMine(ctx context.Context, ownerID int64, page int) (*MineResult, error) {
	if page < 1 {
		page = 1
	}

	var total int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM care_requests WHERE requester_id = $1`, ownerID,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count own care requests: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.requester_id, r.category, r.service_date, r.start_time,
			r.end_time, r.address, r.place_detail, r.detail, r.note,
			r.image_url, r.image_key, r.reward_tokens, r.status,
			r.created_at, r.updated_at,
			(SELECT COUNT(*) FROM applications a
				WHERE a.request_id = r.id AND a.status = $2),
			h.id, h.nickname, h.avatar_url, h.created_at
		FROM care_requests r
		LEFT JOIN assignments asg ON asg.request_id = r.id
		LEFT JOIN users h ON h.id = asg.helper_id
		WHERE r.requester_id = $1
		ORDER BY r.created_at DESC
		LIMIT $3 OFFSET $4
	`, ownerID, models.ApplicationStatusPending, defaultPageSize, (page-1)*defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query own care requests: %w", err)
	}
	defer rows.Close()

	result := &MineResult{
		Page:       page,
		TotalPages: (total + defaultPageSize - 1) / defaultPageSize,
	}
	for rows.Next() {
		var item MineItem
		var helperID *int64
		var helperNickname, helperAvatar *string
		var helperCreated *time.Time
		if err := rows.Scan(
			&item.Request.ID, &item.Request.RequesterID, &item.Request.Category,
			&item.Request.ServiceDate, &item.Request.StartTime, &item.Request.EndTime,
			&item.Request.Address, &item.Request.PlaceDetail, &item.Request.Detail,
			&item.Request.Note, &item.Request.ImageURL, &item.Request.ImageKey,
			&item.Request.RewardTokens, &item.Request.Status,
			&item.Request.CreatedAt, &item.Request.UpdatedAt,
			&item.PendingApplicants,
			&helperID, &helperNickname, &helperAvatar, &helperCreated,
		); err != nil {
			return nil, fmt.Errorf("failed to scan care request: %w", err)
		}
		if helperID != nil {
			item.Helper = &models.UserProfile{
				ID:        *helperID,
				Nickname:  *helperNickname,
				AvatarURL: helperAvatar,
				CreatedAt: *helperCreated,
			}
		}
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating own care requests: %w", err)
	}

	return result, nil
}

// load fetches the bare row used for ownership and status checks
func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.CareRequest, error) {
	var req models.CareRequest
	err := s.db.QueryRow(ctx, `
		SELECT id, requester_id, category, service_date, start_time, end_time,
			address, place_detail, detail, note, image_url, image_key,
			reward_tokens, status, created_at, updated_at
		FROM care_requests
		WHERE id = $1
	`, id).Scan(
		&req.ID, &req.RequesterID, &req.Category, &req.ServiceDate, &req.StartTime,
		&req.EndTime, &req.Address, &req.PlaceDetail, &req.Detail, &req.Note,
		&req.ImageURL, &req.ImageKey, &req.RewardTokens, &req.Status,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load care request: %w", err)
	}
	return &req, nil
}

// Load exposes the bare row fetch to sibling services
func (s *Service) Load(ctx context.Context, id uuid.UUID) (*models.CareRequest, error) {
	return s.load(ctx, id)
}

// ratingStats aggregates the reviews a user has received
func (s *Service) ratingStats(ctx context.Context, userID int64) (*models.RatingStats, error) {
	var stats models.RatingStats
	var avg *decimal.Decimal
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), AVG(rating)
		FROM reviews
		WHERE reviewee_id = $1
	`, userID).Scan(&stats.ReviewCount, &avg)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reviews: %w", err)
	}
	if avg != nil {
		stats.AverageRating = avg.Round(2)
	}
	return &stats, nil
}
