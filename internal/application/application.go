package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/withcare/carelink/internal/assignment"
	"github.com/withcare/carelink/internal/cache"
	"github.com/withcare/carelink/internal/clock"
	"github.com/withcare/carelink/internal/logging"
	"github.com/withcare/carelink/internal/models"
)

// Service errors
var (
	ErrRequestNotFound     = errors.New("care request not found")
	ErrRequestNotOpen      = errors.New("care request is not open for applications")
	ErrRequestClosed       = errors.New("care request's start time has already passed")
	ErrOwnRequest          = errors.New("cannot apply to your own care request")
	ErrDuplicate           = errors.New("already applied to this care request")
	ErrMessageTooLong      = errors.New("application message exceeds 500 characters")
	ErrNotOwner            = errors.New("caller does not own this care request")
	ErrApplicationNotFound = errors.New("application not found for this care request")
	ErrAlreadyAssigned     = errors.New("a helper is already assigned to this care request")
	ErrRejectAssigned      = errors.New("cannot reject the currently assigned application")
	ErrNoAssignment        = errors.New("no helper currently assigned")
	ErrNotAccepted         = errors.New("assigned application is not currently accepted")
)

const (
	maxMessageLength = 500
	defaultPageSize  = 10
)

// Decision is the requester's verdict on an application
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Service owns the Application entity and the accept/reject/kick decisions
type Service struct {
	db     *pgxpool.Pool
	clock  *clock.Clock
	ledger *assignment.Ledger
	cache  *cache.Redis
	log    zerolog.Logger
}

// NewService creates a new application service
func NewService(db *pgxpool.Pool, clk *clock.Clock, ledger *assignment.Ledger, c *cache.Redis) *Service {
	return &Service{
		db:     db,
		clock:  clk,
		ledger: ledger,
		cache:  c,
		log:    logging.NewLogger("application"),
	}
}

// Applied is a freshly created application with the helper's profile attached
type Applied struct {
	Application models.Application `json:"application"`
	Helper      models.UserProfile `json:"helper"`
}

// Apply submits a helper's bid on an open request. A request stops being
// appliable the moment its civil start instant passes, regardless of its
// persisted status. The duplicate check runs both before the insert and at
// the unique constraint, because two concurrent applies race past the
// pre-flight check.
func (s *Service) Apply(ctx context.Context, requestID uuid.UUID, helperID int64, message string) (*Applied, error) {
	message = strings.TrimSpace(message)
	if utf8.RuneCountInString(message) > maxMessageLength {
		return nil, ErrMessageTooLong
	}

	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RequestStatusOpen {
		return nil, ErrRequestNotOpen
	}

	startAt := s.clock.Compose(req.ServiceDate, req.StartTime)
	if !s.clock.Now().Before(startAt) {
		return nil, ErrRequestClosed
	}

	if req.RequesterID == helperID {
		return nil, ErrOwnRequest
	}

	var exists bool
	err = s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM applications WHERE request_id = $1 AND helper_id = $2)
	`, requestID, helperID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing application: %w", err)
	}
	if exists {
		return nil, ErrDuplicate
	}

	var msg *string
	if message != "" {
		msg = &message
	}

	var out Applied
	err = s.db.QueryRow(ctx, `
		WITH inserted AS (
			INSERT INTO applications (request_id, helper_id, message, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, request_id, helper_id, message, status, created_at
		)
		SELECT i.id, i.request_id, i.helper_id, i.message, i.status, i.created_at,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM inserted i
		JOIN users u ON u.id = i.helper_id
	`, requestID, helperID, msg, models.ApplicationStatusPending).Scan(
		&out.Application.ID, &out.Application.RequestID, &out.Application.HelperID,
		&out.Application.Message, &out.Application.Status, &out.Application.CreatedAt,
		&out.Helper.ID, &out.Helper.Nickname, &out.Helper.AvatarURL, &out.Helper.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	s.log.Info().
		Str("request_id", requestID.String()).
		Int64("helper_id", helperID).
		Msg("Application submitted")

	return &out, nil
}

// Applicant is one entry of the requester-facing applicant list
type Applicant struct {
	Application models.Application `json:"application"`
	Helper      models.UserProfile `json:"helper"`
	Stats       models.RatingStats `json:"stats"`
}

// ApplicantList is one page of applicants for a request
type ApplicantList struct {
	Items      []Applicant `json:"items"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
}

// ApplyList returns the applicants on a request, visible to its owner only,
// each enriched with the applicant's rating aggregate.
func (s *Service) ApplyList(ctx context.Context, requestID uuid.UUID, requesterID int64, page int) (*ApplicantList, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, ErrNotOwner
	}

	if page < 1 {
		page = 1
	}

	var total int
	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE request_id = $1`, requestID,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.request_id, a.helper_id, a.message, a.status, a.created_at,
			u.id, u.nickname, u.avatar_url, u.created_at
		FROM applications a
		JOIN users u ON u.id = a.helper_id
		WHERE a.request_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`, requestID, defaultPageSize, (page-1)*defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	result := &ApplicantList{
		Page:       page,
		TotalPages: (total + defaultPageSize - 1) / defaultPageSize,
	}
	var helperIDs []int64
	for rows.Next() {
		var a Applicant
		if err := rows.Scan(
			&a.Application.ID, &a.Application.RequestID, &a.Application.HelperID,
			&a.Application.Message, &a.Application.Status, &a.Application.CreatedAt,
			&a.Helper.ID, &a.Helper.Nickname, &a.Helper.AvatarURL, &a.Helper.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		result.Items = append(result.Items, a)
		helperIDs = append(helperIDs, a.Application.HelperID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applications: %w", err)
	}

	stats, err := s.ratingStatsByUsers(ctx, helperIDs)
	if err != nil {
		// Display enrichment only; the list itself still succeeds.
		s.log.Warn().Err(err).Str("request_id", requestID.String()).Msg("Failed to load applicant rating stats")
	} else {
		for i := range result.Items {
			if st, ok := stats[result.Items[i].Application.HelperID]; ok {
				result.Items[i].Stats = st
			}
		}
	}

	return result, nil
}

// DecisionResult reports the post-decision status pair
type DecisionResult struct {
	RequestStatus     string `json:"request_status"`
	ApplicationStatus string `json:"application_status"`
}

// Decide applies the requester's accept or reject verdict to one application
func (s *Service) Decide(ctx context.Context, requestID uuid.UUID, requesterID int64, applicationID uuid.UUID, decision Decision) (*DecisionResult, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, ErrNotOwner
	}

	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.RequestID != requestID {
		return nil, ErrApplicationNotFound
	}

	assigned, err := s.ledger.ForRequest(ctx, requestID)
	if err != nil && !errors.Is(err, assignment.ErrNotFound) {
		return nil, err
	}

	switch decision {
	case DecisionAccept:
		if req.Status != models.RequestStatusOpen {
			return nil, ErrRequestNotOpen
		}
		if assigned != nil {
			return nil, ErrAlreadyAssigned
		}
		if _, err := s.ledger.Accept(ctx, requestID, applicationID, app.HelperID); err != nil {
			if errors.Is(err, assignment.ErrAlreadyAssigned) {
				return nil, ErrAlreadyAssigned
			}
			return nil, err
		}
		return &DecisionResult{
			RequestStatus:     models.RequestStatusAssigned.String(),
			ApplicationStatus: models.ApplicationStatusAccepted.String(),
		}, nil

	case DecisionReject:
		if assigned != nil && assigned.ApplicationID == applicationID {
			return nil, ErrRejectAssigned
		}
		if _, err := s.db.Exec(ctx, `
			UPDATE applications SET status = $1 WHERE id = $2
		`, models.ApplicationStatusRejected, applicationID); err != nil {
			return nil, fmt.Errorf("failed to reject application: %w", err)
		}
		return &DecisionResult{
			RequestStatus:     req.Status.String(),
			ApplicationStatus: models.ApplicationStatusRejected.String(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}
}

// Kick withdraws the accepted helper. Only the application's status changes;
// the request status, the assignment row and sibling applications stay
// untouched so mutual review remains possible afterwards.
func (s *Service) Kick(ctx context.Context, requestID uuid.UUID, requesterID int64) (*models.Application, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != requesterID {
		return nil, ErrNotOwner
	}

	assigned, err := s.ledger.ForRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, assignment.ErrNotFound) {
			return nil, ErrNoAssignment
		}
		return nil, err
	}

	app, err := s.loadApplication(ctx, assigned.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusAccepted {
		return nil, ErrNotAccepted
	}

	var out models.Application
	err = s.db.QueryRow(ctx, `
		UPDATE applications SET status = $1 WHERE id = $2
		RETURNING id, request_id, helper_id, message, status, created_at
	`, models.ApplicationStatusWithdrawn, app.ID).Scan(
		&out.ID, &out.RequestID, &out.HelperID, &out.Message, &out.Status, &out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to withdraw application: %w", err)
	}

	s.log.Info().
		Str("request_id", requestID.String()).
		Int64("helper_id", out.HelperID).
		Msg("Assigned helper withdrawn")

	return &out, nil
}

// MyApplication is an application together with its request's summary
type MyApplication struct {
	Application models.Application `json:"application"`
	Request     models.CareRequest `json:"request"`
}

// MyApplicationList is one page of the caller's applications
type MyApplicationList struct {
	Items      []MyApplication `json:"items"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
}

// ListMine returns the caller's applications with request summaries, newest-first
func (s *Service) ListMine(ctx context.Context, helperID int64, page int) (*MyApplicationList, error) {
	if page < 1 {
		page = 1
	}

	var total int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications WHERE helper_id = $1`, helperID,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count own applications: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT a.id, a.request_id, a.helper_id, a.message, a.status, a.created_at,
			r.id, r.requester_id, r.category, r.service_date, r.start_time,
			r.end_time, r.address, r.place_detail, r.detail, r.note,
			r.image_url, r.image_key, r.reward_tokens, r.status,
			r.created_at, r.updated_at
		FROM applications a
		JOIN care_requests r ON r.id = a.request_id
		WHERE a.helper_id = $1
		ORDER BY a.created_at DESC
		LIMIT $2 OFFSET $3
	`, helperID, defaultPageSize, (page-1)*defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to query own applications: %w", err)
	}
	defer rows.Close()

	result := &MyApplicationList{
		Page:       page,
		TotalPages: (total + defaultPageSize - 1) / defaultPageSize,
	}
	for rows.Next() {
		var m MyApplication
		if err := rows.Scan(
			&m.Application.ID, &m.Application.RequestID, &m.Application.HelperID,
			&m.Application.Message, &m.Application.Status, &m.Application.CreatedAt,
			&m.Request.ID, &m.Request.RequesterID, &m.Request.Category,
			&m.Request.ServiceDate, &m.Request.StartTime, &m.Request.EndTime,
			&m.Request.Address, &m.Request.PlaceDetail, &m.Request.Detail,
			&m.Request.Note, &m.Request.ImageURL, &m.Request.ImageKey,
			&m.Request.RewardTokens, &m.Request.Status,
			&m.Request.CreatedAt, &m.Request.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan own application: %w", err)
		}
		result.Items = append(result.Items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating own applications: %w", err)
	}

	return result, nil
}

// loadRequest fetches the minimal request row for state and ownership checks
func (s *Service) loadRequest(ctx context.Context, id uuid.UUID) (*models.CareRequest, error) {
	var req models.CareRequest
	err := s.db.QueryRow(ctx, `
		SELECT id, requester_id, category, service_date, start_time, end_time, status
		FROM care_requests
		WHERE id = $1
	`, id).Scan(
		&req.ID, &req.RequesterID, &req.Category, &req.ServiceDate,
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

// loadApplication fetches an application by id
func (s *Service) loadApplication(ctx context.Context, id uuid.UUID) (*models.Application, error) {
	var app models.Application
	err := s.db.QueryRow(ctx, `
		SELECT id, request_id, helper_id, message, status, created_at
		FROM applications
		WHERE id = $1
	`, id).Scan(&app.ID, &app.RequestID, &app.HelperID, &app.Message, &app.Status, &app.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicationNotFound
		}
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return &app, nil
}

// ratingStatsByUsers resolves rating aggregates for a set of users in one
// grouped query, consulting the cache first. Cache misses are recomputed and
// written back; cache failures degrade to the database.
func (s *Service) ratingStatsByUsers(ctx context.Context, userIDs []int64) (map[int64]models.RatingStats, error) {
	out := make(map[int64]models.RatingStats, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var missing []int64
	for _, id := range userIDs {
		if st, ok := s.cache.GetRatingStats(ctx, id); ok {
			out[id] = *st
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT reviewee_id, COUNT(*), AVG(rating)
		FROM reviews
		WHERE reviewee_id = ANY($1)
		GROUP BY reviewee_id
	`, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate applicant reviews: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var stats models.RatingStats
		var avg decimal.Decimal
		if err := rows.Scan(&id, &stats.ReviewCount, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan review aggregate: %w", err)
		}
		stats.AverageRating = avg.Round(2)
		out[id] = stats
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review aggregates: %w", err)
	}

	// Users with no reviews get an explicit zero aggregate so the cache
	// also remembers the absence.
	for _, id := range missing {
		st := out[id]
		out[id] = st
		s.cache.SetRatingStats(ctx, id, st)
	}

	return out, nil
}
