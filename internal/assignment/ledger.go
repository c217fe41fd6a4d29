// Package assignment enforces the at-most-one-active-assignment invariant.
// The UNIQUE constraint on assignments.request_id is the sole mutual
// exclusion primitive for matching; the ledger never re-checks in
// application code what the constraint already guarantees.
package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/withcare/carelink/internal/logging"
	"github.com/withcare/carelink/internal/models"
)

// Ledger errors
var (
	// ErrAlreadyAssigned is returned when a concurrent accept won the race
	ErrAlreadyAssigned = errors.New("request already has an assignment")
	ErrNotFound        = errors.New("assignment not found")
)

// Ledger owns the Assignment entity and the atomic accept transaction
type Ledger struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewLedger creates a new assignment ledger
func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{
		db:  db,
		log: logging.NewLogger("assignment"),
	}
}

// Accept executes the accept decision as one atomic unit: the assignment
// row is inserted, the target application becomes Accepted, every sibling
// still Pending becomes Rejected, and the request flips to Assigned. The
// insert goes first because its unique constraint is the exclusion
// primitive: a racing accept fails there before locking any application
// rows, so losers cannot deadlock against the winner. On a
// unique-constraint violation the whole transaction rolls back and
// ErrAlreadyAssigned is returned.
func (l *Ledger) Accept(ctx context.Context, requestID, applicationID uuid.UUID, helperID int64) (*models.Assignment, error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin accept transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var a models.Assignment
	err = tx.QueryRow(ctx, `
		INSERT INTO assignments (request_id, application_id, helper_id)
		VALUES ($1, $2, $3)
		RETURNING id, request_id, application_id, helper_id, created_at
	`, requestID, applicationID, helperID).Scan(
		&a.ID, &a.RequestID, &a.ApplicationID, &a.HelperID, &a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyAssigned
		}
		return nil, fmt.Errorf("failed to insert assignment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE applications SET status = $1 WHERE id = $2
	`, models.ApplicationStatusAccepted, applicationID); err != nil {
		return nil, fmt.Errorf("failed to accept application: %w", err)
	}

	// Rejected/Withdrawn siblings are left alone; only Pending ones lose.
	if _, err := tx.Exec(ctx, `
		UPDATE applications
		SET status = $1
		WHERE request_id = $2 AND id <> $3 AND status = $4
	`, models.ApplicationStatusRejected, requestID, applicationID,
		models.ApplicationStatusPending); err != nil {
		return nil, fmt.Errorf("failed to reject sibling applications: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE care_requests SET status = $1, updated_at = now() WHERE id = $2
	`, models.RequestStatusAssigned, requestID); err != nil {
		return nil, fmt.Errorf("failed to mark request assigned: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit accept transaction: %w", err)
	}

	l.log.Info().
		Str("request_id", requestID.String()).
		Str("application_id", applicationID.String()).
		Int64("helper_id", helperID).
		Msg("Helper assigned")

	return &a, nil
}

// ForRequest returns the request's assignment, if one exists
func (l *Ledger) ForRequest(ctx context.Context, requestID uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := l.db.QueryRow(ctx, `
		SELECT id, request_id, application_id, helper_id, created_at
		FROM assignments
		WHERE request_id = $1
	`, requestID).Scan(&a.ID, &a.RequestID, &a.ApplicationID, &a.HelperID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	return &a, nil
}

// Get returns an assignment by id
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*models.Assignment, error) {
	var a models.Assignment
	err := l.db.QueryRow(ctx, `
		SELECT id, request_id, application_id, helper_id, created_at
		FROM assignments
		WHERE id = $1
	`, id).Scan(&a.ID, &a.RequestID, &a.ApplicationID, &a.HelperID, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	return &a, nil
}
