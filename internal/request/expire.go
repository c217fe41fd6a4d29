package request

import (
	"context"
	"fmt"
	"time"

	"github.com/withcare/carelink/internal/models"
)

// ExpirePastDate flips still-open requests whose civil service date lies
// strictly before today to Expired. The cutoff is today's civil midnight as
// a UTC instant; both sweeps are idempotent by construction (the status
// guard makes a re-run a no-op).
func (s *Service) ExpirePastDate(ctx context.Context, todayStartUTC time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE care_requests
		SET status = $1, updated_at = now()
		WHERE status = $2 AND service_date < $3
	`, models.RequestStatusExpired, models.RequestStatusOpen, todayStartUTC)
	if err != nil {
		return 0, fmt.Errorf("failed to expire past-date requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireElapsedStartToday flips still-open requests scheduled for today whose
// start time-of-day has already elapsed. The day boundaries and the current
// time-of-day arrive pre-converted from the civil timezone; comparing raw UTC
// components here would mis-expire rows near the civil midnight.
func (s *Service) ExpireElapsedStartToday(ctx context.Context, todayStartUTC, tomorrowStartUTC, nowTimeOfDay time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE care_requests
		SET status = $1, updated_at = now()
		WHERE status = $2
		  AND service_date >= $3 AND service_date < $4
		  AND start_time <= $5
	`, models.RequestStatusExpired, models.RequestStatusOpen,
		todayStartUTC, tomorrowStartUTC, nowTimeOfDay)
	if err != nil {
		return 0, fmt.Errorf("failed to expire elapsed-start requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
