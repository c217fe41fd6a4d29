// Package expiry runs the background sweeps that move care requests
// through their time-driven transitions: Open requests whose window has
// passed become Expired, and Assigned requests whose review window lapsed
// with no review become Completed.
package expiry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/withcare/carelink/internal/clock"
	"github.com/withcare/carelink/internal/logging"
	"github.com/withcare/carelink/internal/monitoring"
	"github.com/withcare/carelink/internal/request"
	"github.com/withcare/carelink/internal/review"
)

// Sweep job names, used in logs and metric labels
const (
	JobExpiry       = "expiry"
	JobAutoComplete = "auto_complete"
)

// Scheduler drives the periodic sweeps
type Scheduler struct {
	requests *request.Service
	reviews  *review.Service
	clock    *clock.Clock
	log      zerolog.Logger

	expiryInterval       time.Duration
	autoCompleteInterval time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	lastRun map[string]time.Time
}

// NewScheduler creates a scheduler over the given services
func NewScheduler(requests *request.Service, reviews *review.Service, clk *clock.Clock, expiryInterval, autoCompleteInterval time.Duration) *Scheduler {
	return &Scheduler{
		requests:             requests,
		reviews:              reviews,
		clock:                clk,
		log:                  logging.NewLogger("scheduler"),
		expiryInterval:       expiryInterval,
		autoCompleteInterval: autoCompleteInterval,
		stopCh:               make(chan struct{}),
		lastRun:              make(map[string]time.Time),
	}
}

// Start launches the sweep loop. Both sweeps run once immediately so a
// restart never leaves stale rows waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.log.Info().
		Dur("expiry_interval", s.expiryInterval).
		Dur("auto_complete_interval", s.autoCompleteInterval).
		Msg("Sweep scheduler started")
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info().Msg("Sweep scheduler stopped")
}

// IsRunning reports whether the loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	expiryTicker := time.NewTicker(s.expiryInterval)
	defer expiryTicker.Stop()
	autoCompleteTicker := time.NewTicker(s.autoCompleteInterval)
	defer autoCompleteTicker.Stop()

	s.sweep(ctx, JobExpiry, s.RunExpiryNow)
	s.sweep(ctx, JobAutoComplete, s.RunAutoCompleteNow)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-expiryTicker.C:
			s.sweep(ctx, JobExpiry, s.RunExpiryNow)
		case <-autoCompleteTicker.C:
			s.sweep(ctx, JobAutoComplete, s.RunAutoCompleteNow)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context, job string, fn func(context.Context) (int64, error)) {
	started := time.Now()
	affected, err := fn(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("job", job).Msg("Sweep failed")
		return
	}

	s.mu.Lock()
	s.lastRun[job] = time.Now()
	s.mu.Unlock()

	logging.LogSweep(job, affected, time.Since(started))
	if m := monitoring.Get(); m != nil {
		m.SweepRuns.WithLabelValues(job).Inc()
		m.SweepRowsAffected.WithLabelValues(job).Add(float64(affected))
	}
}

// RunExpiryNow performs one expiry sweep and returns the rows transitioned.
// A request expires when its service date is in the past, or is today with
// a start time already behind the civil wall clock.
func (s *Scheduler) RunExpiryNow(ctx context.Context) (int64, error) {
	today := s.clock.StartOfTodayUTC()
	pastDays, err := s.requests.ExpirePastDate(ctx, today)
	if err != nil {
		return 0, err
	}
	elapsed, err := s.requests.ExpireElapsedStartToday(ctx, today, s.clock.StartOfTomorrowUTC(), s.clock.NowTimeOfDay())
	if err != nil {
		return pastDays, err
	}
	return pastDays + elapsed, nil
}

// RunAutoCompleteNow performs one auto-complete sweep
func (s *Scheduler) RunAutoCompleteNow(ctx context.Context) (int64, error) {
	return s.reviews.AutoCompleteOverdue(ctx)
}

// LastRun returns when the named job last completed, zero if it never has
func (s *Scheduler) LastRun(job string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun[job]
}
