// Package clock owns every civil-time rule in the service. Care requests
// store a calendar date (the civil date's midnight as a UTC instant) and two
// times-of-day (wall-clock values on the 1970-01-01 UTC epoch day); this
// package converts between those storage representations and instants in the
// configured civil timezone. No other package may consult a timezone.
package clock

import (
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for service dates
	DateLayout = "2006-01-02"
	// TimeOfDayLayout is the wire format for start/end times
	TimeOfDayLayout = "15:04"
)

// Clock resolves "today", "now" and day boundaries in a fixed civil timezone
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New creates a Clock for the given IANA timezone name
func New(zone string) (*Clock, error) {
	return NewWithNow(zone, time.Now)
}

// NewWithNow creates a Clock with an injectable time source, used by tests
// and by sweep logic that needs a single consistent "now" per run.
func NewWithNow(zone string, now func() time.Time) (*Clock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("clock: load timezone %q: %w", zone, err)
	}
	return &Clock{loc: loc, now: now}, nil
}

// Now returns the current instant from the clock's time source
func (c *Clock) Now() time.Time {
	return c.now()
}

// StartOfTodayUTC returns the current civil day's midnight as a UTC instant,
// the comparison cutoff for the service_date column.
func (c *Clock) StartOfTodayUTC() time.Time {
	n := c.now().In(c.loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, c.loc).UTC()
}

// StartOfTomorrowUTC returns the next civil day's midnight as a UTC instant
func (c *Clock) StartOfTomorrowUTC() time.Time {
	n := c.now().In(c.loc)
	return time.Date(n.Year(), n.Month(), n.Day()+1, 0, 0, 0, 0, c.loc).UTC()
}

// NowTimeOfDay returns the current civil wall-clock time re-expressed in the
// storage representation for the start_time/end_time columns.
func (c *Clock) NowTimeOfDay() time.Time {
	n := c.now().In(c.loc)
	return time.Date(1970, time.January, 1, n.Hour(), n.Minute(), n.Second(), 0, time.UTC)
}

// Compose combines a stored service date and a stored time-of-day into the
// instant they denote in the civil timezone.
func (c *Clock) Compose(serviceDate, timeOfDay time.Time) time.Time {
	d := serviceDate.In(c.loc)
	t := timeOfDay.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), t.Second(), 0, c.loc)
}

// ParseServiceDate parses a calendar date into its storage representation
func (c *Clock) ParseServiceDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, value, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: parse service date %q: %w", value, err)
	}
	return d.UTC(), nil
}

// ParseTimeOfDay parses a wall-clock time into its storage representation.
// The result is timezone-agnostic; the zone only matters once the value is
// composed with a date.
func ParseTimeOfDay(value string) (time.Time, error) {
	t, err := time.Parse(TimeOfDayLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("clock: parse time of day %q: %w", value, err)
	}
	return time.Date(1970, time.January, 1, t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

// MinutesBetween returns the whole minutes from one stored time-of-day to
// another. Negative when end precedes start.
func MinutesBetween(start, end time.Time) int {
	return int(end.Sub(start) / time.Minute)
}
