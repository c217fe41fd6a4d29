package review

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func TestWindow_Boundaries(t *testing.T) {
	endAt := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		now  time.Time
		want WindowState
	}{
		{"before end", endAt.Add(-time.Minute), WindowNotOpen},
		{"exactly at end", endAt, WindowOpen},
		{"just after end", endAt.Add(time.Second), WindowOpen},
		{"exactly at close", endAt.Add(ReviewWindow), WindowOpen},
		{"just past close", endAt.Add(ReviewWindow + time.Second), WindowClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Window(tc.now, endAt); got != tc.want {
				t.Errorf("Window(%v, %v) = %v, want %v", tc.now, endAt, got, tc.want)
			}
		})
	}
}

func TestWindow_Property_ExactlyOneState(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		endUnix := rapid.Int64Range(0, 4e9).Draw(rt, "endUnix")
		offset := rapid.Int64Range(-1e6, 1e6).Draw(rt, "offsetSec")

		endAt := time.Unix(endUnix, 0)
		now := endAt.Add(time.Duration(offset) * time.Second)

		got := Window(now, endAt)
		switch {
		case now.Before(endAt):
			if got != WindowNotOpen {
				rt.Fatalf("before end: got %v", got)
			}
		case now.After(endAt.Add(ReviewWindow)):
			if got != WindowClosed {
				rt.Fatalf("past close: got %v", got)
			}
		default:
			if got != WindowOpen {
				rt.Fatalf("inside window: got %v", got)
			}
		}
	})
}
