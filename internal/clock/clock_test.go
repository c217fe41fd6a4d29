package clock

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

func fixed(t *testing.T, zone string, value string) *Clock {
	t.Helper()
	loc, err := time.LoadLocation(zone)
	if err != nil {
		t.Fatalf("load zone %s: %v", zone, err)
	}
	instant, err := time.ParseInLocation("2006-01-02 15:04:05", value, loc)
	if err != nil {
		t.Fatalf("parse instant %s: %v", value, err)
	}
	clk, err := NewWithNow(zone, func() time.Time { return instant })
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	return clk
}

func TestStartOfTodayUTC_SeoulAheadOfUTC(t *testing.T) {
	// 2025-03-10 01:30 in Seoul is still 2025-03-09 in UTC; "today" must
	// follow the civil date, not the UTC date.
	clk := fixed(t, "Asia/Seoul", "2025-03-10 01:30:00")

	got := clk.StartOfTodayUTC()
	want := time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC) // 2025-03-10 00:00 KST
	if !got.Equal(want) {
		t.Errorf("StartOfTodayUTC = %v, want %v", got, want)
	}

	tomorrow := clk.StartOfTomorrowUTC()
	if want := want.Add(24 * time.Hour); !tomorrow.Equal(want) {
		t.Errorf("StartOfTomorrowUTC = %v, want %v", tomorrow, want)
	}
}

func TestNowTimeOfDay_UsesCivilWallClock(t *testing.T) {
	clk := fixed(t, "Asia/Seoul", "2025-03-10 14:45:30")

	got := clk.NowTimeOfDay()
	want := time.Date(1970, 1, 1, 14, 45, 30, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NowTimeOfDay = %v, want %v", got, want)
	}
}

func TestCompose_RecoverableFromParse(t *testing.T) {
	clk := fixed(t, "Asia/Seoul", "2025-03-10 12:00:00")

	date, err := clk.ParseServiceDate("2025-04-01")
	if err != nil {
		t.Fatal(err)
	}
	tod, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatal(err)
	}

	got := clk.Compose(date, tod)
	loc, _ := time.LoadLocation("Asia/Seoul")
	want := time.Date(2025, 4, 1, 9, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("Compose = %v, want %v", got, want)
	}
}

func TestParseTimeOfDay_Invalid(t *testing.T) {
	for _, bad := range []string{"", "25:00", "12:61", "noon", "12:00:00"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("ParseTimeOfDay(%q) accepted invalid input", bad)
		}
	}
}

func TestNew_UnknownZone(t *testing.T) {
	if _, err := New("Not/AZone"); err == nil {
		t.Error("New accepted an unknown timezone")
	}
}

func TestMinutesBetween_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		startMin := rapid.IntRange(0, 24*60-1).Draw(rt, "startMin")
		endMin := rapid.IntRange(0, 24*60-1).Draw(rt, "endMin")

		start := time.Date(1970, 1, 1, startMin/60, startMin%60, 0, 0, time.UTC)
		end := time.Date(1970, 1, 1, endMin/60, endMin%60, 0, 0, time.UTC)

		got := MinutesBetween(start, end)
		if got != endMin-startMin {
			rt.Fatalf("MinutesBetween(%v, %v) = %d, want %d", start, end, got, endMin-startMin)
		}
	})
}

func TestCompose_Property_DateAndTimeSurvive(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}
	clk, err := NewWithNow("Asia/Seoul", time.Now)
	if err != nil {
		t.Fatal(err)
	}

	rapid.Check(t, func(rt *rapid.T) {
		year := rapid.IntRange(2024, 2030).Draw(rt, "year")
		month := rapid.IntRange(1, 12).Draw(rt, "month")
		day := rapid.IntRange(1, 28).Draw(rt, "day")
		hour := rapid.IntRange(0, 23).Draw(rt, "hour")
		minute := rapid.IntRange(0, 59).Draw(rt, "minute")

		date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc).UTC()
		tod := time.Date(1970, 1, 1, hour, minute, 0, 0, time.UTC)

		composed := clk.Compose(date, tod).In(loc)
		if composed.Year() != year || int(composed.Month()) != month || composed.Day() != day {
			rt.Fatalf("Compose lost the date: got %v", composed)
		}
		if composed.Hour() != hour || composed.Minute() != minute {
			rt.Fatalf("Compose lost the time of day: got %v", composed)
		}
	})
}
