package calendar

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestIsTradingDay(t *testing.T) {
	c := New()

	cases := []struct {
		date string
		want bool
	}{
		{"2024-01-02", true},  // Tuesday, ordinary trading day
		{"2024-01-06", false}, // Saturday
		{"2024-01-07", false}, // Sunday
		{"2024-01-01", false}, // New Year holiday
		{"2024-02-04", true},  // compensatory Sunday workday before Spring Festival
		{"2024-02-10", false}, // Spring Festival holiday
	}
	for _, tc := range cases {
		t.Run(tc.date, func(t *testing.T) {
			got := c.IsTradingDay(mustDate(t, tc.date))
			if got != tc.want {
				t.Errorf("IsTradingDay(%s) = %v, want %v", tc.date, got, tc.want)
			}
		})
	}
}

func TestSnapIdempotent(t *testing.T) {
	c := New()
	for _, dir := range []Direction{Back, Forward} {
		d := mustDate(t, "2024-01-02")
		once := c.Snap(d, dir)
		twice := c.Snap(once, dir)
		if !once.Equal(twice) {
			t.Errorf("snap not idempotent for dir %v: %v != %v", dir, once, twice)
		}
	}
}

func TestSnapMovesAcrossHoliday(t *testing.T) {
	c := New()
	// Jan 1 2024 is a Monday holiday; forward should land on Jan 2.
	got := c.Snap(mustDate(t, "2024-01-01"), Forward)
	want := mustDate(t, "2024-01-02")
	if !got.Equal(want) {
		t.Errorf("Snap(2024-01-01, Forward) = %v, want %v", got, want)
	}
}

func TestSnapBackFromWeekend(t *testing.T) {
	c := New()
	// Jan 6 2024 is a Saturday; back should land on Jan 5 (Friday).
	got := c.Snap(mustDate(t, "2024-01-06"), Back)
	want := mustDate(t, "2024-01-05")
	if !got.Equal(want) {
		t.Errorf("Snap(2024-01-06, Back) = %v, want %v", got, want)
	}
}

func TestOutOfRangeDegradesToWeekendOnly(t *testing.T) {
	c := New()
	// Year 2040 has no holiday table coverage; only weekends are excluded.
	weekday := mustDate(t, "2040-03-01") // a Thursday
	if !c.IsTradingDay(weekday) {
		t.Errorf("expected weekday out of range to be a trading day")
	}
	saturday := mustDate(t, "2040-03-03")
	if c.IsTradingDay(saturday) {
		t.Errorf("expected Saturday out of range to not be a trading day")
	}
}

func TestPreTableYearsDegradeToWeekendOnly(t *testing.T) {
	c := New()
	// 2010 precedes the holiday table; the weekend-only rule applies, so
	// even a Spring Festival Monday counts as a trading day.
	festivalMonday := mustDate(t, "2010-02-15")
	if !c.IsTradingDay(festivalMonday) {
		t.Errorf("expected pre-table weekday to degrade to a trading day")
	}
	saturday := mustDate(t, "2010-02-13")
	if c.IsTradingDay(saturday) {
		t.Errorf("expected pre-table Saturday to not be a trading day")
	}
}
