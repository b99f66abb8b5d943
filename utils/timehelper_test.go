package utils

import (
	"math"
	"testing"
	"time"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestDiffHours(t *testing.T) {
	base := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		first  time.Time
		second time.Time
		want   float64
	}{
		{"same instant", base, base, 0},
		{"fifteen minutes", base.Add(15 * time.Minute), base, 0.25},
		{"negative when earlier", base, base.Add(90 * time.Minute), -1.5},
		{"across midnight does not wrap", base.Add(45 * time.Minute), base, 0.75},
		{"two days", base.Add(48 * time.Hour), base, 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DiffHours(tt.first, tt.second); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DiffHours() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNowSubtractHoursRoundTrip(t *testing.T) {
	clock := fixedClock{now: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}

	for _, hours := range []float64{0, 0.1, 1.0 / 6, 2, 26.5} {
		ts := NowSubtractHours(clock, hours)
		if got := HoursSince(clock, ts); math.Abs(got-hours) > 1e-6 {
			t.Errorf("HoursSince(NowSubtractHours(%v)) = %v", hours, got)
		}
	}
}

func TestHoursToDurationKeepsFractions(t *testing.T) {
	if got := HoursToDuration(0.5); got != 30*time.Minute {
		t.Errorf("HoursToDuration(0.5) = %v", got)
	}
	if got := HoursToDuration(1.0 / 3600); got != time.Second {
		t.Errorf("HoursToDuration(1s) = %v", got)
	}
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2026, 10, 19, 15, 4, 0, 0, time.Local)
	if got := FormatDateTime(ts); got != "October 19, 2026 3:04 PM" {
		t.Errorf("FormatDateTime() = %q", got)
	}
	if got := FormatTime(ts); got != "3:04 PM" {
		t.Errorf("FormatTime() = %q", got)
	}
}

func TestZeroTimeIsEpoch(t *testing.T) {
	if ZeroTime.Unix() != 0 {
		t.Errorf("ZeroTime = %v", ZeroTime)
	}
}
