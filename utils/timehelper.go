package utils

import (
	"time"
)

// DateTimeLayout is the long localized date-time layout shown to users,
// e.g. "October 19, 2026 3:04 PM".
const DateTimeLayout = "January 2, 2006 3:04 PM"

// ZeroTime is the Unix epoch.
var ZeroTime = time.Unix(0, 0).UTC()

// Clock abstracts wall-clock reads so time-dependent logic can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// NowSubtractHours returns now minus a fractional number of hours.
func NowSubtractHours(clock Clock, hours float64) time.Time {
	return clock.Now().Add(-HoursToDuration(hours))
}

// HoursToDuration converts fractional hours to a duration, keeping
// sub-second precision.
func HoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

// DiffHours returns first - second in fractional hours. The result is
// negative when first is before second and does not wrap at day boundaries.
func DiffHours(first, second time.Time) float64 {
	return first.Sub(second).Hours()
}

// HoursSince returns the hours elapsed between ts and the clock's now.
func HoursSince(clock Clock, ts time.Time) float64 {
	return DiffHours(clock.Now(), ts)
}

// FormatDateTime renders ts in the local zone with DateTimeLayout.
func FormatDateTime(ts time.Time) string {
	return ts.Local().Format(DateTimeLayout)
}

// FormatTime renders the local clock time only.
func FormatTime(ts time.Time) string {
	return ts.Local().Format("3:04 PM")
}
