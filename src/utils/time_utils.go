package utils

import "time"

// BarTime truncates a timestamp to its bar boundary in UTC, so stored candles
// always land on whole-interval datetimes regardless of when they were fetched.
func BarTime(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(interval)
}
