package ratelimit

import "time"

// WindowStart maps an instant to the canonical start of its window: the top
// of the UTC hour, or UTC midnight. Calendar truncation in UTC sidesteps DST
// entirely.
func WindowStart(kind WindowKind, now time.Time) time.Time {
	now = now.UTC()
	if kind == WindowDaily {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC)
}

// IsStale reports whether a stored window no longer matches the current one.
// A stale counter reads as zero; it is rewritten in place on the next
// increment rather than swept by a background job.
func IsStale(windowStart time.Time, kind WindowKind, now time.Time) bool {
	return !windowStart.UTC().Equal(WindowStart(kind, now))
}

// NextReset returns when the current window ends, for Retry-After hints.
func NextReset(kind WindowKind, now time.Time) time.Time {
	return WindowStart(kind, now).Add(kind.Duration())
}
