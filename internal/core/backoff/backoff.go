// Package backoff computes retry eligibility for queued condition lookups.
// It is a pure function of (errorCount, now) so the policy can be tested
// without a database; the postgres claim query encodes the same formula.
package backoff

import "time"

// DefaultMaxExponent caps the retry interval at 2^6 = 64 minutes.
const DefaultMaxExponent = 6

// Interval returns the minimum wait after errorCount consecutive failures:
// 2^min(errorCount, maxExponent) minutes.
func Interval(errorCount, maxExponent int) time.Duration {
	if errorCount < 0 {
		errorCount = 0
	}
	if errorCount > maxExponent {
		errorCount = maxExponent
	}
	return time.Duration(1<<uint(errorCount)) * time.Minute
}

// Deadline returns the instant at which an item last attempted at
// lastAttempt becomes eligible for claiming again.
func Deadline(lastAttempt time.Time, errorCount, maxExponent int) time.Time {
	return lastAttempt.Add(Interval(errorCount, maxExponent))
}

// Eligible reports whether an item may be claimed at now. A nil lastAttempt
// means the item has never been attempted and is always eligible.
func Eligible(lastAttempt *time.Time, errorCount, maxExponent int, now time.Time) bool {
	if lastAttempt == nil {
		return true
	}
	return !now.Before(Deadline(*lastAttempt, errorCount, maxExponent))
}
