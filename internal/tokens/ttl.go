package tokens

import "time"

// AddMinutes returns t shifted by n minutes.
func AddMinutes(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Minute)
}

// AddDays returns t shifted by n periods of 24 hours.
func AddDays(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * 24 * time.Hour)
}

// IsExpired reports whether now has reached expiresAt.
func IsExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
