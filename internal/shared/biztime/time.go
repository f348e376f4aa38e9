// Package biztime centralizes wall-clock access. All stored and transported
// times are UTC.
package biztime

import "time"

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// ToUTC converts t to UTC, leaving the zero time untouched.
func ToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// Clock is injected where tests need to control time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return NowUTC() }

// SystemClock returns a Clock backed by NowUTC.
func SystemClock() Clock { return systemClock{} }
