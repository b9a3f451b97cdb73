package util

import "time"

// Clock supplies wall time to expiration checks.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// FixedClock always reports the same instant.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// UnixSec returns the clock's current time as a Unix timestamp in seconds.
func UnixSec(c Clock) int64 {
	if c == nil {
		return time.Now().Unix()
	}
	return c.Now().Unix()
}
