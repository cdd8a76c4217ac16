// Package timestamp converts between time.Time and the int64 Unix
// milliseconds carried on the wire.
//
// Zero means "not set": ToUnixMs maps the zero time to 0 and FromUnixMs maps
// 0 back to the zero time.
package timestamp

import (
	"fmt"
	"time"
)

// maxMs is 3000-01-01T00:00:00Z
const maxMs = 32503680000000

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Since returns the time elapsed since ms, or 0 when ms is unset.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Validate rejects negative timestamps and ones past the year 3000, which
// usually means seconds or nanoseconds were sent instead of milliseconds.
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	if ms > maxMs {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
