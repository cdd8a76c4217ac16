// Package retry provides a budgeted full-jitter exponential backoff generator
package retry

import (
	"fmt"
	"math"
	"time"

	"github.com/c360/ackretry/errors"
)

// RetryForever as maxAttempts disables the retry budget.
const RetryForever uint32 = 0

// maxShift caps the exponent so base<<shift stays inside uint32.
// A uint16 base shifted by 16 already exceeds every uint16 cap.
const maxShift = 16

// Outcome is the tagged result of NextBackoff: either a delay or exhaustion.
type Outcome struct {
	delayMs   uint16
	exhausted bool
}

// Delay returns an Outcome carrying a delay in milliseconds
func Delay(ms uint16) Outcome {
	return Outcome{delayMs: ms}
}

// Exhausted returns the RetriesExhausted outcome
func Exhausted() Outcome {
	return Outcome{exhausted: true}
}

// RetriesExhausted reports whether the budget was consumed
func (o Outcome) RetriesExhausted() bool {
	return o.exhausted
}

// DelayMs returns the delay in milliseconds. Zero when exhausted.
func (o Outcome) DelayMs() uint16 {
	return o.delayMs
}

// Duration returns the delay as a time.Duration
func (o Outcome) Duration() time.Duration {
	return time.Duration(o.delayMs) * time.Millisecond
}

// String returns a short diagnostic form of the outcome
func (o Outcome) String() string {
	if o.exhausted {
		return "retries_exhausted"
	}
	return fmt.Sprintf("delay(%dms)", o.delayMs)
}

// Context tracks attempts against a retry budget. It is owned by a single
// goroutine and is not safe for concurrent use.
type Context struct {
	attemptsDone uint32
	baseDelayMs  uint16
	maxDelayMs   uint16
	maxAttempts  uint32
}

// Initialize validates the bounds and returns a fresh Context.
// base must not exceed max and max must be non-zero.
func Initialize(baseDelayMs, maxDelayMs uint16, maxAttempts uint32) (*Context, error) {
	if maxDelayMs == 0 {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: max delay must be non-zero", errors.ErrInvalidParameters),
			"retry", "Initialize", "validate bounds")
	}
	if baseDelayMs > maxDelayMs {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: base delay %dms exceeds max delay %dms",
				errors.ErrInvalidParameters, baseDelayMs, maxDelayMs),
			"retry", "Initialize", "validate bounds")
	}

	return &Context{
		baseDelayMs: baseDelayMs,
		maxDelayMs:  maxDelayMs,
		maxAttempts: maxAttempts,
	}, nil
}

// AttemptsDone returns how many delays have been handed out
func (c *Context) AttemptsDone() uint32 {
	return c.attemptsDone
}

// MaxAttempts returns the retry budget (RetryForever when unbounded)
func (c *Context) MaxAttempts() uint32 {
	return c.maxAttempts
}

// BaseDelayMs returns the minimum backoff unit
func (c *Context) BaseDelayMs() uint16 {
	return c.baseDelayMs
}

// MaxDelayMs returns the cap applied to every window
func (c *Context) MaxDelayMs() uint16 {
	return c.maxDelayMs
}

// Exhausted reports whether the next call to NextBackoff would return RetriesExhausted
func (c *Context) Exhausted() bool {
	return c.maxAttempts != RetryForever && c.attemptsDone >= c.maxAttempts
}

// Window returns the jitter ceiling for the next attempt:
// min(base * 2^attemptsDone, maxDelay), computed without overflow.
func (c *Context) Window() uint16 {
	shift := c.attemptsDone
	if shift > maxShift {
		shift = maxShift
	}
	window := uint32(c.baseDelayMs) << shift
	if window > uint32(c.maxDelayMs) {
		return c.maxDelayMs
	}
	return uint16(window)
}

// NextBackoff draws the next delay uniformly from [0, Window()] using
// randomSample and consumes one attempt.
//
// Calls 1..maxAttempts return a Delay; call maxAttempts+1 and every call after
// it return RetriesExhausted without touching the attempt count.
func (c *Context) NextBackoff(randomSample uint32) Outcome {
	if c.Exhausted() {
		return Exhausted()
	}

	window := uint32(c.Window())
	delay := uint16(randomSample % (window + 1))

	if c.attemptsDone < math.MaxUint32 {
		c.attemptsDone++
	}

	return Delay(delay)
}
