// Package retry provides full-jitter exponential backoff with a hard retry budget.
//
// # Overview
//
// A Context holds the attempt count and the configured bounds. Each call to
// NextBackoff consumes one attempt and draws a delay uniformly from
// [0, min(base * 2^attempts, max)] using a caller supplied random sample, so a
// fixed sample sequence always yields the same delays.
//
//	rc, err := retry.Initialize(1000, 3000, 999)
//	if err != nil {
//	    return err // errors.ErrInvalidParameters
//	}
//	sampler := retry.NewRandomSampler()
//	for {
//	    out := rc.NextBackoff(sampler.Uint32())
//	    if out.RetriesExhausted() {
//	        break
//	    }
//	    if _, err := retry.Sleep(ctx, wake, out.Duration()); err != nil {
//	        return err
//	    }
//	    // retry the operation
//	}
//
// # Exhaustion
//
// With a budget of N, calls 1..N return a delay and call N+1 returns
// RetriesExhausted. A budget of RetryForever never exhausts.
//
// # Interruptible Sleep
//
// Sleep returns early when the wake channel fires. The wake is reported as
// interrupted=true, never as an error, and does not touch the Context.
//
// # Thread Safety
//
// Context is owned by one goroutine. RandomSampler and FixedSampler are safe for
// concurrent use.
package retry
