package retry

import (
	"context"
	"time"
)

// Sleep waits for d, returning early when wake fires or ctx is done.
//
// A wake is not an error: Sleep returns interrupted=true and a nil error so the
// caller simply re-evaluates its state. Only context cancellation is reported
// as an error.
func Sleep(ctx context.Context, wake <-chan struct{}, d time.Duration) (interrupted bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if d <= 0 {
		return false, nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return false, nil
	case <-wake:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
