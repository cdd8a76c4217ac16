//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// notifyWake forwards SIGUSR1 to wake until ctx is done or the returned stop
// function is called. A signal arriving while a wake is already queued is
// dropped, and the coordinator discards any wake still queued when its next
// backoff sleep begins.
func notifyWake(ctx context.Context, wake chan<- struct{}) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				select {
				case wake <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
