//go:build !unix

package main

import "context"

// notifyWake is a no-op where SIGUSR1 does not exist
func notifyWake(_ context.Context, _ chan<- struct{}) (stop func()) {
	return func() {}
}
