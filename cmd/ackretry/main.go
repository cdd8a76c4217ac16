// Package main implements the ackretry command: it sends an unsubscribe
// request over NATS and retries with jittered exponential backoff until the
// request is acknowledged.
package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/c360/ackretry/coordinator"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ackretry"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	os.Exit(execute(os.Args[1:]))
}

// exitError carries a non-zero process exit code out of a command without
// being reported as a failure. err, when set, names the condition behind it.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("exit status %d: %v", e.code, e.err)
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

// execute runs the command line and maps the result to a process exit code
func execute(args []string) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return 0
	}

	var exit *exitError
	if stderrors.As(err, &exit) {
		if exit.err != nil {
			slog.Warn("Run did not succeed", "reason", exit.err, "exit_code", exit.code)
		}
		return exit.code
	}

	slog.Error("Application failed", "error", err, "exit_code", coordinator.ExitFatal)
	return coordinator.ExitFatal
}
