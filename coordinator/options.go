package coordinator

import (
	"log/slog"

	"github.com/c360/ackretry/ack"
	"github.com/c360/ackretry/health"
	"github.com/c360/ackretry/metric"
	"github.com/c360/ackretry/pkg/retry"
)

// Option configures a Coordinator
type Option func(*Coordinator)

// WithTracker supplies the tracker instead of creating one
func WithTracker(tracker *ack.Tracker) Option {
	return func(c *Coordinator) {
		c.tracker = tracker
	}
}

// WithSampler sets the random source for backoff jitter
func WithSampler(sampler retry.Sampler) Option {
	return func(c *Coordinator) {
		c.sampler = sampler
	}
}

// WithWake sets the channel that cuts a backoff sleep short
func WithWake(wake <-chan struct{}) Option {
	return func(c *Coordinator) {
		c.wake = wake
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records run metrics into m
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithHealth reports coordinator health to monitor
func WithHealth(monitor *health.Monitor) Option {
	return func(c *Coordinator) {
		c.health = monitor
	}
}
