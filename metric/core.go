package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ackretry"

// Metrics contains the retry core metrics
type Metrics struct {
	// Backoff generator
	BackoffAttempts prometheus.Counter
	BackoffDelay    prometheus.Histogram
	SleepInterrupts prometheus.Counter

	// Requests
	RequestsIssued prometheus.Counter
	RequestErrors  prometheus.Counter
	PendingAck     prometheus.Gauge

	// Coordinator
	CoordinatorState prometheus.Gauge
	RunsTotal        *prometheus.CounterVec

	// Transport
	TransportConnected prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		BackoffAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backoff",
			Name:      "attempts_total",
			Help:      "Total number of backoff delays handed out",
		}),

		BackoffDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backoff",
			Name:      "delay_seconds",
			Help:      "Computed backoff delay in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		SleepInterrupts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backoff",
			Name:      "sleep_interrupts_total",
			Help:      "Backoff sleeps cut short by an external wake signal",
		}),

		RequestsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "issued_total",
			Help:      "Total number of unsubscribe requests issued",
		}),

		RequestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "errors_total",
			Help:      "Requests the transport refused to send",
		}),

		PendingAck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "pending_ack",
			Help:      "1 while an acknowledgment is still owed",
		}),

		CoordinatorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "state",
			Help:      "Coordinator state (0=awaiting_connection, 1=ready, 2=issuing_request, 3=waiting, 4=done)",
		}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coordinator",
			Name:      "runs_total",
			Help:      "Completed coordinator runs by outcome",
		}, []string{"outcome"}),

		TransportConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connected",
			Help:      "Transport connection status (1=connected, 0=disconnected)",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BackoffAttempts,
		m.BackoffDelay,
		m.SleepInterrupts,
		m.RequestsIssued,
		m.RequestErrors,
		m.PendingAck,
		m.CoordinatorState,
		m.RunsTotal,
		m.TransportConnected,
	}
}
