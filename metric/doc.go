// Package metric exposes the backoff, request and transport metrics over Prometheus.
//
// A MetricsRegistry owns a private prometheus.Registry with the core Metrics
// pre-registered. Components such as the NATS transport add their own
// collectors through RegisterCounterVec.
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(":9090", "/metrics", registry, monitor)
//	go server.Run(ctx) // returns once ctx is done and the listener has shut down
package metric
