// Package ackretry sends a NATS unsubscribe request and retries it with
// full-jitter exponential backoff until a peer acknowledges it.
//
// # Layout
//
//   - pkg/retry: backoff generator with a hard retry budget and an
//     interruptible sleep
//   - ack: thread-safe record of what the transport reported (handshake,
//     acknowledgment, closure)
//   - coordinator: the retry state machine driving a Transport
//   - natsclient: the NATS transport and a responder that acknowledges requests
//   - config: defaults, YAML/JSON files, .env files and ACKRETRY_* variables
//   - metric, health: Prometheus metrics and component health behind /metrics
//     and /health
//   - errors: classified errors (transient, invalid, fatal)
//   - cmd/ackretry: the command line
//
// # Quick Start
//
//	ackretry respond --target unsubscribe/test &
//	ackretry run --target unsubscribe/test --max-attempts 10
//
// The run exits with the connection's closure code once acknowledged (4 when
// the connection was lost), 3 when retries are exhausted, 1 on a fatal error
// and 130 when interrupted.
package ackretry
