package natsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/ackretry/errors"
	"github.com/c360/ackretry/metric"
	"github.com/c360/ackretry/pkg/timestamp"
)

// Responder is the acknowledging peer: it answers every unsubscribe request
// published on its target with an UnsubscribeAck.
type Responder struct {
	url       string
	target    string
	dropFirst int64
	logger    *slog.Logger
	metrics   *transportMetrics
	timeout   time.Duration

	seen  atomic.Int64
	acked atomic.Int64

	mu   sync.Mutex
	conn *nats.Conn
	sub  *nats.Subscription
}

// ResponderOption configures a Responder
type ResponderOption func(*Responder) error

// WithDropFirst makes the responder ignore the first n requests
func WithDropFirst(n int) ResponderOption {
	return func(r *Responder) error {
		if n < 0 {
			return fmt.Errorf("drop count must not be negative: %d", n)
		}
		r.dropFirst = int64(n)
		return nil
	}
}

// WithResponderLogger sets the structured logger
func WithResponderLogger(logger *slog.Logger) ResponderOption {
	return func(r *Responder) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithResponderMetrics counts handled requests in registry
func WithResponderMetrics(registry *metric.MetricsRegistry) ResponderOption {
	return func(r *Responder) error {
		metrics, err := newTransportMetrics(registry, "responder")
		if err != nil {
			return err
		}
		r.metrics = metrics
		return nil
	}
}

// NewResponder creates a responder for target on the NATS server at url
func NewResponder(url, target string, opts ...ResponderOption) (*Responder, error) {
	if target == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty target", errors.ErrInvalidConfig), "Responder", "NewResponder", "validate target")
	}

	r := &Responder{
		url:     url,
		target:  target,
		logger:  slog.Default().With("component", "responder"),
		timeout: 5 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, errors.WrapInvalid(err, "Responder", "NewResponder", "apply option")
		}
	}

	return r, nil
}

// Start connects and subscribes to the target subject
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Responder", "Start", "check state")
	}

	type dialResult struct {
		conn *nats.Conn
		err  error
	}

	connectDone := make(chan dialResult, 1)
	go func() {
		conn, err := nats.Connect(r.url, nats.Name("ackretry-responder"), nats.Timeout(r.timeout))
		connectDone <- dialResult{conn: conn, err: err}
	}()

	select {
	case res := <-connectDone:
		if res.err != nil {
			return errors.WrapTransient(res.err, "Responder", "Start", "connect")
		}
		r.conn = res.conn
	case <-ctx.Done():
		go func() {
			if res := <-connectDone; res.conn != nil {
				res.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "Responder", "Start", "connection cancelled")
	}

	subject := TopicToSubject(r.target)
	sub, err := r.conn.Subscribe(subject, r.handleRequest)
	if err != nil {
		r.conn.Close()
		r.conn = nil
		return errors.WrapTransient(err, "Responder", "Start", "subscribe "+subject)
	}
	r.sub = sub

	r.logger.Info("Responder listening", "subject", subject, "drop_first", r.dropFirst)
	return nil
}

// Stop drains the subscription and closes the connection
func (r *Responder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}

	err := r.conn.Drain()
	if err != nil {
		r.conn.Close()
	}
	r.conn = nil
	r.sub = nil

	if err != nil {
		return errors.WrapTransient(err, "Responder", "Stop", "drain connection")
	}
	return nil
}

// Seen returns how many well-formed requests arrived
func (r *Responder) Seen() int64 {
	return r.seen.Load()
}

// Acknowledged returns how many requests were acknowledged
func (r *Responder) Acknowledged() int64 {
	return r.acked.Load()
}

func (r *Responder) handleRequest(msg *nats.Msg) {
	reply, ok := r.respond(msg.Data)
	if !ok || msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		r.logger.Error("Failed to send acknowledgment", "reply", msg.Reply, "error", err)
		return
	}
	r.metrics.recordMessage(directionOut, kindAck)
}

// respond decides whether data gets an acknowledgment and builds it
func (r *Responder) respond(data []byte) ([]byte, bool) {
	req, err := decodeRequest(data)
	if err != nil {
		r.logger.Warn("Dropping malformed request", "error", err)
		r.metrics.recordMessage(directionIn, kindInvalid)
		return nil, false
	}

	n := r.seen.Add(1)
	r.metrics.recordMessage(directionIn, kindRequest)

	if n <= r.dropFirst {
		r.logger.Info("Dropping request", "request_id", req.RequestID, "attempt", req.Attempt, "seen", n)
		r.metrics.recordMessage(directionIn, kindDropped)
		return nil, false
	}

	reply, err := json.Marshal(UnsubscribeAck{
		RequestID: req.RequestID,
		Target:    req.Target,
		Status:    AckStatusOK,
	})
	if err != nil {
		r.logger.Error("Failed to encode acknowledgment", "request_id", req.RequestID, "error", err)
		return nil, false
	}

	r.acked.Add(1)
	r.logger.Info("Acknowledging request",
		"request_id", req.RequestID,
		"client_id", req.ClientID,
		"attempt", req.Attempt,
		"age", timestamp.Since(req.TimestampMs))

	return reply, true
}
