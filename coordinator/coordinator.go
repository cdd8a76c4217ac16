package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/ackretry/ack"
	"github.com/c360/ackretry/errors"
	"github.com/c360/ackretry/health"
	"github.com/c360/ackretry/metric"
	"github.com/c360/ackretry/pkg/retry"
)

const healthComponent = "coordinator"

// Transport is the message transport the coordinator drives. Every
// notification reaches the handler passed to Start.
type Transport interface {
	// Start launches the notification loop
	Start(handler ack.Handler) error
	// Connect begins the handshake; the result arrives via OnHandshakeComplete
	Connect(ctx context.Context, endpoint string, keepalive time.Duration) error
	// IssueRequest sends one request; the acknowledgment arrives via OnAcknowledged
	IssueRequest(ctx context.Context, target string) (requestID string, err error)
	// Disconnect closes the session; the closure arrives via OnClosed
	Disconnect(ctx context.Context) error
	// Stop ends the notification loop
	Stop()
}

// Config holds the parameters of one run
type Config struct {
	Endpoint  string
	Keepalive time.Duration
	Target    string

	BaseDelayMs uint16
	MaxDelayMs  uint16
	MaxAttempts uint32

	// ConnectTimeout bounds the handshake wait. Zero waits indefinitely, so a
	// broker that accepts the dial but never answers blocks the run until ctx ends.
	ConnectTimeout time.Duration
	// AckGrace is how long to wait for a late acknowledgment once the budget is spent
	AckGrace time.Duration
	// CloseTimeout bounds the wait for the transport to report closure
	CloseTimeout time.Duration
}

// Coordinator retries a request until it is acknowledged, the retry budget
// runs out or the transport closes.
type Coordinator struct {
	cfg       Config
	transport Transport
	tracker   *ack.Tracker
	backoff   *retry.Context
	sampler   retry.Sampler
	wake      <-chan struct{}
	logger    *slog.Logger
	metrics   *metric.Metrics
	health    *health.Monitor

	state    atomic.Int32
	ran      atomic.Bool
	sleeps   atomic.Uint32
	requests uint32
	failures uint32
	lastID   string
}

// New validates cfg and builds a coordinator. Invalid backoff bounds are
// fatal and reported here, before anything touches the transport.
func New(cfg Config, transport Transport, opts ...Option) (*Coordinator, error) {
	if transport == nil {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: nil transport", errors.ErrInvalidConfig), "Coordinator", "New", "validate transport")
	}
	if cfg.Target == "" {
		return nil, errors.WrapFatal(
			fmt.Errorf("%w: empty target", errors.ErrInvalidConfig), "Coordinator", "New", "validate target")
	}

	backoff, err := retry.Initialize(cfg.BaseDelayMs, cfg.MaxDelayMs, cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:       cfg,
		transport: transport,
		backoff:   backoff,
		logger:    slog.Default().With("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tracker == nil {
		c.tracker = ack.NewTracker()
	}
	if c.sampler == nil {
		c.sampler = retry.NewRandomSampler()
	}

	c.setState(StateAwaitingConnection)
	return c, nil
}

// Tracker returns the acknowledgment tracker the transport reports into
func (c *Coordinator) Tracker() *ack.Tracker {
	return c.tracker
}

// State returns the current state. Safe to call from any goroutine.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.CoordinatorState.Set(float64(s))
	}
}

// Run drives one unsubscribe to completion. It may be called once.
//
// Only fatal conditions are returned as errors: a transport that cannot start,
// a failed or timed-out handshake. Exhaustion, closure and cancellation are
// reported through the Result.
func (c *Coordinator) Run(ctx context.Context) (Result, error) {
	if !c.ran.CompareAndSwap(false, true) {
		return Result{Outcome: OutcomeFailed, ExitCode: ExitFatal},
			errors.WrapFatal(errors.ErrAlreadyStarted, "Coordinator", "Run", "check single use")
	}

	c.setState(StateAwaitingConnection)

	if err := c.transport.Start(c.tracker); err != nil {
		c.setState(StateDone)
		return c.fail(errors.WrapFatal(err, "Coordinator", "Run", "start transport"))
	}

	if err := c.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return c.finish(ctx, OutcomeCancelled), nil
		}
		c.shutdown(ctx)
		return c.fail(err)
	}

	c.setState(StateReady)
	c.updateHealth(health.NewHealthy(healthComponent, "connected"))
	c.logger.Info("Transport ready", "target", c.cfg.Target, "max_attempts", c.backoff.MaxAttempts())

	return c.finish(ctx, c.retryLoop(ctx)), nil
}

func (c *Coordinator) connect(ctx context.Context) error {
	c.logger.Info("Connecting", "endpoint", c.cfg.Endpoint, "keepalive", c.cfg.Keepalive)

	if err := c.transport.Connect(ctx, c.cfg.Endpoint, c.cfg.Keepalive); err != nil {
		return errors.WrapFatal(
			fmt.Errorf("%w: %w", errors.ErrHandshakeFailed, err), "Coordinator", "connect", "begin handshake")
	}

	waitCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	err := c.tracker.WaitConnected(waitCtx)
	if err == nil {
		return nil
	}
	if errors.IsFatal(err) || ctx.Err() != nil {
		return err
	}

	// Timed out waiting for the handshake
	return errors.WrapFatal(
		fmt.Errorf("%w: no handshake within %v: %w", errors.ErrHandshakeFailed, c.cfg.ConnectTimeout, err),
		"Coordinator", "connect", "await handshake")
}

// retryLoop alternates backoff sleeps and requests until the request is
// acknowledged, the budget runs out, the transport closes or ctx ends.
//
// Acknowledgments are observed at the top of each iteration, never awaited
// inside the sleep. A wake cuts the sleep short; that iteration still issues
// its single request and no attempt is added. A closure ends the sleep and the
// loop without issuing.
func (c *Coordinator) retryLoop(ctx context.Context) Outcome {
	for {
		if !c.tracker.Pending() {
			return OutcomeAcknowledged
		}
		if c.tracker.IsClosed() {
			return OutcomeTransportClosed
		}
		if ctx.Err() != nil {
			return OutcomeCancelled
		}

		c.setState(StateIssuingRequest)
		outcome := c.backoff.NextBackoff(c.sampler.Uint32())

		c.logger.Debug("Backoff computed",
			"attempt", c.backoff.AttemptsDone(),
			"delay", outcome.Duration(),
			"pending", c.tracker.Pending(),
			"exhausted", outcome.RetriesExhausted(),
			"state", c.State().String())

		if outcome.RetriesExhausted() {
			return c.awaitLateAck(ctx)
		}

		if c.metrics != nil {
			c.metrics.BackoffAttempts.Inc()
			c.metrics.BackoffDelay.Observe(outcome.Duration().Seconds())
		}

		c.setState(StateWaiting)
		interrupted, err := c.sleep(ctx, outcome.Duration())
		if err != nil {
			if ctx.Err() == nil && c.tracker.IsClosed() {
				return OutcomeTransportClosed
			}
			return OutcomeCancelled
		}
		if interrupted {
			c.logger.Info("Backoff sleep interrupted", "attempt", c.backoff.AttemptsDone())
			if c.metrics != nil {
				c.metrics.SleepInterrupts.Inc()
			}
		}

		c.setState(StateIssuingRequest)
		c.issue(ctx)
	}
}

// sleep waits out one backoff delay. It returns early on a wake, and with an
// error when ctx is done or the transport reports closure.
//
// Wakes queued while no sleep was running are discarded first, so only a
// wake that arrives during this sleep can cut it short.
func (c *Coordinator) sleep(ctx context.Context, d time.Duration) (bool, error) {
	c.drainWake()

	sleepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.tracker.Closed():
			cancel()
		case <-sleepCtx.Done():
		}
	}()

	c.sleeps.Add(1)
	return retry.Sleep(sleepCtx, c.wake, d)
}

func (c *Coordinator) drainWake() {
	for {
		select {
		case _, ok := <-c.wake:
			if !ok {
				c.wake = nil
				return
			}
			c.logger.Debug("Discarded wake outside backoff sleep")
		default:
			return
		}
	}
}

func (c *Coordinator) issue(ctx context.Context) {
	id, err := c.transport.IssueRequest(ctx, c.cfg.Target)
	if err != nil {
		c.failures++
		if c.metrics != nil {
			c.metrics.RequestErrors.Inc()
		}
		class := errors.Classify(err)
		c.logger.Warn("Request not sent",
			"attempt", c.backoff.AttemptsDone(),
			"class", class.String(),
			"error", err)

		// Only a transient failure can succeed on a later attempt
		if errors.IsTransient(err) {
			c.updateHealth(health.NewDegraded(healthComponent, "request failed"))
		} else if c.health != nil {
			c.health.UpdateUnhealthy(healthComponent, "request rejected")
		}
		return
	}

	c.requests++
	c.lastID = id
	if c.metrics != nil {
		c.metrics.RequestsIssued.Inc()
		c.metrics.PendingAck.Set(boolToFloat(c.tracker.Pending()))
	}
	c.logger.Debug("Request issued",
		"request_id", id,
		"attempt", c.backoff.AttemptsDone(),
		"target", c.cfg.Target)
}

// awaitLateAck gives the last request AckGrace to be acknowledged once the
// budget is spent. No request is sent here.
func (c *Coordinator) awaitLateAck(ctx context.Context) Outcome {
	c.setState(StateWaiting)
	c.logger.Warn("Retries exhausted, waiting for late acknowledgment",
		"attempts", c.backoff.AttemptsDone(),
		"grace", c.cfg.AckGrace)

	if !c.tracker.Pending() {
		return OutcomeAcknowledged
	}
	if c.cfg.AckGrace <= 0 {
		return OutcomeExhausted
	}

	timer := time.NewTimer(c.cfg.AckGrace)
	defer timer.Stop()

	select {
	case <-c.tracker.Acknowledged():
		return OutcomeAcknowledged
	case <-c.tracker.Closed():
		return OutcomeTransportClosed
	case <-timer.C:
		return OutcomeExhausted
	case <-ctx.Done():
		return OutcomeCancelled
	}
}

// finish shuts the transport down and folds the outcome into a Result
func (c *Coordinator) finish(ctx context.Context, outcome Outcome) Result {
	c.shutdown(ctx)

	code, closed := c.tracker.TerminationCode()
	result := Result{
		Outcome:       outcome,
		Attempts:      c.backoff.AttemptsDone(),
		Requests:      c.requests,
		RequestErrors: c.failures,
		LastRequestID: c.lastID,
	}

	switch outcome {
	case OutcomeAcknowledged, OutcomeTransportClosed:
		if closed {
			result.ExitCode = code
		}
		if id := c.tracker.LastRequestID(); id != "" {
			result.LastRequestID = id
		}
	case OutcomeExhausted:
		result.ExitCode = ExitRetriesExhausted
	case OutcomeCancelled:
		result.ExitCode = ExitCancelled
	}

	switch outcome {
	case OutcomeAcknowledged:
		c.updateHealth(health.NewHealthy(healthComponent, "acknowledged"))
	case OutcomeExhausted:
		c.updateHealth(health.NewUnhealthy(healthComponent, "retries exhausted"))
	case OutcomeTransportClosed:
		c.updateHealth(health.FromError(healthComponent, errors.TransportClosed(code)))
	case OutcomeCancelled:
		c.updateHealth(health.NewDegraded(healthComponent, "cancelled"))
	}

	c.record(result)
	return result
}

func (c *Coordinator) fail(err error) (Result, error) {
	c.updateHealth(health.FromError(healthComponent, err))

	result := Result{
		Outcome:  OutcomeFailed,
		Attempts: c.backoff.AttemptsDone(),
		Requests: c.requests,
		ExitCode: ExitFatal,
	}
	c.record(result)
	return result, err
}

func (c *Coordinator) record(result Result) {
	if c.metrics != nil {
		c.metrics.RunsTotal.WithLabelValues(result.Outcome.String()).Inc()
		c.metrics.PendingAck.Set(boolToFloat(c.tracker.Pending()))
	}

	c.logger.Info("Run finished",
		"outcome", result.Outcome.String(),
		"attempts", result.Attempts,
		"requests", result.Requests,
		"request_errors", result.RequestErrors,
		"exit_code", result.ExitCode)
}

// shutdown disconnects and waits up to CloseTimeout for the closure
// notification before stopping the transport. It runs even when ctx is done.
func (c *Coordinator) shutdown(ctx context.Context) {
	c.setState(StateDone)

	closeCtx := context.WithoutCancel(ctx)
	if c.cfg.CloseTimeout > 0 {
		var cancel context.CancelFunc
		closeCtx, cancel = context.WithTimeout(closeCtx, c.cfg.CloseTimeout)
		defer cancel()
	}

	if c.tracker.Connected() && !c.tracker.IsClosed() {
		if err := c.transport.Disconnect(closeCtx); err != nil {
			c.logger.Warn("Disconnect failed", "error", err)
		}

		if c.cfg.CloseTimeout > 0 {
			select {
			case <-c.tracker.Closed():
			case <-closeCtx.Done():
				c.logger.Warn("Transport did not report closure", "timeout", c.cfg.CloseTimeout)
			}
		}
	}

	c.transport.Stop()
}

func (c *Coordinator) updateHealth(status health.Status) {
	if c.health != nil {
		c.health.Update(healthComponent, status)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
