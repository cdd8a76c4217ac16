// Package natsclient carries unsubscribe requests and their acknowledgments over NATS.
package natsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360/ackretry/ack"
	"github.com/c360/ackretry/errors"
)

// DefaultClientID identifies requests when no client id is configured
const DefaultClientID = "unsubscribe-test"

// Close codes reported through ack.Handler.OnClosed
const (
	// CodeClientClosed is reported when the close was requested locally
	CodeClientClosed = 0
	// CodeConnectionLost is reported when the server or network ended the
	// session. It stays clear of the coordinator's own exit codes.
	CodeConnectionLost = 4
)

// eventBuffer bounds the notification queue between NATS callbacks and the dispatcher
const eventBuffer = 64

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type eventKind int

const (
	eventHandshake eventKind = iota
	eventAck
	eventClosed
)

type event struct {
	kind      eventKind
	success   bool
	requestID string
	code      int
}

// Client is the NATS transport driven by the retry coordinator.
//
// NATS callbacks never call the handler directly. They queue typed events that
// a single dispatcher goroutine, started by Start, delivers in order.
type Client struct {
	clientID   string
	clientName string
	logger     *slog.Logger
	status     atomic.Value // stores ConnectionStatus
	metrics    *transportMetrics

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	ackSubject    string

	// Authentication - sensitive fields cleared on Stop
	username string
	password string
	token    string

	// TLS
	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	onHealthChange func(bool)

	// Notification loop
	handler  ack.Handler
	events   chan event
	done     chan struct{}
	wg       sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once

	// Connection state, guarded by mu
	mu         sync.RWMutex
	conn       *nats.Conn
	inbox      string
	connClosed chan struct{}
	stopped    bool

	connecting     atomic.Bool
	closeRequested atomic.Bool
	attempts       atomic.Uint32
}

// NewClient creates a new NATS transport with optional configuration
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		clientID:      DefaultClientID,
		logger:        slog.Default().With("component", "natsclient"),
		maxReconnects: 5,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  5 * time.Second,
		events:        make(chan event, eventBuffer),
		done:          make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	if c.clientName == "" {
		c.clientName = c.clientID
	}
	c.status.Store(StatusDisconnected)

	return c, nil
}

// ClientID returns the identity carried in requests
func (c *Client) ClientID() string {
	return c.clientID
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsConnected reports whether the connection is currently up
func (c *Client) IsConnected() bool {
	return c.Status() == StatusConnected
}

// Inbox returns the subject acknowledgments are received on.
// Empty until the handshake succeeds.
func (c *Client) Inbox() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inbox
}

// Requests returns how many requests were published
func (c *Client) Requests() uint32 {
	return c.attempts.Load()
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// Start launches the dispatcher that feeds handler
func (c *Client) Start(handler ack.Handler) error {
	if handler == nil {
		return errors.WrapInvalid(fmt.Errorf("nil handler"), "Client", "Start", "validate handler")
	}
	if !c.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Start", "start dispatcher")
	}

	c.handler = handler
	c.wg.Add(1)
	go c.dispatch()

	return nil
}

func (c *Client) dispatch() {
	defer c.wg.Done()

	for {
		select {
		case ev := <-c.events:
			c.deliver(ev)
		case <-c.done:
			// Flush whatever was queued before Stop
			for {
				select {
				case ev := <-c.events:
					c.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (c *Client) deliver(ev event) {
	switch ev.kind {
	case eventHandshake:
		c.handler.OnHandshakeComplete(ev.success)
	case eventAck:
		c.handler.OnAcknowledged(ev.requestID)
	case eventClosed:
		c.handler.OnClosed(ev.code)
	}
}

func (c *Client) emit(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Connect dials endpoint in the background and returns immediately.
// The outcome is reported through OnHandshakeComplete. keepalive sets the
// client ping interval; zero keeps the library default.
func (c *Client) Connect(ctx context.Context, endpoint string, keepalive time.Duration) error {
	if !c.started.Load() {
		return errors.WrapFatal(errors.ErrNotStarted, "Client", "Connect", "check dispatcher")
	}
	if endpoint == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: empty endpoint", errors.ErrInvalidConfig), "Client", "Connect", "validate endpoint")
	}
	if !c.connecting.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Client", "Connect", "connection already attempted")
	}

	closed := make(chan struct{})
	c.mu.Lock()
	c.connClosed = closed
	c.mu.Unlock()

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "endpoint", endpoint, "client_id", c.clientID, "keepalive", keepalive)

	opts := c.buildConnectionOptions(keepalive, closed)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.establish(ctx, endpoint, opts)
	}()

	return nil
}

func (c *Client) establish(ctx context.Context, endpoint string, opts []nats.Option) {
	conn, err := nats.Connect(endpoint, opts...)
	if err != nil {
		c.logger.Error("NATS handshake failed", "endpoint", endpoint, "error", err)
		c.setStatus(StatusDisconnected)
		c.emit(event{kind: eventHandshake, success: false})
		return
	}

	abandon := func(reason string, err error) {
		c.logger.Error("Abandoning NATS connection", "reason", reason, "error", err)
		c.emit(event{kind: eventHandshake, success: false})
		c.closeRequested.Store(true)
		conn.Close()
	}

	if ctx.Err() != nil {
		abandon("context done during handshake", ctx.Err())
		return
	}

	inbox := c.ackSubject
	if inbox == "" {
		inbox = conn.NewInbox()
	}

	if _, err := conn.Subscribe(inbox, c.handleAck); err != nil {
		abandon("subscribe acknowledgment inbox", err)
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		abandon("client stopped", errors.ErrNotStarted)
		return
	}
	c.conn = conn
	c.inbox = inbox
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.metrics.setConnected(true)
	c.notifyHealth(true)

	c.logger.Info("Connected to NATS",
		"endpoint", conn.ConnectedUrlRedacted(),
		"client_id", c.clientID,
		"inbox", inbox)

	c.emit(event{kind: eventHandshake, success: true})
}

// buildConnectionOptions builds NATS connection options from client configuration
func (c *Client) buildConnectionOptions(keepalive time.Duration, closed chan struct{}) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.handleClosed()
			close(closed)
		}),
		nats.ErrorHandler(c.handleError),
	}

	if keepalive > 0 {
		opts = append(opts, nats.PingInterval(keepalive))
	}

	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	if c.tlsEnabled {
		if c.tlsCertFile != "" && c.tlsKeyFile != "" {
			opts = append(opts, nats.ClientCert(c.tlsCertFile, c.tlsKeyFile))
		}
		if c.tlsCAFile != "" {
			opts = append(opts, nats.RootCAs(c.tlsCAFile))
		}
	}

	return opts
}

// IssueRequest publishes one unsubscribe request for target and returns its id.
// The acknowledgment, if any, arrives later through OnAcknowledged.
func (c *Client) IssueRequest(ctx context.Context, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.WrapTransient(err, "Client", "IssueRequest", "check context")
	}
	if target == "" {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: empty target", errors.ErrInvalidData), "Client", "IssueRequest", "validate target")
	}

	c.mu.RLock()
	conn, inbox := c.conn, c.inbox
	c.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		if c.Status() == StatusClosed && !c.closeRequested.Load() {
			return "", errors.WrapTransient(errors.ErrConnectionLost, "Client", "IssueRequest", "check connection")
		}
		return "", errors.WrapTransient(errors.ErrNotConnected, "Client", "IssueRequest", "check connection")
	}

	attempt := c.attempts.Add(1)
	requestID := uuid.NewString()
	req := newUnsubscribeRequest(requestID, c.clientID, target, attempt, time.Now())

	data, err := json.Marshal(req)
	if err != nil {
		return "", errors.WrapInvalid(err, "Client", "IssueRequest", "marshal request")
	}

	msg := &nats.Msg{
		Subject: TopicToSubject(target),
		Reply:   inbox,
		Data:    data,
	}
	if err := conn.PublishMsg(msg); err != nil {
		return "", errors.WrapTransient(err, "Client", "IssueRequest", "publish request")
	}

	c.metrics.recordMessage(directionOut, kindRequest)
	c.logger.Debug("Published unsubscribe request",
		"request_id", requestID,
		"subject", msg.Subject,
		"attempt", attempt)

	return requestID, nil
}

// Disconnect drains the connection. The closure is reported through
// OnClosed with CodeClientClosed.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.RLock()
	conn, closed := c.conn, c.connClosed
	c.mu.RUnlock()

	if conn == nil {
		return nil
	}

	c.closeRequested.Store(true)
	if conn.IsClosed() {
		return nil
	}

	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	if err := conn.Drain(); err != nil {
		c.logger.Error("Drain failed, closing", "error", err)
		conn.Close()
		return errors.WrapTransient(err, "Client", "Disconnect", "drain connection")
	}

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()

	select {
	case <-closed:
		return nil
	case <-timer.C:
		c.logger.Error("Drain timeout, force closing", "timeout", drainTimeout)
		conn.Close()
		return errors.WrapTransient(
			fmt.Errorf("drain timeout after %v", drainTimeout), "Client", "Disconnect", "drain timeout")
	case <-ctx.Done():
		conn.Close()
		return errors.Wrap(ctx.Err(), "Client", "Disconnect", "context cancelled during drain")
	}
}

// Stop closes any open connection and stops the dispatcher. Events still
// queued are delivered first. Safe to call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		conn := c.conn
		c.mu.Unlock()

		if conn != nil && !conn.IsClosed() {
			c.closeRequested.Store(true)
			conn.Close()
		}

		close(c.done)
		c.wg.Wait()

		c.username = ""
		c.password = ""
		c.token = ""
	})
}

func (c *Client) handleAck(msg *nats.Msg) {
	a, err := decodeAck(msg.Data)
	if err != nil {
		c.logger.Warn("Dropping malformed acknowledgment", "subject", msg.Subject, "error", err)
		c.metrics.recordMessage(directionIn, kindInvalid)
		return
	}

	if !a.Accepted() {
		c.logger.Warn("Unsubscribe not accepted by peer", "request_id", a.RequestID, "status", a.Status)
		c.metrics.recordMessage(directionIn, kindDropped)
		return
	}

	c.metrics.recordMessage(directionIn, kindAck)
	c.logger.Debug("Acknowledgment received", "request_id", a.RequestID, "target", a.Target)
	c.emit(event{kind: eventAck, requestID: a.RequestID})
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.closeRequested.Load() {
		return
	}
	c.setStatus(StatusReconnecting)
	c.metrics.setConnected(false)
	c.notifyHealth(false)
	c.logger.Warn("NATS disconnected, reconnecting", "error", err)
}

func (c *Client) handleReconnect(conn *nats.Conn) {
	c.setStatus(StatusConnected)
	c.metrics.setConnected(true)
	c.notifyHealth(true)
	c.logger.Info("NATS reconnected", "endpoint", conn.ConnectedUrlRedacted())
}

func (c *Client) handleClosed() {
	code := CodeConnectionLost
	if c.closeRequested.Load() {
		code = CodeClientClosed
	}

	c.setStatus(StatusClosed)
	c.metrics.setConnected(false)
	c.notifyHealth(false)
	c.logger.Info("NATS connection closed", "code", code)

	c.emit(event{kind: eventClosed, code: code})
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.logger.Error("NATS error", "subject", subject, "error", err)
}

func (c *Client) notifyHealth(healthy bool) {
	if c.onHealthChange != nil {
		c.onHealthChange(healthy)
	}
}
