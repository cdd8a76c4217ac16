package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/c360/ackretry/ack"
)

// IssueHook runs inside IssueRequest after request number n (1-based) was recorded
type IssueHook func(n int, handler ack.Handler)

// MockTransport is an in-memory transport for coordinator tests.
// Thread-safe for concurrent use from multiple goroutines.
type MockTransport struct {
	mu sync.Mutex

	handler   ack.Handler
	started   bool
	stopped   bool
	endpoint  string
	keepalive time.Duration

	requests     []string
	requestTimes []time.Time
	disconnects  int

	// Scripted behavior
	handshake      *bool
	handshakeDelay time.Duration
	ackOn          int
	closeCode      int
	silentClose    bool
	startErr       error
	connectErr     error
	issueErr       func(n int) error
	onIssue        IssueHook
}

// MockOption scripts MockTransport behavior
type MockOption func(*MockTransport)

// WithHandshake reports the given handshake result after Connect.
// Without it the handshake never completes.
func WithHandshake(success bool) MockOption {
	return func(m *MockTransport) {
		m.handshake = &success
	}
}

// WithHandshakeDelay delays the handshake notification
func WithHandshakeDelay(d time.Duration) MockOption {
	return func(m *MockTransport) {
		m.handshakeDelay = d
	}
}

// WithAckOnRequest acknowledges request number n before IssueRequest returns
func WithAckOnRequest(n int) MockOption {
	return func(m *MockTransport) {
		m.ackOn = n
	}
}

// WithCloseCode sets the code reported when Disconnect closes the transport
func WithCloseCode(code int) MockOption {
	return func(m *MockTransport) {
		m.closeCode = code
	}
}

// WithSilentClose makes Disconnect never report a closure
func WithSilentClose() MockOption {
	return func(m *MockTransport) {
		m.silentClose = true
	}
}

// WithStartError makes Start fail
func WithStartError(err error) MockOption {
	return func(m *MockTransport) {
		m.startErr = err
	}
}

// WithConnectError makes Connect fail synchronously
func WithConnectError(err error) MockOption {
	return func(m *MockTransport) {
		m.connectErr = err
	}
}

// WithIssueError makes IssueRequest fail for the requests fn selects
func WithIssueError(fn func(n int) error) MockOption {
	return func(m *MockTransport) {
		m.issueErr = fn
	}
}

// WithIssueHook runs fn after every recorded request
func WithIssueHook(fn IssueHook) MockOption {
	return func(m *MockTransport) {
		m.onIssue = fn
	}
}

// NewMockTransport creates a scripted transport
func NewMockTransport(opts ...MockOption) *MockTransport {
	m := &MockTransport{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start records the handler
func (m *MockTransport) Start(handler ack.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	if m.started {
		return fmt.Errorf("already started")
	}
	m.handler = handler
	m.started = true
	return nil
}

// Connect reports the scripted handshake from a separate goroutine, like a real transport
func (m *MockTransport) Connect(_ context.Context, endpoint string, keepalive time.Duration) error {
	m.mu.Lock()
	if m.connectErr != nil {
		m.mu.Unlock()
		return m.connectErr
	}
	m.endpoint = endpoint
	m.keepalive = keepalive
	handler, handshake, delay := m.handler, m.handshake, m.handshakeDelay
	m.mu.Unlock()

	if handshake != nil {
		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			handler.OnHandshakeComplete(*handshake)
		}()
	}
	return nil
}

// IssueRequest records the request and applies the scripted acknowledgment
func (m *MockTransport) IssueRequest(_ context.Context, target string) (string, error) {
	m.mu.Lock()
	n := len(m.requests) + 1
	if m.issueErr != nil {
		if err := m.issueErr(n); err != nil {
			m.mu.Unlock()
			return "", err
		}
	}
	m.requests = append(m.requests, target)
	m.requestTimes = append(m.requestTimes, time.Now())
	handler, ackOn, hook := m.handler, m.ackOn, m.onIssue
	m.mu.Unlock()

	id := fmt.Sprintf("req-%d", n)
	if ackOn == n {
		handler.OnAcknowledged(id)
	}
	if hook != nil {
		hook(n, handler)
	}
	return id, nil
}

// Disconnect reports the scripted closure
func (m *MockTransport) Disconnect(_ context.Context) error {
	m.mu.Lock()
	m.disconnects++
	handler, code, silent := m.handler, m.closeCode, m.silentClose
	m.mu.Unlock()

	if !silent && handler != nil {
		handler.OnClosed(code)
	}
	return nil
}

// Stop marks the transport stopped
func (m *MockTransport) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

// Handler returns the handler passed to Start
func (m *MockTransport) Handler() ack.Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

// RequestCount returns how many requests were issued
func (m *MockTransport) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the targets of all issued requests
func (m *MockTransport) Requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.requests...)
}

// RequestTimes returns when each request was issued
func (m *MockTransport) RequestTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.requestTimes...)
}

// Endpoint returns the endpoint and keepalive passed to Connect
func (m *MockTransport) Endpoint() (string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint, m.keepalive
}

// Disconnects returns how many times Disconnect was called
func (m *MockTransport) Disconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

// Stopped reports whether Stop was called
func (m *MockTransport) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
