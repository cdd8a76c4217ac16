// Package ack tracks the acknowledgment state shared between the transport's
// notification goroutine and the retry coordinator.
package ack

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/c360/ackretry/errors"
)

// CodeUnset is the termination code reported before the transport has closed.
const CodeUnset = -1

// Handler receives the transport's asynchronous notifications, in order,
// from a single goroutine.
type Handler interface {
	OnHandshakeComplete(success bool)
	OnAcknowledged(requestID string)
	OnClosed(code int)
}

var _ Handler = (*Tracker)(nil)

// Tracker records handshake, acknowledgment and closure transitions.
//
// Every field is written only from the transport's notification path and read
// by the coordinator. All transitions are idempotent; the first handshake
// result wins.
type Tracker struct {
	connected       atomic.Bool
	handshakeFailed atomic.Bool
	pendingAck      atomic.Bool
	closed          atomic.Bool
	terminationCode atomic.Int64
	acks            atomic.Int64
	lastRequestID   atomic.Value // string

	handshakeOnce sync.Once
	ackOnce       sync.Once
	closeOnce     sync.Once

	handshakeDone chan struct{}
	acknowledged  chan struct{}
	closedCh      chan struct{}
}

// NewTracker returns a tracker that owes one acknowledgment
func NewTracker() *Tracker {
	t := &Tracker{
		handshakeDone: make(chan struct{}),
		acknowledged:  make(chan struct{}),
		closedCh:      make(chan struct{}),
	}
	t.pendingAck.Store(true)
	t.terminationCode.Store(CodeUnset)
	t.lastRequestID.Store("")
	return t
}

// OnHandshakeComplete records the handshake result. A failed handshake is
// unrecoverable and is surfaced by WaitConnected as ErrHandshakeFailed.
func (t *Tracker) OnHandshakeComplete(success bool) {
	t.handshakeOnce.Do(func() {
		if success {
			t.connected.Store(true)
		} else {
			t.handshakeFailed.Store(true)
		}
		close(t.handshakeDone)
	})
}

// OnAcknowledged clears the pending flag. Acknowledgments that arrive before a
// successful handshake are ignored.
func (t *Tracker) OnAcknowledged(requestID string) {
	if !t.connected.Load() {
		return
	}
	t.lastRequestID.Store(requestID)
	t.acks.Add(1)
	t.pendingAck.Store(false)
	t.ackOnce.Do(func() { close(t.acknowledged) })
}

// OnClosed records the closure code reported by the transport
func (t *Tracker) OnClosed(code int) {
	t.closeOnce.Do(func() {
		t.terminationCode.Store(int64(code))
		t.closed.Store(true)
		close(t.closedCh)
	})
}

// Connected reports whether the handshake succeeded
func (t *Tracker) Connected() bool {
	return t.connected.Load()
}

// HandshakeFailed reports whether the handshake was rejected
func (t *Tracker) HandshakeFailed() bool {
	return t.handshakeFailed.Load()
}

// Pending reports whether an acknowledgment is still owed
func (t *Tracker) Pending() bool {
	return t.pendingAck.Load()
}

// IsClosed reports whether the transport has closed
func (t *Tracker) IsClosed() bool {
	return t.closed.Load()
}

// TerminationCode returns the closure code and whether one was reported
func (t *Tracker) TerminationCode() (int, bool) {
	return int(t.terminationCode.Load()), t.closed.Load()
}

// Acknowledgments returns how many acknowledgments were observed
func (t *Tracker) Acknowledgments() int64 {
	return t.acks.Load()
}

// LastRequestID returns the request id carried by the latest acknowledgment
func (t *Tracker) LastRequestID() string {
	return t.lastRequestID.Load().(string)
}

// Acknowledged is closed by the first acknowledgment
func (t *Tracker) Acknowledged() <-chan struct{} {
	return t.acknowledged
}

// Closed is closed when the transport reports closure
func (t *Tracker) Closed() <-chan struct{} {
	return t.closedCh
}

// WaitConnected blocks until the handshake completes, the transport closes or
// ctx is done. It never polls.
func (t *Tracker) WaitConnected(ctx context.Context) error {
	select {
	case <-t.handshakeDone:
	case <-t.closedCh:
		if t.connected.Load() || t.handshakeFailed.Load() {
			break
		}
		code, _ := t.TerminationCode()
		return errors.WrapFatal(
			fmt.Errorf("%w: %w before handshake", errors.ErrHandshakeFailed, errors.TransportClosed(code)),
			"Tracker", "WaitConnected", "await handshake")
	case <-ctx.Done():
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrConnectionTimeout, ctx.Err()),
			"Tracker", "WaitConnected", "await handshake")
	}

	if t.handshakeFailed.Load() {
		return errors.WrapFatal(errors.ErrHandshakeFailed, "Tracker", "WaitConnected", "await handshake")
	}
	return nil
}
