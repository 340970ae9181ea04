package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ggoodman/sessionmcp-go/jsonrpc"
)

// State is the lifecycle stage of a Session. States only move forward.
type State int

const (
	// StateCreated: registered, endpoint not yet sent to the client.
	StateCreated State = iota
	// StateAnnounced: the endpoint event has been written to the stream.
	StateAnnounced
	// StateActive: message pumps are running.
	StateActive
	// StateClosed: removed from the registry; queues no longer accept work.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAnnounced:
		return "announced"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the live state of one open stream.
type Session struct {
	id       string
	meta     Metadata
	inbound  chan Envelope
	outbound chan jsonrpc.Message

	done      chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	state State
}

func newSession(id string, meta Metadata, queueSize int) *Session {
	return &Session{
		id:       id,
		meta:     meta,
		inbound:  make(chan Envelope, queueSize),
		outbound: make(chan jsonrpc.Message, queueSize),
		done:     make(chan struct{}),
	}
}

// ID returns the canonical session identifier.
func (s *Session) ID() string { return s.id }

// Metadata returns the parameters captured when the stream was opened.
func (s *Session) Metadata() Metadata { return s.meta }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Announce moves the session from created to announced. It reports whether
// the transition happened.
func (s *Session) Announce() bool { return s.advance(StateCreated, StateAnnounced) }

// Activate moves the session from announced to active. It reports whether
// the transition happened.
func (s *Session) Activate() bool { return s.advance(StateAnnounced, StateActive) }

func (s *Session) advance(from, to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// Done is closed once the session reaches StateClosed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Deliver enqueues env on the inbound queue. It blocks while the queue is
// full until ctx ends or the session closes. When ctx hits its deadline the
// error wraps ErrDeliveryTimeout.
func (s *Session) Deliver(ctx context.Context, env Envelope) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.inbound <- env:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return queueWaitErr(ctx)
	}
}

// Send enqueues msg for delivery to the client's stream. Messages are
// written in the order Send was called.
func (s *Session) Send(ctx context.Context, msg jsonrpc.Message) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.outbound <- msg:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return queueWaitErr(ctx)
	}
}

// Inbound exposes the inbound queue to the transport's pump.
func (s *Session) Inbound() <-chan Envelope { return s.inbound }

// Outbound exposes the outbound queue to the stream writer.
func (s *Session) Outbound() <-chan jsonrpc.Message { return s.outbound }

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		close(s.done)
	})
}

func queueWaitErr(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrDeliveryTimeout, err)
	}
	return err
}
