// Package session implements the per-session delivery pipeline: a
// bounded queue of messages awaiting long-poll delivery, an exclusive
// single reader, and a timeout supervisor that evicts idle sessions.
package session

import (
	"errors"
	"log"
	"sync/atomic"
	"time"
)

var (
	// ErrAlreadyLocked is returned by Acquire when another long-poll
	// already holds the delivery queue's reader.
	ErrAlreadyLocked = errors.New("session: already locked, two connections with same client id")

	// ErrElapsed is returned by Receiver.RecvTimeout when the deadline
	// passes with no message delivered.
	ErrElapsed = errors.New("session: recv deadline elapsed")

	// ErrClosed is returned when the delivery queue has been torn down
	// (the session was removed from the registry).
	ErrClosed = errors.New("session: queue closed")
)

// Session is one registered client's delivery pipeline: a bounded FIFO of
// messages, a single-reader lock, and a timeout supervisor that evicts
// the session after max_interval of inactivity.
type Session struct {
	ClientID string
	CookieID string

	queue  chan Message
	held   atomic.Bool
	closed atomic.Bool

	startTimeout  chan struct{}
	cancelTimeout chan struct{}
	stop          chan struct{}
	stopOnce      stopOnce

	maxInterval time.Duration
	onEvict     func()
}

// stopOnce makes Session.Stop idempotent without an extra mutex: the
// second and later calls observe the done flag already set and no-op,
// so calling Stop twice on the same session is always safe.
type stopOnce struct{ done atomic.Bool }

func (s *stopOnce) do(f func()) {
	if s.done.CompareAndSwap(false, true) {
		f()
	}
}

// New creates a session with the given delivery queue capacity and
// eviction horizon. onEvict is called exactly once, from the timeout
// supervisor's own goroutine, when max_interval elapses with no
// long-poll holding the reader; it must not block and is expected to
// call back into the registry to remove the session. The supervisor
// only holds a callback, never a reference to the registry's own lock,
// which keeps the session and its registry from holding references
// into each other's locks.
func New(clientID, cookieID string, queueCapacity int, maxInterval time.Duration, onEvict func()) *Session {
	s := &Session{
		ClientID:      clientID,
		CookieID:      cookieID,
		queue:         make(chan Message, queueCapacity),
		startTimeout:  make(chan struct{}, 1),
		cancelTimeout: make(chan struct{}, 1),
		stop:          make(chan struct{}),
		maxInterval:   maxInterval,
		onEvict:       onEvict,
	}

	// Registration immediately starts the eviction clock: the supervisor
	// begins Armed, so no start signal is queued here (a queued one would
	// re-arm the supervisor as soon as the first Acquire parks it).
	go s.superviseTimeout()

	return s
}

// supervisor states
const (
	stateArmed = iota
	stateParked
)

func (s *Session) superviseTimeout() {
	state := stateArmed
	timer := time.NewTimer(s.maxInterval)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		switch state {
		case stateArmed:
			timer.Reset(s.maxInterval)
			select {
			case <-s.stop:
				drainTimer(timer)
				return
			case <-timer.C:
				log.Printf("session: client %s timed out after %s", s.ClientID, s.maxInterval)
				s.onEvict()
				return
			case <-s.cancelTimeout:
				drainTimer(timer)
				state = stateParked
			}
		case stateParked:
			select {
			case <-s.startTimeout:
				state = stateArmed
			case <-s.stop:
				return
			}
		}
	}
}

func drainTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func (s *Session) signalStartTimeout() {
	select {
	case s.startTimeout <- struct{}{}:
	default:
	}
}

func (s *Session) signalCancelTimeout() {
	select {
	case s.cancelTimeout <- struct{}{}:
	default:
	}
}

// Acquire grants exclusive access to the delivery queue's reader. It
// returns ErrAlreadyLocked if another long-poll already holds it. A
// successful Acquire cancels the eviction timer for the duration of the
// hold; the caller MUST call Release when done (typically via defer)
// which restarts the eviction clock from zero.
func (s *Session) Acquire() (*Receiver, error) {
	if !s.held.CompareAndSwap(false, true) {
		return nil, ErrAlreadyLocked
	}
	s.signalCancelTimeout()
	return &Receiver{session: s}, nil
}

// Receiver is the single-reader handle returned by Acquire.
type Receiver struct {
	session *Session
}

// RecvTimeout blocks for at most d waiting for a message, returning
// ErrElapsed on timeout and ErrClosed if the queue was torn down.
func (r *Receiver) RecvTimeout(d time.Duration) (Message, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case msg := <-r.session.queue:
		return msg, nil
	case <-r.session.stop:
		return Message{}, ErrClosed
	case <-timer.C:
		return Message{}, ErrElapsed
	}
}

// Release gives up the reader, restarting the eviction clock. Safe to
// call at most once per successful Acquire; defer it immediately after
// checking Acquire's error.
func (r *Receiver) Release() {
	r.session.held.Store(false)
	r.session.signalStartTimeout()
}

// Send enqueues a message for delivery. It blocks if the queue is full
// (backpressure) and returns ErrClosed if the queue has been torn down
// in the meantime.
func (s *Session) Send(msg Message) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.queue <- msg:
		return nil
	case <-s.stop:
		return ErrClosed
	}
}

// Stop tears the session down: it fires the stop signal, unblocking any
// in-progress RecvTimeout or Send with ErrClosed and terminating the
// timeout supervisor promptly. Idempotent.
func (s *Session) Stop() {
	s.stopOnce.do(func() {
		s.closed.Store(true)
		close(s.stop)
	})
}
