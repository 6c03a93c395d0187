// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import (
	"sync"

	"github.com/bassosimone/runtimex"
	"github.com/eapache/queue"
)

// Callback receives the events delivered by a [*Sink].
//
// A given [*Sink] never invokes its Callback from two goroutines at the
// same time, so the Callback does not need its own locking.
type Callback func(ev Event)

// Sink serializes [Event] delivery to a single [Callback].
//
// Any goroutine may call [*Sink.Dispatch]. Events are queued in FIFO order
// and a dedicated delivery goroutine invokes the Callback one event at a
// time. The queue is unbounded so Dispatch never blocks the producer.
//
// The Sink holds one strong reference to the Callback. [*Sink.Unref]
// releases it: events already queued are still delivered, then the
// delivery goroutine exits and [*Sink.Done] is closed.
//
// Construct using [NewSink].
type Sink struct {
	// callback is only used by the delivery goroutine.
	callback Callback

	// done is closed when the delivery goroutine exits.
	done chan struct{}

	// mu protects pending and released.
	mu sync.Mutex

	// pending contains the events waiting to be delivered.
	pending *queue.Queue

	// released is true after Unref.
	released bool

	// unrefOnce makes Unref idempotent.
	unrefOnce sync.Once

	// wakeup signals the delivery goroutine.
	wakeup chan struct{}
}

// NewSink creates a [*Sink] and starts its delivery goroutine.
//
// The callback argument must not be nil.
func NewSink(callback Callback) *Sink {
	runtimex.Assert(callback != nil)
	s := &Sink{
		callback:  callback,
		done:      make(chan struct{}),
		mu:        sync.Mutex{},
		pending:   queue.New(),
		released:  false,
		unrefOnce: sync.Once{},
		wakeup:    make(chan struct{}, 1),
	}
	go s.deliver()
	return s
}

// Dispatch queues the event for delivery.
//
// Returns [ErrSinkReleased] after [*Sink.Unref], in which case the event
// is discarded and the Callback is not invoked.
func (s *Sink) Dispatch(ev Event) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return ErrSinkReleased
	}
	s.pending.Add(ev)
	s.mu.Unlock()
	s.notify()
	return nil
}

// Unref releases the strong reference to the Callback.
//
// Calling Unref more than once is a no-op.
func (s *Sink) Unref() {
	s.unrefOnce.Do(func() {
		s.mu.Lock()
		s.released = true
		s.mu.Unlock()
		s.notify()
	})
}

// Released returns whether [*Sink.Unref] was called.
func (s *Sink) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Done returns a channel closed once the Sink was released and every
// event dispatched before the release was delivered.
func (s *Sink) Done() <-chan struct{} {
	return s.done
}

func (s *Sink) notify() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func (s *Sink) deliver() {
	defer close(s.done)
	for range s.wakeup {
		for {
			ev, ok, released := s.next()
			if !ok && released {
				s.callback = nil
				return
			}
			if !ok {
				break
			}
			s.callback(ev)
		}
	}
}

// next pops the next event, if any, and reports whether the Sink was released.
func (s *Sink) next() (Event, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Length() <= 0 {
		return Event{}, false, s.released
	}
	return s.pending.Remove().(Event), true, s.released
}
