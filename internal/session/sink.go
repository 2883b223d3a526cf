package session

import (
	"context"
	"sync"

	"github.com/smallnest/chanx"
)

// Sink receives session events.
// Notify runs on the session goroutine and must not block or call back into
// the Session synchronously; use ChanSink to consume events elsewhere.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Notify calls f(ev)
func (f SinkFunc) Notify(ev Event) { f(ev) }

// MultiSink fans an event out to every sink in order
type MultiSink []Sink

// Notify forwards ev to each sink
func (m MultiSink) Notify(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(ev)
		}
	}
}

// HandlerSink dispatches events to a Handler
func HandlerSink(h Handler) Sink {
	return SinkFunc(func(ev Event) { Dispatch(ev, h) })
}

// ChanSink buffers events in an unbounded channel so the session never waits
// on the consumer
type ChanSink struct {
	ctx context.Context
	ch  *chanx.UnboundedChan[Event]

	mu     sync.Mutex
	closed bool
}

// NewChanSink creates a ChanSink living until ctx is cancelled
func NewChanSink(ctx context.Context, initCapacity int) *ChanSink {
	return &ChanSink{
		ctx: ctx,
		ch:  chanx.NewUnboundedChan[Event](ctx, initCapacity),
	}
}

// Notify queues ev. Events are dropped once the sink is closed or its
// context is done.
func (s *ChanSink) Notify(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch.In <- ev:
	case <-s.ctx.Done():
	}
}

// Events returns the channel to drain. It is closed after Close once every
// queued event was delivered, or when the context is done.
func (s *ChanSink) Events() <-chan Event {
	return s.ch.Out
}

// Len returns the number of undelivered events
func (s *ChanSink) Len() int {
	return s.ch.Len()
}

// Close stops accepting events
func (s *ChanSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch.In)
	}
}
