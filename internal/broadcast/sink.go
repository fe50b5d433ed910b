package broadcast

import (
	"sync"
	"sync/atomic"
)

const defaultSinkBuffer = 64

// ChannelSink buffers events on a channel. Deliver never blocks: when the
// buffer is full the event is dropped and counted.
type ChannelSink struct {
	events  chan Event
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = defaultSinkBuffer
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Events exposes the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event { return s.events }

// Done is closed by Close.
func (s *ChannelSink) Done() <-chan struct{} { return s.done }

// Deliver enqueues evt unless the sink is closed or full.
func (s *ChannelSink) Deliver(evt Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- evt:
	default:
		s.dropped.Add(1)
	}
}

// Close ends the subscription. Safe to call more than once.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }
