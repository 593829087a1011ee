package segment

import "sync"

// Consumer accepts one segment at a time. Consume must eventually call done
// (from any goroutine) to signal the consumer is ready for the next segment.
// A media source buffer behaves this way: appending while a previous append
// is still being processed is an error, so delivery has to wait.
type Consumer interface {
	Consume(seg []byte, done func())
}

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc func(seg []byte, done func())

func (f ConsumerFunc) Consume(seg []byte, done func()) { f(seg, done) }

// SinkBuffer feeds completed segments to a single-slot Consumer. If the
// consumer is idle the segment is handed over immediately; otherwise it is
// queued and released one at a time as the consumer reports ready, preserving
// completion order. Safe for concurrent use.
type SinkBuffer struct {
	mu       sync.Mutex
	busy     bool
	queue    [][]byte
	consumer Consumer
}

// NewSinkBuffer creates a sink buffer in front of consumer.
func NewSinkBuffer(consumer Consumer) *SinkBuffer {
	return &SinkBuffer{consumer: consumer}
}

// Offer hands seg to the consumer if it is idle, or queues it.
func (s *SinkBuffer) Offer(seg []byte) {
	s.mu.Lock()
	if s.busy {
		s.queue = append(s.queue, seg)
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()
	s.consumer.Consume(seg, s.done)
}

// done is passed to the consumer; each call releases the oldest queued
// segment, if any.
func (s *SinkBuffer) done() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.busy = false
		s.mu.Unlock()
		return
	}
	seg := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()
	s.consumer.Consume(seg, s.done)
}

// Pending reports how many segments are queued behind the in-flight one.
func (s *SinkBuffer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
