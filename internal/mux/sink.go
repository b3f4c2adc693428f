package mux

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Sink is a non-blocking byte transport. A sink that cannot accept
// packets immediately must return false rather than block — modeled on
// the teacher's relay.Destination.SendMessage drop-on-backpressure
// contract, generalized from RTMP messages to raw TS packet bytes.
type Sink interface {
	TryWrite(packets []byte) bool
}

// WriterSink adapts a plain io.Writer-shaped sink (one that always
// accepts a write, e.g. an in-memory buffer or a local file) into the
// non-blocking Sink contract.
type WriterSink struct {
	write func([]byte) (int, error)
}

// NewWriterSink wraps write as a Sink. write must not block for more
// than a few milliseconds; a socket-backed implementation should set a
// short write deadline before calling this.
func NewWriterSink(write func([]byte) (int, error)) *WriterSink {
	return &WriterSink{write: write}
}

func (w *WriterSink) TryWrite(packets []byte) bool {
	_, err := w.write(packets)
	return err == nil
}

// sinkHandle pairs a Sink with its own continuity state: drop and write
// counters and a token-bucket limiter on the slow-consumer diagnostic
// path. The limiter never gates the tick path: fanout takes a token on
// each drop but does not use the result, so every drop is counted and
// none is logged.
type sinkHandle struct {
	id      string
	sink    Sink
	dropped atomic.Int64
	written atomic.Int64
	limiter *rate.Limiter
}

// sinkSet is the multi-sink fanout registry, generalizing the teacher's
// relay/manager.go destination map.
type sinkSet struct {
	mu    sync.RWMutex
	sinks map[string]*sinkHandle
}

func newSinkSet() *sinkSet { return &sinkSet{sinks: make(map[string]*sinkHandle)} }

func (s *sinkSet) attach(id string, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[id] = &sinkHandle{id: id, sink: sink, limiter: rate.NewLimiter(rate.Limit(5), 5)}
}

func (s *sinkSet) detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, id)
}

// fanout writes packets to every attached sink without blocking on any
// one of them; a slow or closed sink only affects its own drop counter.
func (s *sinkSet) fanout(packets []byte) {
	s.mu.RLock()
	handles := make([]*sinkHandle, 0, len(s.sinks))
	for _, h := range s.sinks {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	for _, h := range handles {
		if h.sink.TryWrite(packets) {
			h.written.Add(1)
			continue
		}
		h.dropped.Add(1)
		h.limiter.Allow() // token-bucket accounting only; never blocks the caller
	}
}

func (s *sinkSet) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}
