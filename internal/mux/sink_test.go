package mux

import "testing"

type countingSink struct {
	accept bool
	writes int
}

func (c *countingSink) TryWrite(packets []byte) bool {
	c.writes++
	return c.accept
}

func TestSinkSetFanoutWritesToAllAttachedSinks(t *testing.T) {
	ss := newSinkSet()
	a := &countingSink{accept: true}
	b := &countingSink{accept: true}
	ss.attach("a", a)
	ss.attach("b", b)
	ss.fanout([]byte{1, 2, 3})
	if a.writes != 1 || b.writes != 1 {
		t.Fatalf("expected both sinks to receive one write, got a=%d b=%d", a.writes, b.writes)
	}
}

func TestSinkSetFanoutTracksDropsIndependently(t *testing.T) {
	ss := newSinkSet()
	good := &countingSink{accept: true}
	bad := &countingSink{accept: false}
	ss.attach("good", good)
	ss.attach("bad", bad)
	ss.fanout([]byte{1})

	ss.mu.RLock()
	goodHandle := ss.sinks["good"]
	badHandle := ss.sinks["bad"]
	ss.mu.RUnlock()

	if goodHandle.dropped.Load() != 0 {
		t.Fatalf("good sink should have zero drops, got %d", goodHandle.dropped.Load())
	}
	if badHandle.dropped.Load() != 1 {
		t.Fatalf("bad sink should have one drop, got %d", badHandle.dropped.Load())
	}
}

func TestSinkSetDetachRemovesSink(t *testing.T) {
	ss := newSinkSet()
	ss.attach("a", &countingSink{accept: true})
	if ss.count() != 1 {
		t.Fatalf("count = %d, want 1", ss.count())
	}
	ss.detach("a")
	if ss.count() != 0 {
		t.Fatalf("count after detach = %d, want 0", ss.count())
	}
}

func TestWriterSinkAdaptsErrorToFalse(t *testing.T) {
	ws := NewWriterSink(func(b []byte) (int, error) { return 0, assertErr })
	if ws.TryWrite([]byte{1}) {
		t.Fatalf("expected TryWrite to return false on writer error")
	}
}

func TestWriterSinkAdaptsSuccessToTrue(t *testing.T) {
	ws := NewWriterSink(func(b []byte) (int, error) { return len(b), nil })
	if !ws.TryWrite([]byte{1}) {
		t.Fatalf("expected TryWrite to return true on writer success")
	}
}

var assertErr = &sinkTestError{}

type sinkTestError struct{}

func (e *sinkTestError) Error() string { return "sink write failed" }
