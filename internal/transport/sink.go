// Package transport supplies the concrete mux.Sink implementations
// cmd/airengine wires into internal/control.Registry's SinkFactory. It is
// kept outside internal/mux so that package never depends on a specific
// transport, mirroring internal/asset's relationship to internal/pipeline.
package transport

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/slbailey/airengine/internal/mux"
)

// status mirrors the teacher's relay.DestinationStatus: a small state
// label a sink reports for diagnostics, not behavior the tick path reads.
type status int

const (
	statusConnected status = iota
	statusError
)

// udpSink fans TS packets out over a connected UDP socket. A connected
// UDP socket still reports ECONNREFUSED/unreachable errors on write for a
// dead receiver, so TryWrite treats any write error as a dropped packet
// rather than tearing the sink down — matching mux.Sink's "never block,
// never panic" contract.
type udpSink struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	status  status
	lastErr error
}

func newUDPSink(addr string) (*udpSink, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve udp addr %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %s: %w", addr, err)
	}
	return &udpSink{conn: conn, status: statusConnected}, nil
}

func (s *udpSink) TryWrite(packets []byte) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(20 * time.Millisecond))
	_, err := s.conn.Write(packets)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = statusError
		s.lastErr = err
		return false
	}
	s.status = statusConnected
	return true
}

func (s *udpSink) Close() error {
	return s.conn.Close()
}

// fileSink appends every emitted packet to a local file, used for
// capture/debugging channels and for the tests/integration scenario
// fixtures. Graceful degradation on a write error: the sink reports
// failure to the caller (so mux's drop counter advances) rather than
// panicking, matching the teacher's Recorder.Disabled() behavior.
type fileSink struct {
	mu  sync.Mutex
	f   *os.File
	err error
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", path, err)
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) TryWrite(packets []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false
	}
	if _, err := s.f.Write(packets); err != nil {
		s.err = err
		return false
	}
	return true
}

func (s *fileSink) Close() error {
	return s.f.Close()
}

// NewSinkFactory dispatches sinkID (a "udp://host:port" or "file:///path"
// URI supplied by the control-plane AttachSink call) to a concrete
// transport. Unrecognized schemes are rejected rather than silently
// falling back, since a misconfigured sink destination should surface as
// an AttachSink error ack, not a sink that silently discards everything.
func NewSinkFactory() func(channelID, sinkID string) (mux.Sink, error) {
	return func(channelID, sinkID string) (mux.Sink, error) {
		u, err := url.Parse(sinkID)
		if err != nil {
			return nil, fmt.Errorf("transport: parse sink_id %q: %w", sinkID, err)
		}
		switch u.Scheme {
		case "udp":
			return newUDPSink(u.Host)
		case "file":
			return newFileSink(u.Path)
		default:
			return nil, fmt.Errorf("transport: unsupported sink scheme %q", u.Scheme)
		}
	}
}
