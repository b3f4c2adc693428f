package transport

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

func TestNewSinkFactoryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ts")
	factory := NewSinkFactory()

	sink, err := factory("chan-1", "file://"+path)
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer sink.(*fileSink).Close()

	if !sink.TryWrite([]byte{0x47, 0x00, 0x00}) {
		t.Fatal("expected TryWrite to succeed")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) != 3 {
		t.Fatalf("expected 3 bytes written, got %d", len(data))
	}
}

func TestNewSinkFactoryUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	factory := NewSinkFactory()
	sink, err := factory("chan-1", "udp://"+pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer sink.(*udpSink).Close()

	if !sink.TryWrite([]byte{0x47, 0x00}) {
		t.Fatal("expected TryWrite to succeed against a listening socket")
	}
}

func TestNewSinkFactoryUnsupportedScheme(t *testing.T) {
	factory := NewSinkFactory()
	if _, err := factory("chan-1", "rtmp://example.com/live"); err == nil {
		t.Fatal("expected an error for an unsupported sink scheme")
	}
}
