//go:build ignore

// Generates deterministic MPEG-TS packetization golden vectors by
// driving a real internal/mux.Muxer with a capturing sink and dumping
// each fanout call's raw bytes. Run: go run ./tests/golden/gen_ts_vectors.go
//
// File format: one hex-encoded line per captured fanout call, in call
// order (one video frame's TS packets, then the PAT+PMT heartbeat that
// first video emit triggers, then one audio chunk's TS packets).
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slbailey/airengine/internal/mux"
)

type capturingSink struct {
	writes [][]byte
}

func (s *capturingSink) TryWrite(packets []byte) bool {
	cp := make([]byte, len(packets))
	copy(cp, packets)
	s.writes = append(s.writes, cp)
	return true
}

func main() {
	dir, _ := os.Getwd()
	fmt.Println("Generating TS packetization golden vectors in", dir)

	m := mux.New(mux.Config{ChannelID: "golden", ProgramNumber: 1}, nil)
	sink := &capturingSink{}
	m.AttachSink("capture", sink)

	plane := make([]byte, 3*160*90/2) // 4:2:0 plane for a 160x90 pad-sized frame
	for i := range plane {
		plane[i] = byte(i)
	}
	if err := m.EmitVideo(plane, 0, 33333); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = int16(i)
	}
	if err := m.EmitAudio(samples, 0); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	var out []byte
	for _, w := range sink.writes {
		out = append(out, []byte(hex.EncodeToString(w)+"\n")...)
	}

	p := filepath.Join(dir, "ts_packetization_vector.txt")
	if err := os.WriteFile(p, out, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	h := sha256.Sum256(out)
	fmt.Printf("Wrote %-32s size=%4d sha256=%s calls=%d\n", "ts_packetization_vector.txt", len(out), hex.EncodeToString(h[:8]), len(sink.writes))
}
