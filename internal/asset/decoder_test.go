package asset

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/slbailey/airengine/internal/pipeline"
)

func TestNewDecoderFactoryBarsForEmptyScheme(t *testing.T) {
	factory := NewDecoderFactory(64, 64, 48000, 2, nil)
	dec, err := factory(pipeline.Segment{EventID: "seg-1", FrameCount: 3})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer dec.Close()

	plane, _, ok, err := dec.NextVideoFrame()
	if err != nil || !ok {
		t.Fatalf("expected a frame, got ok=%v err=%v", ok, err)
	}
	if len(plane) != 64*64+64*64/2 {
		t.Fatalf("plane length = %d, want %d", len(plane), 64*64+64*64/2)
	}
}

func TestNewDecoderFactoryUnknownSchemeFallsBackToBars(t *testing.T) {
	factory := NewDecoderFactory(32, 32, 48000, 2, nil)
	dec, err := factory(pipeline.Segment{EventID: "seg-2", AssetURI: "http://example.com/clip", FrameCount: 1})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer dec.Close()
	if _, _, ok, err := dec.NextVideoFrame(); err != nil || !ok {
		t.Fatalf("expected fallback bars frame, got ok=%v err=%v", ok, err)
	}
}

func TestBarsDecoderReportsEOFAfterFrameCount(t *testing.T) {
	factory := NewDecoderFactory(16, 16, 48000, 2, nil)
	dec, err := factory(pipeline.Segment{EventID: "seg-3", FrameCount: 2})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer dec.Close()

	for i := 0; i < 2; i++ {
		if _, _, ok, err := dec.NextVideoFrame(); err != nil || !ok {
			t.Fatalf("frame %d: expected ok, got ok=%v err=%v", i, ok, err)
		}
	}
	if _, _, ok, err := dec.NextVideoFrame(); err != nil || ok {
		t.Fatalf("expected eof after frame_count frames, got ok=%v err=%v", ok, err)
	}
}

func writeTestAssetFile(t *testing.T, path string, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	plane := make([]byte, 16*16+16*16/2)
	samples := []int16{1, 2, 3, 4}

	for i := 0; i < frames; i++ {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(plane))); err != nil {
			t.Fatalf("write plane len: %v", err)
		}
		if _, err := w.Write(plane); err != nil {
			t.Fatalf("write plane: %v", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(samples))); err != nil {
			t.Fatalf("write sample count: %v", err)
		}
		if err := binary.Write(w, binary.LittleEndian, samples); err != nil {
			t.Fatalf("write samples: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestFileDecoderReadsWrittenFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.raw")
	writeTestAssetFile(t, path, 2)

	factory := NewDecoderFactory(16, 16, 48000, 2, nil)
	dec, err := factory(pipeline.Segment{EventID: "seg-4", AssetURI: "file://" + path})
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	defer dec.Close()

	for i := 0; i < 2; i++ {
		plane, _, ok, err := dec.NextVideoFrame()
		if err != nil || !ok {
			t.Fatalf("frame %d: expected ok, got ok=%v err=%v", i, ok, err)
		}
		if len(plane) != 16*16+16*16/2 {
			t.Fatalf("unexpected plane length %d", len(plane))
		}
		samples, ok := dec.NextAudioSamples()
		if !ok || len(samples) != 4 {
			t.Fatalf("unexpected audio samples: ok=%v samples=%v", ok, samples)
		}
	}

	if _, _, ok, err := dec.NextVideoFrame(); err != nil || ok {
		t.Fatalf("expected eof, got ok=%v err=%v", ok, err)
	}
}

func TestFileDecoderMissingFileReturnsError(t *testing.T) {
	factory := NewDecoderFactory(16, 16, 48000, 2, nil)
	_, err := factory(pipeline.Segment{EventID: "seg-5", AssetURI: "file:///no/such/path.raw"})
	if err == nil {
		t.Fatal("expected error opening a nonexistent file")
	}
}
