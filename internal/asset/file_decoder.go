package asset

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// fileDecoder reads a raw house-format capture from disk: a sequence of
// frames, each a length-prefixed YUV 4:2:0 plane followed by a
// length-prefixed slice of interleaved int16 PCM samples. There is no
// container, no seek index, and no codec — this is the simplest format
// that lets a pre-produced segment be replayed byte-for-byte, grounded
// on the teacher's Recorder: a single buffered os.File, and graceful
// degradation (EOF, not panic or process exit) on any malformed read.
type fileDecoder struct {
	f   *os.File
	r   *bufio.Reader
	log *slog.Logger
}

func newFileDecoder(path string, log *slog.Logger) (*fileDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("asset: open %s: %w", path, err)
	}
	return &fileDecoder{
		f:   f,
		r:   bufio.NewReader(f),
		log: log.With("path", path),
	}, nil
}

func (d *fileDecoder) NextVideoFrame() ([]byte, int64, bool, error) {
	var planeLen uint32
	if err := binary.Read(d.r, binary.LittleEndian, &planeLen); err != nil {
		if err == io.EOF {
			return nil, 0, false, nil
		}
		if err == io.ErrUnexpectedEOF {
			d.log.Warn("truncated plane length, treating as eof", "error", err)
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("asset: read plane length: %w", err)
	}
	plane := make([]byte, planeLen)
	if _, err := io.ReadFull(d.r, plane); err != nil {
		d.log.Warn("truncated plane, treating as eof", "error", err)
		return nil, 0, false, nil
	}
	return plane, 0, true, nil
}

func (d *fileDecoder) NextAudioSamples() ([]int16, bool) {
	var sampleCount uint32
	if err := binary.Read(d.r, binary.LittleEndian, &sampleCount); err != nil {
		return nil, false
	}
	samples := make([]int16, sampleCount)
	if err := binary.Read(d.r, binary.LittleEndian, samples); err != nil {
		d.log.Warn("truncated audio chunk, dropping", "error", err)
		return nil, false
	}
	return samples, true
}

func (d *fileDecoder) Close() error {
	return d.f.Close()
}
