package asset

import (
	"github.com/slbailey/airengine/internal/pipeline"
)

// barsDecoder produces a fixed number of synthetic YUV 4:2:0 frames (a
// solid luma/chroma fill, shifted per event so adjacent segments are
// visually distinguishable) plus silence, then reports EOF. It exists
// because this module's dependency surface carries no real video codec;
// it stands in for "whatever concrete decode backend a segment's
// asset_uri resolves to" (see producer.Decoder's doc comment) for
// asset_uri schemes that do not name a real file on disk.
type barsDecoder struct {
	plane      []byte
	silence    []int16
	remaining  int64
	pendingAud bool
}

func newBarsDecoder(seg pipeline.Segment, width, height, sampleRateHz, audioChannels int) *barsDecoder {
	ySize := width * height
	plane := make([]byte, ySize+ySize/2)
	luma := byte(16 + (hashString(seg.EventID) % 200))
	for i := 0; i < ySize; i++ {
		plane[i] = luma
	}
	for i := ySize; i < len(plane); i++ {
		plane[i] = 128
	}

	samplesPerFrame := sampleRateHz * audioChannels / 30
	if samplesPerFrame == 0 {
		samplesPerFrame = sampleRateHz * audioChannels
	}

	frames := seg.FrameCount
	if frames <= 0 {
		frames = 1
	}

	return &barsDecoder{
		plane:     plane,
		silence:   make([]int16, samplesPerFrame),
		remaining: frames,
	}
}

func hashString(s string) int {
	h := 0
	for _, r := range s {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return h
}

func (d *barsDecoder) NextVideoFrame() ([]byte, int64, bool, error) {
	if d.remaining <= 0 {
		return nil, 0, false, nil
	}
	d.remaining--
	d.pendingAud = true
	return d.plane, 0, true, nil
}

func (d *barsDecoder) NextAudioSamples() ([]int16, bool) {
	if !d.pendingAud {
		return nil, false
	}
	d.pendingAud = false
	return d.silence, true
}

func (d *barsDecoder) Close() error { return nil }
