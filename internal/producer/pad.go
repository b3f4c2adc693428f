package producer

import (
	"sync"

	"github.com/slbailey/airengine/internal/buffer"
	"github.com/slbailey/airengine/internal/rational"
)

// PadProducer is a session-lifetime producer of broadcast-safe black
// video and PCM silence at house format. It has no decode cost and
// always has a frame available — the Pipeline Manager's freeze-then-pad
// fallback of last resort.
type PadProducer struct {
	mu sync.Mutex

	fps            rational.Fps
	plane          []byte
	silencePerTick []int16
	frameIndex     int64
}

// NewPadProducer builds a pad producer for a width x height YUV 4:2:0
// plane and a fixed silence chunk sized to samplesPerTick interleaved
// values at the given fps. The plane is filled with broadcast-safe
// black (Y=16, U=V=128, limited range) rather than all-zero Y, which
// would clip to superblack on most decoders.
func NewPadProducer(width, height, samplesPerTick int, fps rational.Fps) *PadProducer {
	ySize := width * height
	plane := make([]byte, ySize+ySize/2)
	for i := 0; i < ySize; i++ {
		plane[i] = 16
	}
	for i := ySize; i < len(plane); i++ {
		plane[i] = 128
	}
	return &PadProducer{
		fps:            fps,
		plane:          plane,
		silencePerTick: make([]int16, samplesPerTick),
	}
}

// NextFrame returns the same black/silence frame every call, stamped
// with the current output-grid PTS, and advances the internal tick
// counter. Pad never fails and never runs a decoder.
func (p *PadProducer) NextFrame() buffer.FrameData {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.frameIndex
	fd := buffer.FrameData{
		VideoPlane:   p.plane,
		AudioSamples: p.silencePerTick,
		PtsUs:        p.fps.PresentationTimeUs(n),
		DurationUs:   p.fps.FramePeriodUs(),
	}
	p.frameIndex++
	return fd
}

// Reset rebases the pad producer's tick counter, used when pad is
// resumed relative to a new segment or block activation frame.
func (p *PadProducer) Reset(frameIndex int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameIndex = frameIndex
}
