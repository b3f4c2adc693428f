// Package producer implements TickProducer, the per-segment resample
// engine, and the session-lifetime pad producer. A TickProducer owns one
// decoder and presents exactly one output-grid-stamped frame per call to
// NextFrame, selecting OFF/DROP/CADENCE resample behavior by rational
// comparison of input and output frame rates, per spec.md §4.3.
package producer

import (
	"fmt"
	"sync"

	"github.com/slbailey/airengine/internal/buffer"
	"github.com/slbailey/airengine/internal/rational"
)

// Decoder is the narrow capability a TickProducer needs from whatever
// concrete decode backend a segment's asset_uri resolves to. Concrete
// kinds (file-backed, test-pattern) are tagged variants dispatched on by
// the caller that constructs a TickProducer, not an open hierarchy.
type Decoder interface {
	// NextVideoFrame decodes the next input frame. ok is false at decoder
	// EOF (distinct from the scheduled segment end — the Pipeline Manager
	// fills the gap to the boundary with pad).
	NextVideoFrame() (plane []byte, inputPtsUs int64, ok bool, err error)
	// NextAudioSamples harvests whatever PCM was demuxed alongside the
	// most recently decoded video frame. ok is false if none is pending.
	NextAudioSamples() (samples []int16, ok bool)
	Close() error
}

// TickProducer owns one segment's decoder, a primed-first-tick frame, and
// a resample mode with integer-only state. It is driven exclusively by a
// fill thread — never the tick thread — except for the single documented
// priming decode.
type TickProducer struct {
	mu sync.Mutex

	BlockID   string
	SegmentID string

	decoder Decoder
	inFps   rational.Fps
	outFps  rational.Fps

	mode     rational.ResampleMode
	dropStep int64

	cadenceAcc     int64
	cadenceStepNum int64
	cadenceStepDen int64

	frameIndex int64 // k: output ticks consumed from this producer
	baseTick   int64 // absolute session tick this producer's frame 0 lands on
	primed     bool
	lastPlane  []byte
	eof        bool
}

// NewTickProducer selects the resample mode up front by rational
// comparison, per spec.md §4.3, and prepares any integer-only state the
// mode requires.
func NewTickProducer(blockID, segmentID string, decoder Decoder, inFps, outFps rational.Fps) *TickProducer {
	mode, step := rational.Resample(inFps, outFps)
	tp := &TickProducer{
		BlockID:   blockID,
		SegmentID: segmentID,
		decoder:   decoder,
		inFps:     inFps,
		outFps:    outFps,
		mode:      mode,
	}
	switch mode {
	case rational.ModeDrop:
		tp.dropStep = step
	case rational.ModeCadence:
		tp.cadenceStepNum = inFps.Num * outFps.Den
		tp.cadenceStepDen = outFps.Num * inFps.Den
	}
	return tp
}

// Mode reports the resample mode selected at construction.
func (tp *TickProducer) Mode() rational.ResampleMode { return tp.mode }

// SetBaseTick rebases this producer's output grid onto the session's
// absolute tick index it will be activated at, so PtsUs continues the
// session-wide PTS grid across a seam instead of restarting at the
// per-producer frame count of 0. Callers must set this before Prime,
// since the primed first frame's PtsUs is stamped synchronously and
// never recomputed afterward.
func (tp *TickProducer) SetBaseTick(tick int64) {
	tp.mu.Lock()
	tp.baseTick = tick
	tp.mu.Unlock()
}

// FrameIndex returns the number of output ticks this producer has served.
func (tp *TickProducer) FrameIndex() int64 {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.frameIndex
}

// Primed reports whether Prime has completed successfully.
func (tp *TickProducer) Primed() bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.primed
}

// Prime drives the decoder to produce exactly the first frame
// synchronously, then pushes audio into audioRing until it holds
// minAudioMs or the decoder has no pending audio. A shortfall does not
// fail priming. This is the single documented exception to "tick thread
// never decodes" — it must be called from the SeamPreparer, never from
// the tick loop.
func (tp *TickProducer) Prime(videoBuf *buffer.VideoBuffer, audioRing *buffer.AudioRing, minAudioMs int64) error {
	tp.mu.Lock()
	frame, eof, err := tp.nextFrameLocked()
	tp.mu.Unlock()
	if err != nil {
		return fmt.Errorf("producer.prime: %w", err)
	}
	if eof {
		return fmt.Errorf("producer.prime: decoder reported EOF on first frame")
	}
	if !videoBuf.PushFrame(frame) {
		return fmt.Errorf("producer.prime: video buffer closed")
	}

	for audioRing.DepthMs() < minAudioMs {
		samples, ok := tp.decoder.NextAudioSamples()
		if !ok {
			break
		}
		if !audioRing.PushSamples(samples) {
			break
		}
	}

	tp.mu.Lock()
	tp.primed = true
	tp.mu.Unlock()
	return nil
}

// NextFrame decodes according to the selected resample mode and returns
// the next output-grid-stamped frame. It must be called only from a fill
// thread. ok is false at decoder EOF.
func (tp *TickProducer) NextFrame() (buffer.FrameData, bool, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.nextFrameLocked()
}

func (tp *TickProducer) nextFrameLocked() (buffer.FrameData, bool, error) {
	if tp.eof {
		return buffer.FrameData{}, true, nil
	}

	var plane []byte
	var audio []int16

	switch tp.mode {
	case rational.ModeOff:
		p, _, ok, err := tp.decoder.NextVideoFrame()
		if err != nil {
			return buffer.FrameData{}, false, err
		}
		if !ok {
			tp.eof = true
			return buffer.FrameData{}, true, nil
		}
		plane = p
		if a, ok := tp.decoder.NextAudioSamples(); ok {
			audio = a
		}

	case rational.ModeDrop:
		step := tp.dropStep
		if step < 1 {
			step = 1
		}
		for i := int64(0); i < step; i++ {
			p, _, ok, err := tp.decoder.NextVideoFrame()
			if err != nil {
				return buffer.FrameData{}, false, err
			}
			if !ok {
				if i == 0 {
					tp.eof = true
					return buffer.FrameData{}, true, nil
				}
				break
			}
			if i == 0 {
				plane = p
			}
			if a, ok := tp.decoder.NextAudioSamples(); ok {
				audio = append(audio, a...)
			}
		}

	case rational.ModeCadence:
		tp.cadenceAcc += tp.cadenceStepNum
		decodeNew := tp.cadenceAcc >= tp.cadenceStepDen || tp.lastPlane == nil
		if decodeNew {
			tp.cadenceAcc -= tp.cadenceStepDen
			p, _, ok, err := tp.decoder.NextVideoFrame()
			if err != nil {
				return buffer.FrameData{}, false, err
			}
			if !ok {
				tp.eof = true
				return buffer.FrameData{}, true, nil
			}
			tp.lastPlane = p
		}
		plane = tp.lastPlane
		if a, ok := tp.decoder.NextAudioSamples(); ok {
			audio = a
		}

	default:
		return buffer.FrameData{}, false, fmt.Errorf("producer: unknown resample mode %v", tp.mode)
	}

	n := tp.baseTick + tp.frameIndex
	frame := buffer.FrameData{
		VideoPlane:   plane,
		AudioSamples: audio,
		PtsUs:        tp.outFps.PresentationTimeUs(n),
		DurationUs:   tp.outFps.FramePeriodUs(),
	}
	tp.frameIndex++
	return frame, false, nil
}

// Close releases the underlying decoder.
func (tp *TickProducer) Close() error {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if tp.decoder == nil {
		return nil
	}
	err := tp.decoder.Close()
	tp.decoder = nil
	return err
}
