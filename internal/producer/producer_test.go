package producer

import (
	"errors"
	"testing"

	"github.com/slbailey/airengine/internal/buffer"
	"github.com/slbailey/airengine/internal/rational"
)

// fakeDecoder produces a fixed number of frames, one audio chunk per
// video frame decoded, then reports EOF.
type fakeDecoder struct {
	frames       int
	decoded      int
	audioPending bool
	failAfter    int // if > 0, NextVideoFrame errors once decoded reaches this count
}

func (d *fakeDecoder) NextVideoFrame() ([]byte, int64, bool, error) {
	if d.failAfter > 0 && d.decoded >= d.failAfter {
		return nil, 0, false, errors.New("fake decode failure")
	}
	if d.decoded >= d.frames {
		return nil, 0, false, nil
	}
	plane := []byte{byte(d.decoded)}
	pts := int64(d.decoded) * 1000
	d.decoded++
	d.audioPending = true
	return plane, pts, true, nil
}

func (d *fakeDecoder) NextAudioSamples() ([]int16, bool) {
	if !d.audioPending {
		return nil, false
	}
	d.audioPending = false
	return []int16{1, 2}, true
}

func (d *fakeDecoder) Close() error { return nil }

func TestNewTickProducerSelectsOffMode(t *testing.T) {
	tp := NewTickProducer("b1", "s1", &fakeDecoder{frames: 10}, rational.MustFps(30, 1), rational.MustFps(30, 1))
	if tp.Mode() != rational.ModeOff {
		t.Fatalf("expected ModeOff, got %v", tp.Mode())
	}
}

func TestOffModeEmitsOnePerTickWithGridPts(t *testing.T) {
	tp := NewTickProducer("b1", "s1", &fakeDecoder{frames: 3}, rational.MustFps(30, 1), rational.MustFps(30, 1))
	for i := int64(0); i < 3; i++ {
		frame, eof, err := tp.NextFrame()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if eof {
			t.Fatalf("unexpected EOF at frame %d", i)
		}
		want := rational.MustFps(30, 1).PresentationTimeUs(i)
		if frame.PtsUs != want {
			t.Fatalf("frame %d: expected pts %d got %d", i, want, frame.PtsUs)
		}
	}
	_, eof, err := tp.NextFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eof {
		t.Fatalf("expected EOF after exhausting decoder")
	}
}

func TestDropModeStepTwoHarvestsAllAudio(t *testing.T) {
	dec := &fakeDecoder{frames: 6}
	tp := NewTickProducer("b1", "s1", dec, rational.MustFps(60, 1), rational.MustFps(30, 1))
	if tp.Mode() != rational.ModeDrop {
		t.Fatalf("expected ModeDrop, got %v", tp.Mode())
	}

	frame, eof, err := tp.NextFrame()
	if err != nil || eof {
		t.Fatalf("unexpected eof/err: %v %v", eof, err)
	}
	if len(frame.AudioSamples) != 4 {
		t.Fatalf("expected audio harvested from both input frames (4 samples), got %d", len(frame.AudioSamples))
	}
	if frame.DurationUs != 33333 {
		t.Fatalf("expected duration_us=33333 for 30fps grid, got %d", frame.DurationUs)
	}
}

func TestCadenceModeClassification(t *testing.T) {
	tp := NewTickProducer("b1", "s1", &fakeDecoder{frames: 100}, rational.MustFps(24000, 1001), rational.MustFps(30, 1))
	if tp.Mode() != rational.ModeCadence {
		t.Fatalf("expected ModeCadence, got %v", tp.Mode())
	}
}

func TestCadenceModeRepeatsFramesWithoutDrift(t *testing.T) {
	dec := &fakeDecoder{frames: 100}
	tp := NewTickProducer("b1", "s1", dec, rational.MustFps(24000, 1001), rational.MustFps(30, 1))

	decodedCountAtTick := make([]int, 0, 30)
	for i := 0; i < 30; i++ {
		_, eof, err := tp.NextFrame()
		if err != nil || eof {
			t.Fatalf("unexpected eof/err at tick %d: %v %v", i, eof, err)
		}
		decodedCountAtTick = append(decodedCountAtTick, dec.decoded)
	}
	// Over 30 output ticks at 23.976fps input, roughly 24 new frames
	// should have been decoded (not 30, since the ratio is < 1).
	finalDecoded := decodedCountAtTick[len(decodedCountAtTick)-1]
	if finalDecoded < 22 || finalDecoded > 26 {
		t.Fatalf("expected ~24 decodes over 30 ticks at 23.976->30 cadence, got %d", finalDecoded)
	}
}

func TestNextFrameReturnsEofOnDecoderExhaustion(t *testing.T) {
	tp := NewTickProducer("b1", "s1", &fakeDecoder{frames: 0}, rational.MustFps(30, 1), rational.MustFps(30, 1))
	_, eof, err := tp.NextFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eof {
		t.Fatalf("expected immediate EOF for empty decoder")
	}
}

func TestNextFramePropagatesDecodeError(t *testing.T) {
	tp := NewTickProducer("b1", "s1", &fakeDecoder{frames: 5, failAfter: 1}, rational.MustFps(30, 1), rational.MustFps(30, 1))
	if _, _, err := tp.NextFrame(); err != nil {
		t.Fatalf("unexpected error before the failing decode: %v", err)
	}
	_, _, err := tp.NextFrame()
	if err == nil {
		t.Fatalf("expected decode error to propagate")
	}
}

func TestPrimePushesFirstFrameAndAccumulatesAudio(t *testing.T) {
	dec := &fakeDecoder{frames: 50}
	tp := NewTickProducer("b1", "s1", dec, rational.MustFps(30, 1), rational.MustFps(30, 1))
	vb := buffer.NewVideoBuffer(4)
	ar := buffer.NewAudioRing(100000, 48000, 2)

	if err := tp.Prime(vb, ar, 1); err != nil {
		t.Fatalf("unexpected prime error: %v", err)
	}
	if !tp.Primed() {
		t.Fatalf("expected Primed() true after successful prime")
	}
	if vb.Depth() != 1 {
		t.Fatalf("expected exactly one primed frame in video buffer, got depth %d", vb.Depth())
	}
}

func TestPrimeFailsOnImmediateEof(t *testing.T) {
	tp := NewTickProducer("b1", "s1", &fakeDecoder{frames: 0}, rational.MustFps(30, 1), rational.MustFps(30, 1))
	vb := buffer.NewVideoBuffer(4)
	ar := buffer.NewAudioRing(100, 48000, 2)
	if err := tp.Prime(vb, ar, 500); err == nil {
		t.Fatalf("expected prime to fail when decoder is immediately exhausted")
	}
}

func TestFrameIndexAdvancesPerTick(t *testing.T) {
	tp := NewTickProducer("b1", "s1", &fakeDecoder{frames: 5}, rational.MustFps(30, 1), rational.MustFps(30, 1))
	for i := int64(0); i < 3; i++ {
		if got := tp.FrameIndex(); got != i {
			t.Fatalf("expected frame index %d before tick, got %d", i, got)
		}
		tp.NextFrame()
	}
}
