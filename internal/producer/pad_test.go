package producer

import (
	"testing"

	"github.com/slbailey/airengine/internal/rational"
)

func TestPadProducerEmitsConstantPlane(t *testing.T) {
	p := NewPadProducer(16, 8, 1600, rational.MustFps(30, 1))
	f1 := p.NextFrame()
	f2 := p.NextFrame()
	if len(f1.VideoPlane) != len(f2.VideoPlane) {
		t.Fatalf("expected consistent plane size across calls")
	}
	for i := range f1.VideoPlane {
		if f1.VideoPlane[i] != f2.VideoPlane[i] {
			t.Fatalf("expected identical pad plane bytes across calls")
		}
	}
}

func TestPadProducerBlackLevels(t *testing.T) {
	p := NewPadProducer(4, 4, 0, rational.MustFps(30, 1))
	f := p.NextFrame()
	ySize := 16
	for i := 0; i < ySize; i++ {
		if f.VideoPlane[i] != 16 {
			t.Fatalf("expected Y=16 broadcast black, got %d at %d", f.VideoPlane[i], i)
		}
	}
	for i := ySize; i < len(f.VideoPlane); i++ {
		if f.VideoPlane[i] != 128 {
			t.Fatalf("expected U/V=128, got %d at %d", f.VideoPlane[i], i)
		}
	}
}

func TestPadProducerAdvancesPts(t *testing.T) {
	fps := rational.MustFps(30, 1)
	p := NewPadProducer(2, 2, 10, fps)
	f0 := p.NextFrame()
	f1 := p.NextFrame()
	if f0.PtsUs != 0 {
		t.Fatalf("expected first pad pts 0, got %d", f0.PtsUs)
	}
	if f1.PtsUs != fps.FramePeriodUs() {
		t.Fatalf("expected second pad pts %d, got %d", fps.FramePeriodUs(), f1.PtsUs)
	}
}

func TestPadProducerResetRebasesTick(t *testing.T) {
	fps := rational.MustFps(30, 1)
	p := NewPadProducer(2, 2, 10, fps)
	p.Reset(100)
	f := p.NextFrame()
	want := fps.PresentationTimeUs(100)
	if f.PtsUs != want {
		t.Fatalf("expected pts %d after reset to tick 100, got %d", want, f.PtsUs)
	}
}

func TestPadProducerSilenceLengthMatchesSamplesPerTick(t *testing.T) {
	p := NewPadProducer(2, 2, 1600, rational.MustFps(30, 1))
	f := p.NextFrame()
	if len(f.AudioSamples) != 1600 {
		t.Fatalf("expected 1600 silence samples, got %d", len(f.AudioSamples))
	}
	for _, s := range f.AudioSamples {
		if s != 0 {
			t.Fatalf("expected silence to be all zeros")
		}
	}
}
