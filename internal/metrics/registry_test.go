package metrics

import (
	"context"
	"testing"

	"github.com/slbailey/airengine/internal/clock"
	"github.com/slbailey/airengine/internal/pipeline"
	"github.com/slbailey/airengine/internal/producer"
	"github.com/slbailey/airengine/internal/rational"
)

type noopSink struct{}

func (noopSink) EmitVideo(plane []byte, ptsUs, durationUs int64) error { return nil }
func (noopSink) EmitAudio(samples []int16, ptsUs int64) error          { return nil }

type noopEvidence struct{}

func (noopEvidence) EmitBlockStart(blockID string, tick int64)                               {}
func (noopEvidence) EmitSegmentEnd(segmentID string, tick int64, status, reason string)      {}
func (noopEvidence) EmitBlockFence(blockID, nextBlockID string, tick int64, truncated bool)   {}
func (noopEvidence) EmitChannelTerminated(reason string)                                     {}

type fakeDecoder struct{ frames int }

func (d *fakeDecoder) NextVideoFrame() ([]byte, int64, bool, error) {
	if d.frames <= 0 {
		return nil, 0, false, nil
	}
	d.frames--
	return make([]byte, 16), 0, true, nil
}
func (d *fakeDecoder) NextAudioSamples() ([]int16, bool) { return make([]int16, 16), true }
func (d *fakeDecoder) Close() error                      { return nil }

func newTestManager(t *testing.T, channelID string) *pipeline.Manager {
	t.Helper()
	epoch := clock.NewSessionEpoch()
	cfg := pipeline.Config{
		ChannelID:      channelID,
		Fps:            rational.MustFps(30, 1),
		SampleRateHz:   48000,
		AudioChannels:  2,
		SamplesPerTick: 1600,
		DecoderFactory: func(seg pipeline.Segment) (producer.Decoder, error) {
			return &fakeDecoder{frames: 10000}, nil
		},
	}
	mgr := pipeline.New(cfg, epoch, noopEvidence{}, nil)
	mgr.AttachSink(noopSink{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	mgr.Start(ctx)
	return mgr
}

func TestRegistryCollectsRegisteredChannelHealth(t *testing.T) {
	reg := NewRegistry()
	mgr := newTestManager(t, "chan-1")
	reg.RegisterChannel("chan-1", mgr)

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"airengine_session_frame_index",
		"airengine_dropped_sink_frames_total",
		"airengine_pad_emits_total",
	} {
		if !found[name] {
			t.Fatalf("expected metric family %s to be present, families=%v", name, found)
		}
	}
}

func TestRegistryOmitsUnregisteredChannels(t *testing.T) {
	reg := NewRegistry()
	mgr := newTestManager(t, "chan-1")
	reg.RegisterChannel("chan-1", mgr)
	reg.UnregisterChannel("chan-1")

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "channel_id" && l.GetValue() == "chan-1" {
					t.Fatalf("expected no series for unregistered channel, found in %s", f.GetName())
				}
			}
		}
	}
}
