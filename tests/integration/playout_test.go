// Package integration exercises the Control Surface, Pipeline Manager,
// Encoder/Mux Sink, and the asset/transport factories together, the way
// a scheduler process driving cmd/airengine over its exported Server
// methods would. It intentionally runs at real wall-clock speed, at a
// scale much smaller than spec.md §8's illustrative 10s/300-frame
// figures, since the Pipeline Manager's tick loop paces on the actual
// session clock rather than a virtual one.
package integration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slbailey/airengine/internal/asset"
	"github.com/slbailey/airengine/internal/control"
	"github.com/slbailey/airengine/internal/evidence"
	"github.com/slbailey/airengine/internal/mux"
)

// countingSink is a mux.Sink that records how many times it was asked
// to write, optionally refusing every write to exercise the slow
// consumer / drop-counting path.
type countingSink struct {
	mu     sync.Mutex
	writes int
	refuse atomic.Bool
}

func (s *countingSink) TryWrite(packets []byte) bool {
	if s.refuse.Load() {
		return false
	}
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return true
}

func (s *countingSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// testHarness wires a Registry/Server pair against a real pipeline and
// mux stack, using internal/asset's synthetic bars decoder (no codec
// SDK exists in this module's dependency surface) and an injected
// countingSink in place of internal/transport, so assertions can count
// writes without parsing MPEG-TS bytes.
type testHarness struct {
	srv  *control.Server
	hub  *evidence.Hub
	sink *countingSink
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	hub := evidence.NewHub(t.TempDir(), 4, nil)
	t.Cleanup(func() { _ = hub.Close() })

	decoderFactory := asset.NewDecoderFactory(160, 90, 48000, 2, nil)
	sink := &countingSink{}
	sinkFactory := func(channelID, sinkID string) (mux.Sink, error) {
		return sink, nil
	}
	reg := control.NewRegistry(decoderFactory, sinkFactory, hub, nil)
	srv := control.NewServer(reg, hub)
	return &testHarness{srv: srv, hub: hub, sink: sink}
}

func startChannel(t *testing.T, h *testHarness, channelID string, fpsNum, fpsDen int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := h.srv.StartBlockPlanSession(ctx, &control.StartBlockPlanSessionRequest{
		ChannelID:     channelID,
		FpsNum:        fpsNum,
		FpsDen:        fpsDen,
		SampleRateHz:  48000,
		AudioChannels: 2,
		PadWidth:      160,
		PadHeight:     90,
	})
	require.NoError(t, err)
}

func feedPrimaryBlock(t *testing.T, h *testHarness, channelID, blockID, eventID string, frameCount int64) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := h.srv.FeedBlockPlan(ctx, &control.FeedBlockPlanRequest{
		ChannelID: channelID,
		Plan: control.BlockPlanMessage{
			BlockID:   blockID,
			ChannelID: channelID,
			Segments: []control.SegmentMessage{
				{EventID: eventID, AssetURI: "bars://" + eventID, SegmentType: "PRIMARY", FrameCount: frameCount},
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, ack.Ok, "expected feed ack ok, got error %q", ack.Error)
}

func stopChannel(t *testing.T, h *testHarness, channelID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := h.srv.StopChannel(ctx, &control.StopChannelRequest{ChannelID: channelID})
	require.NoError(t, err)
	assert.True(t, ack.Ok)
}

// TestOffModeProducesSteadyFrameOutput covers spec.md §8's "30->30 OFF"
// boundary scenario (scaled to a 1s real-time window): content fed at
// the channel's own output fps should reach the sink once per tick with
// no resample activity.
func TestOffModeProducesSteadyFrameOutput(t *testing.T) {
	h := newTestHarness(t)
	startChannel(t, h, "chan-off", 30, 1)
	feedPrimaryBlock(t, h, "chan-off", "blk-1", "ev-1", 300)

	time.Sleep(1100 * time.Millisecond)
	stopChannel(t, h, "chan-off")

	// At 30fps for ~1s, expect roughly 30 ticks worth of sink activity
	// (video+audio writes plus the PAT/PMT heartbeat); a hard lower
	// bound rules out a stalled tick loop without pinning exact timing.
	assert.Greater(t, h.sink.writeCount(), 10)
}

// TestJoinInProgressStartsAtZeroCT covers the "join-in-progress" boundary
// scenario: a session started mid-content still begins its own output CT
// at zero, and playout proceeds without the manager treating the
// mid-content offset as a hard-stop violation.
func TestJoinInProgressStartsAtZeroCT(t *testing.T) {
	h := newTestHarness(t)
	startChannel(t, h, "chan-join", 30, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := h.srv.FeedBlockPlan(ctx, &control.FeedBlockPlanRequest{
		ChannelID: "chan-join",
		Plan: control.BlockPlanMessage{
			BlockID:   "blk-join",
			ChannelID: "chan-join",
			Segments: []control.SegmentMessage{
				{EventID: "ev-join", AssetURI: "bars://ev-join", StartOffsetMs: 120_000, SegmentType: "PRIMARY", FrameCount: 300},
			},
		},
	})
	require.NoError(t, err)
	require.True(t, ack.Ok)

	time.Sleep(300 * time.Millisecond)
	stopChannel(t, h, "chan-join")
	assert.Greater(t, h.sink.writeCount(), 0, "expected playout to proceed despite a mid-content start offset")
}

// TestLateSinkAttachDoesNotDisturbUpstream covers the "late sink attach"
// boundary scenario: a channel runs before any transport sink is
// attached (frames are discarded at the mux fanout with nothing to write
// to), and once attached the very next tick reaches it without the
// producer or tick cadence needing any adjustment.
func TestLateSinkAttachDoesNotDisturbUpstream(t *testing.T) {
	hub := evidence.NewHub(t.TempDir(), 4, nil)
	t.Cleanup(func() { _ = hub.Close() })

	decoderFactory := asset.NewDecoderFactory(160, 90, 48000, 2, nil)
	var sink *countingSink
	var sinkMu sync.Mutex
	sinkFactory := func(channelID, sinkID string) (mux.Sink, error) {
		sinkMu.Lock()
		defer sinkMu.Unlock()
		sink = &countingSink{}
		return sink, nil
	}
	reg := control.NewRegistry(decoderFactory, sinkFactory, hub, nil)
	srv := control.NewServer(reg, hub)
	h := &testHarness{srv: srv, hub: hub}

	startChannel(t, h, "chan-late", 30, 1)
	feedPrimaryBlock(t, h, "chan-late", "blk-1", "ev-late", 300)

	time.Sleep(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := srv.AttachSink(ctx, &control.AttachSinkRequest{ChannelID: "chan-late", SinkID: "test://late"})
	require.NoError(t, err)
	require.True(t, ack.Ok)

	time.Sleep(300 * time.Millisecond)
	stopChannel(t, h, "chan-late")

	sinkMu.Lock()
	attached := sink
	sinkMu.Unlock()
	require.NotNil(t, attached)
	assert.Greater(t, attached.writeCount(), 0, "expected frames to reach the sink after a late attach")
}

// TestSlowConsumerNeverBlocksTickCadence covers the "slow consumer"
// boundary scenario: a sink that refuses every write only affects its
// own drop accounting, never the tick loop or producer decode rate.
func TestSlowConsumerNeverBlocksTickCadence(t *testing.T) {
	h := newTestHarness(t)
	h.sink.refuse.Store(true)

	startChannel(t, h, "chan-slow", 30, 1)
	feedPrimaryBlock(t, h, "chan-slow", "blk-1", "ev-slow", 300)

	time.Sleep(400 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ack, err := h.srv.ForwardCue(ctx, &control.ForwardCueRequest{ChannelID: "chan-slow", SpliceCommandType: 0x05})
	require.NoError(t, err)
	assert.True(t, ack.Ok, "control surface should remain responsive while the sink is refusing writes")

	stopChannel(t, h, "chan-slow")
	assert.Equal(t, 0, h.sink.writeCount(), "a permanently refusing sink should never record a successful write")
}
