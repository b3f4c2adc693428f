// Package control implements the Control Surface: a gRPC-shaped service
// exposing StartBlockPlanSession, FeedBlockPlan, AttachSink/DetachSink,
// StopChannel, and EvidenceStream over a per-process Registry of live
// playout channel sessions.
package control

import "github.com/slbailey/airengine/internal/pipeline"

// BlockPlanMessage is the wire-shape counterpart of pipeline.BlockPlan.
type BlockPlanMessage struct {
	BlockID    string           `json:"block_id"`
	ChannelID  string           `json:"channel_id"`
	StartUtcUs int64            `json:"start_utc_us"`
	EndUtcUs   int64            `json:"end_utc_us"`
	Segments   []SegmentMessage `json:"segments"`
}

// SegmentMessage is the wire-shape counterpart of pipeline.Segment.
type SegmentMessage struct {
	EventID       string `json:"event_id"`
	AssetURI      string `json:"asset_uri"`
	StartOffsetMs int64  `json:"start_offset_ms"`
	DurationMs    int64  `json:"duration_ms"`
	SegmentType   string `json:"segment_type"`
	FrameCount    int64  `json:"frame_count"`
}

func (m BlockPlanMessage) toPipeline() pipeline.BlockPlan {
	segs := make([]pipeline.Segment, len(m.Segments))
	for i, s := range m.Segments {
		segs[i] = pipeline.Segment{
			EventID:       s.EventID,
			AssetURI:      s.AssetURI,
			StartOffsetMs: s.StartOffsetMs,
			DurationMs:    s.DurationMs,
			SegmentType:   pipeline.SegmentType(s.SegmentType),
			FrameCount:    s.FrameCount,
		}
	}
	return pipeline.BlockPlan{
		BlockID:    m.BlockID,
		ChannelID:  m.ChannelID,
		StartUtcUs: m.StartUtcUs,
		EndUtcUs:   m.EndUtcUs,
		Segments:   segs,
	}
}

// StartBlockPlanSessionRequest opens a new channel session: a
// MasterClock epoch is captured, and a Pipeline Manager plus Encoder/Mux
// Sink are constructed and started.
type StartBlockPlanSessionRequest struct {
	ChannelID     string `json:"channel_id"`
	FpsNum        int64  `json:"fps_num"`
	FpsDen        int64  `json:"fps_den"`
	SampleRateHz  int    `json:"sample_rate_hz"`
	AudioChannels int    `json:"audio_channels"`
	PadWidth      int    `json:"pad_width"`
	PadHeight     int    `json:"pad_height"`
}

type StartBlockPlanSessionResponse struct {
	PlayoutSessionID string `json:"playout_session_id"`
	EpochUtcUs       int64  `json:"epoch_utc_us"`
}

type FeedBlockPlanRequest struct {
	ChannelID string           `json:"channel_id"`
	Plan      BlockPlanMessage `json:"plan"`
}

// Ack is the generic accept/reject response for mutating control calls.
type Ack struct {
	Ok    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type AttachSinkRequest struct {
	ChannelID string `json:"channel_id"`
	SinkID    string `json:"sink_id"`
}

type DetachSinkRequest struct {
	ChannelID string `json:"channel_id"`
	SinkID    string `json:"sink_id"`
}

type StopChannelRequest struct {
	ChannelID string `json:"channel_id"`
}

// ForwardCueRequest carries a scheduler-supplied SCTE-35 passthrough cue
// to be handed to the channel's sink at the next tick boundary.
type ForwardCueRequest struct {
	ChannelID         string `json:"channel_id"`
	SpliceCommandType uint8  `json:"splice_command_type"`
	PtsAdjustment     int64  `json:"pts_adjustment"`
}

// EvidenceStreamRequest opens a server-streaming evidence subscription,
// replaying any spooled event with sequence > from_sequence before
// streaming live events.
type EvidenceStreamRequest struct {
	ChannelID    string `json:"channel_id"`
	FromSequence int64  `json:"from_sequence"`
}

// EvidenceEventMessage is the wire-shape counterpart of evidence.Event.
type EvidenceEventMessage struct {
	Sequence         int64  `json:"sequence"`
	ChannelID        string `json:"channel_id"`
	Type             string `json:"type"`
	BlockID          string `json:"block_id,omitempty"`
	NextBlockID      string `json:"next_block_id,omitempty"`
	SegmentID        string `json:"segment_id,omitempty"`
	Tick             int64  `json:"tick,omitempty"`
	Status           string `json:"status,omitempty"`
	Reason           string `json:"reason,omitempty"`
	TruncatedByFence bool   `json:"truncated_by_fence,omitempty"`
	EmittedAtUtcUs   int64  `json:"emitted_at_utc_us"`
}
