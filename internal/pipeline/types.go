// Package pipeline implements the Pipeline Manager: the A/B tick-loop
// state machine that is the hardest and most contract-dense component of
// the playout core. It owns the active (A) and preview (B) TickProducers
// and their buffers via an arena of handles (see arena.go), performs
// block and segment swaps at scheduled wall-clock fences, and applies the
// pad-and-hold underflow policy so every tick emits exactly one frame.
package pipeline

// SegmentType classifies a Segment's content kind.
type SegmentType string

const (
	SegmentPrimary    SegmentType = "PRIMARY"
	SegmentCommercial SegmentType = "COMMERCIAL"
	SegmentPad        SegmentType = "PAD"
)

// Segment is one ordered unit of content within a BlockPlan.
type Segment struct {
	EventID       string
	AssetURI      string
	StartOffsetMs int64
	DurationMs    int64
	SegmentType   SegmentType
	// FrameCount is planning authority supplied by the scheduler: the core
	// consumes it without validation. A deficit is filled with pad; a
	// surplus is still truncated at the block fence.
	FrameCount int64
}

// BlockPlan is a self-contained, immutable execution unit delivered by
// the scheduler over FeedBlockPlan.
type BlockPlan struct {
	BlockID    string
	ChannelID  string
	StartUtcUs int64
	EndUtcUs   int64 // exclusive wall-clock fence
	Segments   []Segment
}

// UnderflowCause classifies why a tick emitted pad instead of content,
// per spec.md §4.5.
type UnderflowCause string

const (
	CauseBufferTrulyEmpty  UnderflowCause = "BUFFER_TRULY_EMPTY"
	CauseProducerGated     UnderflowCause = "PRODUCER_GATED"
	CauseCtSlotSkipped     UnderflowCause = "CT_SLOT_SKIPPED"
	CauseFrameCtMismatch   UnderflowCause = "FRAME_CT_MISMATCH"
	CauseContentDeficit    UnderflowCause = "CONTENT_DEFICIT_FILL"
)

// EvidenceEmitter is the narrow surface the Pipeline Manager needs to
// report execution evidence. Concrete sequencing, spooling, and RPC
// delivery live in internal/evidence; the manager depends only on this
// interface so the two packages never import each other.
type EvidenceEmitter interface {
	EmitBlockStart(blockID string, tick int64)
	EmitSegmentEnd(segmentID string, tick int64, status string, reason string)
	EmitBlockFence(blockID, nextBlockID string, tick int64, truncatedByFence bool)
	EmitChannelTerminated(reason string)
}

// FrameSink is the narrow surface the Pipeline Manager needs from the
// Encoder/Mux Sink. Concrete TS packetization, PAT/PMT cadence, and
// transport live in internal/mux.
type FrameSink interface {
	EmitVideo(plane []byte, ptsUs, durationUs int64) error
	EmitAudio(samples []int16, ptsUs int64) error
}

// discontinuityMarker is an optional capability a FrameSink may implement
// to be told when an A/B switch has occurred, so it can reset any
// content-before-pad or IDR gating it performs downstream of the sample
// boundary the Pipeline Manager tracks. internal/mux.Muxer implements it;
// the manager degrades silently to no-op when a sink does not.
type discontinuityMarker interface {
	MarkDiscontinuity()
}

// cueForwarder is an optional capability a FrameSink may implement to
// accept a passthrough SCTE cue payload alongside ordinary media
// emission. internal/mux.Muxer implements it; a sink that doesn't simply
// never receives forwarded cues.
type cueForwarder interface {
	EmitCue(payload []byte) error
}
