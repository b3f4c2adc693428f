package evidence

import "github.com/slbailey/airengine/internal/pipeline"

// Emitter implements pipeline.EvidenceEmitter by publishing into a Hub.
// The Pipeline Manager depends only on the narrow EvidenceEmitter
// interface; this is the concrete adapter that closes the loop without
// the two packages importing each other.
type Emitter struct {
	hub       *Hub
	channelID string
}

var _ pipeline.EvidenceEmitter = (*Emitter)(nil)

func (e *Emitter) EmitBlockStart(blockID string, tick int64) {
	e.hub.publish(e.channelID, Event{Type: EventBlockStart, BlockID: blockID, Tick: tick})
}

func (e *Emitter) EmitSegmentEnd(segmentID string, tick int64, status string, reason string) {
	e.hub.publish(e.channelID, Event{Type: EventSegmentEnd, SegmentID: segmentID, Tick: tick, Status: status, Reason: reason})
}

func (e *Emitter) EmitBlockFence(blockID, nextBlockID string, tick int64, truncatedByFence bool) {
	e.hub.publish(e.channelID, Event{
		Type:             EventBlockFence,
		BlockID:          blockID,
		NextBlockID:      nextBlockID,
		Tick:             tick,
		TruncatedByFence: truncatedByFence,
	})
}

func (e *Emitter) EmitChannelTerminated(reason string) {
	e.hub.publish(e.channelID, Event{Type: EventChannelTerminated, Reason: reason})
}
