// Package evidence implements the Control Surface's execution-evidence
// authority: per-channel sequenced events, durable JSONL spooling with
// bounded-retry flush, and replay-from-acked-sequence delivery to live
// subscribers. Concrete RPC transport lives in internal/control; this
// package only produces and durably holds the event stream.
package evidence

// EventType classifies one execution-evidence record.
type EventType string

const (
	EventBlockStart        EventType = "BLOCK_START"
	EventSegmentEnd        EventType = "SEGMENT_END"
	EventBlockFence        EventType = "BLOCK_FENCE"
	EventChannelTerminated EventType = "CHANNEL_TERMINATED"
)

// Event is one sequenced, durably spooled execution-evidence record.
// Sequence is assigned by the owning Hub at publish time and is
// monotonically increasing per channel, never reused.
type Event struct {
	Sequence         int64     `json:"sequence"`
	ChannelID        string    `json:"channel_id"`
	Type             EventType `json:"type"`
	BlockID          string    `json:"block_id,omitempty"`
	NextBlockID      string    `json:"next_block_id,omitempty"`
	SegmentID        string    `json:"segment_id,omitempty"`
	Tick             int64     `json:"tick,omitempty"`
	Status           string    `json:"status,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	TruncatedByFence bool      `json:"truncated_by_fence,omitempty"`
	EmittedAtUtcUs   int64     `json:"emitted_at_utc_us"`
}
