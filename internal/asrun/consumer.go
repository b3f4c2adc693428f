package asrun

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slbailey/airengine/internal/evidence"
)

// SegmentResolver looks up the scheduler-supplied event_id and
// title/asset for a segment an evidence event refers to. The Consumer
// has no access to BlockPlan content on its own — that lives in
// internal/control's Registry — so the external planner (or
// cmd/airengine wiring the two together) supplies this lookup. A nil
// resolver falls back to using the evidence segment/block IDs directly.
type SegmentResolver func(channelID, blockID, segmentID string) (eventID, title string)

// Consumer subscribes to one channel's evidence stream and turns
// SegmentEnd/BlockFence events into as-run Records, acking the hub only
// after a record has been durably written so a core restart mid-backlog
// replays from the last acked sequence without double-counting.
type Consumer struct {
	hub       *evidence.Hub
	channelID string
	writer    *Writer
	resolve   SegmentResolver
	log       *slog.Logger

	lastEmittedAtUtcUs int64
}

// NewConsumer wires writer to channelID's evidence stream on hub.
func NewConsumer(hub *evidence.Hub, channelID string, writer *Writer, resolve SegmentResolver, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		hub:       hub,
		channelID: channelID,
		writer:    writer,
		resolve:   resolve,
		log:       log.With("component", "asrun_consumer", "channel_id", channelID),
	}
}

// Run subscribes from fromSequence and processes events until ctx is
// canceled. It is meant to run in its own goroutine for the lifetime of
// the channel session.
func (c *Consumer) Run(ctx context.Context, fromSequence int64) error {
	events, cancel, err := c.hub.Subscribe(c.channelID, fromSequence)
	if err != nil {
		return fmt.Errorf("asrun: subscribe: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			c.handle(ev)
		}
	}
}

func (c *Consumer) handle(ev evidence.Event) {
	rec, ok := c.toRecord(ev)
	c.lastEmittedAtUtcUs = ev.EmittedAtUtcUs
	if !ok {
		c.hub.Ack(c.channelID, ev.Sequence)
		return
	}
	if err := c.writer.WriteRecord(rec); err != nil {
		c.log.Error("as-run record write failed", "sequence", ev.Sequence, "error", err)
		return
	}
	c.hub.Ack(c.channelID, ev.Sequence)
}

// toRecord derives an as-run Record from a SegmentEnd or BlockFence
// event. The event UUID is the channel+sequence pair: evidence.Event's
// Sequence is already a per-channel monotonic idempotency key, so no
// separate UUID field needs to travel over the wire.
func (c *Consumer) toRecord(ev evidence.Event) (Record, bool) {
	eventUUID := fmt.Sprintf("%s:%d", ev.ChannelID, ev.Sequence)

	durationMs := int64(0)
	if c.lastEmittedAtUtcUs > 0 && ev.EmittedAtUtcUs > c.lastEmittedAtUtcUs {
		durationMs = (ev.EmittedAtUtcUs - c.lastEmittedAtUtcUs) / 1000
	}

	switch ev.Type {
	case evidence.EventSegmentEnd:
		eventID, title := ev.SegmentID, ev.SegmentID
		if c.resolve != nil {
			eventID, title = c.resolve(ev.ChannelID, ev.BlockID, ev.SegmentID)
		}
		return Record{
			EventUUID:        eventUUID,
			EventID:          eventID,
			BlockID:          ev.BlockID,
			Title:            title,
			Type:             "SEGMENT",
			ActualStartUtcMs: ev.EmittedAtUtcUs / 1000,
			ActualDurationMs: durationMs,
			Status:           statusFromReason(ev.Status, ev.Reason),
			Reason:           ev.Reason,
		}, true
	case evidence.EventBlockFence:
		status := StatusAired
		reason := ev.Reason
		if ev.TruncatedByFence {
			status = StatusTruncated
			if reason == "" {
				reason = "block_fence_reached"
			}
		}
		return Record{
			EventUUID:        eventUUID,
			EventID:          ev.BlockID,
			BlockID:          ev.BlockID,
			Title:            fmt.Sprintf("fence -> %s", ev.NextBlockID),
			Type:             "BLOCK_FENCE",
			ActualStartUtcMs: ev.EmittedAtUtcUs / 1000,
			Status:           status,
			Reason:           reason,
			SwapTick:         ev.Tick,
			FenceTick:        ev.Tick,
		}, true
	default:
		return Record{}, false
	}
}

func statusFromReason(status, reason string) Status {
	switch status {
	case "COMPLETE", "AIRED", "":
		return StatusAired
	case "SKIPPED":
		return StatusSkipped
	case "SHORT":
		return StatusShort
	case "SUBSTITUTED":
		return StatusSubstituted
	case "ERROR":
		return StatusError
	default:
		if reason != "" {
			return StatusError
		}
		return StatusAired
	}
}
