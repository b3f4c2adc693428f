package evidence

import (
	"os"
	"testing"
	"time"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	return NewHub(t.TempDir(), 4, nil)
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEmitterPublishesSequencedEvents(t *testing.T) {
	h := newTestHub(t)
	em := h.Emitter("chan-1")
	sub, cancel, err := h.Subscribe("chan-1", -1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	em.EmitBlockStart("blk-1", 10)
	em.EmitBlockStart("blk-2", 20)

	first := waitEvent(t, sub)
	second := waitEvent(t, sub)
	if first.Sequence != 0 || second.Sequence != 1 {
		t.Fatalf("expected sequences 0,1, got %d,%d", first.Sequence, second.Sequence)
	}
	if first.BlockID != "blk-1" || second.BlockID != "blk-2" {
		t.Fatalf("unexpected block ids: %s %s", first.BlockID, second.BlockID)
	}
}

func TestEmitSegmentEndAndBlockFenceCarryFields(t *testing.T) {
	h := newTestHub(t)
	em := h.Emitter("chan-1")
	sub, cancel, err := h.Subscribe("chan-1", -1)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	em.EmitSegmentEnd("blk-1/0", 100, "COMPLETE", "seam_reached")
	ev := waitEvent(t, sub)
	if ev.Type != EventSegmentEnd || ev.Status != "COMPLETE" || ev.Reason != "seam_reached" {
		t.Fatalf("unexpected segment end event: %+v", ev)
	}

	em.EmitBlockFence("blk-1", "blk-2", 200, true)
	ev = waitEvent(t, sub)
	if ev.Type != EventBlockFence || ev.BlockID != "blk-1" || ev.NextBlockID != "blk-2" || !ev.TruncatedByFence {
		t.Fatalf("unexpected block fence event: %+v", ev)
	}
}

func TestSubscribeReplaysSpooledBacklogFromSequence(t *testing.T) {
	h := newTestHub(t)
	em := h.Emitter("chan-1")
	em.EmitBlockStart("blk-1", 1)
	em.EmitBlockStart("blk-2", 2)
	em.EmitBlockStart("blk-3", 3)

	sub, cancel, err := h.Subscribe("chan-1", 0)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	ev := waitEvent(t, sub)
	if ev.Sequence != 1 {
		t.Fatalf("expected replay to start at sequence 1, got %d", ev.Sequence)
	}
}

func TestAckPersistsAcrossHubInstances(t *testing.T) {
	dir, err := os.MkdirTemp("", "evidence-ack-test")
	if err != nil {
		t.Fatalf("MkdirTemp failed: %v", err)
	}
	defer os.RemoveAll(dir)

	h1 := NewHub(dir, 4, nil)
	h1.Ack("chan-1", 5)
	if err := h1.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	h2 := NewHub(dir, 4, nil)
	cl := h2.channelFor("chan-1")
	if got := cl.spool.loadAck(); got != 5 {
		t.Fatalf("loadAck = %d, want 5", got)
	}
}

func TestHubCloseFlushesSpool(t *testing.T) {
	h := newTestHub(t)
	em := h.Emitter("chan-1")
	em.EmitChannelTerminated("test_done")
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestSubscribersAreIndependentPerChannel(t *testing.T) {
	h := newTestHub(t)
	subA, cancelA, _ := h.Subscribe("chan-a", -1)
	defer cancelA()
	subB, cancelB, _ := h.Subscribe("chan-b", -1)
	defer cancelB()

	h.Emitter("chan-a").EmitBlockStart("blk-a", 1)

	ev := waitEvent(t, subA)
	if ev.ChannelID != "chan-a" {
		t.Fatalf("expected chan-a event, got %s", ev.ChannelID)
	}

	select {
	case ev := <-subB:
		t.Fatalf("expected no event on chan-b subscriber, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
