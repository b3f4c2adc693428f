package evidence

import "testing"

func TestSpoolAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	sp, err := openSpool(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("openSpool failed: %v", err)
	}
	defer sp.close()

	if err := sp.append(Event{Sequence: 0, Type: EventBlockStart, BlockID: "blk-1"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := sp.append(Event{Sequence: 1, Type: EventBlockStart, BlockID: "blk-2"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	events, err := sp.replay(-1)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestSpoolReplayFiltersBySequence(t *testing.T) {
	dir := t.TempDir()
	sp, err := openSpool(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("openSpool failed: %v", err)
	}
	defer sp.close()

	_ = sp.append(Event{Sequence: 0})
	_ = sp.append(Event{Sequence: 1})
	_ = sp.append(Event{Sequence: 2})

	events, err := sp.replay(0)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after sequence 0, got %d", len(events))
	}
}

func TestSpoolPersistAndLoadAck(t *testing.T) {
	dir := t.TempDir()
	sp, err := openSpool(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("openSpool failed: %v", err)
	}
	defer sp.close()

	if err := sp.persistAck(42); err != nil {
		t.Fatalf("persistAck failed: %v", err)
	}
	if got := sp.loadAck(); got != 42 {
		t.Fatalf("loadAck = %d, want 42", got)
	}
}

func TestSpoolLoadAckDefaultsToZeroWhenMissing(t *testing.T) {
	dir := t.TempDir()
	sp, err := openSpool(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("openSpool failed: %v", err)
	}
	defer sp.close()
	if got := sp.loadAck(); got != 0 {
		t.Fatalf("loadAck default = %d, want 0", got)
	}
}

func TestSpoolAppendAfterDisableReturnsError(t *testing.T) {
	dir := t.TempDir()
	sp, err := openSpool(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("openSpool failed: %v", err)
	}
	defer sp.close()

	sp.disabled = true
	if err := sp.append(Event{Sequence: 0}); err == nil {
		t.Fatalf("expected append to fail once spool is disabled")
	}
}
