package asrun

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteRecordAppendsFixedAndJsonlLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	rec := Record{
		EventUUID:        "chan-1:0",
		EventID:          "ev-1",
		BlockID:          "blk-1",
		Title:            "Morning Show",
		Type:             "SEGMENT",
		ActualStartUtcMs: 3661000,
		ActualDurationMs: 65000,
		Status:           StatusAired,
	}
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	var asrunFound, jsonlFound bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".asrun") {
			asrunFound = true
			body, _ := os.ReadFile(filepath.Join(dir, e.Name()))
			if !strings.Contains(string(body), "ev-1") || !strings.Contains(string(body), "Morning Show") {
				t.Fatalf("fixed-width line missing expected fields: %s", body)
			}
		}
		if strings.HasSuffix(e.Name(), ".jsonl") {
			jsonlFound = true
			body, _ := os.ReadFile(filepath.Join(dir, e.Name()))
			if !strings.Contains(string(body), `"event_id":"ev-1"`) {
				t.Fatalf("jsonl sidecar missing expected field: %s", body)
			}
		}
	}
	if !asrunFound || !jsonlFound {
		t.Fatalf("expected both .asrun and .jsonl files, found asrun=%v jsonl=%v", asrunFound, jsonlFound)
	}
}

func TestWriteRecordIsIdempotentByEventUUID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	rec := Record{EventUUID: "chan-1:0", EventID: "ev-1", Status: StatusAired}
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("first WriteRecord failed: %v", err)
	}
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("second WriteRecord failed: %v", err)
	}

	if w.recordCount != 1 {
		t.Fatalf("expected exactly one record written, got %d", w.recordCount)
	}
}

func TestRolloverToTodayIsNoOpWithinSameDay(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "chan-1", nil)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer w.Close()

	dateBefore := w.date
	w.rolloverToToday()
	if w.date != dateBefore {
		t.Fatalf("expected date to remain %s, got %s", dateBefore, w.date)
	}
}
