// Package asrun implements the as-run log writer: a fixed-width column
// file plus a JSONL sidecar, one pair per (channel, broadcast date), with
// daily rollover at local midnight. It is a pure consumer of
// internal/evidence's event stream — the scheduling/horizon planner that
// decides what should have aired is an external collaborator; this
// package only durably records what the core reports actually happened.
package asrun

import "fmt"

// Status is the as-run outcome enum for one timeline entry.
type Status string

const (
	StatusAired       Status = "AIRED"
	StatusTruncated   Status = "TRUNCATED"
	StatusShort       Status = "SHORT"
	StatusSkipped     Status = "SKIPPED"
	StatusSubstituted Status = "SUBSTITUTED"
	StatusError       Status = "ERROR"
)

// Record is one as-run timeline entry: the fixed-width columns
// (Time/Dur/Type/EventID/Title) plus the JSONL sidecar fields.
type Record struct {
	EventUUID        string `json:"event_uuid"`
	EventID          string `json:"event_id"`
	BlockID          string `json:"block_id"`
	Title            string `json:"-"`
	Type             string `json:"-"`
	ActualStartUtcMs int64  `json:"actual_start_utc_ms"`
	ActualDurationMs int64  `json:"actual_duration_ms"`
	Status           Status `json:"status"`
	Reason           string `json:"reason,omitempty"`
	SwapTick         int64  `json:"swap_tick,omitempty"`
	FenceTick        int64  `json:"fence_tick,omitempty"`
}

// fixedWidthLine renders the TIME | DUR | TYPE | EVENT_ID | TITLE/ASSET
// columns. Columns are padded to a fixed width so the file aligns for a
// human reading it in a terminal or `less`; the JSONL sidecar is the
// machine-readable source of truth.
func (r Record) fixedWidthLine() string {
	t := formatClockMs(r.ActualStartUtcMs)
	d := formatDurationMs(r.ActualDurationMs)
	return fmt.Sprintf("%-8s | %-8s | %-11s | %-24s | %s", t, d, r.Type, r.EventID, r.Title)
}

func formatClockMs(ms int64) string {
	totalSec := ms / 1000
	h := (totalSec / 3600) % 24
	m := (totalSec / 60) % 60
	s := totalSec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatDurationMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	totalSec := ms / 1000
	h := totalSec / 3600
	m := (totalSec / 60) % 60
	s := totalSec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
