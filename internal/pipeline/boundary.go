package pipeline

import (
	"fmt"
	"sync"

	aerr "github.com/slbailey/airengine/internal/errors"
)

// BoundaryState is the unidirectional lifecycle of a single upcoming
// block fence, per spec.md §3.3. FailedTerminal is absorbing: once
// entered, no further transition is accepted.
type BoundaryState int

const (
	BoundaryNone BoundaryState = iota
	BoundaryPlanned
	BoundaryPreloadIssued
	BoundarySwitchScheduled
	BoundarySwitchIssued
	BoundaryLive
	BoundaryFailedTerminal
)

func (s BoundaryState) String() string {
	switch s {
	case BoundaryNone:
		return "NONE"
	case BoundaryPlanned:
		return "PLANNED"
	case BoundaryPreloadIssued:
		return "PRELOAD_ISSUED"
	case BoundarySwitchScheduled:
		return "SWITCH_SCHEDULED"
	case BoundarySwitchIssued:
		return "SWITCH_ISSUED"
	case BoundaryLive:
		return "LIVE"
	case BoundaryFailedTerminal:
		return "FAILED_TERMINAL"
	default:
		return "UNKNOWN"
	}
}

// forwardOrder lists the only state each non-terminal state may advance
// to besides FailedTerminal, which is reachable from every state.
var forwardOrder = map[BoundaryState]BoundaryState{
	BoundaryNone:            BoundaryPlanned,
	BoundaryPlanned:         BoundaryPreloadIssued,
	BoundaryPreloadIssued:   BoundarySwitchScheduled,
	BoundarySwitchScheduled: BoundarySwitchIssued,
	BoundarySwitchIssued:    BoundaryLive,
}

// Boundary tracks one upcoming block fence's lifecycle and its one-shot
// issuance guarantee: duplicate issuance of the same transition, or any
// issuance exception, drives the boundary into FAILED_TERMINAL with no
// retry.
type Boundary struct {
	mu               sync.Mutex
	blockID          string
	targetBoundaryMs int64
	issuedAtMs       int64
	state            BoundaryState
	issuedOnce       bool
}

// NewBoundary creates a boundary in state NONE for the given block and
// target fence time.
func NewBoundary(blockID string, targetBoundaryMs int64) *Boundary {
	return &Boundary{blockID: blockID, targetBoundaryMs: targetBoundaryMs, state: BoundaryNone}
}

// State returns the current lifecycle state.
func (b *Boundary) State() BoundaryState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BlockID returns the boundary's associated block.
func (b *Boundary) BlockID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockID
}

// Advance transitions the boundary to next. Advancing from
// FAILED_TERMINAL, skipping a state, or moving backward all fail the
// boundary terminally rather than returning a recoverable error, per
// spec.md §4.7 ("any issuance exception -> FAILED_TERMINAL").
func (b *Boundary) Advance(next BoundaryState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BoundaryFailedTerminal {
		return aerr.NewControlError("boundary.advance_after_terminal", fmt.Errorf("block %s already terminal", b.blockID))
	}
	if want, ok := forwardOrder[b.state]; !ok || want != next {
		b.state = BoundaryFailedTerminal
		return aerr.NewControlError("boundary.invalid_transition", fmt.Errorf("block %s: %s -> %s not permitted", b.blockID, b.state, next))
	}
	b.state = next
	return nil
}

// AdvanceSwitchIssued commits the ordinary, automatic SWITCH_ISSUED
// transition for a successor that has already primed successfully. This
// is the normal A/B preload admission path (spec.md §4.4): its only
// precondition is priming success, never a lead-time deadline. The
// lead-time feasibility gate in IssueSwitch below belongs to a distinct
// mechanism — spec.md §4.7's externally-issued transition-command
// protocol (target_boundary_time_ms/issued_at_time_ms), which this
// module's control surface does not expose as a separate RPC from plan
// feeding — and must never be applied to an ordinary preload, or a
// successor that primed perfectly gets discarded into degraded/pad
// fallback purely because the preparer happened to run within the lead
// window.
func (b *Boundary) AdvanceSwitchIssued() error {
	b.mu.Lock()
	if b.state == BoundaryFailedTerminal {
		b.mu.Unlock()
		return aerr.NewControlError("boundary.issue_after_terminal", fmt.Errorf("block %s already terminal", b.blockID))
	}
	b.issuedOnce = true
	b.mu.Unlock()
	return b.Advance(BoundarySwitchIssued)
}

// IssueSwitch records the one-shot SWITCH_ISSUED transition for an
// externally-issued transition command, enforcing the lead-time
// feasibility rule and duplicate-issuance suppression. targetBoundaryMs
// must match the plan-derived boundary exactly. Not used by the ordinary
// automatic preload path — see AdvanceSwitchIssued.
func (b *Boundary) IssueSwitch(targetBoundaryMs, issuedAtMs, minPrefeedLeadMs int64) error {
	b.mu.Lock()
	if b.state == BoundaryFailedTerminal {
		b.mu.Unlock()
		return aerr.NewControlError("boundary.issue_after_terminal", fmt.Errorf("block %s already terminal", b.blockID))
	}
	if b.issuedOnce {
		b.mu.Unlock()
		b.fail(fmt.Errorf("duplicate one-shot issuance for block %s", b.blockID))
		return aerr.NewControlError("boundary.duplicate_issuance", fmt.Errorf("block %s", b.blockID))
	}
	if targetBoundaryMs != b.targetBoundaryMs {
		b.mu.Unlock()
		b.fail(fmt.Errorf("target boundary mismatch: plan=%d issued=%d", b.targetBoundaryMs, targetBoundaryMs))
		return aerr.NewControlError("boundary.target_mismatch", fmt.Errorf("block %s", b.blockID))
	}
	if targetBoundaryMs-issuedAtMs < minPrefeedLeadMs {
		b.mu.Unlock()
		b.fail(fmt.Errorf("lead time %dms below minimum %dms", targetBoundaryMs-issuedAtMs, minPrefeedLeadMs))
		return aerr.NewControlError("boundary.lead_time_violation", fmt.Errorf("block %s", b.blockID))
	}
	b.issuedOnce = true
	b.issuedAtMs = issuedAtMs
	b.mu.Unlock()
	return b.Advance(BoundarySwitchIssued)
}

func (b *Boundary) fail(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BoundaryFailedTerminal
	_ = cause
}

// Fail unconditionally drives the boundary into FAILED_TERMINAL, used
// when an unrecoverable error occurs outside the normal issuance path
// (e.g. unrecoverable decoder init inside the committed successor).
func (b *Boundary) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BoundaryFailedTerminal
}
