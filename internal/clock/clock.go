// Package clock provides the playout core's sole authoritative session
// time: an immutable UTC epoch paired with a monotonic enforcement clock,
// and the tick<->UTC mapping every other component derives from.
package clock

import (
	"time"

	"github.com/google/uuid"

	"github.com/slbailey/airengine/internal/rational"
)

// SessionEpoch is captured once per session and never mutated. Wall-clock
// UTC defines what should be happening; the monotonic reading drives
// enforcement, so NTP steps or operator clock changes cannot perturb the
// tick cadence.
type SessionEpoch struct {
	PlayoutSessionID string
	EpochUtcUs       int64
	epochMono        time.Time
}

// NewSessionEpoch captures the epoch at the instant of construction. The
// returned value's EpochUtcUs is the wall-clock microsecond timestamp;
// the unexported monotonic reading is taken from the same time.Time so
// later elapsed-time computations never re-read the wall clock.
func NewSessionEpoch() SessionEpoch {
	now := time.Now()
	return SessionEpoch{
		PlayoutSessionID: uuid.NewString(),
		EpochUtcUs:       now.UnixMicro(),
		epochMono:        now,
	}
}

// MasterClock is the sole timing authority for a session. It is
// constructed once, held by the Pipeline Manager, and never reset.
type MasterClock struct {
	epoch SessionEpoch
	fps   rational.Fps
}

// New builds a MasterClock anchored to epoch and advancing at fps.
func New(epoch SessionEpoch, fps rational.Fps) *MasterClock {
	return &MasterClock{epoch: epoch, fps: fps}
}

// Epoch returns the session's immutable epoch.
func (c *MasterClock) Epoch() SessionEpoch { return c.epoch }

// Fps returns the session's output rational frame rate.
func (c *MasterClock) Fps() rational.Fps { return c.fps }

// NowUtcUs returns the current wall-clock UTC microsecond timestamp. It
// must never be used to drive a wait loop; only to compute
// session_epoch_utc_us-relative quantities and detect drift.
func (c *MasterClock) NowUtcUs() int64 { return time.Now().UnixMicro() }

// NowMonoNs returns nanoseconds elapsed on the monotonic clock since the
// session epoch. This is the only timebase the tick loop waits against.
func (c *MasterClock) NowMonoNs() int64 { return time.Since(c.epoch.epochMono).Nanoseconds() }

// SessionEpochUtcUs returns the immutable session UTC epoch.
func (c *MasterClock) SessionEpochUtcUs() int64 { return c.epoch.EpochUtcUs }

// FramePeriodUs returns the output grid's frame period in microseconds.
func (c *MasterClock) FramePeriodUs() int64 { return c.fps.FramePeriodUs() }

// TickIndexOfUtc returns the tick index whose presentation time is the
// largest value not exceeding the given wall-clock UTC microsecond
// timestamp, relative to the session epoch.
func (c *MasterClock) TickIndexOfUtc(utcUs int64) int64 {
	elapsed := utcUs - c.epoch.EpochUtcUs
	if elapsed < 0 {
		return 0
	}
	return c.fps.TickOfUtcUs(elapsed)
}

// PresentationTimeOfTick returns the output-grid presentation time, in
// microseconds relative to the session epoch, of tick N. It is a pure
// function of epoch and fps: it never depends on processing time.
func (c *MasterClock) PresentationTimeOfTick(n int64) int64 {
	return c.fps.PresentationTimeUs(n)
}

// MonoDeadlineOfTick returns the monotonic-clock deadline (nanoseconds
// since the epoch's monotonic reading) at which tick N's presentation
// time is reached.
func (c *MasterClock) MonoDeadlineOfTick(n int64) int64 {
	return c.PresentationTimeOfTick(n) * 1000
}

// FenceTickForEndUtc computes the fence tick F for a block fence at
// endUtcUs: the tick at which the block's end_utc_us is reached, per
// spec.md invariant 4 — ceil((end_utc_us - epoch_utc_us) * fps_num /
// (1_000_000 * fps_den)).
func (c *MasterClock) FenceTickForEndUtc(endUtcUs int64) int64 {
	elapsed := endUtcUs - c.epoch.EpochUtcUs
	if elapsed < 0 {
		return 0
	}
	return c.fps.FenceTick(elapsed)
}

// DriftUs reports the signed drift, in microseconds, between the wall
// clock and the epoch-plus-monotonic-elapsed prediction. It only reports:
// nothing in this module calls it outside tests, so drift never ends a
// session and is never "corrected".
func (c *MasterClock) DriftUs() int64 {
	predictedUtcUs := c.epoch.EpochUtcUs + c.NowMonoNs()/1000
	return c.NowUtcUs() - predictedUtcUs
}

// SleepUntilTick blocks the calling goroutine until tick N's presentation
// time is reached on the monotonic clock, or returns immediately if that
// time has already passed. This is the tick thread's only permitted wait;
// it never reads the wall clock.
func (c *MasterClock) SleepUntilTick(n int64) {
	deadlineNs := c.MonoDeadlineOfTick(n)
	nowNs := c.NowMonoNs()
	if nowNs >= deadlineNs {
		return
	}
	time.Sleep(time.Duration(deadlineNs - nowNs))
}
