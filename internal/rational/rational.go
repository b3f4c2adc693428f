// Package rational implements the integer-only rational timebase arithmetic
// the playout core anchors every output frame to. No floating-point type
// appears anywhere in this package: frame periods, presentation times, and
// tick indices are all derived from integer ratios, with 128-bit
// intermediate products where a plain int64 multiply could overflow.
package rational

import (
	"fmt"
	"math/bits"
)

// Fps is an irreducible (num, den) frames-per-second ratio. den > 0 and
// num > 0 always hold for a constructed value; Normalize enforces this by
// reducing by the GCD at construction time so equality is structural.
type Fps struct {
	Num int64
	Den int64
}

// NewFps builds an irreducible Fps from a raw numerator/denominator pair.
func NewFps(num, den int64) (Fps, error) {
	if den <= 0 {
		return Fps{}, fmt.Errorf("rational: denominator must be > 0, got %d", den)
	}
	if num <= 0 {
		return Fps{}, fmt.Errorf("rational: numerator must be > 0, got %d", num)
	}
	g := gcd(num, den)
	return Fps{Num: num / g, Den: den / g}, nil
}

// MustFps panics on invalid input; reserved for compile-time-known constants.
func MustFps(num, den int64) Fps {
	f, err := NewFps(num, den)
	if err != nil {
		panic(err)
	}
	return f
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	if a < 0 {
		return -a
	}
	return a
}

// Equal reports structural equality of two irreducible Fps values.
func (f Fps) Equal(o Fps) bool { return f.Num == o.Num && f.Den == o.Den }

func (f Fps) String() string { return fmt.Sprintf("%d/%d", f.Num, f.Den) }

// FramePeriodUs returns floor(1_000_000 * den / num), the duration in
// microseconds of a single frame period. Uses a 128-bit intermediate
// product so large den values (e.g. NTSC 1001) never overflow int64.
func (f Fps) FramePeriodUs() int64 {
	return mulDiv(1_000_000, f.Den, f.Num)
}

// PresentationTimeUs returns floor(n * 1_000_000 * den / num), the
// presentation time in microseconds of tick n relative to the session
// epoch. It is a pure function of n and the ratio: it never accumulates
// rounded per-tick periods, so there is no cumulative drift.
func (f Fps) PresentationTimeUs(n int64) int64 {
	return mulDiv(n*1_000_000, f.Den, f.Num)
}

// PresentationTime90k returns floor(n * 90000 * den / num), the MPEG-TS
// 90kHz-clock presentation time of tick n.
func (f Fps) PresentationTime90k(n int64) int64 {
	return mulDiv(n*90000, f.Den, f.Num)
}

// TickOfUtcUs returns the tick index N such that PresentationTimeUs(N) is
// the largest value <= elapsedUs. It starts from
// floor(elapsedUs * num / (1_000_000 * den)) and steps forward while the next
// tick's floored presentation time is still <= elapsedUs.
func (f Fps) TickOfUtcUs(elapsedUs int64) int64 {
	n := mulDiv(elapsedUs, f.Num, 1_000_000*f.Den)
	for f.PresentationTimeUs(n+1) <= elapsedUs {
		n++
	}
	return n
}

// FenceTick returns ceil(elapsedUs * num / (1_000_000 * den)), the tick
// index at which a wall-clock boundary elapsedUs after the epoch is
// reached. Fences round up: the swap must happen no later than the tick
// whose presentation time would otherwise run past the boundary.
func (f Fps) FenceTick(elapsedUs int64) int64 {
	num := elapsedUs * f.Num
	den := 1_000_000 * f.Den
	q, r := divMod128(num, den)
	if r != 0 {
		q++
	}
	return q
}

// mulDiv computes floor(a*b/c) using a 128-bit intermediate product so
// that a*b may exceed the range of int64. c must be > 0.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(absI64(a)), uint64(absI64(b)))
	neg := (a < 0) != (b < 0)
	quo, _ := bits.Div64(hi, lo, uint64(c))
	if neg {
		return -int64(quo)
	}
	return int64(quo)
}

// divMod128 computes floor(a/b) and a mod b for the FenceTick ceiling
// calculation. b must be > 0.
func divMod128(a, b int64) (q, r int64) {
	if b <= 0 {
		panic("rational: division by non-positive denominator")
	}
	neg := a < 0
	ua := uint64(absI64(a))
	hi := uint64(0)
	quo, rem := bits.Div64(hi, ua, uint64(b))
	if neg {
		if rem != 0 {
			quo++
			rem = uint64(b) - rem
		}
		return -int64(quo), -int64(rem)
	}
	return int64(quo), int64(rem)
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ResampleMode is the integer-ratio classification between an input
// decoder's native frame rate and the session's output grid.
type ResampleMode int

const (
	// ModeOff: input and output rates are identical; frames pass through.
	ModeOff ResampleMode = iota
	// ModeDrop: output rate divides evenly into input rate; every Step'th
	// input frame is emitted, but audio is harvested from every input frame.
	ModeDrop
	// ModeCadence: non-integer ratio; an integer accumulator decides when
	// to decode a fresh input frame versus repeat the last one.
	ModeCadence
)

func (m ResampleMode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeDrop:
		return "DROP"
	case ModeCadence:
		return "CADENCE"
	default:
		return "UNKNOWN"
	}
}

// Resample classifies the (in, out) fps pair and, for ModeDrop, returns the
// integer step (input frames consumed per output tick). For ModeCadence the
// caller drives its own integer accumulator instead of a fixed step.
func Resample(in, out Fps) (ResampleMode, int64) {
	lhs := in.Num * out.Den
	rhs := out.Num * in.Den
	if lhs == rhs {
		return ModeOff, 0
	}
	if lhs%rhs == 0 {
		return ModeDrop, lhs / rhs
	}
	return ModeCadence, 0
}
