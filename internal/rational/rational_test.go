package rational

import "testing"

func TestNewFpsValidation(t *testing.T) {
	if _, err := NewFps(30, 0); err == nil {
		t.Fatalf("expected error for zero denominator")
	}
	if _, err := NewFps(0, 1); err == nil {
		t.Fatalf("expected error for zero numerator")
	}
	if _, err := NewFps(-1, 1); err == nil {
		t.Fatalf("expected error for negative numerator")
	}
}

func TestNewFpsReducesByGcd(t *testing.T) {
	f, err := NewFps(60000, 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := MustFps(30, 1)
	if !f.Equal(want) {
		t.Fatalf("expected reduced %v, got %v", want, f)
	}
}

func TestFramePeriodUs(t *testing.T) {
	thirty := MustFps(30, 1)
	if got := thirty.FramePeriodUs(); got != 33333 {
		t.Fatalf("expected 33333us for 30fps, got %d", got)
	}

	ntsc := MustFps(30000, 1001)
	if got := ntsc.FramePeriodUs(); got != 33366 {
		t.Fatalf("expected 33366us for 30000/1001, got %d", got)
	}
}

func TestPresentationTimeUsIsExactNotCumulative(t *testing.T) {
	ntsc := MustFps(30000, 1001)
	// Verify no cumulative drift: PresentationTimeUs(n) must equal the pure
	// ratio computation at every n, not n successive additions of FramePeriodUs.
	for _, n := range []int64{0, 1, 2, 1000, 90000} {
		want := mulDiv(n*1_000_000, ntsc.Den, ntsc.Num)
		if got := ntsc.PresentationTimeUs(n); got != want {
			t.Fatalf("tick %d: expected %d, got %d", n, want, got)
		}
	}
}

func TestPresentationTime90k(t *testing.T) {
	thirty := MustFps(30, 1)
	if got := thirty.PresentationTime90k(1); got != 3000 {
		t.Fatalf("expected 3000 (90000/30), got %d", got)
	}
}

func TestTickOfUtcUsRoundTrips(t *testing.T) {
	thirty := MustFps(30, 1)
	for n := int64(0); n < 100; n++ {
		pts := thirty.PresentationTimeUs(n)
		if got := thirty.TickOfUtcUs(pts); got != n {
			t.Fatalf("tick %d: round trip gave %d", n, got)
		}
	}
}

func TestFenceTickCeilsOnRemainder(t *testing.T) {
	thirty := MustFps(30, 1)
	// 33333us*1 is just under one full tick period (33333.33us); fence at
	// exactly one frame period's boundary should land on tick 1.
	period := thirty.FramePeriodUs()
	if got := thirty.FenceTick(period); got != 1 {
		t.Fatalf("expected fence at exactly one period to be tick 1, got %d", got)
	}
	// One microsecond past an exact multiple must round up to the next tick.
	exact := thirty.PresentationTimeUs(10)
	if got := thirty.FenceTick(exact); got != 10 {
		t.Fatalf("expected exact boundary to fence at tick 10, got %d", got)
	}
	if got := thirty.FenceTick(exact + 1); got != 11 {
		t.Fatalf("expected one microsecond past tick 10 to fence at tick 11, got %d", got)
	}
}

func TestFenceTickZero(t *testing.T) {
	thirty := MustFps(30, 1)
	if got := thirty.FenceTick(0); got != 0 {
		t.Fatalf("expected fence at epoch to be tick 0, got %d", got)
	}
}

func TestResampleOff(t *testing.T) {
	mode, step := Resample(MustFps(30, 1), MustFps(30, 1))
	if mode != ModeOff {
		t.Fatalf("expected ModeOff, got %v", mode)
	}
	if step != 0 {
		t.Fatalf("expected step 0, got %d", step)
	}
}

func TestResampleDrop(t *testing.T) {
	mode, step := Resample(MustFps(60, 1), MustFps(30, 1))
	if mode != ModeDrop {
		t.Fatalf("expected ModeDrop, got %v", mode)
	}
	if step != 2 {
		t.Fatalf("expected step 2, got %d", step)
	}
}

func TestResampleCadence(t *testing.T) {
	mode, _ := Resample(MustFps(24000, 1001), MustFps(30, 1))
	if mode != ModeCadence {
		t.Fatalf("expected ModeCadence for 23.976->30, got %v", mode)
	}
}

func TestResampleModeString(t *testing.T) {
	cases := map[ResampleMode]string{
		ModeOff:                "OFF",
		ModeDrop:                "DROP",
		ModeCadence:             "CADENCE",
		ResampleMode(99):        "UNKNOWN",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Fatalf("mode %d: expected %s, got %s", mode, want, got)
		}
	}
}

func TestFpsString(t *testing.T) {
	if got := MustFps(30, 1).String(); got != "30/1" {
		t.Fatalf("unexpected String(): %s", got)
	}
}

func TestMustFpsPanicsOnInvalid(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic for invalid Fps")
		}
	}()
	MustFps(1, 0)
}
