//go:build ignore

// Generates deterministic rational-timebase golden vectors: for each of
// spec.md §8's three resample classifications (30->30 OFF, 60->30 DROP,
// 23.976->30 CADENCE), the first 20 output ticks' presentation times
// (in 90kHz units) plus the classified resample mode and step/ratio.
// Run: go run ./tests/golden/gen_rational_vectors.go
//
// File format per vector, one line per tick:
//
//	tick=<n> pts_90k=<v>
//
// followed by a trailing "mode=<OFF|DROP|CADENCE> step=<n>" line. The
// PTS sequence is generated purely from internal/rational.Fps, so any
// future change to the 128-bit-safe mulDiv arithmetic that shifts these
// values is a deliberate, reviewable diff against this file rather than
// a silent drift.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/slbailey/airengine/internal/rational"
)

const ticksPerVector = 20

type vector struct {
	name   string
	inFps  rational.Fps
	outFps rational.Fps
}

func main() {
	dir, _ := os.Getwd()
	fmt.Println("Generating rational timebase golden vectors in", dir)

	vectors := []vector{
		{"rational_30_30_off.txt", rational.MustFps(30, 1), rational.MustFps(30, 1)},
		{"rational_60_30_drop.txt", rational.MustFps(60, 1), rational.MustFps(30, 1)},
		{"rational_23976_30_cadence.txt", rational.MustFps(24000, 1001), rational.MustFps(30, 1)},
	}

	for _, v := range vectors {
		mode, step := rational.Resample(v.inFps, v.outFps)

		var out []byte
		for n := int64(0); n < ticksPerVector; n++ {
			out = append(out, []byte(fmt.Sprintf("tick=%d pts_90k=%d\n", n, v.outFps.PresentationTime90k(n)))...)
		}
		out = append(out, []byte(fmt.Sprintf("mode=%s step=%d\n", mode, step))...)

		p := filepath.Join(dir, v.name)
		if err := os.WriteFile(p, out, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		h := sha256.Sum256(out)
		fmt.Printf("Wrote %-32s size=%4d sha256=%s\n", v.name, len(out), hex.EncodeToString(h[:8]))
	}
}
