// Package effects holds the per-node lighting state: the rendering math for
// breath and flicker, the admission gate that decides which command plays, and
// the self-test sequencer.
package effects

import (
	"math"

	"github.com/mbocsi/chainlight/proto"
)

// EaseCos is a raised-cosine ease: 0 at x=0, 1 at x=1.
func EaseCos(x float64) float64 {
	return 0.5 * (1 - math.Cos(math.Pi*x))
}

// before reports whether now precedes t on a wrapping millisecond clock.
func before(now, t uint32) bool {
	return int32(now-t) < 0
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// BreathBrightness returns the brightness fraction of b at now.
func BreathBrightness(now uint32, b proto.Breath) float64 {
	lo, hi := float64(b.Min), float64(b.Max)
	if before(now, b.StartMs) {
		return clamp01(lo)
	}
	period := b.Period()
	if period == 0 {
		return clamp01(lo)
	}
	elapsed := now - b.StartMs
	if b.Cycles != 0 && uint64(elapsed) >= uint64(b.Cycles)*uint64(period) {
		return clamp01(lo)
	}

	t := elapsed % period
	var e float64
	if t < b.RiseMs {
		e = EaseCos(float64(t) / float64(b.RiseMs))
	} else {
		e = EaseCos(1 - float64(t-b.RiseMs)/float64(b.FallMs))
	}
	return clamp01(lo + (hi-lo)*e)
}

// BreathFinished reports whether a finite breath has run all of its cycles.
// Infinite breaths never finish.
func BreathFinished(now uint32, b proto.Breath) bool {
	if b.Cycles == 0 || before(now, b.StartMs) {
		return false
	}
	return uint64(now-b.StartMs) >= uint64(b.Cycles)*uint64(b.Period())
}

// BreathColor is the base color scaled by the brightness at now.
func BreathColor(now uint32, b proto.Breath) proto.Color {
	return b.Color.Scale(BreathBrightness(now, b))
}
