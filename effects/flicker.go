package effects

import "github.com/mbocsi/chainlight/proto"

// FlickerGate returns 1 when light passes and 0 when it is masked.
// Before the start the gate is closed. Once a finite flicker has run its
// cycles the gate stays open.
func FlickerGate(now uint32, f proto.Flicker) uint8 {
	if before(now, f.StartMs) {
		return 0
	}
	period := f.Period()
	if period == 0 {
		return 1
	}
	elapsed := now - f.StartMs
	if f.Cycles != 0 && uint64(elapsed) >= uint64(f.Cycles)*uint64(period) {
		return 1
	}

	on := elapsed%period < uint32(f.OnMs)
	if f.Invert {
		on = !on
	}
	if on {
		return 1
	}
	return 0
}

// FlickerFinished reports the open-due-to-completion state.
func FlickerFinished(now uint32, f proto.Flicker) bool {
	if f.Cycles == 0 || before(now, f.StartMs) {
		return false
	}
	return uint64(now-f.StartMs) >= uint64(f.Cycles)*uint64(f.Period())
}
