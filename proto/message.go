package proto

import "fmt"

// Mode is the one-byte discriminant that leads every frame.
type Mode uint8

const (
	ModeNone    Mode = 0
	ModeBreath  Mode = 1
	ModeFlicker Mode = 2
	ModeTest    Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeBreath:
		return "breath"
	case ModeFlicker:
		return "flicker"
	case ModeTest:
		return "test"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// FlagInterrupt permits a command to preempt one that is already playing.
const FlagInterrupt uint8 = 1 << 0

// Version is carried in breath and test frames. It is never validated on decode.
const Version uint16 = 1

// Fixed frame sizes in bytes.
const (
	BreathSize  = 34
	FlickerSize = 19
	TestSize    = 18
)

// Command is a decoded effect frame.
type Command interface {
	Mode() Mode
	Sequence() uint32
	Interrupt() bool
	HopBudget() uint8
	// StartTime is an absolute millisecond timestamp on the clock of whoever
	// last stamped it: the origin before rebasing, this node after.
	StartTime() uint32
	WithHopBudget(ttl uint8) Command
	WithStartTime(t uint32) Command
	Encode() []byte
}

// Breath is a slow raised-cosine fade between two brightness levels.
type Breath struct {
	Flags   uint8
	Version uint16
	Seq     uint32
	Color   Color
	Min     float32 // brightness fraction 0..1
	Max     float32
	RiseMs  uint32
	FallMs  uint32
	Cycles  uint16 // 0 = infinite
	StartMs uint32
	TTL     uint8
}

func (b Breath) Mode() Mode        { return ModeBreath }
func (b Breath) Sequence() uint32  { return b.Seq }
func (b Breath) Interrupt() bool   { return b.Flags&FlagInterrupt != 0 }
func (b Breath) HopBudget() uint8  { return b.TTL }
func (b Breath) StartTime() uint32 { return b.StartMs }

func (b Breath) WithHopBudget(ttl uint8) Command {
	b.TTL = ttl
	return b
}

func (b Breath) WithStartTime(t uint32) Command {
	b.StartMs = t
	return b
}

// Period is one full rise plus fall.
func (b Breath) Period() uint32 { return b.RiseMs + b.FallMs }

// Normalize clamps brightness to [0,1], orders min below max and floors the
// ramp durations to 1 ms.
func (b Breath) Normalize() Breath {
	b.Min = clamp01(b.Min)
	b.Max = clamp01(b.Max)
	if b.Min > b.Max {
		b.Min, b.Max = b.Max, b.Min
	}
	if b.RiseMs == 0 {
		b.RiseMs = 1
	}
	if b.FallMs == 0 {
		b.FallMs = 1
	}
	return b
}

// Flicker gates the output on and off.
type Flicker struct {
	TTL     uint8
	Flags   uint8
	Seq     uint32
	StartMs uint32
	OnMs    uint16
	OffMs   uint16
	Cycles  uint16 // 0 = continuous
	Invert  bool
}

func (f Flicker) Mode() Mode        { return ModeFlicker }
func (f Flicker) Sequence() uint32  { return f.Seq }
func (f Flicker) Interrupt() bool   { return f.Flags&FlagInterrupt != 0 }
func (f Flicker) HopBudget() uint8  { return f.TTL }
func (f Flicker) StartTime() uint32 { return f.StartMs }

func (f Flicker) WithHopBudget(ttl uint8) Command {
	f.TTL = ttl
	return f
}

func (f Flicker) WithStartTime(t uint32) Command {
	f.StartMs = t
	return f
}

func (f Flicker) Period() uint32 { return uint32(f.OnMs) + uint32(f.OffMs) }

// Normalize floors the on and off durations to 1 ms.
func (f Flicker) Normalize() Flicker {
	if f.OnMs == 0 {
		f.OnMs = 1
	}
	if f.OffMs == 0 {
		f.OffMs = 1
	}
	return f
}

// Test lights the strip one LED at a time and then hands off down the chain.
type Test struct {
	Flags   uint8
	Version uint16
	Seq     uint32
	Color   Color
	StepMs  uint16
	TTL     uint8
	StartMs uint32
}

func (t Test) Mode() Mode        { return ModeTest }
func (t Test) Sequence() uint32  { return t.Seq }
func (t Test) Interrupt() bool   { return t.Flags&FlagInterrupt != 0 }
func (t Test) HopBudget() uint8  { return t.TTL }
func (t Test) StartTime() uint32 { return t.StartMs }

func (t Test) WithHopBudget(ttl uint8) Command {
	t.TTL = ttl
	return t
}

func (t Test) WithStartTime(ms uint32) Command {
	t.StartMs = ms
	return t
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
