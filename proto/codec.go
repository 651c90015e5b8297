package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrShortFrame  = errors.New("frame too short")
	ErrUnknownMode = errors.New("unknown mode")
)

var le = binary.LittleEndian

// FrameSize returns the fixed wire size for m, or 0 if m carries no frame.
func FrameSize(m Mode) int {
	switch m {
	case ModeBreath:
		return BreathSize
	case ModeFlicker:
		return FlickerSize
	case ModeTest:
		return TestSize
	default:
		return 0
	}
}

func ttlOffset(m Mode) int {
	switch m {
	case ModeBreath:
		return 33
	case ModeFlicker:
		return 1
	default:
		return 13
	}
}

// ForwardCopy returns the frame in data trimmed to its fixed size with the ttl
// byte decremented. All other bytes, reserved ones included, are kept as sent.
func ForwardCopy(data []byte) ([]byte, error) {
	cmd, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if cmd.HopBudget() == 0 {
		return nil, fmt.Errorf("%s seq %d has no hops left", cmd.Mode(), cmd.Sequence())
	}
	buf := append([]byte(nil), data[:FrameSize(cmd.Mode())]...)
	buf[ttlOffset(cmd.Mode())]--
	return buf, nil
}

// Decode reads the mode byte and decodes exactly one command.
// Bytes past the fixed size are ignored.
func Decode(data []byte) (Command, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	mode := Mode(data[0])
	size := FrameSize(mode)
	if size == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, data[0])
	}
	if len(data) < size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortFrame, mode, size, len(data))
	}

	switch mode {
	case ModeBreath:
		return decodeBreath(data), nil
	case ModeFlicker:
		return decodeFlicker(data), nil
	default:
		return decodeTest(data), nil
	}
}

// Layout: mode u8, flags u8, version u16, seq u32, r g b u8, min f32, max f32,
// rise u32, fall u32, cycles u16, t0 u32, ttl u8.
func (b Breath) Encode() []byte {
	buf := make([]byte, BreathSize)
	buf[0] = byte(ModeBreath)
	buf[1] = b.Flags
	le.PutUint16(buf[2:], b.Version)
	le.PutUint32(buf[4:], b.Seq)
	buf[8], buf[9], buf[10] = b.Color.R, b.Color.G, b.Color.B
	le.PutUint32(buf[11:], math.Float32bits(b.Min))
	le.PutUint32(buf[15:], math.Float32bits(b.Max))
	le.PutUint32(buf[19:], b.RiseMs)
	le.PutUint32(buf[23:], b.FallMs)
	le.PutUint16(buf[27:], b.Cycles)
	le.PutUint32(buf[29:], b.StartMs)
	buf[33] = b.TTL
	return buf
}

func decodeBreath(buf []byte) Breath {
	return Breath{
		Flags:   buf[1],
		Version: le.Uint16(buf[2:]),
		Seq:     le.Uint32(buf[4:]),
		Color:   Color{R: buf[8], G: buf[9], B: buf[10]},
		Min:     math.Float32frombits(le.Uint32(buf[11:])),
		Max:     math.Float32frombits(le.Uint32(buf[15:])),
		RiseMs:  le.Uint32(buf[19:]),
		FallMs:  le.Uint32(buf[23:]),
		Cycles:  le.Uint16(buf[27:]),
		StartMs: le.Uint32(buf[29:]),
		TTL:     buf[33],
	}
}

// Layout: mode u8, ttl u8, flags u8, reserved u8, seq u32, t0 u32, on u16,
// off u16, cycles u16, invert u8.
func (f Flicker) Encode() []byte {
	buf := make([]byte, FlickerSize)
	buf[0] = byte(ModeFlicker)
	buf[1] = f.TTL
	buf[2] = f.Flags
	le.PutUint32(buf[4:], f.Seq)
	le.PutUint32(buf[8:], f.StartMs)
	le.PutUint16(buf[12:], f.OnMs)
	le.PutUint16(buf[14:], f.OffMs)
	le.PutUint16(buf[16:], f.Cycles)
	if f.Invert {
		buf[18] = 1
	}
	return buf
}

func decodeFlicker(buf []byte) Flicker {
	return Flicker{
		TTL:     buf[1],
		Flags:   buf[2],
		Seq:     le.Uint32(buf[4:]),
		StartMs: le.Uint32(buf[8:]),
		OnMs:    le.Uint16(buf[12:]),
		OffMs:   le.Uint16(buf[14:]),
		Cycles:  le.Uint16(buf[16:]),
		Invert:  buf[18] != 0,
	}
}

// Layout: mode u8, flags u8, version u16, seq u32, r g b u8, step u16, ttl u8,
// t0 u32.
func (t Test) Encode() []byte {
	buf := make([]byte, TestSize)
	buf[0] = byte(ModeTest)
	buf[1] = t.Flags
	le.PutUint16(buf[2:], t.Version)
	le.PutUint32(buf[4:], t.Seq)
	buf[8], buf[9], buf[10] = t.Color.R, t.Color.G, t.Color.B
	le.PutUint16(buf[11:], t.StepMs)
	buf[13] = t.TTL
	le.PutUint32(buf[14:], t.StartMs)
	return buf
}

func decodeTest(buf []byte) Test {
	return Test{
		Flags:   buf[1],
		Version: le.Uint16(buf[2:]),
		Seq:     le.Uint32(buf[4:]),
		Color:   Color{R: buf[8], G: buf[9], B: buf[10]},
		StepMs:  le.Uint16(buf[11:]),
		TTL:     buf[13],
		StartMs: le.Uint32(buf[14:]),
	}
}
