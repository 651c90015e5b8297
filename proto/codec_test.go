package proto

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameSizes(t *testing.T) {
	if got := len(Breath{}.Encode()); got != 34 {
		t.Errorf("Expected breath size 34, got %d", got)
	}
	if got := len(Flicker{}.Encode()); got != 19 {
		t.Errorf("Expected flicker size 19, got %d", got)
	}
	if got := len(Test{}.Encode()); got != 18 {
		t.Errorf("Expected test size 18, got %d", got)
	}
}

func TestBreathLayout(t *testing.T) {
	b := Breath{
		Flags:   FlagInterrupt,
		Version: 0x0102,
		Seq:     0x0A0B0C0D,
		Color:   Color{R: 1, G: 2, B: 3},
		Min:     0.5,
		Max:     1.0,
		RiseMs:  900,
		FallMs:  1100,
		Cycles:  7,
		StartMs: 0x11223344,
		TTL:     40,
	}
	buf := b.Encode()

	want := map[int]byte{
		0: 1, 1: 1, 2: 0x02, 3: 0x01,
		4: 0x0D, 5: 0x0C, 6: 0x0B, 7: 0x0A,
		8: 1, 9: 2, 10: 3,
		11: 0x00, 12: 0x00, 13: 0x00, 14: 0x3F, // 0.5
		15: 0x00, 16: 0x00, 17: 0x80, 18: 0x3F, // 1.0
		19: 0x84, 20: 0x03, // 900
		23: 0x4C, 24: 0x04, // 1100
		27: 7, 28: 0,
		29: 0x44, 30: 0x33, 31: 0x22, 32: 0x11,
		33: 40,
	}
	for off, v := range want {
		if buf[off] != v {
			t.Errorf("offset %d: expected 0x%02x, got 0x%02x", off, v, buf[off])
		}
	}

	cmd, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := cmd.(Breath)
	if !ok {
		t.Fatalf("Expected Breath, got %T", cmd)
	}
	if got != b {
		t.Errorf("Expected %+v, got %+v", b, got)
	}
}

func TestFlickerLayout(t *testing.T) {
	f := Flicker{TTL: 9, Flags: FlagInterrupt, Seq: 5, StartMs: 1000, OnMs: 20, OffMs: 30, Cycles: 40, Invert: true}
	buf := f.Encode()

	if buf[0] != byte(ModeFlicker) || buf[1] != 9 || buf[2] != 1 || buf[3] != 0 {
		t.Errorf("Unexpected header bytes % x", buf[:4])
	}
	if !bytes.Equal(buf[8:12], []byte{0xE8, 0x03, 0, 0}) {
		t.Errorf("Expected t0 at offset 8, got % x", buf[8:12])
	}
	if buf[18] != 1 {
		t.Errorf("Expected invert byte 1, got %d", buf[18])
	}

	cmd, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := cmd.(Flicker); got != f {
		t.Errorf("Expected %+v, got %+v", f, got)
	}
}

func TestTestLayout(t *testing.T) {
	tc := Test{Flags: FlagInterrupt, Version: Version, Seq: 3, Color: Color{R: 255}, StepMs: 50, TTL: 2, StartMs: 0x01020304}
	buf := tc.Encode()

	if buf[11] != 50 || buf[12] != 0 {
		t.Errorf("Expected step at offset 11, got % x", buf[11:13])
	}
	if buf[13] != 2 {
		t.Errorf("Expected ttl at offset 13, got %d", buf[13])
	}
	if !bytes.Equal(buf[14:18], []byte{4, 3, 2, 1}) {
		t.Errorf("Expected t0 at offset 14, got % x", buf[14:18])
	}

	cmd, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := cmd.(Test); got != tc {
		t.Errorf("Expected %+v, got %+v", tc, got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmptyFrame},
		{"unknown mode", []byte{9, 0, 0}, ErrUnknownMode},
		{"mode none", make([]byte, 40), ErrUnknownMode},
		{"short breath", Breath{}.Encode()[:33], ErrShortFrame},
		{"short flicker", Flicker{}.Encode()[:18], ErrShortFrame},
		{"short test", Test{}.Encode()[:1], ErrShortFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if cmd != nil {
				t.Errorf("Expected nil command, got %+v", cmd)
			}
		})
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	buf := append(Test{Seq: 11}.Encode(), 0xFF, 0xFF)
	cmd, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if cmd.Sequence() != 11 {
		t.Errorf("Expected seq 11, got %d", cmd.Sequence())
	}
}

func TestVersionNotValidated(t *testing.T) {
	buf := Breath{Version: 0xBEEF, Seq: 1}.Encode()
	cmd, err := Decode(buf)
	if err != nil {
		t.Fatalf("Expected foreign version to decode, got %v", err)
	}
	if cmd.(Breath).Version != 0xBEEF {
		t.Errorf("Expected version carried through")
	}
}

func TestForwardCopy(t *testing.T) {
	flicker := Flicker{TTL: 4, Seq: 7, StartMs: 4000, OnMs: 10, OffMs: 10}.Encode()
	flicker[3] = 0x7F  // reserved
	flicker[18] = 0x02 // non-canonical invert
	breath := Breath{TTL: 40, Seq: 2, Color: Color{R: 255}, Min: 0.05, Max: 0.6}.Encode()
	test := Test{TTL: 9, Seq: 3, StepMs: 100}.Encode()

	tests := []struct {
		name   string
		frame  []byte
		offset int
	}{
		{"flicker keeps reserved and invert bytes", flicker, 1},
		{"breath", breath, 33},
		{"test", test, 13},
		{"trailing bytes trimmed", append(append([]byte(nil), breath...), 0xAA, 0xBB), 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := append([]byte(nil), tt.frame[:FrameSize(Mode(tt.frame[0]))]...)
			want[tt.offset]--

			got, err := ForwardCopy(tt.frame)
			if err != nil {
				t.Fatalf("ForwardCopy failed: %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Errorf("Expected %x, got %x", want, got)
			}
			if &got[0] == &tt.frame[0] {
				t.Error("Expected a copy, got the input buffer")
			}
		})
	}
}

func TestForwardCopyErrors(t *testing.T) {
	if _, err := ForwardCopy(Flicker{TTL: 0}.Encode()); err == nil {
		t.Error("Expected error for exhausted ttl")
	}
	if _, err := ForwardCopy([]byte{byte(ModeBreath), 0}); !errors.Is(err, ErrShortFrame) {
		t.Errorf("Expected ErrShortFrame, got %v", err)
	}
}

func TestWithHopBudgetKeepsStart(t *testing.T) {
	cmds := []Command{
		Breath{TTL: 5, StartMs: 77},
		Flicker{TTL: 5, StartMs: 77},
		Test{TTL: 5, StartMs: 77},
	}
	for _, c := range cmds {
		fwd := c.WithHopBudget(c.HopBudget() - 1)
		if fwd.HopBudget() != 4 {
			t.Errorf("%s: expected ttl 4, got %d", c.Mode(), fwd.HopBudget())
		}
		if fwd.StartTime() != 77 {
			t.Errorf("%s: expected start 77, got %d", c.Mode(), fwd.StartTime())
		}
		if c.HopBudget() != 5 {
			t.Errorf("%s: original mutated", c.Mode())
		}
	}
}

func TestNormalize(t *testing.T) {
	b := Breath{Min: 1.5, Max: -0.2}.Normalize()
	if b.Min != 0 || b.Max != 1 {
		t.Errorf("Expected min 0 max 1, got %v %v", b.Min, b.Max)
	}
	if b.RiseMs != 1 || b.FallMs != 1 {
		t.Errorf("Expected durations floored to 1, got %d %d", b.RiseMs, b.FallMs)
	}

	b = Breath{Min: 0.8, Max: 0.2, RiseMs: 10, FallMs: 20}.Normalize()
	if b.Min != 0.2 || b.Max != 0.8 {
		t.Errorf("Expected swapped range, got %v %v", b.Min, b.Max)
	}

	f := Flicker{}.Normalize()
	if f.OnMs != 1 || f.OffMs != 1 {
		t.Errorf("Expected on/off floored to 1, got %d %d", f.OnMs, f.OffMs)
	}
}
