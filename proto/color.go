package proto

import "fmt"

// Color is an 8-bit per channel RGB value.
type Color struct {
	R uint8 `json:"r" yaml:"r"`
	G uint8 `json:"g" yaml:"g"`
	B uint8 `json:"b" yaml:"b"`
}

var Off = Color{}

// Scale multiplies every channel by f and truncates. f is clamped to [0,1].
func (c Color) Scale(f float64) Color {
	if f <= 0 {
		return Off
	}
	if f > 1 {
		f = 1
	}
	return Color{
		R: uint8(float64(c.R) * f),
		G: uint8(float64(c.G) * f),
		B: uint8(float64(c.B) * f),
	}
}

// Uint32 packs the color as 0x00RRGGBB, the layout ws281x drivers expect.
func (c Color) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
