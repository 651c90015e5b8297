package effects

import (
	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/strip"
)

// RendererConfig controls the flicker-only fallback color and LED grouping.
// A pixel i is lit when i%Spacing < OnCount.
type RendererConfig struct {
	DefaultColor proto.Color
	Spacing      int
	OnCount      int
}

func DefaultRendererConfig() RendererConfig {
	return RendererConfig{
		DefaultColor: proto.Color{R: 0, G: 0, B: 127},
		Spacing:      1,
		OnCount:      1,
	}
}

type Renderer struct {
	cfg RendererConfig
}

func NewRenderer(cfg RendererConfig) *Renderer {
	if cfg.Spacing < 1 {
		cfg.Spacing = 1
	}
	if cfg.OnCount < 1 {
		cfg.OnCount = 1
	}
	if cfg.OnCount > cfg.Spacing {
		cfg.OnCount = cfg.Spacing
	}
	return &Renderer{cfg: cfg}
}

func (r *Renderer) Config() RendererConfig { return r.cfg }

// Color composes the active effects at now. A nil command is inactive.
// Flicker masks the breath waveform; flicker alone gates the default color.
func (r *Renderer) Color(now uint32, breath *proto.Breath, flicker *proto.Flicker) proto.Color {
	var gate uint8 = 1
	if flicker != nil {
		gate = FlickerGate(now, *flicker)
	}

	switch {
	case breath != nil:
		if gate == 0 {
			return proto.Off
		}
		return BreathColor(now, *breath)
	case flicker != nil:
		if gate == 0 {
			return proto.Off
		}
		return r.cfg.DefaultColor
	default:
		return proto.Off
	}
}

// Lit reports whether pixel i belongs to a lit group.
func (r *Renderer) Lit(i int) bool {
	return i%r.cfg.Spacing < r.cfg.OnCount
}

// Draw fills s with c on lit pixels, off elsewhere, and shows the frame.
func (r *Renderer) Draw(s strip.Strip, c proto.Color) error {
	for i := 0; i < s.Len(); i++ {
		if r.Lit(i) {
			s.Set(i, c)
		} else {
			s.Set(i, proto.Off)
		}
	}
	return s.Show()
}
