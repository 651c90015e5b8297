//go:build ws281x

package strip

import (
	"fmt"
	"log/slog"

	ws2811 "github.com/rpi-ws281x/rpi-ws281x-go"

	"github.com/mbocsi/chainlight/proto"
)

// WS281xConfig selects the GPIO pin, LED count and global brightness.
type WS281xConfig struct {
	GPIO       int
	Length     int
	Brightness int
}

// WS281x drives a WS2811/WS2812 strip through the rpi_ws281x library.
type WS281x struct {
	dev    *ws2811.WS2811
	length int
}

func NewWS281x(cfg WS281xConfig) (*WS281x, error) {
	opt := ws2811.DefaultOptions
	opt.Channels[0].GpioPin = cfg.GPIO
	opt.Channels[0].LedCount = cfg.Length
	opt.Channels[0].Brightness = cfg.Brightness

	dev, err := ws2811.MakeWS2811(&opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create ws281x device: %w", err)
	}
	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize ws281x on gpio %d: %w", cfg.GPIO, err)
	}

	slog.Info("WS281x strip initialized", "gpio", cfg.GPIO, "leds", cfg.Length, "brightness", cfg.Brightness)
	return &WS281x{dev: dev, length: cfg.Length}, nil
}

func (s *WS281x) Len() int { return s.length }

func (s *WS281x) Set(i int, c proto.Color) {
	if i < 0 || i >= s.length {
		return
	}
	s.dev.Leds(0)[i] = c.Uint32()
}

func (s *WS281x) Clear() {
	leds := s.dev.Leds(0)
	for i := range leds {
		leds[i] = 0
	}
}

func (s *WS281x) Show() error {
	return s.dev.Render()
}

// Close turns the strip off and releases the DMA channel.
func (s *WS281x) Close() {
	s.Clear()
	if err := s.dev.Render(); err != nil {
		slog.Warn("Failed to blank strip on close", "error", err)
	}
	s.dev.Fini()
}
