//go:build ws281x

package main

import (
	"github.com/mbocsi/chainlight/config"
	"github.com/mbocsi/chainlight/strip"
)

func openStrip(cfg config.StripConfig) (*strip.Buffer, func(), error) {
	if cfg.Driver != "ws281x" {
		return strip.NewBuffer(cfg.Length), func() {}, nil
	}
	dev, err := strip.NewWS281x(strip.WS281xConfig{
		GPIO:       cfg.GPIO,
		Length:     cfg.Length,
		Brightness: cfg.Brightness,
	})
	if err != nil {
		return nil, nil, err
	}
	return strip.Mirror(dev), dev.Close, nil
}
