//go:build !ws281x

package main

import (
	"fmt"

	"github.com/mbocsi/chainlight/config"
	"github.com/mbocsi/chainlight/strip"
)

func openStrip(cfg config.StripConfig) (*strip.Buffer, func(), error) {
	if cfg.Driver == "ws281x" {
		return nil, nil, fmt.Errorf("strip driver ws281x requires a build with -tags ws281x")
	}
	return strip.NewBuffer(cfg.Length), func() {}, nil
}
