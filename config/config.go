// Package config loads a node's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbocsi/chainlight/effects"
	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/server"
	"github.com/mbocsi/chainlight/services"
)

type Config struct {
	Node   NodeConfig   `yaml:"node"`
	Link   LinkConfig   `yaml:"link"`
	Strip  StripConfig  `yaml:"strip"`
	Render RenderConfig `yaml:"render"`
	Origin OriginConfig `yaml:"origin"`
	HTTP   HTTPConfig   `yaml:"http"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	MCP    MCPConfig    `yaml:"mcp"`
	Log    LogConfig    `yaml:"log"`
}

type NodeConfig struct {
	Index   int          `yaml:"index"` // -1 is a master placed before peer 0
	Address string       `yaml:"address"`
	Peers   []PeerConfig `yaml:"peers"`
	TickMs  int          `yaml:"tick_ms"`
	Verbose bool         `yaml:"verbose"`
}

type PeerConfig struct {
	Address  string `yaml:"address"`
	Endpoint string `yaml:"endpoint"` // host:port, udp links only
}

type LinkConfig struct {
	Kind   string `yaml:"kind"` // udp or ether
	Listen string `yaml:"listen"`
}

type StripConfig struct {
	Driver     string `yaml:"driver"` // buffer or ws281x
	Length     int    `yaml:"length"`
	GPIO       int    `yaml:"gpio"`
	Brightness int    `yaml:"brightness"`
}

type RenderConfig struct {
	DefaultColor []int `yaml:"default_color"`
	Spacing      int   `yaml:"spacing"`
	OnCount      int   `yaml:"on_count"`
}

type OriginConfig struct {
	Rebroadcast       bool   `yaml:"rebroadcast"`
	BreathIntervalMs  uint32 `yaml:"breath_interval_ms"`
	FlickerIntervalMs uint32 `yaml:"flicker_interval_ms"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the control API
	MDNS bool   `yaml:"mdns"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"` // empty disables the bridge
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() *Config {
	return &Config{
		Node: NodeConfig{TickMs: 5},
		Link: LinkConfig{Kind: "udp", Listen: ":7400"},
		Strip: StripConfig{
			Driver:     "buffer",
			Length:     60,
			GPIO:       18,
			Brightness: 255,
		},
		Render: RenderConfig{DefaultColor: []int{0, 0, 127}, Spacing: 1, OnCount: 1},
		Origin: OriginConfig{Rebroadcast: true, BreathIntervalMs: 2000, FlickerIntervalMs: 1000},
		MQTT:   MQTTConfig{TopicPrefix: "chainlight"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Node.Index < server.OriginIndex || c.Node.Index >= len(c.Node.Peers) {
		return fmt.Errorf("node.index %d out of range [-1, %d]", c.Node.Index, len(c.Node.Peers)-1)
	}
	self, err := server.ParseAddress(c.Node.Address)
	if err != nil {
		return fmt.Errorf("node.address: %w", err)
	}
	seen := make(map[server.Address]bool, len(c.Node.Peers))
	for i, p := range c.Node.Peers {
		addr, err := server.ParseAddress(p.Address)
		if err != nil {
			return fmt.Errorf("node.peers[%d].address: %w", i, err)
		}
		if seen[addr] {
			return fmt.Errorf("node.peers[%d].address %s is duplicated", i, addr)
		}
		seen[addr] = true
		if c.Link.Kind == "udp" && p.Endpoint == "" && i != c.Node.Index {
			return fmt.Errorf("node.peers[%d].endpoint is required for a udp link", i)
		}
	}
	// A node finds itself in the peer list at its index; a master is not listed.
	if c.Node.Index >= 0 {
		if peer, _ := server.ParseAddress(c.Node.Peers[c.Node.Index].Address); peer != self {
			return fmt.Errorf("node.peers[%d].address must equal node.address", c.Node.Index)
		}
	} else if seen[self] {
		return fmt.Errorf("node.address %s of a master must not be a peer", self)
	}
	if c.Node.TickMs < 1 {
		return fmt.Errorf("node.tick_ms must be at least 1, got %d", c.Node.TickMs)
	}

	switch c.Link.Kind {
	case "udp", "ether":
	default:
		return fmt.Errorf("link.kind %q is not udp or ether", c.Link.Kind)
	}

	switch c.Strip.Driver {
	case "buffer", "ws281x":
	default:
		return fmt.Errorf("strip.driver %q is not buffer or ws281x", c.Strip.Driver)
	}
	if c.Strip.Length < 1 {
		return fmt.Errorf("strip.length must be at least 1, got %d", c.Strip.Length)
	}
	if c.Strip.Brightness < 0 || c.Strip.Brightness > 255 {
		return fmt.Errorf("strip.brightness must be in [0, 255], got %d", c.Strip.Brightness)
	}

	if len(c.Render.DefaultColor) != 3 {
		return fmt.Errorf("render.default_color needs 3 channels, got %d", len(c.Render.DefaultColor))
	}
	for _, v := range c.Render.DefaultColor {
		if v < 0 || v > 255 {
			return fmt.Errorf("render.default_color channel %d out of range", v)
		}
	}
	if c.Render.Spacing < 1 {
		return fmt.Errorf("render.spacing must be at least 1, got %d", c.Render.Spacing)
	}
	if c.Render.OnCount < 1 || c.Render.OnCount > c.Render.Spacing {
		return fmt.Errorf("render.on_count must be in [1, %d], got %d", c.Render.Spacing, c.Render.OnCount)
	}
	return nil
}

// Self is the node's own link address. Validate has already checked it.
func (c *Config) Self() server.Address {
	addr, _ := server.ParseAddress(c.Node.Address)
	return addr
}

func (c *Config) PeerAddresses() []server.Address {
	peers := make([]server.Address, len(c.Node.Peers))
	for i, p := range c.Node.Peers {
		peers[i], _ = server.ParseAddress(p.Address)
	}
	return peers
}

func (c *Config) Tick() time.Duration {
	return time.Duration(c.Node.TickMs) * time.Millisecond
}

func (c *Config) RendererConfig() effects.RendererConfig {
	dc := c.Render.DefaultColor
	return effects.RendererConfig{
		DefaultColor: proto.Color{R: uint8(dc[0]), G: uint8(dc[1]), B: uint8(dc[2])},
		Spacing:      c.Render.Spacing,
		OnCount:      c.Render.OnCount,
	}
}

func (c *Config) OriginatorOptions() services.OriginatorOptions {
	return services.OriginatorOptions{
		Rebroadcast:       c.Origin.Rebroadcast,
		BreathIntervalMs:  c.Origin.BreathIntervalMs,
		FlickerIntervalMs: c.Origin.FlickerIntervalMs,
	}
}
