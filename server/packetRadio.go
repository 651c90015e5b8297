package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrRadioStopped  = errors.New("radio not running")
	ErrUnknownPeer   = errors.New("peer not registered")
	ErrPeerTableFull = errors.New("peer table full")
)

// HardwareInterface abstracts the raw packet radio (an ESP-NOW style
// transceiver, an SPI module, or the in-memory Ether).
type HardwareInterface interface {
	Initialize() error
	Transmit(data []byte) error
	SetReceiveCallback(callback func(data []byte, rssi int))
	Close() error
	SetChannel(channel uint8) error
	SetPower(power uint8) error
}

// RadioConfig holds the local address and RF settings.
type RadioConfig struct {
	Address  Address
	Channel  uint8 // 1-14
	Power    uint8 // dBm
	MaxPeers int   // 0 = unlimited
}

// DefaultRadioConfig mirrors the ESP-NOW defaults: channel 1, 20 peers.
func DefaultRadioConfig(addr Address) RadioConfig {
	return RadioConfig{
		Address:  addr,
		Channel:  1,
		Power:    20,
		MaxPeers: 20,
	}
}

// PacketRadio implements Link over a HardwareInterface. Frames are
// [dst 6][src 6][payload]; frames for other destinations are ignored.
type PacketRadio struct {
	config RadioConfig
	hw     HardwareInterface

	mu           sync.RWMutex
	running      bool
	peers        map[Address]struct{}
	onReceive    func(from Address, data []byte)
	onSendResult func(to Address, ok bool)
}

func NewPacketRadio(config RadioConfig, hw HardwareInterface) *PacketRadio {
	return &PacketRadio{
		config: config,
		hw:     hw,
		peers:  make(map[Address]struct{}),
	}
}

func (r *PacketRadio) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("radio already running")
	}
	if err := r.hw.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize radio hardware: %w", err)
	}
	if err := r.hw.SetChannel(r.config.Channel); err != nil {
		r.hw.Close()
		return fmt.Errorf("failed to set channel: %w", err)
	}
	if err := r.hw.SetPower(r.config.Power); err != nil {
		r.hw.Close()
		return fmt.Errorf("failed to set power: %w", err)
	}
	r.hw.SetReceiveCallback(r.onHardwareReceive)
	r.running = true

	slog.Info("Packet radio started", "address", r.config.Address, "channel", r.config.Channel, "power", r.config.Power)
	return nil
}

func (r *PacketRadio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false
	if err := r.hw.Close(); err != nil {
		return fmt.Errorf("failed to close radio hardware: %w", err)
	}
	slog.Info("Packet radio stopped", "address", r.config.Address)
	return nil
}

func (r *PacketRadio) Address() Address { return r.config.Address }

func (r *PacketRadio) RegisterPeer(addr Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[addr]; ok {
		return nil
	}
	if r.config.MaxPeers > 0 && len(r.peers) >= r.config.MaxPeers {
		return fmt.Errorf("%w: %d peers", ErrPeerTableFull, len(r.peers))
	}
	r.peers[addr] = struct{}{}
	slog.Debug("Peer registered", "peer", addr)
	return nil
}

func (r *PacketRadio) RemovePeer(addr Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	delete(r.peers, addr)
	return nil
}

func (r *PacketRadio) OnReceive(fn func(from Address, data []byte)) {
	r.mu.Lock()
	r.onReceive = fn
	r.mu.Unlock()
}

func (r *PacketRadio) OnSendResult(fn func(to Address, ok bool)) {
	r.mu.Lock()
	r.onSendResult = fn
	r.mu.Unlock()
}

// Send transmits to a registered peer and reports the result through the
// send-result callback.
func (r *PacketRadio) Send(addr Address, data []byte) error {
	r.mu.RLock()
	running := r.running
	_, known := r.peers[addr]
	result := r.onSendResult
	r.mu.RUnlock()

	if !running {
		return ErrRadioStopped
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}

	err := r.hw.Transmit(packFrame(addr, r.config.Address, data))
	if result != nil {
		result(addr, err == nil)
	}
	if err != nil {
		return fmt.Errorf("hardware transmit failed: %w", err)
	}
	slog.Debug("Packet transmitted", "peer", addr, "size", len(data))
	return nil
}

func (r *PacketRadio) onHardwareReceive(data []byte, rssi int) {
	dst, src, payload, ok := unpackFrame(data)
	if !ok {
		slog.Warn("Radio packet too short", "size", len(data))
		return
	}
	if dst != r.config.Address && dst != Broadcast {
		return
	}

	r.mu.RLock()
	fn := r.onReceive
	r.mu.RUnlock()
	if fn == nil {
		slog.Debug("Radio packet with no receiver", "from", src, "size", len(payload))
		return
	}
	slog.Debug("Radio packet received", "from", src, "size", len(payload), "rssi", rssi)
	fn(src, payload)
}
