package server

import (
	"fmt"
	"net"
	"time"
)

// Address is a 6-byte link-layer peer address.
type Address [6]byte

var Broadcast = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func ParseAddress(s string) (Address, error) {
	var a Address
	hw, err := net.ParseMAC(s)
	if err != nil {
		return a, fmt.Errorf("invalid peer address %q: %w", s, err)
	}
	if len(hw) != len(a) {
		return a, fmt.Errorf("invalid peer address %q: want 6 bytes, got %d", s, len(hw))
	}
	copy(a[:], hw)
	return a, nil
}

func (a Address) String() string {
	return net.HardwareAddr(a[:]).String()
}

// Link is a connectionless, peer-addressed radio. Peers must be registered
// before Send. Send must not block on the medium.
type Link interface {
	RegisterPeer(addr Address) error
	RemovePeer(addr Address) error
	Send(addr Address, data []byte) error
	OnReceive(fn func(from Address, data []byte))
	OnSendResult(fn func(to Address, ok bool))
}

// Clock reads a monotonic millisecond counter that wraps at 2^32.
type Clock interface {
	NowMs() uint32
}

type SystemClock struct {
	epoch time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// NewSystemClockAt returns a clock that reads startMs now. Simulated nodes use
// it to boot out of step with each other.
func NewSystemClockAt(startMs uint32) *SystemClock {
	return &SystemClock{epoch: time.Now().Add(-time.Duration(startMs) * time.Millisecond)}
}

func (c *SystemClock) NowMs() uint32 {
	return uint32(time.Since(c.epoch).Milliseconds())
}

// frameHeaderSize is the [dst][src] prefix used by the packet links.
const frameHeaderSize = 12

func packFrame(dst, src Address, payload []byte) []byte {
	frame := make([]byte, frameHeaderSize+len(payload))
	copy(frame[0:6], dst[:])
	copy(frame[6:12], src[:])
	copy(frame[frameHeaderSize:], payload)
	return frame
}

func unpackFrame(frame []byte) (dst, src Address, payload []byte, ok bool) {
	if len(frame) < frameHeaderSize {
		return dst, src, nil, false
	}
	copy(dst[:], frame[0:6])
	copy(src[:], frame[6:12])
	payload = make([]byte, len(frame)-frameHeaderSize)
	copy(payload, frame[frameHeaderSize:])
	return dst, src, payload, true
}
