// Package strip abstracts the addressable LED strip a node drives.
package strip

import (
	"sync"

	"github.com/mbocsi/chainlight/proto"
)

// Strip is a frame buffer that is latched to the LEDs by Show.
type Strip interface {
	Len() int
	Set(i int, c proto.Color)
	Clear()
	Show() error
}

// Buffer is an in-memory Strip. It backs simulations and the live viewer, and
// can wrap a hardware strip so every shown frame is also mirrored in memory.
type Buffer struct {
	mu      sync.RWMutex
	pending []proto.Color
	shown   []proto.Color
	frames  uint64
	out     Strip
}

func NewBuffer(length int) *Buffer {
	return &Buffer{
		pending: make([]proto.Color, length),
		shown:   make([]proto.Color, length),
	}
}

// Mirror returns a Buffer that forwards each shown frame to out.
func Mirror(out Strip) *Buffer {
	b := NewBuffer(out.Len())
	b.out = out
	return b
}

func (b *Buffer) Len() int { return len(b.pending) }

func (b *Buffer) Set(i int, c proto.Color) {
	if i < 0 || i >= len(b.pending) {
		return
	}
	b.mu.Lock()
	b.pending[i] = c
	b.mu.Unlock()
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	for i := range b.pending {
		b.pending[i] = proto.Off
	}
	b.mu.Unlock()
}

func (b *Buffer) Show() error {
	b.mu.Lock()
	copy(b.shown, b.pending)
	b.frames++
	b.mu.Unlock()

	if b.out == nil {
		return nil
	}
	for i, c := range b.Snapshot() {
		b.out.Set(i, c)
	}
	return b.out.Show()
}

// Snapshot copies the last shown frame.
func (b *Buffer) Snapshot() []proto.Color {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]proto.Color, len(b.shown))
	copy(out, b.shown)
	return out
}

// Frames counts calls to Show.
func (b *Buffer) Frames() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.frames
}

// Lit counts pixels in the last shown frame that are not off.
func (b *Buffer) Lit() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, c := range b.shown {
		if c != proto.Off {
			n++
		}
	}
	return n
}
