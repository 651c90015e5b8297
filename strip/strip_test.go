package strip

import (
	"testing"

	"github.com/mbocsi/chainlight/proto"
)

type recordingStrip struct {
	pixels []proto.Color
	shows  int
}

func (r *recordingStrip) Len() int                 { return len(r.pixels) }
func (r *recordingStrip) Set(i int, c proto.Color) { r.pixels[i] = c }
func (r *recordingStrip) Clear()                   { r.pixels = make([]proto.Color, len(r.pixels)) }
func (r *recordingStrip) Show() error              { r.shows++; return nil }

func TestBufferShowLatchesFrame(t *testing.T) {
	b := NewBuffer(3)
	b.Set(1, proto.Color{R: 10})

	if b.Lit() != 0 {
		t.Errorf("Expected nothing lit before Show, got %d", b.Lit())
	}
	if err := b.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	snap := b.Snapshot()
	if snap[1] != (proto.Color{R: 10}) {
		t.Errorf("Expected pixel 1 lit, got %v", snap[1])
	}
	if b.Frames() != 1 {
		t.Errorf("Expected 1 frame, got %d", b.Frames())
	}

	b.Clear()
	b.Show()
	if b.Lit() != 0 {
		t.Errorf("Expected cleared strip, got %d lit", b.Lit())
	}
}

func TestBufferIgnoresOutOfRange(t *testing.T) {
	b := NewBuffer(2)
	b.Set(-1, proto.Color{G: 1})
	b.Set(2, proto.Color{G: 1})
	b.Show()
	if b.Lit() != 0 {
		t.Errorf("Expected no pixels lit, got %d", b.Lit())
	}
}

func TestMirrorForwardsFrames(t *testing.T) {
	hw := &recordingStrip{pixels: make([]proto.Color, 4)}
	b := Mirror(hw)
	if b.Len() != 4 {
		t.Fatalf("Expected length 4, got %d", b.Len())
	}
	b.Set(3, proto.Color{B: 200})
	if err := b.Show(); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if hw.shows != 1 {
		t.Errorf("Expected 1 hardware show, got %d", hw.shows)
	}
	if hw.pixels[3] != (proto.Color{B: 200}) {
		t.Errorf("Expected hardware pixel mirrored, got %v", hw.pixels[3])
	}
}
