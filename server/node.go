package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mbocsi/chainlight/effects"
	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/strip"
)

type NodeOptions struct {
	Link     Link
	Clock    Clock       // defaults to a SystemClock
	Strip    strip.Strip // defaults to an empty Buffer
	Peers    []Address
	Index    int
	Renderer effects.RendererConfig
	Tick     time.Duration // defaults to 5ms
}

// NodeStatus is a snapshot of one node, safe to read from any goroutine.
type NodeStatus struct {
	ID        string                 `json:"id"`
	Index     int                    `json:"index"`
	Now       uint32                 `json:"now_ms"`
	Transport TransportStatus        `json:"transport"`
	Breath    effects.AdmissionState `json:"breath"`
	Flicker   effects.AdmissionState `json:"flicker"`
	Test      effects.AdmissionState `json:"test"`
	SelfTest  effects.SelfTestState  `json:"self_test"`
	Color     proto.Color            `json:"color"`
	LEDs      int                    `json:"leds"`
}

// Node wires one chain position: transport, per-kind admission, renderer,
// self-test sequencer and strip. Frames are admitted on the link's receive
// goroutine; everything else happens in Step on the render loop.
type Node struct {
	id        string
	transport *ChainTransport
	clock     Clock
	strip     strip.Strip
	renderer  *effects.Renderer
	tick      time.Duration

	breath    *effects.Admission[proto.Breath]
	flicker   *effects.Admission[proto.Flicker]
	test      *effects.Admission[proto.Test]
	sequencer *effects.Sequencer

	// render loop only
	lastColor proto.Color
	drawn     bool

	statusMu sync.RWMutex
	selfTest effects.SelfTestState
	color    proto.Color
	now      uint32
}

func NewNode(opts NodeOptions) *Node {
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	if opts.Strip == nil {
		opts.Strip = strip.NewBuffer(0)
	}
	if opts.Tick <= 0 {
		opts.Tick = 5 * time.Millisecond
	}
	if opts.Renderer == (effects.RendererConfig{}) {
		opts.Renderer = effects.DefaultRendererConfig()
	}

	transport := NewChainTransport(opts.Link, opts.Clock, opts.Peers, opts.Index)
	n := &Node{
		id:        generateClientId("node"),
		transport: transport,
		clock:     opts.Clock,
		strip:     opts.Strip,
		renderer:  effects.NewRenderer(opts.Renderer),
		tick:      opts.Tick,
		breath:    effects.NewAdmission[proto.Breath](),
		flicker:   effects.NewAdmission[proto.Flicker](),
		test:      effects.NewAdmission[proto.Test](),
	}
	n.sequencer = effects.NewSequencer(opts.Strip, transport)

	transport.Handle(proto.ModeBreath, admitHandler(n.breath))
	transport.Handle(proto.ModeFlicker, admitHandler(n.flicker))
	transport.Handle(proto.ModeTest, admitHandler(n.test))
	return n
}

func admitHandler[T proto.Command](a *effects.Admission[T]) HandlerFunc {
	return func(cmd proto.Command, from Address) {
		c, ok := cmd.(T)
		if !ok {
			return
		}
		v := a.Admit(c)
		slog.Debug("Admission", "mode", c.Mode(), "seq", c.Sequence(), "interrupt", c.Interrupt(), "verdict", v, "from", from)
	}
}

func (n *Node) ID() string                  { return n.id }
func (n *Node) Index() int                  { return n.transport.Index() }
func (n *Node) Transport() *ChainTransport  { return n.transport }
func (n *Node) Clock() Clock                { return n.clock }
func (n *Node) Strip() strip.Strip          { return n.strip }
func (n *Node) Renderer() *effects.Renderer { return n.renderer }

func (n *Node) Start() error {
	if err := n.transport.Start(); err != nil {
		return fmt.Errorf("failed to start chain transport: %w", err)
	}
	slog.Info("Node started", "id", n.id, "index", n.Index(), "leds", n.strip.Len(), "tick", n.tick)
	return nil
}

// Run polls Step until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Node render loop stopped", "index", n.Index())
			return nil
		case <-ticker.C:
			n.Step(n.clock.NowMs())
		}
	}
}

// Step runs one render-loop iteration at now.
func (n *Node) Step(now uint32) {
	n.transport.Tick(now)

	if t, ok := n.test.Commit(); ok {
		n.breath.Deactivate()
		n.flicker.Deactivate()
		n.sequencer.Start(t)
		n.drawn = false
	}
	if n.sequencer.Tick(now) {
		n.test.Deactivate()
	}
	if n.sequencer.Running() {
		n.publish(now)
		return
	}

	if b, ok := n.breath.Commit(); ok {
		slog.Info("Breath committed", "seq", b.Seq, "start", b.StartMs, "color", b.Color, "cycles", b.Cycles)
	}
	if f, ok := n.flicker.Commit(); ok {
		slog.Info("Flicker committed", "seq", f.Seq, "start", f.StartMs, "on", f.OnMs, "off", f.OffMs, "cycles", f.Cycles)
	}

	var bp *proto.Breath
	if b, ok := n.breath.Current(); ok {
		if effects.BreathFinished(now, b) {
			n.breath.Deactivate()
			slog.Info("Breath finished", "seq", b.Seq)
		} else {
			bp = &b
		}
	}
	var fp *proto.Flicker
	if f, ok := n.flicker.Current(); ok {
		if effects.FlickerFinished(now, f) {
			n.flicker.Deactivate()
			slog.Info("Flicker finished", "seq", f.Seq)
		} else {
			fp = &f
		}
	}

	if bp == nil && fp == nil {
		if n.drawn {
			n.draw(proto.Off)
			n.drawn = false
		}
		n.publish(now)
		return
	}

	c := n.renderer.Color(now, bp, fp)
	if !n.drawn || c != n.lastColor {
		n.draw(c)
		n.drawn = true
	}
	n.publish(now)
}

func (n *Node) draw(c proto.Color) {
	n.lastColor = c
	if err := n.renderer.Draw(n.strip, c); err != nil {
		slog.Warn("Failed to show strip", "index", n.Index(), "error", err)
	}
}

func (n *Node) publish(now uint32) {
	st := n.sequencer.State()
	n.statusMu.Lock()
	n.selfTest = st
	n.color = n.lastColor
	if !n.drawn {
		n.color = proto.Off
	}
	n.now = now
	n.statusMu.Unlock()
}

func (n *Node) Status() NodeStatus {
	n.statusMu.RLock()
	st := NodeStatus{
		ID:       n.id,
		Index:    n.Index(),
		Now:      n.now,
		SelfTest: n.selfTest,
		Color:    n.color,
		LEDs:     n.strip.Len(),
	}
	n.statusMu.RUnlock()

	st.Transport = n.transport.Status()
	st.Breath = n.breath.State()
	st.Flicker = n.flicker.State()
	st.Test = n.test.State()
	return st
}

// Frame returns the last shown strip frame when the strip keeps one.
func (n *Node) Frame() []proto.Color {
	if s, ok := n.strip.(interface{ Snapshot() []proto.Color }); ok {
		return s.Snapshot()
	}
	return nil
}
