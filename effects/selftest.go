package effects

import (
	"log/slog"

	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/strip"
)

// Forwarder hands a completed test to the next node in the chain.
type Forwarder interface {
	HasNext() bool
	SendToNext(data []byte) bool
}

const (
	ForwardLeadMs   = 50
	ForwardAttempts = 3
	ForwardRetryMs  = 100
)

// SelfTestState is a point-in-time view for status reporting.
type SelfTestState struct {
	Running    bool   `json:"running"`
	Lit        int    `json:"lit"`
	Total      int    `json:"total"`
	Seq        uint32 `json:"seq"`
	Forwarding bool   `json:"forwarding"`
}

// Sequencer lights LEDs one step at a time, cumulatively, and forwards the
// test with one less hop once the last LED is lit. Only the render loop may
// call its methods.
type Sequencer struct {
	strip strip.Strip
	fwd   Forwarder

	cmd      proto.Test
	running  bool
	index    int
	deadline uint32

	pending      []byte
	attemptsLeft int
	retryAt      uint32
}

func NewSequencer(s strip.Strip, fwd Forwarder) *Sequencer {
	return &Sequencer{strip: s, fwd: fwd}
}

// Start clears the strip and arms the first step at the command's start.
func (q *Sequencer) Start(cmd proto.Test) {
	q.cmd = cmd
	q.running = true
	q.index = 0
	q.deadline = cmd.StartMs
	q.pending = nil

	q.strip.Clear()
	if err := q.strip.Show(); err != nil {
		slog.Warn("Failed to clear strip for self-test", "error", err)
	}
	slog.Info("Self-test started", "seq", cmd.Seq, "step_ms", cmd.StepMs, "ttl", cmd.TTL, "leds", q.strip.Len())
}

func (q *Sequencer) Running() bool { return q.running }

// Tick advances at most one LED. It returns true on the tick the final LED
// is lit.
func (q *Sequencer) Tick(now uint32) bool {
	q.retry(now)
	if !q.running {
		return false
	}

	n := q.strip.Len()
	if q.index < n && !before(now, q.deadline) {
		q.strip.Set(q.index, q.cmd.Color)
		if err := q.strip.Show(); err != nil {
			slog.Warn("Failed to show self-test step", "index", q.index, "error", err)
		}
		q.index++
		q.deadline += uint32(q.cmd.StepMs)
	}
	if q.index < n {
		return false
	}

	q.running = false
	q.complete(now)
	return true
}

func (q *Sequencer) complete(now uint32) {
	if q.cmd.TTL == 0 || !q.fwd.HasNext() {
		slog.Info("Self-test chain terminated", "seq", q.cmd.Seq, "ttl", q.cmd.TTL)
		return
	}
	next := q.cmd
	next.TTL--
	next.StartMs = now + ForwardLeadMs
	q.pending = next.Encode()
	q.attemptsLeft = ForwardAttempts
	q.retryAt = now
	q.retry(now)
}

func (q *Sequencer) retry(now uint32) {
	if q.pending == nil || before(now, q.retryAt) {
		return
	}
	q.attemptsLeft--
	if q.fwd.SendToNext(q.pending) {
		slog.Info("Self-test forwarded", "seq", q.cmd.Seq, "ttl", q.cmd.TTL-1)
		q.pending = nil
		return
	}
	if q.attemptsLeft <= 0 {
		slog.Warn("Giving up self-test forward", "seq", q.cmd.Seq, "attempts", ForwardAttempts)
		q.pending = nil
		return
	}
	q.retryAt = now + ForwardRetryMs
}

func (q *Sequencer) State() SelfTestState {
	return SelfTestState{
		Running:    q.running,
		Lit:        q.index,
		Total:      q.strip.Len(),
		Seq:        q.cmd.Seq,
		Forwarding: q.pending != nil,
	}
}
