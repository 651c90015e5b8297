package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbocsi/chainlight/proto"
	"github.com/mbocsi/chainlight/server"
)

// Origination defaults.
const (
	DefaultTTL      uint8 = 40
	DefaultTestTTL  uint8 = 60
	BreathOffsetMs        = 500
	FlickerOffsetMs       = 300
	TestOffsetMs          = 500

	// Re-broadcast copies start this far ahead of the send.
	BreathRebroadcastLeadMs  = 200
	FlickerRebroadcastLeadMs = 80
)

// Sender is the slice of the chain transport an originator needs.
type Sender interface {
	HasNext() bool
	SendToNext(data []byte) bool
}

type OriginatorOptions struct {
	Rebroadcast       bool
	BreathIntervalMs  uint32
	FlickerIntervalMs uint32
}

func DefaultOriginatorOptions() OriginatorOptions {
	return OriginatorOptions{
		Rebroadcast:       true,
		BreathIntervalMs:  2000,
		FlickerIntervalMs: 1000,
	}
}

// Originator stamps commands with a fresh sequence and a start time on its
// own clock, and sends them to the next node. With re-broadcast on, the last
// breath and flicker are re-sent periodically under the same sequence so
// late joiners pick them up.
type Originator struct {
	sender Sender
	clock  server.Clock
	opts   OriginatorOptions

	mu            sync.Mutex
	seq           uint32
	lastBreath    *proto.Breath
	lastFlicker   *proto.Flicker
	breathSentAt  uint32
	flickerSentAt uint32
}

func NewOriginator(sender Sender, clock server.Clock, opts OriginatorOptions) *Originator {
	return &Originator{sender: sender, clock: clock, opts: opts}
}

func (o *Originator) nextSeq() uint32 {
	o.seq++
	return o.seq
}

func (o *Originator) send(cmd proto.Command) (*OriginInfo, error) {
	info := &OriginInfo{
		ID:    "origin-" + uuid.NewString(),
		Mode:  cmd.Mode().String(),
		Seq:   cmd.Sequence(),
		Start: cmd.StartTime(),
		TTL:   cmd.HopBudget(),
	}
	if !o.sender.SendToNext(cmd.Encode()) {
		slog.Warn("Originated command not handed off", "id", info.ID, "mode", info.Mode, "seq", info.Seq)
		return info, ServiceError{Code: ErrCodeSendFailed, Message: "transport rejected " + info.Mode + " command"}
	}
	slog.Info("Command originated", "id", info.ID, "mode", info.Mode, "seq", info.Seq, "start", info.Start, "ttl", info.TTL)
	return info, nil
}

func (o *Originator) StartBreath(req BreathRequest) (*OriginInfo, error) {
	if err := validateBreath(req); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.NowMs()
	b := proto.Breath{
		Version: proto.Version,
		Seq:     o.nextSeq(),
		Color:   proto.Color{R: req.R, G: req.G, B: req.B},
		Min:     float32(req.Min),
		Max:     float32(req.Max),
		RiseMs:  req.RiseMs,
		FallMs:  req.FallMs,
		Cycles:  req.Cycles,
		StartMs: now + orDefault(req.OffsetMs, BreathOffsetMs),
		TTL:     orDefault(req.TTL, DefaultTTL),
	}.Normalize()
	if req.Interrupt {
		b.Flags |= proto.FlagInterrupt
	}
	o.lastBreath = &b
	o.breathSentAt = now
	return o.send(b)
}

func (o *Originator) StartFlicker(req FlickerRequest) (*OriginInfo, error) {
	if err := validateFlicker(req); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.NowMs()
	f := proto.Flicker{
		TTL:     orDefault(req.TTL, DefaultTTL),
		Seq:     o.nextSeq(),
		StartMs: now + orDefault(req.OffsetMs, FlickerOffsetMs),
		OnMs:    req.OnMs,
		OffMs:   req.OffMs,
		Cycles:  req.Cycles,
		Invert:  req.Invert,
	}.Normalize()
	if req.Interrupt {
		f.Flags |= proto.FlagInterrupt
	}
	o.lastFlicker = &f
	o.flickerSentAt = now
	return o.send(f)
}

func (o *Originator) StartTestChain(req TestRequest) (*OriginInfo, error) {
	if err := validateTest(req); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	t := proto.Test{
		Flags:   proto.FlagInterrupt,
		Version: proto.Version,
		Seq:     o.nextSeq(),
		Color:   proto.Color{R: req.R, G: req.G, B: req.B},
		StepMs:  req.StepMs,
		TTL:     orDefault(req.TTL, DefaultTestTTL),
		StartMs: o.clock.NowMs() + orDefault(req.OffsetMs, TestOffsetMs),
	}
	return o.send(t)
}

// Tick re-sends the last breath and flicker when their interval has passed.
func (o *Originator) Tick(now uint32) {
	if !o.opts.Rebroadcast {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.lastBreath != nil && now-o.breathSentAt >= o.opts.BreathIntervalMs {
		b := *o.lastBreath
		b.StartMs = now + BreathRebroadcastLeadMs
		o.sender.SendToNext(b.Encode())
		o.breathSentAt = now
		slog.Debug("Breath re-broadcast", "seq", b.Seq)
	}
	if o.lastFlicker != nil && now-o.flickerSentAt >= o.opts.FlickerIntervalMs {
		f := *o.lastFlicker
		f.StartMs = now + FlickerRebroadcastLeadMs
		o.sender.SendToNext(f.Encode())
		o.flickerSentAt = now
		slog.Debug("Flicker re-broadcast", "seq", f.Seq)
	}
}

// Start runs the re-broadcast loop until ctx is done.
func (o *Originator) Start(ctx context.Context) error {
	if !o.opts.Rebroadcast {
		return nil
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.Tick(o.clock.NowMs())
		}
	}
}

func ptr[T any](v T) *T { return &v }

var presets = map[string]func(o *Originator) (*OriginInfo, error){
	"red": func(o *Originator) (*OriginInfo, error) {
		return o.StartBreath(BreathRequest{R: 255, Min: 0.05, Max: 0.6, RiseMs: 900, FallMs: 1100, Interrupt: true})
	},
	"green": func(o *Originator) (*OriginInfo, error) {
		return o.StartBreath(BreathRequest{G: 255, Min: 0.05, Max: 0.6, RiseMs: 900, FallMs: 1100, Interrupt: true})
	},
	"blue": func(o *Originator) (*OriginInfo, error) {
		return o.StartBreath(BreathRequest{B: 255, Min: 0.05, Max: 0.7, RiseMs: 1000, FallMs: 1200, Interrupt: true})
	},
	// clear ends both kinds: a one-cycle flicker and a one-cycle black breath.
	"clear": func(o *Originator) (*OriginInfo, error) {
		if _, err := o.StartFlicker(FlickerRequest{OnMs: 1, OffMs: 0, Cycles: 1, Interrupt: true}); err != nil {
			return nil, err
		}
		return o.StartBreath(BreathRequest{RiseMs: 1, FallMs: 1, Cycles: 1, Interrupt: true})
	},
	"flicker": func(o *Originator) (*OriginInfo, error) {
		return o.StartFlicker(FlickerRequest{OnMs: 20, OffMs: 20, Cycles: 40, Interrupt: true})
	},
	"test": func(o *Originator) (*OriginInfo, error) {
		return o.StartTestChain(TestRequest{StepMs: 50, R: 255, TTL: ptr(DefaultTestTTL)})
	},
}

func (o *Originator) ApplyPreset(name string) (*OriginInfo, error) {
	fn, ok := presets[name]
	if !ok {
		return nil, ServiceError{Code: ErrCodeNotFound, Message: "Preset not found: " + name}
	}
	return fn(o)
}

func (o *Originator) ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
