package server

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mbocsi/chainlight/proto"
)

// OriginIndex places a node before peer 0. It forwards to peer 0 and is
// never itself addressed.
const OriginIndex = -1

// RepairIntervalMs is the minimum gap between next-hop repair attempts.
const RepairIntervalMs = 2000

// TransportStatus is a snapshot of the chain transport.
type TransportStatus struct {
	Index        int      `json:"index"`
	Peers        []string `json:"peers"`
	Next         string   `json:"next,omitempty"`
	NextHealthy  bool     `json:"next_healthy"`
	Received     uint64   `json:"received"`
	Forwarded    uint64   `json:"forwarded"`
	Dropped      uint64   `json:"dropped"`
	SendFailures uint64   `json:"send_failures"`
}

// ChainTransport owns the peer table for a linear chain. It forwards breath
// and flicker frames to index+1 while hop budget remains, and hands a
// rebased copy of every decoded frame to the dispatcher.
type ChainTransport struct {
	link       Link
	clock      Clock
	peers      []Address
	index      int
	dispatcher *Dispatcher

	mu          sync.Mutex
	registered  map[Address]bool
	nextHealthy bool
	lastRepair  uint32

	received     uint64
	forwarded    uint64
	dropped      uint64
	sendFailures uint64
}

func NewChainTransport(link Link, clock Clock, peers []Address, index int) *ChainTransport {
	return &ChainTransport{
		link:       link,
		clock:      clock,
		peers:      append([]Address(nil), peers...),
		index:      index,
		dispatcher: NewDispatcher(),
		registered: make(map[Address]bool),
	}
}

// Start hooks the link callbacks and registers the next peer.
func (t *ChainTransport) Start() error {
	t.link.OnReceive(t.onReceive)
	t.link.OnSendResult(t.onSendResult)

	t.mu.Lock()
	t.lastRepair = t.clock.NowMs()
	t.mu.Unlock()

	if !t.HasNext() {
		slog.Info("Chain transport started as last node", "index", t.index, "peers", len(t.peers))
		return nil
	}
	next := t.peers[t.NextIndex()]
	err := t.ensurePeer(next)

	t.mu.Lock()
	t.nextHealthy = err == nil
	t.mu.Unlock()

	if err != nil {
		slog.Warn("Failed to register next peer, will retry", "next", next, "error", err)
	} else {
		slog.Info("Chain transport started", "index", t.index, "next", next, "peers", len(t.peers))
	}
	return nil
}

// Handle registers h for commands of the given mode.
func (t *ChainTransport) Handle(mode proto.Mode, h Handler) {
	t.dispatcher.Subscribe(mode, h)
}

func (t *ChainTransport) Index() int     { return t.index }
func (t *ChainTransport) NextIndex() int { return t.index + 1 }

func (t *ChainTransport) HasNext() bool {
	return t.NextIndex() >= 0 && t.NextIndex() < len(t.peers)
}

func (t *ChainTransport) NextHealthy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextHealthy
}

func (t *ChainTransport) ensurePeer(addr Address) error {
	t.mu.Lock()
	ok := t.registered[addr]
	t.mu.Unlock()
	if ok {
		return nil
	}
	if err := t.link.RegisterPeer(addr); err != nil {
		return err
	}
	t.mu.Lock()
	t.registered[addr] = true
	t.mu.Unlock()
	return nil
}

// SendToIndex registers peer i if needed and transmits once. It never retries.
func (t *ChainTransport) SendToIndex(i int, data []byte) bool {
	if i < 0 || i >= len(t.peers) {
		slog.Warn("Send to index outside peer table", "index", i, "peers", len(t.peers))
		return false
	}
	addr := t.peers[i]

	if err := t.ensurePeer(addr); err != nil {
		slog.Warn("Failed to register peer", "peer", addr, "index", i, "error", err)
		t.sendFailed(i)
		return false
	}
	if err := t.link.Send(addr, data); err != nil {
		slog.Warn("Send failed", "peer", addr, "index", i, "size", len(data), "error", err)
		t.sendFailed(i)
		return false
	}
	return true
}

// SendToNext sends to index+1.
func (t *ChainTransport) SendToNext(data []byte) bool {
	if !t.HasNext() {
		return false
	}
	return t.SendToIndex(t.NextIndex(), data)
}

func (t *ChainTransport) sendFailed(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendFailures++
	if i == t.NextIndex() {
		t.nextHealthy = false
	}
}

// Tick re-registers an unhealthy next peer, at most once per RepairIntervalMs.
// Call it only from the polling loop.
func (t *ChainTransport) Tick(now uint32) {
	if !t.HasNext() {
		return
	}
	t.mu.Lock()
	if t.nextHealthy || now-t.lastRepair < RepairIntervalMs {
		t.mu.Unlock()
		return
	}
	t.lastRepair = now
	next := t.peers[t.NextIndex()]
	delete(t.registered, next)
	t.mu.Unlock()

	if err := t.link.RemovePeer(next); err != nil {
		slog.Debug("Remove peer during repair", "peer", next, "error", err)
	}
	err := t.ensurePeer(next)

	t.mu.Lock()
	t.nextHealthy = err == nil
	t.mu.Unlock()

	if err != nil {
		slog.Warn("Next peer repair failed", "peer", next, "error", err)
		return
	}
	slog.Info("Next peer re-registered", "peer", next)
}

func (t *ChainTransport) onSendResult(to Address, ok bool) {
	if ok {
		return
	}
	slog.Warn("Delivery failed", "peer", to)
	if !t.HasNext() || to != t.peers[t.NextIndex()] {
		return
	}
	t.mu.Lock()
	t.nextHealthy = false
	t.mu.Unlock()
}

func (t *ChainTransport) onReceive(from Address, data []byte) {
	cmd, err := proto.Decode(data)
	if err != nil {
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		slog.Warn("Dropping frame", "from", from, "size", len(data), "error", err)
		return
	}
	t.mu.Lock()
	t.received++
	t.mu.Unlock()
	slog.Debug("Frame received", "from", from, "mode", cmd.Mode(), "seq", cmd.Sequence(), "ttl", cmd.HopBudget())

	switch cmd.Mode() {
	case proto.ModeBreath, proto.ModeFlicker:
		t.forward(cmd, data)
	}

	local := proto.RebaseCommand(cmd, t.clock.NowMs())
	if n := t.dispatcher.Publish(local, from); n == 0 {
		slog.Debug("No handler for command", "mode", cmd.Mode(), "seq", cmd.Sequence())
	}
}

// forward passes the received bytes on unchanged apart from one less hop.
func (t *ChainTransport) forward(cmd proto.Command, data []byte) {
	if !t.HasNext() || cmd.HopBudget() == 0 {
		return
	}
	fwd, err := proto.ForwardCopy(data)
	if err != nil {
		slog.Warn("Frame not forwarded", "mode", cmd.Mode(), "seq", cmd.Sequence(), "error", err)
		return
	}
	if !t.SendToNext(fwd) {
		return
	}
	t.mu.Lock()
	t.forwarded++
	t.mu.Unlock()
	slog.Debug("Frame forwarded", "mode", cmd.Mode(), "seq", cmd.Sequence(), "ttl", cmd.HopBudget()-1)
}

func (t *ChainTransport) Status() TransportStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := TransportStatus{
		Index:        t.index,
		Peers:        make([]string, len(t.peers)),
		NextHealthy:  t.nextHealthy,
		Received:     t.received,
		Forwarded:    t.forwarded,
		Dropped:      t.dropped,
		SendFailures: t.sendFailures,
	}
	for i, p := range t.peers {
		st.Peers[i] = p.String()
	}
	if t.HasNext() {
		st.Next = t.peers[t.NextIndex()].String()
	}
	return st
}

func generateClientId(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
