package server

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/mbocsi/chainlight/proto"
)

type manualClock struct {
	mu  sync.Mutex
	now uint32
}

func newManualClock(now uint32) *manualClock { return &manualClock{now: now} }

func (c *manualClock) NowMs() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(now uint32) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *manualClock) Advance(ms uint32) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
	return c.now
}

type sentFrame struct {
	to   Address
	data []byte
}

type mockLink struct {
	mu            sync.Mutex
	registered    map[Address]bool
	registerErr   error
	sendErr       error
	sent          []sentFrame
	registerCalls int
	removeCalls   int
	rx            func(from Address, data []byte)
	result        func(to Address, ok bool)
}

func newMockLink() *mockLink {
	return &mockLink{registered: make(map[Address]bool)}
}

func (m *mockLink) RegisterPeer(addr Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerCalls++
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered[addr] = true
	return nil
}

func (m *mockLink) RemovePeer(addr Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls++
	delete(m.registered, addr)
	return nil
}

func (m *mockLink) Send(addr Address, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, sentFrame{to: addr, data: data})
	return nil
}

func (m *mockLink) OnReceive(fn func(from Address, data []byte)) { m.rx = fn }
func (m *mockLink) OnSendResult(fn func(to Address, ok bool))    { m.result = fn }

func (m *mockLink) inject(from Address, data []byte) { m.rx(from, data) }

func (m *mockLink) frames() []sentFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentFrame(nil), m.sent...)
}

func testPeers(n int) []Address {
	peers := make([]Address, n)
	for i := range peers {
		peers[i] = Address{0x02, 0, 0, 0, 0, byte(i + 1)}
	}
	return peers
}

type recorded struct {
	mu   sync.Mutex
	cmds []proto.Command
}

func (r *recorded) Handle(cmd proto.Command, from Address) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
}

func (r *recorded) all() []proto.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proto.Command(nil), r.cmds...)
}

func newTestTransport(t *testing.T, peers, index int, now uint32) (*ChainTransport, *mockLink, *manualClock) {
	t.Helper()
	link := newMockLink()
	clock := newManualClock(now)
	tr := NewChainTransport(link, clock, testPeers(peers), index)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return tr, link, clock
}

func TestTransportForwardsOriginalFrame(t *testing.T) {
	tr, link, _ := newTestTransport(t, 3, 0, 1000)
	rec := &recorded{}
	tr.Handle(proto.ModeBreath, rec)

	link.inject(testPeers(3)[2], proto.Breath{Seq: 1, TTL: 3, StartMs: 5000}.Encode())

	sent := link.frames()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 forwarded frame, got %d", len(sent))
	}
	if sent[0].to != testPeers(3)[1] {
		t.Errorf("Expected forward to index 1, got %s", sent[0].to)
	}
	fwd, err := proto.Decode(sent[0].data)
	if err != nil {
		t.Fatalf("Forwarded frame did not decode: %v", err)
	}
	if fwd.HopBudget() != 2 {
		t.Errorf("Expected ttl 2, got %d", fwd.HopBudget())
	}
	if fwd.StartTime() != 5000 {
		t.Errorf("Expected sender start 5000 forwarded, got %d", fwd.StartTime())
	}

	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 dispatched command, got %d", len(got))
	}
	if got[0].StartTime() != 1050 {
		t.Errorf("Expected rebased start 1050, got %d", got[0].StartTime())
	}
	if got[0].HopBudget() != 3 {
		t.Errorf("Expected local copy to keep ttl 3, got %d", got[0].HopBudget())
	}
}

func TestTransportForwardsBytesUnchanged(t *testing.T) {
	flicker := proto.Flicker{TTL: 4, Seq: 7, StartMs: 4000, OnMs: 10, OffMs: 10, Cycles: 10}.Encode()
	flicker[3] = 0x7F
	flicker[18] = 0x02
	breath := proto.Breath{TTL: 40, Seq: 8, Color: proto.Color{B: 255}, Min: 0.05, Max: 0.7, RiseMs: 1000, FallMs: 1200}.Encode()

	tests := []struct {
		name   string
		frame  []byte
		offset int
	}{
		{"flicker", flicker, 1},
		{"breath", breath, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, link, _ := newTestTransport(t, 3, 0, 1000)
			tr.Handle(proto.Mode(tt.frame[0]), &recorded{})

			link.inject(Address{}, append(append([]byte(nil), tt.frame...), 0xEE))

			sent := link.frames()
			if len(sent) != 1 {
				t.Fatalf("Expected 1 forwarded frame, got %d", len(sent))
			}
			want := append([]byte(nil), tt.frame...)
			want[tt.offset]--
			if !bytes.Equal(sent[0].data, want) {
				t.Errorf("Expected %x, got %x", want, sent[0].data)
			}
		})
	}
}

func TestTransportForwardingStops(t *testing.T) {
	tests := []struct {
		name  string
		peers int
		index int
		frame []byte
	}{
		{"ttl zero", 3, 0, proto.Flicker{Seq: 1, TTL: 0}.Encode()},
		{"last node", 3, 2, proto.Breath{Seq: 1, TTL: 9}.Encode()},
		{"test frames wait for the sequencer", 3, 0, proto.Test{Seq: 1, TTL: 9}.Encode()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, link, _ := newTestTransport(t, tt.peers, tt.index, 0)
			rec := &recorded{}
			for _, m := range []proto.Mode{proto.ModeBreath, proto.ModeFlicker, proto.ModeTest} {
				tr.Handle(m, rec)
			}
			link.inject(Address{}, tt.frame)

			if n := len(link.frames()); n != 0 {
				t.Errorf("Expected no forward, got %d", n)
			}
			if n := len(rec.all()); n != 1 {
				t.Errorf("Expected command still dispatched locally, got %d", n)
			}
		})
	}
}

func TestTransportDropsBadFrames(t *testing.T) {
	tr, link, _ := newTestTransport(t, 2, 0, 0)
	rec := &recorded{}
	tr.Handle(proto.ModeBreath, rec)

	link.inject(Address{}, proto.Breath{TTL: 5}.Encode()[:20])
	link.inject(Address{}, []byte{0x7F, 1, 2, 3})
	link.inject(Address{}, nil)

	if len(rec.all()) != 0 {
		t.Error("Expected bad frames not dispatched")
	}
	if len(link.frames()) != 0 {
		t.Error("Expected bad frames not forwarded")
	}
	if st := tr.Status(); st.Dropped != 3 || st.Received != 0 {
		t.Errorf("Expected 3 dropped 0 received, got %d %d", st.Dropped, st.Received)
	}
}

func TestTransportNoHandlerIsFine(t *testing.T) {
	_, link, _ := newTestTransport(t, 2, 0, 0)
	link.inject(Address{}, proto.Breath{Seq: 1, TTL: 1}.Encode())
	if len(link.frames()) != 1 {
		t.Error("Expected forward even without a local handler")
	}
}

func TestTransportMultipleHandlers(t *testing.T) {
	tr, link, _ := newTestTransport(t, 1, 0, 0)
	a, b := &recorded{}, &recorded{}
	tr.Handle(proto.ModeFlicker, a)
	tr.Handle(proto.ModeFlicker, b)
	link.inject(Address{}, proto.Flicker{Seq: 1}.Encode())
	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Errorf("Expected both handlers called, got %d %d", len(a.all()), len(b.all()))
	}
}

func TestSendToIndex(t *testing.T) {
	tr, link, _ := newTestTransport(t, 3, 2, 0)

	if tr.SendToIndex(3, []byte{1}) || tr.SendToIndex(-1, []byte{1}) {
		t.Error("Expected out-of-range sends to fail")
	}
	if !tr.SendToIndex(0, []byte{1}) || !tr.SendToIndex(0, []byte{2}) {
		t.Fatal("Expected sends to index 0 to succeed")
	}
	if link.registerCalls != 1 {
		t.Errorf("Expected one registration for repeated sends, got %d", link.registerCalls)
	}

	link.sendErr = errors.New("radio busy")
	if tr.SendToIndex(0, []byte{3}) {
		t.Error("Expected failed send to return false")
	}
	if len(link.frames()) != 2 {
		t.Errorf("Expected no retry, got %d frames", len(link.frames()))
	}
}

func TestOriginIndexTargetsFirstPeer(t *testing.T) {
	tr, link, _ := newTestTransport(t, 2, OriginIndex, 0)
	if !tr.HasNext() || tr.NextIndex() != 0 {
		t.Fatalf("Expected origin to forward to index 0, got next %d", tr.NextIndex())
	}
	if !tr.SendToNext([]byte{1}) {
		t.Fatal("Expected send to succeed")
	}
	if link.frames()[0].to != testPeers(2)[0] {
		t.Errorf("Expected send to peer 0, got %s", link.frames()[0].to)
	}
}

func TestHealthRepair(t *testing.T) {
	tr, link, _ := newTestTransport(t, 3, 0, 1000)
	if !tr.NextHealthy() {
		t.Fatal("Expected healthy next peer after start")
	}

	link.sendErr = errors.New("no ack")
	link.inject(Address{}, proto.Breath{Seq: 1, TTL: 2}.Encode())
	if tr.NextHealthy() {
		t.Fatal("Expected forward failure to mark next unhealthy")
	}
	link.sendErr = nil

	tr.Tick(2999)
	if link.removeCalls != 0 {
		t.Errorf("Expected no repair before interval, got %d removes", link.removeCalls)
	}
	tr.Tick(3000)
	if link.removeCalls != 1 {
		t.Errorf("Expected one repair, got %d removes", link.removeCalls)
	}
	if !tr.NextHealthy() {
		t.Error("Expected next healthy after repair")
	}
	tr.Tick(9000)
	if link.removeCalls != 1 {
		t.Errorf("Expected no repair while healthy, got %d removes", link.removeCalls)
	}
}

func TestHealthRepairRetriesRegistration(t *testing.T) {
	link := newMockLink()
	link.registerErr = errors.New("peer table busy")
	tr := NewChainTransport(link, newManualClock(0), testPeers(2), 0)
	tr.Start()
	if tr.NextHealthy() {
		t.Fatal("Expected unhealthy after failed registration")
	}

	tr.Tick(2000)
	if tr.NextHealthy() {
		t.Error("Expected still unhealthy while registration fails")
	}
	link.registerErr = nil
	tr.Tick(3000)
	if tr.NextHealthy() {
		t.Error("Expected repair to wait for the interval")
	}
	tr.Tick(4000)
	if !tr.NextHealthy() {
		t.Error("Expected healthy once registration succeeds")
	}
}

func TestSendResultMarksNextUnhealthy(t *testing.T) {
	tr, link, _ := newTestTransport(t, 3, 0, 0)
	link.result(testPeers(3)[2], false)
	if !tr.NextHealthy() {
		t.Error("Expected failures to other peers to be ignored")
	}
	link.result(testPeers(3)[1], false)
	if tr.NextHealthy() {
		t.Error("Expected failed delivery to next peer to mark it unhealthy")
	}
}
