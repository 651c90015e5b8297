package server

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrPortDown = errors.New("ether port down")

// Ether is an in-memory broadcast medium. Every frame transmitted on a port
// is delivered to every other initialized port on the same channel.
type Ether struct {
	mu        sync.RWMutex
	ports     []*EtherPort
	queueSize int
}

func NewEther() *Ether {
	return &Ether{queueSize: 64}
}

// Attach adds a port. The port implements HardwareInterface.
func (e *Ether) Attach() *EtherPort {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := &EtherPort{ether: e, id: len(e.ports)}
	e.ports = append(e.ports, p)
	return p
}

func (e *Ether) deliver(from *EtherPort, frame []byte) {
	e.mu.RLock()
	ports := append([]*EtherPort(nil), e.ports...)
	e.mu.RUnlock()

	for _, p := range ports {
		if p == from {
			continue
		}
		p.enqueue(from.Channel(), frame)
	}
}

// EtherPort is one radio on an Ether. Received frames are handed to the
// receive callback on the port's own goroutine.
type EtherPort struct {
	ether *Ether
	id    int

	mu       sync.RWMutex
	running  bool
	down     bool
	channel  uint8
	power    uint8
	callback func(data []byte, rssi int)
	queue    chan []byte
	done     chan struct{}
}

func (p *EtherPort) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.queue = make(chan []byte, p.ether.queueSize)
	p.done = make(chan struct{})
	p.running = true
	go p.loop(p.queue, p.done)
	return nil
}

func (p *EtherPort) loop(queue chan []byte, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-queue:
			p.mu.RLock()
			cb := p.callback
			p.mu.RUnlock()
			if cb != nil {
				cb(frame, -40)
			}
		}
	}
}

func (p *EtherPort) enqueue(channel uint8, frame []byte) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running || p.down || p.channel != channel {
		return
	}
	select {
	case p.queue <- append([]byte(nil), frame...):
	default:
		slog.Warn("Ether port queue full, dropping frame", "port", p.id)
	}
}

func (p *EtherPort) Transmit(data []byte) error {
	p.mu.RLock()
	ok := p.running && !p.down
	p.mu.RUnlock()
	if !ok {
		return ErrPortDown
	}
	p.ether.deliver(p, data)
	return nil
}

func (p *EtherPort) SetReceiveCallback(callback func(data []byte, rssi int)) {
	p.mu.Lock()
	p.callback = callback
	p.mu.Unlock()
}

func (p *EtherPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	close(p.done)
	return nil
}

func (p *EtherPort) SetChannel(channel uint8) error {
	p.mu.Lock()
	p.channel = channel
	p.mu.Unlock()
	return nil
}

func (p *EtherPort) Channel() uint8 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channel
}

func (p *EtherPort) SetPower(power uint8) error {
	p.mu.Lock()
	p.power = power
	p.mu.Unlock()
	return nil
}

// SetDown makes the port fail transmits and ignore incoming frames.
func (p *EtherPort) SetDown(down bool) {
	p.mu.Lock()
	p.down = down
	p.mu.Unlock()
}
