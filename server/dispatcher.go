package server

import (
	"log/slog"
	"sync"

	"github.com/mbocsi/chainlight/proto"
)

// Handler receives decoded, rebased commands.
type Handler interface {
	Handle(cmd proto.Command, from Address)
}

type HandlerFunc func(cmd proto.Command, from Address)

func (f HandlerFunc) Handle(cmd proto.Command, from Address) { f(cmd, from) }

// Dispatcher fans a command out to every handler registered for its mode.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[proto.Mode][]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[proto.Mode][]Handler),
	}
}

func (d *Dispatcher) Subscribe(mode proto.Mode, h Handler) {
	slog.Debug("Subscribing handler", "mode", mode)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[mode] = append(d.handlers[mode], h)
}

// Publish returns the number of handlers that received cmd.
func (d *Dispatcher) Publish(cmd proto.Command, from Address) int {
	d.mu.RLock()
	hs := d.handlers[cmd.Mode()]
	d.mu.RUnlock()

	for _, h := range hs {
		h.Handle(cmd, from)
	}
	return len(hs)
}

func (d *Dispatcher) Count(mode proto.Mode) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[mode])
}
