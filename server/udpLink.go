package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// UDPLink carries chain frames in UDP datagrams so nodes can run as host
// processes. Each peer address maps to a host:port endpoint.
type UDPLink struct {
	self   Address
	listen string

	mu           sync.RWMutex
	conn         *net.UDPConn
	endpoints    map[Address]string
	peers        map[Address]*net.UDPAddr
	onReceive    func(from Address, data []byte)
	onSendResult func(to Address, ok bool)
}

func NewUDPLink(self Address, listen string) *UDPLink {
	return &UDPLink{
		self:      self,
		listen:    listen,
		endpoints: make(map[Address]string),
		peers:     make(map[Address]*net.UDPAddr),
	}
}

// SetEndpoint tells the link where addr can be reached.
func (l *UDPLink) SetEndpoint(addr Address, hostport string) {
	l.mu.Lock()
	l.endpoints[addr] = hostport
	l.mu.Unlock()
}

func (l *UDPLink) Start() error {
	laddr, err := net.ResolveUDPAddr("udp", l.listen)
	if err != nil {
		return fmt.Errorf("failed to resolve listen address %s: %w", l.listen, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.listen, err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()

	slog.Info("UDP link listening", "address", l.self, "listen", conn.LocalAddr().String())
	go l.readLoop(conn)
	return nil
}

// LocalAddr returns the bound host:port, or "" before Start.
func (l *UDPLink) LocalAddr() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.conn == nil {
		return ""
	}
	return l.conn.LocalAddr().String()
}

func (l *UDPLink) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (l *UDPLink) RegisterPeer(addr Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.peers[addr]; ok {
		return nil
	}
	endpoint, ok := l.endpoints[addr]
	if !ok {
		return fmt.Errorf("%w: no endpoint for %s", ErrUnknownPeer, addr)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return fmt.Errorf("failed to resolve peer %s at %s: %w", addr, endpoint, err)
	}
	l.peers[addr] = udpAddr
	return nil
}

func (l *UDPLink) RemovePeer(addr Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.peers[addr]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}
	delete(l.peers, addr)
	return nil
}

func (l *UDPLink) OnReceive(fn func(from Address, data []byte)) {
	l.mu.Lock()
	l.onReceive = fn
	l.mu.Unlock()
}

func (l *UDPLink) OnSendResult(fn func(to Address, ok bool)) {
	l.mu.Lock()
	l.onSendResult = fn
	l.mu.Unlock()
}

func (l *UDPLink) Send(addr Address, data []byte) error {
	l.mu.RLock()
	conn := l.conn
	dst, known := l.peers[addr]
	result := l.onSendResult
	l.mu.RUnlock()

	if conn == nil {
		return ErrRadioStopped
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, addr)
	}

	_, err := conn.WriteToUDP(packFrame(addr, l.self, data), dst)
	if result != nil {
		result(addr, err == nil)
	}
	if err != nil {
		return fmt.Errorf("udp write to %s failed: %w", dst, err)
	}
	return nil
}

func (l *UDPLink) readLoop(conn *net.UDPConn) {
	buf := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				slog.Info("UDP link closed", "address", l.self)
				return
			}
			slog.Warn("UDP read failed", "error", err)
			continue
		}
		dst, src, payload, ok := unpackFrame(buf[:n])
		if !ok {
			slog.Warn("UDP datagram too short", "from", from.String(), "size", n)
			continue
		}
		if dst != l.self && dst != Broadcast {
			continue
		}

		l.mu.RLock()
		fn := l.onReceive
		l.mu.RUnlock()
		if fn != nil {
			fn(src, payload)
		}
	}
}
