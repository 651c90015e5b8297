package server

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_chainlight._tcp"

// Advertise announces a node's HTTP control API over mDNS. Shut the returned
// server down on exit.
func Advertise(instance string, port int, n *Node) (*mdns.Server, error) {
	info := []string{
		fmt.Sprintf("index=%d", n.Index()),
		fmt.Sprintf("leds=%d", n.Strip().Len()),
		"id=" + n.ID(),
	}
	service, err := mdns.NewMDNSService(instance, ServiceType, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}
	slog.Info("Advertising control API", "service", ServiceType, "instance", instance, "port", port)
	return srv, nil
}

// DiscoveredNode is a chainlight control API found over mDNS.
type DiscoveredNode struct {
	Instance string
	Address  string
	Port     int
	Index    int
	LEDs     int
	ID       string
}

// Discover browses for advertised nodes until timeout.
func Discover(timeout time.Duration) ([]DiscoveredNode, error) {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	entriesCh := make(chan *mdns.ServiceEntry, 16)
	var nodes []DiscoveredNode
	done := make(chan struct{})
	go func() {
		defer close(done)
		for entry := range entriesCh {
			if n, ok := parseEntry(entry); ok {
				nodes = append(nodes, n)
			}
		}
	}()

	params := mdns.DefaultParams(ServiceType)
	params.Entries = entriesCh
	params.Timeout = timeout
	params.DisableIPv6 = true
	err := mdns.Query(params)
	close(entriesCh)
	<-done
	if err != nil {
		return nil, fmt.Errorf("mDNS discovery failed: %w", err)
	}
	return nodes, nil
}

func parseEntry(entry *mdns.ServiceEntry) (DiscoveredNode, bool) {
	var address string
	if entry.AddrV4 != nil {
		address = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		address = fmt.Sprintf("[%s]", entry.AddrV6.String())
	} else {
		return DiscoveredNode{}, false
	}

	n := DiscoveredNode{Instance: entry.Name, Address: address, Port: entry.Port, Index: OriginIndex}
	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "index":
			n.Index, _ = strconv.Atoi(value)
		case "leds":
			n.LEDs, _ = strconv.Atoi(value)
		case "id":
			n.ID = value
		}
	}
	slog.Debug("Discovered chainlight node", "instance", n.Instance, "address", n.Address, "port", n.Port, "index", n.Index)
	return n, true
}
