package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/mbocsi/chainlight/bridge"
	"github.com/mbocsi/chainlight/config"
	"github.com/mbocsi/chainlight/mcp"
	"github.com/mbocsi/chainlight/server"
	"github.com/mbocsi/chainlight/services"
	"github.com/mbocsi/chainlight/web"
)

func main() {
	configPath := flag.String("config", "node.yaml", "path to the node configuration")
	discover := flag.Duration("discover", 0, "list advertised nodes for this long and exit")
	flag.Parse()

	if *discover > 0 {
		server.SetupLogger("warn", "text", os.Stderr)
		nodes, err := server.Discover(*discover)
		if err != nil {
			slog.Error("Discovery failed", "error", err.Error())
			os.Exit(1)
		}
		for _, n := range nodes {
			fmt.Printf("%-32s %s:%d index=%d leds=%d\n", n.Instance, n.Address, n.Port, n.Index, n.LEDs)
		}
		return
	}

	if err := run(*configPath); err != nil {
		slog.Error("Error starting chainlight node", "error", err.Error())
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// MCP owns stdout when it is enabled.
	var logOut io.Writer = os.Stdout
	if cfg.MCP.Enabled {
		logOut = os.Stderr
	}
	level := cfg.Log.Level
	if cfg.Node.Verbose {
		level = "debug"
	}
	server.SetupLogger(level, cfg.Log.Format, logOut)

	if cfg.Link.Kind != "udp" {
		return fmt.Errorf("link kind %s is only available in chainsim", cfg.Link.Kind)
	}
	link := server.NewUDPLink(cfg.Self(), cfg.Link.Listen)
	for i, p := range cfg.Node.Peers {
		if p.Endpoint != "" {
			link.SetEndpoint(cfg.PeerAddresses()[i], p.Endpoint)
		}
	}
	if err := link.Start(); err != nil {
		return err
	}
	defer link.Close()

	buf, closeStrip, err := openStrip(cfg.Strip)
	if err != nil {
		return err
	}
	defer closeStrip()

	node := server.NewNode(server.NodeOptions{
		Link:     link,
		Strip:    buf,
		Peers:    cfg.PeerAddresses(),
		Index:    cfg.Node.Index,
		Renderer: cfg.RendererConfig(),
		Tick:     cfg.Tick(),
	})

	serviceManager := services.NewServiceManager(node, cfg.OriginatorOptions(), node)
	svcs := []server.Service{serviceManager.Originator()}

	if cfg.HTTP.Addr != "" {
		webClient := web.NewWebClient(serviceManager.GetServices(), cfg.HTTP.Addr)
		svcs = append(svcs, webClient)

		if cfg.HTTP.MDNS {
			mdnsServer, err := advertise(cfg.HTTP.Addr, node)
			if err != nil {
				slog.Warn("mDNS advertisement disabled", "error", err)
			} else {
				defer mdnsServer.Shutdown()
			}
		}
	}

	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = node.ID()
		}
		svcs = append(svcs, bridge.NewMQTTBridge(bridge.Config{
			Broker:      cfg.MQTT.Broker,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			ClientID:    clientID,
		}, serviceManager.GetServices()))
	}

	if cfg.MCP.Enabled {
		svcs = append(svcs, mcp.NewMCPServer(serviceManager.GetServices()))
	}

	chainServer := server.NewChainServer(server.ChainServerOptions{
		Nodes:    []*server.Node{node},
		Services: svcs,
		Context:  context.Background(),
	})
	return chainServer.Start()
}

type shutdowner interface{ Shutdown() error }

func advertise(addr string, node *server.Node) (shutdowner, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid http address %s: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid http port %s: %w", portStr, err)
	}
	host, _ := os.Hostname()
	return server.Advertise(fmt.Sprintf("%s-%d", host, node.Index()), port, node)
}
