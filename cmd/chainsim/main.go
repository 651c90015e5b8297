package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/mbocsi/chainlight/effects"
	"github.com/mbocsi/chainlight/server"
	"github.com/mbocsi/chainlight/services"
	"github.com/mbocsi/chainlight/strip"
	"github.com/mbocsi/chainlight/web"
)

func main() {
	nodes := flag.Int("nodes", 3, "number of chain nodes after the master")
	leds := flag.Int("leds", 30, "LEDs per node")
	httpAddr := flag.String("http", ":8080", "control API and viewer address")
	spacing := flag.Int("spacing", 1, "LED group spacing")
	onCount := flag.Int("on-count", 1, "lit LEDs per group")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	logFormat := flag.String("log-format", "text", "json or text")
	flag.Parse()

	server.SetupLogger(*logLevel, *logFormat, os.Stdout)

	if err := run(*nodes, *leds, *httpAddr, *spacing, *onCount); err != nil {
		slog.Error("Error starting chain simulator", "error", err.Error())
		os.Exit(1)
	}
}

func run(count, leds int, httpAddr string, spacing, onCount int) error {
	if count < 1 {
		return fmt.Errorf("need at least one node, got %d", count)
	}

	ether := server.NewEther()
	peers := make([]server.Address, count)
	for i := range peers {
		peers[i] = server.Address{0x02, 0, 0, 0, 0, byte(i + 1)}
	}

	masterAddr := server.Address{0x02, 0, 0, 0, 0, 0xF0}
	masterRadio := server.NewPacketRadio(server.DefaultRadioConfig(masterAddr), ether.Attach())
	if err := masterRadio.Start(); err != nil {
		return fmt.Errorf("failed to start master radio: %w", err)
	}
	defer masterRadio.Stop()
	master := server.NewNode(server.NodeOptions{
		Link:  masterRadio,
		Peers: peers,
		Index: server.OriginIndex,
	})
	all := []*server.Node{master}

	renderer := effects.DefaultRendererConfig()
	renderer.Spacing = spacing
	renderer.OnCount = onCount

	for i, addr := range peers {
		radio := server.NewPacketRadio(server.DefaultRadioConfig(addr), ether.Attach())
		if err := radio.Start(); err != nil {
			return fmt.Errorf("failed to start radio %d: %w", i, err)
		}
		defer radio.Stop()

		// Boot every node at an arbitrary clock reading.
		node := server.NewNode(server.NodeOptions{
			Link:     radio,
			Clock:    server.NewSystemClockAt(rand.Uint32N(1 << 30)),
			Strip:    strip.NewBuffer(leds),
			Peers:    peers,
			Index:    i,
			Renderer: renderer,
		})
		all = append(all, node)
	}
	serviceManager := services.NewServiceManager(master, services.DefaultOriginatorOptions(), all...)
	webClient := web.NewWebClient(serviceManager.GetServices(), httpAddr)

	slog.Info("Chain simulator ready", "nodes", count, "leds", leds, "http", httpAddr)
	chainServer := server.NewChainServer(server.ChainServerOptions{
		Nodes:    all,
		Services: []server.Service{serviceManager.Originator(), webClient},
		Context:  context.Background(),
	})
	return chainServer.Start()
}
