package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// Service is an auxiliary component that runs until ctx is done.
type Service interface {
	Start(ctx context.Context) error
}

type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Start(ctx context.Context) error { return f(ctx) }

type ChainServerOptions struct {
	Nodes    []*Node
	Services []Service       // Optional web, MCP, MQTT, originator loops
	Context  context.Context // Optional (defaults to context.Background())
}

// ChainServer runs nodes and their services until SIGINT or SIGTERM.
type ChainServer struct {
	options ChainServerOptions
}

func NewChainServer(opts ChainServerOptions) *ChainServer {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &ChainServer{options: opts}
}

func (s *ChainServer) Start() error {
	ctx, stop := signal.NotifyContext(s.options.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	for _, n := range s.options.Nodes {
		if err := n.Start(); err != nil {
			return fmt.Errorf("failed to start node %d: %w", n.Index(), err)
		}
	}
	for _, svc := range s.options.Services {
		go func(svc Service) {
			if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Service stopped with error", "error", err.Error())
			}
		}(svc)
	}

	done := make(chan struct{}, len(s.options.Nodes))
	for _, n := range s.options.Nodes {
		go func(n *Node) {
			n.Run(ctx)
			done <- struct{}{}
		}(n)
	}
	for range s.options.Nodes {
		<-done
	}
	slog.Info("Chain server shut down")
	return nil
}

// ParseLevel maps debug/info/warn/error to a slog level; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger installs the default logger. CHAINLIGHT_LOG_LEVEL and
// CHAINLIGHT_LOG_FORMAT override the arguments.
func SetupLogger(level, format string, w io.Writer) {
	if v := os.Getenv("CHAINLIGHT_LOG_LEVEL"); v != "" {
		level = v
	}
	if v := os.Getenv("CHAINLIGHT_LOG_FORMAT"); v != "" {
		format = v
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}
