package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/chainlight/services"
)

type MCPServer struct {
	Server *server.MCPServer
	tools  *ToolSet
}

// NewMCPServer exposes the effect and node services as stdio MCP tools.
func NewMCPServer(serviceContainer *services.ServiceContainer) *MCPServer {
	s := &MCPServer{
		Server: server.NewMCPServer("chainlight", "1.0.0"),
		tools:  NewToolSet(serviceContainer),
	}
	s.tools.Register(s.Server)
	return s
}

// Start serves stdio until the client disconnects. ServeStdio owns the
// process signals, so ctx is only used to log the shutdown reason.
func (s *MCPServer) Start(ctx context.Context) error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server", "ctx_err", ctx.Err())
	}()
	return server.ServeStdio(s.Server)
}
