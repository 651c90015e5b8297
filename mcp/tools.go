package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/chainlight/services"
)

// ToolSet holds the tool handlers over one service container.
type ToolSet struct {
	services *services.ServiceContainer
}

func NewToolSet(serviceContainer *services.ServiceContainer) *ToolSet {
	return &ToolSet{services: serviceContainer}
}

func colorArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("r", mcp.Description("Red channel 0-255")),
		mcp.WithNumber("g", mcp.Description("Green channel 0-255")),
		mcp.WithNumber("b", mcp.Description("Blue channel 0-255")),
	}
}

func originArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithNumber("ttl", mcp.Description("Hop budget, defaults to the chain default")),
		mcp.WithNumber("offset_ms", mcp.Description("Start lead in milliseconds")),
	}
}

func tool(name, description string, groups ...[]mcp.ToolOption) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, g := range groups {
		opts = append(opts, g...)
	}
	return mcp.NewTool(name, opts...)
}

// Register adds every tool to s.
func (t *ToolSet) Register(s *server.MCPServer) {
	s.AddTool(tool("start_breath", "Start a synchronized breathing color effect across the chain",
		colorArgs(),
		[]mcp.ToolOption{
			mcp.WithNumber("min", mcp.Description("Minimum brightness 0-1")),
			mcp.WithNumber("max", mcp.Description("Maximum brightness 0-1")),
			mcp.WithNumber("rise_ms", mcp.Required(), mcp.Description("Rise duration in milliseconds")),
			mcp.WithNumber("fall_ms", mcp.Required(), mcp.Description("Fall duration in milliseconds")),
			mcp.WithNumber("cycles", mcp.Description("Cycle count, 0 runs forever")),
			mcp.WithBoolean("interrupt", mcp.Description("Replace a running breath")),
		},
		originArgs(),
	), t.handleStartBreath)

	s.AddTool(tool("start_flicker", "Start a synchronized on/off flicker across the chain",
		[]mcp.ToolOption{
			mcp.WithNumber("on_ms", mcp.Required(), mcp.Description("On phase in milliseconds")),
			mcp.WithNumber("off_ms", mcp.Required(), mcp.Description("Off phase in milliseconds")),
			mcp.WithNumber("cycles", mcp.Description("Cycle count, 0 runs forever")),
			mcp.WithBoolean("invert", mcp.Description("Start in the off phase")),
			mcp.WithBoolean("interrupt", mcp.Description("Replace a running flicker")),
		},
		originArgs(),
	), t.handleStartFlicker)

	s.AddTool(tool("start_test_chain", "Light each node one LED at a time, node by node down the chain",
		colorArgs(),
		[]mcp.ToolOption{
			mcp.WithNumber("step_ms", mcp.Required(), mcp.Description("Delay between LEDs in milliseconds")),
		},
		originArgs(),
	), t.handleStartTestChain)

	s.AddTool(tool("apply_preset", "Apply a named effect preset",
		[]mcp.ToolOption{
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Preset name"),
				mcp.Enum(t.services.Effect.ListPresets()...),
			),
		},
	), t.handleApplyPreset)

	s.AddTool(tool("list_nodes", "List the chain nodes hosted by this process with their effect state"),
		t.handleListNodes)
}

func optionalUint8(request mcp.CallToolRequest, key string) *uint8 {
	if args, ok := request.GetRawArguments().(map[string]any); ok {
		if _, exists := args[key]; exists {
			v := uint8(request.GetFloat(key, 0))
			return &v
		}
	}
	return nil
}

func optionalUint32(request mcp.CallToolRequest, key string) *uint32 {
	if args, ok := request.GetRawArguments().(map[string]any); ok {
		if _, exists := args[key]; exists {
			v := uint32(request.GetFloat(key, 0))
			return &v
		}
	}
	return nil
}

func originResult(info *services.OriginInfo, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to originate command: %v", err)), nil
	}
	return jsonResult(info)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	resultBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}

func (t *ToolSet) handleStartBreath(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := services.BreathRequest{
		R:         uint8(request.GetFloat("r", 0)),
		G:         uint8(request.GetFloat("g", 0)),
		B:         uint8(request.GetFloat("b", 0)),
		Min:       request.GetFloat("min", 0),
		Max:       request.GetFloat("max", 1),
		RiseMs:    uint32(request.GetFloat("rise_ms", 0)),
		FallMs:    uint32(request.GetFloat("fall_ms", 0)),
		Cycles:    uint16(request.GetFloat("cycles", 0)),
		Interrupt: request.GetBool("interrupt", false),
		TTL:       optionalUint8(request, "ttl"),
		OffsetMs:  optionalUint32(request, "offset_ms"),
	}
	return originResult(t.services.Effect.StartBreath(req))
}

func (t *ToolSet) handleStartFlicker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := services.FlickerRequest{
		OnMs:      uint16(request.GetFloat("on_ms", 0)),
		OffMs:     uint16(request.GetFloat("off_ms", 0)),
		Cycles:    uint16(request.GetFloat("cycles", 0)),
		Invert:    request.GetBool("invert", false),
		Interrupt: request.GetBool("interrupt", false),
		TTL:       optionalUint8(request, "ttl"),
		OffsetMs:  optionalUint32(request, "offset_ms"),
	}
	return originResult(t.services.Effect.StartFlicker(req))
}

func (t *ToolSet) handleStartTestChain(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := services.TestRequest{
		StepMs:   uint16(request.GetFloat("step_ms", 0)),
		R:        uint8(request.GetFloat("r", 0)),
		G:        uint8(request.GetFloat("g", 0)),
		B:        uint8(request.GetFloat("b", 0)),
		TTL:      optionalUint8(request, "ttl"),
		OffsetMs: optionalUint32(request, "offset_ms"),
	}
	return originResult(t.services.Effect.StartTestChain(req))
}

func (t *ToolSet) handleApplyPreset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required and must be a string"), nil
	}
	return originResult(t.services.Effect.ApplyPreset(name))
}

func (t *ToolSet) handleListNodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodes, err := t.services.Node.ListNodes()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing nodes: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"nodes": nodes,
		"count": len(nodes),
	})
}
