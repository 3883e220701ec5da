package dispatcher

import (
	"context"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/lyzr/flowctl/internal/model"
)

// MCPHandler implements the `mcp` action kind: it launches (or reuses) a
// stdio-transport MCP server process and invokes one of its tools.
//
// implementation shape:
//
//	command: string            executable to run the MCP server
//	args: []string             command-line arguments
//	env: []string               "KEY=VALUE" entries passed to the process
//	tool: string                tool name to call
//	arguments: object            passed through as-is, or built from input
//
// When arguments is absent, the mapped input itself is used as the tool's
// arguments object.
type MCPHandler struct {
	dial func(ctx context.Context, command string, env []string, args ...string) (mcpClient, error)
}

// mcpClient is the subset of *mcpclient.Client this handler exercises,
// narrowed so tests can substitute a fake server connection.
type mcpClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

func NewMCPHandler() *MCPHandler {
	return &MCPHandler{
		dial: func(ctx context.Context, command string, env []string, args ...string) (mcpClient, error) {
			c, err := mcpclient.NewStdioMCPClient(command, env, args...)
			if err != nil {
				return nil, err
			}
			if err := c.Start(ctx); err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func (h *MCPHandler) Handle(ctx context.Context, action model.ActionDefinition, input map[string]interface{}) ActionResult {
	impl := action.Implementation

	command, _ := impl["command"].(string)
	if command == "" {
		return Failf("invalid_implementation", false, "mcp action missing required command")
	}
	tool, _ := impl["tool"].(string)
	if tool == "" {
		return Failf("invalid_implementation", false, "mcp action missing required tool")
	}
	args := toStringSlice(impl["args"])
	env := toStringSlice(impl["env"])

	arguments, ok := impl["arguments"].(map[string]interface{})
	if !ok {
		arguments = input
	}

	client, err := h.dial(ctx, command, env, args...)
	if err != nil {
		return Failf("mcp_server_unreachable", true, "starting mcp server %q: %v", command, err)
	}
	defer client.Close()

	initReq := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "flowctl",
				Version: "0.1.0",
			},
		},
	}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		return Failf("mcp_initialize_failed", true, "initializing mcp server %q: %v", command, err)
	}

	callReq := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      tool,
			Arguments: arguments,
		},
	}
	result, err := client.CallTool(ctx, callReq)
	if err != nil {
		return Failf("mcp_tool_call_failed", true, "calling mcp tool %q: %v", tool, err)
	}

	texts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}

	if result.IsError {
		msg := "mcp tool reported an error"
		if len(texts) > 0 {
			msg = texts[0]
		}
		return Failf("mcp_tool_error", false, "%s", msg)
	}

	output := map[string]interface{}{"content": texts}
	if len(texts) == 1 {
		output["value"] = texts[0]
	}

	return ActionResult{Success: true, Output: output}
}

func toStringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
