package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// StubClient is an offline upstream client that returns canned data, for
// exercising the proxy and agent loop without a live MCP server.
type StubClient struct{}

// NewStubClient creates a new stub upstream client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Initialize simulates the MCP handshake.
func (c *StubClient) Initialize(ctx context.Context, clientInfo map[string]interface{}) (*Response, error) {
	return &Response{
		JSONRPC: "2.0",
		ID:      1,
		Result: json.RawMessage(`{
			"protocolVersion": "2024-11-05",
			"capabilities": {},
			"serverInfo": {
				"name": "stub-upstream",
				"version": "1.0.0"
			}
		}`),
	}, nil
}

// ListTools returns a small fixed set of mock upstream tools.
func (c *StubClient) ListTools(ctx context.Context) ([]Tool, error) {
	return []Tool{
		{
			Name:        "echo",
			Description: "Echo back the given text (stub)",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		},
		{
			Name:        "clock",
			Description: "Return a fixed timestamp (stub)",
			InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}, nil
}

// CallTool executes a mock tool call against the canned dataset.
func (c *StubClient) CallTool(ctx context.Context, name string, arguments interface{}) (*ToolResult, error) {
	var content string

	switch name {
	case "echo":
		args, _ := arguments.(map[string]interface{})
		text, _ := args["text"].(string)
		content = text
	case "clock":
		content = `{"tick": 42}`
	default:
		return &ToolResult{
			Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("tool %s not implemented in stub", name)}},
			IsError: true,
		}, nil
	}

	return &ToolResult{
		Content: []ContentBlock{{Type: "text", Text: content}},
	}, nil
}
