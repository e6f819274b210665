package mcp

import (
	"context"
	"encoding/json"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/toolrt"
)

// ToolRTTools lists every tool the proxy currently knows about (local and
// upstream) and converts each into a toolrt.Tool, so the Tool Validator &
// Executor dispatches to an MCP server exactly the way it dispatches to a
// tool implemented in-process. Call again whenever the upstream tool list
// may have changed (e.g. after reconnecting).
func (p *Proxy) ToolRTTools(ctx context.Context) ([]toolrt.Tool, error) {
	tools, err := p.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]toolrt.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, p.bridgeTool(t))
	}
	return out, nil
}

// RegisterInto lists the proxy's tools and registers each into reg.
func (p *Proxy) RegisterInto(ctx context.Context, reg *toolrt.Registry) error {
	tools, err := p.ToolRTTools(ctx)
	if err != nil {
		return err
	}
	for _, t := range tools {
		reg.Register(t)
	}
	return nil
}

func (p *Proxy) bridgeTool(t Tool) toolrt.Tool {
	name := t.Name
	return toolrt.Tool{
		Name:            name,
		Label:           name,
		Description:     t.Description,
		ParameterSchema: t.InputSchema,
		Execute: func(ctx context.Context, toolCallID string, args map[string]any, onPartial toolrt.PartialFunc) (agentmsg.ToolResultPayload, error) {
			raw, err := json.Marshal(args)
			if err != nil {
				return agentmsg.ToolResultPayload{}, err
			}
			result, err := p.CallTool(ctx, name, raw)
			if err != nil {
				return agentmsg.ToolResultPayload{}, err
			}
			return bridgeResult(result), nil
		},
	}
}

func bridgeResult(r *ToolResult) agentmsg.ToolResultPayload {
	blocks := make([]agentmsg.ContentBlock, 0, len(r.Content))
	for _, c := range r.Content {
		blocks = append(blocks, agentmsg.ContentBlock{Kind: agentmsg.BlockText, Text: c.Text})
	}
	return agentmsg.ToolResultPayload{Content: blocks, IsError: r.IsError}
}
