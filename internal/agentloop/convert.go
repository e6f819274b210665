package agentloop

import (
	"encoding/json"

	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
	"github.com/relaywire/agentcore/internal/toolrt"
)

// ToProviderMessages exposes toProviderMessages for other packages (the
// compaction summarizer) that need the same Message-to-wire-shape
// conversion without duplicating it.
func ToProviderMessages(messages []agentmsg.Message) []provider.Message {
	return toProviderMessages(messages)
}

// toProviderMessages is the "convertToLlm" step of SPEC_FULL.md §4.D: it
// flattens the normalized agentmsg.Message slice into the flat
// string-content shape providerhub's wire adapters expect.
func toProviderMessages(messages []agentmsg.Message) []provider.Message {
	out := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agentmsg.RoleUser:
			out = append(out, provider.Message{Role: "user", Content: m.Text(), CreatedAt: m.Timestamp})
		case agentmsg.RoleToolResult:
			out = append(out, provider.Message{
				Role:       "tool",
				Content:    m.Text(),
				ToolCallID: m.ToolCallID,
				FunctionName: m.ToolName,
				CreatedAt:  m.Timestamp,
			})
		case agentmsg.RoleAssistant:
			out = append(out, provider.Message{
				Role:         "assistant",
				Content:      m.Text(),
				Reasoning:    thinkingText(m),
				ToolCalls:    toProviderToolCalls(m.ToolCalls()),
				CreatedAt:    m.Timestamp,
				InputTokens:  m.Usage.Input,
				OutputTokens: m.Usage.Output,
			})
		}
	}
	return out
}

func thinkingText(m agentmsg.Message) string {
	var out string
	for _, b := range m.Content {
		if b.Kind == agentmsg.BlockThinking {
			out += b.Text
		}
	}
	return out
}

func toProviderToolCalls(blocks []agentmsg.ContentBlock) []provider.ToolCall {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]provider.ToolCall, len(blocks))
	for i, b := range blocks {
		args := b.ToolArguments
		if args == nil {
			args = json.RawMessage(`{}`)
		}
		out[i] = provider.ToolCall{ID: b.ToolCallID, Name: b.ToolName, Arguments: args, ThoughtSignature: b.ThoughtSignature}
	}
	return out
}

// toProviderTools adapts the registry's tool defs to the shape ChatStream
// expects.
func toProviderTools(tools []toolrt.Tool) []provider.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]provider.Tool, len(tools))
	for i, t := range tools {
		out[i] = provider.Tool{Name: t.Name, Description: t.Description, Parameters: t.ParameterSchema}
	}
	return out
}
