package transform

import (
	"testing"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func TestTransformOrphanRepair(t *testing.T) {
	Now = fixedNow
	defer func() { Now = time.Now }()

	modelA := agentmsg.ModelIdentity{Provider: "p", API: "a", ModelID: "m"}
	msgs := []agentmsg.Message{
		agentmsg.NewUserText("hi", fixedNow()),
		{
			Role:       agentmsg.RoleAssistant,
			Identity:   modelA,
			StopReason: agentmsg.StopToolUse,
			Content: []agentmsg.ContentBlock{
				{Kind: agentmsg.BlockToolCall, ToolCallID: "call_1", ToolName: "ls"},
			},
		},
		// call_1's result is missing; a second assistant-with-tool-calls
		// should trigger synthetic repair before itself.
		{
			Role:       agentmsg.RoleAssistant,
			Identity:   modelA,
			StopReason: agentmsg.StopToolUse,
			Content: []agentmsg.ContentBlock{
				{Kind: agentmsg.BlockToolCall, ToolCallID: "call_2", ToolName: "cat"},
			},
		},
		agentmsg.NewToolResult("call_2", "cat", "contents", false, fixedNow()),
	}

	out := Transform(msgs, modelA, nil)

	// Expect: user, assistant(call_1), synthetic toolResult(call_1),
	// assistant(call_2), toolResult(call_2).
	if len(out) != 5 {
		t.Fatalf("len(out) = %d, want 5: %+v", len(out), out)
	}
	synthetic := out[2]
	if synthetic.Role != agentmsg.RoleToolResult || synthetic.ToolCallID != "call_1" || !synthetic.IsError {
		t.Errorf("synthetic repair entry = %+v, want isError toolResult for call_1", synthetic)
	}
	if synthetic.Text() != "No result provided" {
		t.Errorf("synthetic repair text = %q", synthetic.Text())
	}
}

func TestTransformDropsErroredAssistants(t *testing.T) {
	modelA := agentmsg.ModelIdentity{Provider: "p", API: "a", ModelID: "m"}
	msgs := []agentmsg.Message{
		agentmsg.NewUserText("hi", fixedNow()),
		{Role: agentmsg.RoleAssistant, Identity: modelA, StopReason: agentmsg.StopError},
		{Role: agentmsg.RoleAssistant, Identity: modelA, StopReason: agentmsg.StopAborted},
	}

	out := Transform(msgs, modelA, nil)
	for _, m := range out {
		if m.Role == agentmsg.RoleAssistant && (m.StopReason == agentmsg.StopError || m.StopReason == agentmsg.StopAborted) {
			t.Errorf("output retained errored/aborted assistant: %+v", m)
		}
	}
}

func TestTransformCrossModelRewritesIDAndStripsSignatures(t *testing.T) {
	modelA := agentmsg.ModelIdentity{Provider: "anthropic", API: "messages", ModelID: "claude"}
	modelB := agentmsg.ModelIdentity{Provider: "openai", API: "chat", ModelID: "gpt"}

	longID := ""
	for i := 0; i < 480; i++ {
		longID += "a"
	}

	msgs := []agentmsg.Message{
		agentmsg.NewUserText("hi", fixedNow()),
		{
			Role:       agentmsg.RoleAssistant,
			Identity:   modelA,
			StopReason: agentmsg.StopToolUse,
			Content: []agentmsg.ContentBlock{
				{Kind: agentmsg.BlockThinking, Text: "reasoning", Signature: "sig"},
				{Kind: agentmsg.BlockToolCall, ToolCallID: longID, ToolName: "ls", ThoughtSignature: "tsig"},
			},
		},
		agentmsg.NewToolResult(longID, "ls", "ok", false, fixedNow()),
	}

	out := Transform(msgs, modelB, DefaultNormalizer())

	assistant := out[1]
	if assistant.Content[0].Kind != agentmsg.BlockText {
		t.Errorf("thinking block not downgraded to text on cross-model replay: %+v", assistant.Content[0])
	}
	newID := assistant.Content[1].ToolCallID
	if newID == longID || len(newID) > 64 {
		t.Errorf("tool-call id not rewritten to a short id: %q", newID)
	}
	if assistant.Content[1].ThoughtSignature != "" {
		t.Errorf("thought signature not stripped on cross-model replay")
	}

	toolResult := out[2]
	if toolResult.ToolCallID != newID {
		t.Errorf("toolResult id = %q, want rewritten %q", toolResult.ToolCallID, newID)
	}

	// Same-model replay must preserve the signature.
	outSame := Transform(msgs, modelA, nil)
	if outSame[1].Content[0].Signature != "sig" {
		t.Errorf("same-model replay stripped thinking signature, want preserved")
	}
}
