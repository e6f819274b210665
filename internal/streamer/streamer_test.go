package streamer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
)

func TestRunCollectsTextIntoFinalMessage(t *testing.T) {
	mock := provider.NewMock("mock", "hello world")
	ch, err := mock.ChatStream(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}

	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}
	out := Run(context.Background(), identity, ch)

	var last agentmsg.AssistantMessageEvent
	for {
		evt, ok := out.Next()
		if !ok {
			break
		}
		last = evt
		if evt.IsTerminal() {
			break
		}
	}
	if last.Type != agentmsg.EvDone {
		t.Fatalf("last event type = %v, want EvDone", last.Type)
	}

	final := out.Result()
	if final.Text() != "hello world" {
		t.Errorf("final.Text() = %q, want %q", final.Text(), "hello world")
	}
	if final.StopReason != agentmsg.StopStop {
		t.Errorf("StopReason = %v, want StopStop", final.StopReason)
	}
}

func TestRunReconstructsToolCallArguments(t *testing.T) {
	call := provider.ToolCallArgsJSON("call_1", "ls", map[string]any{"path": "."})
	mock := provider.NewMock("mock", "").WithToolCalls([]provider.ToolCall{call})
	ch, err := mock.ChatStream(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}

	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}
	out := Run(context.Background(), identity, ch)
	for {
		evt, ok := out.Next()
		if !ok || evt.IsTerminal() {
			break
		}
	}

	final := out.Result()
	calls := final.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("len(ToolCalls()) = %d, want 1", len(calls))
	}
	if calls[0].ToolCallID != "call_1" || calls[0].ToolName != "ls" {
		t.Errorf("tool call = %+v", calls[0])
	}
	if string(calls[0].ToolArguments) != `{"path":"."}` {
		t.Errorf("tool arguments = %s, want {\"path\":\".\"}", calls[0].ToolArguments)
	}
	if final.StopReason != agentmsg.StopToolUse {
		t.Errorf("StopReason = %v, want StopToolUse", final.StopReason)
	}
}

func TestRunSurfacesStreamError(t *testing.T) {
	mock := provider.NewMock("mock", "").WithStreamError(errors.New("boom"))
	ch, err := mock.ChatStream(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("ChatStream error: %v", err)
	}

	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}
	out := Run(context.Background(), identity, ch)

	var last agentmsg.AssistantMessageEvent
	for {
		evt, ok := out.Next()
		if !ok {
			break
		}
		last = evt
		if evt.IsTerminal() {
			break
		}
	}
	if last.Type != agentmsg.EvError {
		t.Fatalf("last event type = %v, want EvError", last.Type)
	}
	if out.Result().StopReason != agentmsg.StopError {
		t.Errorf("StopReason = %v, want StopError", out.Result().StopReason)
	}
}

func TestRunAbortViaContextCancellation(t *testing.T) {
	// An event channel that never delivers anything: Run must still
	// terminate, via ctx cancellation, rather than block forever.
	ch := make(chan provider.StreamEvent)
	ctx, cancel := context.WithCancel(context.Background())

	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}
	out := Run(ctx, identity, ch)
	cancel()

	select {
	case <-out.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() never closed after context cancellation")
	}
	if out.Result().StopReason != agentmsg.StopAborted {
		t.Errorf("StopReason = %v, want StopAborted", out.Result().StopReason)
	}
}

func TestRepairPartialJSONClosesOpenStructures(t *testing.T) {
	fragments := []string{
		`{"a": 1`,
		`{"a": "b`,
		`{"nested": {"x"`,
		``,
		`{"a": 1}`,
		`{"a": [1, 2`,
	}
	for _, fragment := range fragments {
		repaired := repairPartialJSON(fragment)
		if !json.Valid(repaired) {
			t.Errorf("repairPartialJSON(%q) = %s, not valid JSON", fragment, repaired)
		}
	}
}
