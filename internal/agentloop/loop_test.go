package agentloop

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
	"github.com/relaywire/agentcore/internal/toolrt"
)

var echoSchema = json.RawMessage(`{
  "type": "object",
  "required": ["text"],
  "properties": {"text": {"type": "string"}}
}`)

func echoRegistry() *toolrt.Registry {
	r := toolrt.NewRegistry()
	r.Register(toolrt.Tool{
		Name:            "echo",
		ParameterSchema: echoSchema,
		Execute: func(_ context.Context, _ string, args map[string]any, _ toolrt.PartialFunc) (agentmsg.ToolResultPayload, error) {
			return agentmsg.ToolResultPayload{
				Content: []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: args["text"].(string)}},
			}, nil
		},
	})
	return r
}

func identity() agentmsg.ModelIdentity {
	return agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}
}

func drain(t *testing.T, out interface {
	Next() (agentmsg.AgentEvent, bool)
}) []agentmsg.AgentEvent {
	t.Helper()
	var events []agentmsg.AgentEvent
	for {
		evt, ok := out.Next()
		if !ok {
			break
		}
		events = append(events, evt)
	}
	return events
}

func TestRunSingleTurnNoToolCalls(t *testing.T) {
	mock := provider.NewMock("mock", "hi there")
	l := New(Options{Provider: mock, Identity: identity(), Tools: toolrt.NewRegistry()})

	out := l.Run(context.Background(), []agentmsg.Message{agentmsg.NewUserText("hello", time.Now())})
	events := drain(t, out)

	if len(events) == 0 || events[0].Type != agentmsg.AgAgentStart {
		t.Fatalf("first event = %+v, want AgAgentStart", events[0])
	}
	last := events[len(events)-1]
	if last.Type != agentmsg.AgAgentEnd {
		t.Fatalf("last event = %+v, want AgAgentEnd", last)
	}
	if len(last.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2 (user echo + assistant reply)", len(last.Messages))
	}
	reply := last.Messages[1].Message
	if reply.Text() != "hi there" {
		t.Errorf("reply.Text() = %q, want %q", reply.Text(), "hi there")
	}
	if len(l.History()) != 2 {
		t.Errorf("len(History()) = %d, want 2", len(l.History()))
	}
}

// sequencedProvider answers ChatStream with a different canned response each
// call, letting tests exercise multi-round tool-calling without relying on
// MockProvider's static replay.
type sequencedProvider struct {
	calls     int32
	responses []*provider.MockProvider
}

func (s *sequencedProvider) Name() string { return "sequenced" }

func (s *sequencedProvider) ChatStream(ctx context.Context, messages []provider.Message, tools []provider.Tool) (<-chan provider.StreamEvent, error) {
	i := atomic.AddInt32(&s.calls, 1) - 1
	idx := int(i)
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx].ChatStream(ctx, messages, tools)
}

func (s *sequencedProvider) ListModels(ctx context.Context) ([]provider.Model, error) { return nil, nil }
func (s *sequencedProvider) Close() error                                             { return nil }

func TestRunToolCallThenCleanStop(t *testing.T) {
	call := provider.ToolCallArgsJSON("call_1", "echo", map[string]any{"text": "ping"})
	seq := &sequencedProvider{responses: []*provider.MockProvider{
		provider.NewMock("mock", "").WithToolCalls([]provider.ToolCall{call}),
		provider.NewMock("mock", "done"),
	}}

	l := New(Options{Provider: seq, Identity: identity(), Tools: echoRegistry()})
	out := l.Run(context.Background(), []agentmsg.Message{agentmsg.NewUserText("use the tool", time.Now())})
	events := drain(t, out)

	var sawToolStart, sawToolEnd bool
	for _, evt := range events {
		switch evt.Type {
		case agentmsg.AgToolExecStart:
			sawToolStart = true
		case agentmsg.AgToolExecEnd:
			sawToolEnd = true
			if evt.IsError {
				t.Errorf("tool exec ended with error: %+v", evt.Result)
			}
		}
	}
	if !sawToolStart || !sawToolEnd {
		t.Fatalf("tool_execution_start/end not both observed: start=%v end=%v", sawToolStart, sawToolEnd)
	}

	final := events[len(events)-1]
	if final.Type != agentmsg.AgAgentEnd {
		t.Fatalf("last event = %+v, want AgAgentEnd", final)
	}
	var gotFinalText bool
	for _, am := range final.Messages {
		if am.Kind == agentmsg.KindMessage && am.Message.Role == agentmsg.RoleAssistant && am.Message.Text() == "done" {
			gotFinalText = true
		}
	}
	if !gotFinalText {
		t.Errorf("final messages = %+v, want an assistant message with text %q", final.Messages, "done")
	}
}

func TestRunMaxToolRoundsTriggersFinalTextOnlyTurn(t *testing.T) {
	call := provider.ToolCallArgsJSON("call_1", "echo", map[string]any{"text": "ping"})
	mock := provider.NewMock("mock", "").WithToolCalls([]provider.ToolCall{call})

	l := New(Options{
		Provider:      mock,
		Identity:      identity(),
		Tools:         echoRegistry(),
		MaxToolRounds: 2,
	})
	out := l.Run(context.Background(), []agentmsg.Message{agentmsg.NewUserText("loop forever", time.Now())})
	events := drain(t, out)

	var sawLimitNotice bool
	for _, evt := range events {
		if evt.Type == agentmsg.AgMessageStart && evt.Message.Kind == agentmsg.KindMessage &&
			evt.Message.Message.Role == agentmsg.RoleUser &&
			evt.Message.Message.Text() == "You have exhausted your tool call limit for this turn. Respond in text only. Summarize what you accomplished and what remains." {
			sawLimitNotice = true
		}
	}
	if !sawLimitNotice {
		t.Fatal("never saw the round-cap notice injected before the final text-only turn")
	}

	final := events[len(events)-1]
	if final.Type != agentmsg.AgAgentEnd {
		t.Fatalf("last event = %+v, want AgAgentEnd", final)
	}
}

func TestAbortDuringRunSurfacesAsStopAborted(t *testing.T) {
	mock := provider.NewMock("mock", "slow reply").SetDelay(time.Hour)
	l := New(Options{Provider: mock, Identity: identity(), Tools: toolrt.NewRegistry()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := l.Run(ctx, []agentmsg.Message{agentmsg.NewUserText("hang", time.Now())})

	l.Abort()

	select {
	case <-out.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("run never completed after Abort")
	}

	history := l.History()
	if len(history) == 0 {
		t.Fatal("expected at least the user message in history")
	}
	last := history[len(history)-1]
	if last.StopReason != agentmsg.StopAborted {
		t.Errorf("last history entry StopReason = %v, want StopAborted (entry: %+v)", last.StopReason, last)
	}
}

func TestEmptyResponseRetriedOnceThenKept(t *testing.T) {
	seq := &sequencedProvider{responses: []*provider.MockProvider{
		provider.NewMock("mock", ""),
		provider.NewMock("mock", "finally something"),
	}}
	l := New(Options{Provider: seq, Identity: identity(), Tools: toolrt.NewRegistry()})

	out := l.Run(context.Background(), []agentmsg.Message{agentmsg.NewUserText("hello", time.Now())})
	events := drain(t, out)

	var assistantStarts int
	for _, evt := range events {
		if evt.Type == agentmsg.AgMessageStart && evt.Message.Kind == agentmsg.KindMessage && evt.Message.Message.Role == agentmsg.RoleAssistant {
			assistantStarts++
		}
	}
	if assistantStarts != 1 {
		t.Errorf("assistant message_start count = %d, want 1 (the discarded empty attempt must not reach the UI)", assistantStarts)
	}

	final := events[len(events)-1]
	var gotKept bool
	for _, am := range final.Messages {
		if am.Kind == agentmsg.KindMessage && am.Message.Role == agentmsg.RoleAssistant && am.Message.Text() == "finally something" {
			gotKept = true
		}
	}
	if !gotKept {
		t.Errorf("final messages = %+v, want the retried non-empty assistant reply", final.Messages)
	}
}
