package provider

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockProvider is a test double that returns predefined responses without
// making any network calls. Used to exercise the agent loop and streamer
// hermetically.
type MockProvider struct {
	mu sync.RWMutex

	name       string
	response   string
	reasoning  string
	toolCalls  []ToolCall
	streamErr  error
	chatErr    error
	inputUsage int
	outUsage   int
	delay      time.Duration
}

// NewMock creates a new mock provider that replies with response.
func NewMock(name, response string) *MockProvider {
	return &MockProvider{
		name:     name,
		response: response,
	}
}

type MockFactory struct {
	name     string
	response string
}

func NewMockFactory(name, response string) *MockFactory {
	return &MockFactory{name: name, response: response}
}

func (f *MockFactory) Name() string { return f.name }

func (f *MockFactory) Create(model string, opts Options) Provider {
	return NewMock(f.name, f.response)
}

// WithChatError sets an error to return from ChatStream instead of streaming.
func (p *MockProvider) WithChatError(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatErr = err
	return p
}

// WithStreamError sets an error to deliver as an EventError mid-stream.
func (p *MockProvider) WithStreamError(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamErr = err
	return p
}

// WithToolCalls sets tool calls to emit via EventToolCallBegin/EventToolCallDelta.
func (p *MockProvider) WithToolCalls(calls []ToolCall) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolCalls = calls
	return p
}

func (p *MockProvider) WithReasoning(reasoning string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasoning = reasoning
	return p
}

// WithUsage sets the token counts emitted via EventUsage.
func (p *MockProvider) WithUsage(input, output int) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputUsage = input
	p.outUsage = output
	return p
}

func (p *MockProvider) SetDelay(delay time.Duration) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
	return p
}

// WithResponse sets the predefined text content to stream back.
func (p *MockProvider) WithResponse(response string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = response
	return p
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string {
	return p.name
}

// ChatStream replays the configured response, reasoning, and tool calls as a
// synthetic event sequence on a buffered channel.
func (p *MockProvider) ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	if err := p.waitDelay(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	chatErr := p.chatErr
	streamErr := p.streamErr
	response := p.response
	reasoning := p.reasoning
	toolCalls := append([]ToolCall(nil), p.toolCalls...)
	inputTokens, outputTokens := p.inputUsage, p.outUsage
	p.mu.RUnlock()

	if chatErr != nil {
		return nil, chatErr
	}

	ch := make(chan StreamEvent, 8+len(toolCalls)*2)
	go func() {
		defer close(ch)

		if streamErr != nil {
			ch <- StreamEvent{Type: EventError, Err: streamErr}
			return
		}
		if reasoning != "" {
			ch <- StreamEvent{Type: EventReasoningDelta, Content: reasoning}
		}
		if response != "" {
			ch <- StreamEvent{Type: EventContentDelta, Content: response}
		}
		for i, tc := range toolCalls {
			ch <- StreamEvent{
				Type:          EventToolCallBegin,
				ToolCallIndex: i,
				ToolCallID:    tc.ID,
				ToolCallName:  tc.Name,
			}
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			ch <- StreamEvent{
				Type:          EventToolCallDelta,
				ToolCallIndex: i,
				ToolCallArgs:  args,
			}
		}
		if inputTokens != 0 || outputTokens != 0 {
			ch <- StreamEvent{Type: EventUsage, InputTokens: inputTokens, OutputTokens: outputTokens}
		}
		ch <- StreamEvent{Type: EventDone}
	}()

	return ch, nil
}

// ListModels returns a single synthetic model entry.
func (p *MockProvider) ListModels(ctx context.Context) ([]Model, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return []Model{{Name: p.name + "-mock"}}, nil
}

func (p *MockProvider) waitDelay(ctx context.Context) error {
	p.mu.RLock()
	delay := p.delay
	p.mu.RUnlock()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close is a no-op for the mock provider; there are no resources to release.
func (p *MockProvider) Close() error {
	return nil
}

// ToolCallArgsJSON is a convenience constructor for building a ToolCall with
// raw JSON arguments in tests.
func ToolCallArgsJSON(id, name string, args map[string]any) ToolCall {
	raw, _ := json.Marshal(args)
	return ToolCall{ID: id, Name: name, Arguments: raw}
}
