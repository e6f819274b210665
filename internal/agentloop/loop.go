// Package agentloop implements the Agent Loop described in SPEC_FULL.md
// §4.E: the run/continue/abort operations and the outer/inner scheduling
// loop that drives one assistant turn (via internal/streamer) through
// however many tool-calling rounds the model asks for.
package agentloop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/eventstream"
	provider "github.com/relaywire/agentcore/internal/providerhub"
	"github.com/relaywire/agentcore/internal/streamer"
	"github.com/relaywire/agentcore/internal/toolrt"
	"github.com/relaywire/agentcore/internal/transform"
)

// defaultMaxToolRounds mirrors the teacher's ProcessTurn default.
const defaultMaxToolRounds = 60

// defaultReminderInterval mirrors the teacher's reminderInterval constant.
const defaultReminderInterval = 10

// ScratchpadReader provides read access to the agent's working plan,
// preferred over the goal-reminder fallback when non-empty.
type ScratchpadReader interface {
	Content() string
}

// SteeringSource returns queued user messages that should preempt the rest
// of the current tool-call batch, or nil if none are pending. Polled
// mid-tool-list and between turns.
type SteeringSource func(ctx context.Context) []agentmsg.Message

// FollowUpSource returns the next batch of messages to continue the run
// with once the inner loop would otherwise stop, or nil to end the run.
// Polled with lower priority than SteeringSource.
type FollowUpSource func(ctx context.Context) []agentmsg.Message

// Options configures one Loop. Provider, Identity, and Tools are required;
// everything else has a spec-mandated default.
type Options struct {
	Provider   provider.Provider
	Identity   agentmsg.ModelIdentity
	Tools      *toolrt.Registry
	Normalizer transform.IDNormalizer

	MaxToolRounds    int
	ReminderInterval int
	Scratchpad       ScratchpadReader
	GetSteering      SteeringSource
	GetFollowUp      FollowUpSource
}

func (o Options) maxToolRounds() int {
	if o.MaxToolRounds > 0 {
		return o.MaxToolRounds
	}
	return defaultMaxToolRounds
}

func (o Options) reminderInterval() int {
	if o.ReminderInterval > 0 {
		return o.ReminderInterval
	}
	return defaultReminderInterval
}

// Loop owns one session's working context and drives runs over it.
// Not safe for concurrent Run/Continue calls on the same Loop; one run at a
// time, matching the spec's "cooperative single-threaded within one agent
// run" model.
type Loop struct {
	opts    Options
	history []agentmsg.Message

	cancel context.CancelFunc
}

// New creates a Loop with an empty working context.
func New(opts Options) *Loop {
	return &Loop{opts: opts}
}

// Seed replaces the loop's working context with a previously persisted
// history, for resuming a session without replaying it through Run.
func (l *Loop) Seed(history []agentmsg.Message) {
	l.history = append([]agentmsg.Message(nil), history...)
}

// History returns the loop's current working context (a snapshot copy).
func (l *Loop) History() []agentmsg.Message {
	out := make([]agentmsg.Message, len(l.history))
	for i, m := range l.history {
		out[i] = m.Clone()
	}
	return out
}

// Abort signals cancellation of the in-flight run, if any. The provider
// stream and any running tool observe ctx and fail with a StopAborted
// reason; the loop treats this as clean termination, not an error.
func (l *Loop) Abort() {
	if l.cancel != nil {
		l.cancel()
	}
}

// Run appends prompts to the context and enters the scheduling loop.
func (l *Loop) Run(ctx context.Context, prompts []agentmsg.Message) *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage] {
	out := eventstream.New[agentmsg.AgentEvent, []agentmsg.AgentMessage]()

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	go func() {
		defer cancel()

		var newMessages []agentmsg.AgentMessage
		out.Push(agentmsg.AgentEvent{Type: agentmsg.AgAgentStart})

		pending := append([]agentmsg.Message(nil), prompts...)
		l.outerLoop(runCtx, out, pending, &newMessages)

		out.Push(agentmsg.AgentEvent{Type: agentmsg.AgAgentEnd, Messages: newMessages})
		out.End(&newMessages)
	}()

	return out
}

// Continue re-enters the scheduling loop with no new prompt. Precondition
// (caller's responsibility): the last history entry is a user, toolResult,
// or converted custom variant.
func (l *Loop) Continue(ctx context.Context) *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage] {
	return l.Run(ctx, nil)
}

func (l *Loop) outerLoop(ctx context.Context, out *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage], firstPending []agentmsg.Message, newMessages *[]agentmsg.AgentMessage) {
	pending := firstPending

	for {
		stopped := l.innerLoop(ctx, out, pending, newMessages)
		if stopped {
			return
		}

		if ctx.Err() != nil {
			return
		}

		var followUp []agentmsg.Message
		if l.opts.GetFollowUp != nil {
			followUp = l.opts.GetFollowUp(ctx)
		}
		if len(followUp) == 0 {
			return
		}
		pending = followUp
	}
}

// innerLoop runs tool-calling rounds until the model stops asking for tools
// (or the round cap is hit), returning true iff the run should terminate
// without polling getFollowUpMessages (error/aborted, or the round cap's
// final text-only turn). It returns false when the model replies without
// tool calls. A turn_start/turn_end pair brackets every round, including the
// very first.
func (l *Loop) innerLoop(ctx context.Context, out *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage], pending []agentmsg.Message, newMessages *[]agentmsg.AgentMessage) bool {
	for round := 0; round < l.opts.maxToolRounds(); round++ {
		out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnStart})

		for _, m := range pending {
			l.history = append(l.history, m)
			l.appendMessage(out, newMessages, m)
		}
		pending = nil

		l.injectRecitation(round)

		assistant, err := l.runOneAssistantTurn(ctx, out, newMessages)
		if err != nil {
			reason := agentmsg.StopError
			if ctx.Err() != nil {
				reason = agentmsg.StopAborted
			} else {
				log.Warn().Err(err).Msg("agent loop: assistant turn failed")
			}
			errMsg := agentmsg.Message{Role: agentmsg.RoleAssistant, Identity: l.opts.Identity, StopReason: reason, ErrorMessage: err.Error(), Timestamp: time.Now()}
			l.history = append(l.history, errMsg)
			l.appendMessage(out, newMessages, errMsg)
			out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnEnd, Message: agentmsg.AgentMessage{Kind: agentmsg.KindMessage, Message: errMsg}})
			return true
		}

		l.history = append(l.history, assistant)
		assistantAM := agentmsg.AgentMessage{Kind: agentmsg.KindMessage, Message: assistant}

		if assistant.StopReason == agentmsg.StopError || assistant.StopReason == agentmsg.StopAborted {
			out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnEnd, Message: assistantAM})
			return true
		}

		calls := assistant.ToolCalls()
		if len(calls) == 0 {
			out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnEnd, Message: assistantAM})
			return false
		}

		toolResults, steeringCaptured := l.executeToolCalls(ctx, out, newMessages, calls)
		out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnEnd, Message: assistantAM, ToolResults: toolResults})

		if steeringCaptured != nil {
			pending = steeringCaptured
		} else if l.opts.GetSteering != nil {
			pending = l.opts.GetSteering(ctx)
		}
	}

	return l.finalTextOnlyTurn(ctx, out, newMessages)
}

// finalTextOnlyTurn handles round-cap exhaustion: a final no-tools call so
// the model must reply with a text summary.
func (l *Loop) finalTextOnlyTurn(ctx context.Context, out *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage], newMessages *[]agentmsg.AgentMessage) bool {
	if err := ctx.Err(); err != nil {
		return true
	}

	out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnStart})

	limit := agentmsg.NewUserText(
		"You have exhausted your tool call limit for this turn. Respond in text only. Summarize what you accomplished and what remains.",
		time.Now(),
	)
	l.history = append(l.history, limit)
	l.appendMessage(out, newMessages, limit)

	assistant, events, err := l.runOneAssistantTurnWithTools(ctx, nil)
	if err != nil {
		out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnEnd})
		return true
	}
	for _, evt := range events {
		out.Push(evt)
	}
	assistantAM := agentmsg.AgentMessage{Kind: agentmsg.KindMessage, Message: assistant}
	*newMessages = append(*newMessages, assistantAM)
	l.history = append(l.history, assistant)
	out.Push(agentmsg.AgentEvent{Type: agentmsg.AgTurnEnd, Message: assistantAM})
	return true
}

func (l *Loop) appendMessage(out *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage], newMessages *[]agentmsg.AgentMessage, m agentmsg.Message) {
	am := agentmsg.AgentMessage{Kind: agentmsg.KindMessage, Message: m}
	out.Push(agentmsg.AgentEvent{Type: agentmsg.AgMessageStart, Message: am})
	*newMessages = append(*newMessages, am)
	out.Push(agentmsg.AgentEvent{Type: agentmsg.AgMessageEnd, Message: am})
}

// runOneAssistantTurn invokes 4.D once, with the retry-on-empty-response
// policy the teacher applies (at most one extra attempt). An attempt's
// message_start/update/end events are buffered and only flushed to out (and
// recorded into newMessages) once it's known to be the kept attempt — a
// retried empty response never reaches the UI or history, matching the
// teacher's emitAssistant-after-streamAndCollect ordering.
func (l *Loop) runOneAssistantTurn(ctx context.Context, out *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage], newMessages *[]agentmsg.AgentMessage) (agentmsg.Message, error) {
	tools := l.opts.Tools.List()
	const maxEmptyRetries = 1

	for attempt := 0; attempt <= maxEmptyRetries; attempt++ {
		last := attempt == maxEmptyRetries
		msg, events, err := l.runOneAssistantTurnWithTools(ctx, tools)
		if err != nil {
			return agentmsg.Message{}, err
		}
		if !isEmptyResponse(msg) || last {
			for _, evt := range events {
				out.Push(evt)
			}
			*newMessages = append(*newMessages, agentmsg.AgentMessage{Kind: agentmsg.KindMessage, Message: msg})
			return msg, nil
		}
		log.Warn().Int("attempt", attempt+1).Msg("agent loop: empty response from provider")
	}

	panic("unreachable")
}

func isEmptyResponse(m agentmsg.Message) bool {
	return m.Text() == "" && thinkingText(m) == "" && len(m.ToolCalls()) == 0
}

// runOneAssistantTurnWithTools runs one streamer.Run pass to completion,
// returning the finalized message and the message_start/update/end events
// it would emit, for the caller to flush (or discard, on a retried empty
// response).
func (l *Loop) runOneAssistantTurnWithTools(ctx context.Context, tools []toolrt.Tool) (agentmsg.Message, []agentmsg.AgentEvent, error) {
	normalized := transform.Transform(l.history, l.opts.Identity, l.opts.Normalizer)
	providerMessages := toProviderMessages(normalized)

	stream, err := l.opts.Provider.ChatStream(ctx, providerMessages, toProviderTools(tools))
	if err != nil {
		return agentmsg.Message{}, nil, fmt.Errorf("chat stream: %w", err)
	}

	assistantStream := streamer.Run(ctx, l.opts.Identity, stream)
	var events []agentmsg.AgentEvent
	started := false
	for {
		evt, ok := assistantStream.Next()
		if !ok {
			break
		}

		snapshot := agentmsg.Message{}
		switch {
		case evt.Message != nil:
			snapshot = *evt.Message
		case evt.Partial != nil:
			snapshot = *evt.Partial
		}
		am := agentmsg.AgentMessage{Kind: agentmsg.KindMessage, Message: snapshot}

		if !started {
			started = true
			events = append(events, agentmsg.AgentEvent{Type: agentmsg.AgMessageStart, Message: am})
		}
		delta := evt
		if evt.IsTerminal() {
			events = append(events, agentmsg.AgentEvent{Type: agentmsg.AgMessageEnd, Message: am, AssistantDelta: &delta})
		} else {
			events = append(events, agentmsg.AgentEvent{Type: agentmsg.AgMessageUpdate, Message: am, AssistantDelta: &delta})
		}
	}

	return assistantStream.Result(), events, nil
}

func (l *Loop) executeToolCalls(ctx context.Context, out *eventstream.Stream[agentmsg.AgentEvent, []agentmsg.AgentMessage], newMessages *[]agentmsg.AgentMessage, calls []agentmsg.ContentBlock) ([]agentmsg.Message, []agentmsg.Message) {
	var toolResults []agentmsg.Message

	for i, call := range calls {
		out.Push(agentmsg.AgentEvent{Type: agentmsg.AgToolExecStart, ToolCallID: call.ToolCallID, ToolName: call.ToolName})

		onPartial := func(p agentmsg.ToolResultPayload) {
			out.Push(agentmsg.AgentEvent{Type: agentmsg.AgToolExecUpdate, ToolCallID: call.ToolCallID, ToolName: call.ToolName, PartialResult: &p})
		}

		result, _ := l.opts.Tools.Call(ctx, call.ToolCallID, call.ToolName, call.ToolArguments, onPartial)
		out.Push(agentmsg.AgentEvent{Type: agentmsg.AgToolExecEnd, ToolCallID: call.ToolCallID, ToolName: call.ToolName, Result: &result, IsError: result.IsError})

		toolMsg := agentmsg.Message{
			Role:       agentmsg.RoleToolResult,
			ToolCallID: call.ToolCallID,
			ToolName:   call.ToolName,
			Content:    result.Content,
			IsError:    result.IsError,
			Details:    result.Details,
			Timestamp:  time.Now(),
		}
		l.history = append(l.history, toolMsg)
		l.appendMessage(out, newMessages, toolMsg)
		toolResults = append(toolResults, toolMsg)

		if l.opts.GetSteering == nil {
			continue
		}
		steering := l.opts.GetSteering(ctx)
		if len(steering) == 0 {
			continue
		}

		for _, skipped := range calls[i+1:] {
			skipMsg := agentmsg.Message{
				Role:       agentmsg.RoleToolResult,
				ToolCallID: skipped.ToolCallID,
				ToolName:   skipped.ToolName,
				Content:    []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: "Skipped due to queued user message."}},
				IsError:    true,
				Timestamp:  time.Now(),
			}
			out.Push(agentmsg.AgentEvent{Type: agentmsg.AgToolExecStart, ToolCallID: skipped.ToolCallID, ToolName: skipped.ToolName})
			out.Push(agentmsg.AgentEvent{Type: agentmsg.AgToolExecEnd, ToolCallID: skipped.ToolCallID, ToolName: skipped.ToolName, IsError: true})
			l.history = append(l.history, skipMsg)
			l.appendMessage(out, newMessages, skipMsg)
			toolResults = append(toolResults, skipMsg)
		}
		return toolResults, steering
	}

	return toolResults, nil
}

// injectRecitation appends a <system-reminder> block to the last
// tool-result message in history every reminderInterval rounds, keeping the
// model focused during long tool-calling loops. Scratchpad content takes
// priority over echoing the original user request.
func (l *Loop) injectRecitation(round int) {
	interval := l.opts.reminderInterval()
	if round == 0 || round%interval != 0 {
		return
	}

	var reminder string
	if l.opts.Scratchpad != nil {
		reminder = l.opts.Scratchpad.Content()
	}
	if reminder == "" {
		for _, m := range l.history {
			if m.Role == agentmsg.RoleUser {
				reminder = "The user's request: " + m.Text()
				break
			}
		}
	}
	if reminder == "" {
		return
	}

	tag := "\n\n<system-reminder>\n"
	for i := len(l.history) - 1; i >= 0; i-- {
		if l.history[i].Role != agentmsg.RoleToolResult {
			continue
		}
		text := l.history[i].Text()
		if idx := strings.Index(text, tag); idx >= 0 {
			text = text[:idx]
		}
		text += tag + reminder + "\n</system-reminder>"
		l.history[i].Content = []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: text}}
		return
	}
}
