package agentmsg

// AssistantEventType enumerates the direct-transport provider event kinds
// named in SPEC_FULL.md §6.
type AssistantEventType string

const (
	EvStart         AssistantEventType = "start"
	EvTextStart     AssistantEventType = "text_start"
	EvTextDelta     AssistantEventType = "text_delta"
	EvTextEnd       AssistantEventType = "text_end"
	EvThinkStart    AssistantEventType = "thinking_start"
	EvThinkDelta    AssistantEventType = "thinking_delta"
	EvThinkEnd      AssistantEventType = "thinking_end"
	EvToolCallStart AssistantEventType = "toolcall_start"
	EvToolCallDelta AssistantEventType = "toolcall_delta"
	EvToolCallEnd   AssistantEventType = "toolcall_end"
	EvDone          AssistantEventType = "done"
	EvError         AssistantEventType = "error"
)

// AssistantMessageEvent is one streaming delta from a provider adapter. Not
// every field is populated for every Type; see SPEC_FULL.md §6 for the
// per-type shape. Partial is the full assistant message snapshot so far,
// always present except when produced by the proxy codec's client side
// (which instead rebuilds it locally).
type AssistantMessageEvent struct {
	Type AssistantEventType

	ContentIndex int
	Delta        string
	Content      string // frozen content on *_end

	ToolCall ContentBlock // frozen tool call on toolcall_end

	Partial *Message

	Reason  StopReason // set on done/error
	Message *Message   // finalized message, set on done/error
	Usage   Usage
	Err     error
}

// IsTerminal reports whether this event ends the stream, satisfying the
// EventStream<T,R> contract's isTerminal predicate for assistant streams.
func (e AssistantMessageEvent) IsTerminal() bool {
	return e.Type == EvDone || e.Type == EvError
}

// ExtractResult implements the EventStream<T,R> extractResult predicate for
// assistant streams: the finalized message.
func (e AssistantMessageEvent) ExtractResult() Message {
	if e.Message != nil {
		return *e.Message
	}
	if e.Partial != nil {
		return *e.Partial
	}
	return Message{}
}

// AgentEventType enumerates the UI-surface event kinds named in
// SPEC_FULL.md §6.
type AgentEventType string

const (
	AgAgentStart       AgentEventType = "agent_start"
	AgAgentEnd         AgentEventType = "agent_end"
	AgTurnStart        AgentEventType = "turn_start"
	AgTurnEnd          AgentEventType = "turn_end"
	AgMessageStart     AgentEventType = "message_start"
	AgMessageUpdate    AgentEventType = "message_update"
	AgMessageEnd       AgentEventType = "message_end"
	AgToolExecStart    AgentEventType = "tool_execution_start"
	AgToolExecUpdate   AgentEventType = "tool_execution_update"
	AgToolExecEnd      AgentEventType = "tool_execution_end"
)

// ToolResultPayload is the ToolResult{content, details} pair a Tool's
// execute returns.
type ToolResultPayload struct {
	Content []ContentBlock
	Details any
	IsError bool
}

// AgentEvent is one UI-surface event emitted by the agent loop.
type AgentEvent struct {
	Type AgentEventType

	// agent_end
	Messages []AgentMessage

	// turn_end
	ToolResults []Message

	// message_start/update/end
	Message              AgentMessage
	AssistantDelta       *AssistantMessageEvent

	// tool_execution_*
	ToolCallID    string
	ToolName      string
	Args          map[string]any
	PartialResult *ToolResultPayload
	Result        *ToolResultPayload
	IsError       bool
}

// IsTerminal implements EventStream<AgentEvent, []AgentMessage>'s terminal
// predicate for an agent run.
func (e AgentEvent) IsTerminal() bool {
	return e.Type == AgAgentEnd
}

// ExtractResult implements EventStream<AgentEvent, []AgentMessage>'s result
// extraction for an agent run.
func (e AgentEvent) ExtractResult() []AgentMessage {
	return e.Messages
}
