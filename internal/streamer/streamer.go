// Package streamer implements the Assistant Response Streamer described in
// SPEC_FULL.md §4.D: it consumes one provider's StreamEvent channel and
// drives an eventstream.Stream[AssistantMessageEvent, Message] of
// provider-agnostic snapshots, reconstructing tool-call arguments
// progressively as they stream in.
package streamer

import (
	"context"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/eventstream"
	provider "github.com/relaywire/agentcore/internal/providerhub"
)

// toolCallAccumulator tracks in-progress tool calls by their provider-given
// index, concatenating argument fragments and re-parsing after each delta.
// Mirrors the teacher's byIndex/argBuilders shape, generalized to also keep
// a live ContentBlock per call for snapshotting.
type toolCallAccumulator struct {
	byIndex     map[int]int
	blocks      []agentmsg.ContentBlock
	argBuilders []string
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIndex: make(map[int]int)}
}

func (a *toolCallAccumulator) begin(evt provider.StreamEvent) int {
	pos := len(a.blocks)
	a.byIndex[evt.ToolCallIndex] = pos
	a.blocks = append(a.blocks, agentmsg.ContentBlock{
		Kind:             agentmsg.BlockToolCall,
		ToolCallID:       evt.ToolCallID,
		ToolName:         evt.ToolCallName,
		ThoughtSignature: evt.ToolCallSignature,
		ToolArguments:    repairPartialJSON(""),
	})
	a.argBuilders = append(a.argBuilders, "")
	return pos
}

func (a *toolCallAccumulator) delta(evt provider.StreamEvent) int {
	pos, ok := a.byIndex[evt.ToolCallIndex]
	if !ok {
		return -1
	}
	a.argBuilders[pos] += evt.ToolCallArgs
	a.blocks[pos].ToolArguments = repairPartialJSON(a.argBuilders[pos])
	return pos
}

// freeze re-parses the full accumulated argument string one last time and
// returns the frozen block, used at toolcall_end where the spec requires
// the parser's final output rather than an intermediate repair.
func (a *toolCallAccumulator) freeze(pos int) agentmsg.ContentBlock {
	if pos < 0 || pos >= len(a.blocks) {
		return agentmsg.ContentBlock{}
	}
	a.blocks[pos].ToolArguments = repairPartialJSON(a.argBuilders[pos])
	return a.blocks[pos]
}

// snapshot is the mutable-in-place partial assistant message; Stream only
// ever emits deep copies of it (via Message.Clone), never the live value, so
// concurrent readers can't observe a half-mutated instance.
type snapshot struct {
	msg      agentmsg.Message
	textIdx  int // index of the in-progress text block, or -1
	thinkIdx int // index of the in-progress thinking block, or -1
	textBuf  string
	thinkBuf string
}

func newSnapshot(identity agentmsg.ModelIdentity, at time.Time) *snapshot {
	return &snapshot{
		msg:      agentmsg.Message{Role: agentmsg.RoleAssistant, Identity: identity, Timestamp: at},
		textIdx:  -1,
		thinkIdx: -1,
	}
}

func (s *snapshot) clone() agentmsg.Message {
	return s.msg.Clone()
}

type eventOut = *eventstream.Stream[agentmsg.AssistantMessageEvent, agentmsg.Message]

// Run drives one assistant turn's streamer flow (SPEC_FULL.md §4.D steps
// 4-7). It starts a goroutine that reads from events until the channel
// closes, and returns the stream the caller iterates for UI-facing
// AssistantMessageEvents. The finalized Message is available from
// out.Result() once out.Done() closes.
func Run(ctx context.Context, identity agentmsg.ModelIdentity, events <-chan provider.StreamEvent) *eventstream.Stream[agentmsg.AssistantMessageEvent, agentmsg.Message] {
	out := eventstream.New[agentmsg.AssistantMessageEvent, agentmsg.Message]()

	go func() {
		snap := newSnapshot(identity, time.Now())
		tca := newToolCallAccumulator()
		started := false
		openToolCall := -1 // accumulator position of the tool call awaiting its end event

		emitStart := func() {
			if started {
				return
			}
			started = true
			partial := snap.clone()
			out.Push(agentmsg.AssistantMessageEvent{Type: agentmsg.EvStart, Partial: &partial})
		}

		closeOpenToolCall := func() {
			if openToolCall < 0 {
				return
			}
			block := tca.freeze(openToolCall)
			idx := toolCallContentIndex(snap, openToolCall)
			if idx >= 0 {
				snap.msg.Content[idx] = block
			}
			partial := snap.clone()
			out.Push(agentmsg.AssistantMessageEvent{
				Type:         agentmsg.EvToolCallEnd,
				ContentIndex: idx,
				ToolCall:     block,
				Partial:      &partial,
			})
			openToolCall = -1
		}

		for {
			select {
			case <-ctx.Done():
				closeOpenToolCall()
				errMsg := finalize(snap, agentmsg.StopAborted)
				out.Push(agentmsg.AssistantMessageEvent{Type: agentmsg.EvError, Err: ctx.Err(), Message: &errMsg, Reason: agentmsg.StopAborted})
				return
			case evt, ok := <-events:
				if !ok {
					closeOpenToolCall()
					msg := finalize(snap, agentmsg.StopStop)
					out.Push(agentmsg.AssistantMessageEvent{Type: agentmsg.EvDone, Message: &msg, Reason: agentmsg.StopStop})
					return
				}

				emitStart()

				switch evt.Type {
				case provider.EventContentDelta:
					pushTextDelta(out, snap, evt.Content)
				case provider.EventReasoningDelta:
					pushThinkDelta(out, snap, evt.Content)
				case provider.EventToolCallBegin:
					closeOpenToolCall()
					pos := tca.begin(evt)
					snap.msg.Content = append(snap.msg.Content, tca.blocks[pos])
					openToolCall = pos
					partial := snap.clone()
					out.Push(agentmsg.AssistantMessageEvent{
						Type:         agentmsg.EvToolCallStart,
						ContentIndex: len(snap.msg.Content) - 1,
						ToolCall:     tca.blocks[pos],
						Partial:      &partial,
					})
				case provider.EventToolCallDelta:
					pos := tca.delta(evt)
					if pos < 0 {
						continue
					}
					idx := toolCallContentIndex(snap, pos)
					if idx >= 0 {
						snap.msg.Content[idx] = tca.blocks[pos]
					}
					partial := snap.clone()
					out.Push(agentmsg.AssistantMessageEvent{
						Type:         agentmsg.EvToolCallDelta,
						ContentIndex: idx,
						Delta:        evt.ToolCallArgs,
						ToolCall:     tca.blocks[pos],
						Partial:      &partial,
					})
				case provider.EventUsage:
					if evt.InputTokens > snap.msg.Usage.Input {
						snap.msg.Usage.Input = evt.InputTokens
					}
					if evt.OutputTokens > snap.msg.Usage.Output {
						snap.msg.Usage.Output = evt.OutputTokens
					}
				case provider.EventError:
					closeOpenToolCall()
					msg := finalize(snap, agentmsg.StopError)
					msg.ErrorMessage = evt.Err.Error()
					out.Push(agentmsg.AssistantMessageEvent{Type: agentmsg.EvError, Err: evt.Err, Message: &msg, Reason: agentmsg.StopError})
					return
				case provider.EventDone:
					closeOpenToolCall()
					reason := agentmsg.StopStop
					if len(tca.blocks) > 0 {
						reason = agentmsg.StopToolUse
					}
					msg := finalize(snap, reason)
					out.Push(agentmsg.AssistantMessageEvent{Type: agentmsg.EvDone, Message: &msg, Reason: reason})
					return
				}
			}
		}
	}()

	return out
}

// toolCallContentIndex finds the position of accumulator slot pos inside
// snap.msg.Content (accumulator positions and content positions coincide
// only while no text/thinking blocks are interleaved before it, so this
// walks by ordinal tool-call position instead of assuming index equality).
func toolCallContentIndex(snap *snapshot, pos int) int {
	count := -1
	for i, b := range snap.msg.Content {
		if b.Kind == agentmsg.BlockToolCall {
			count++
			if count == pos {
				return i
			}
		}
	}
	return -1
}

func pushTextDelta(out eventOut, snap *snapshot, delta string) {
	if snap.textIdx < 0 {
		snap.msg.Content = append(snap.msg.Content, agentmsg.ContentBlock{Kind: agentmsg.BlockText})
		snap.textIdx = len(snap.msg.Content) - 1
		snap.textBuf = ""
	}
	snap.textBuf += delta
	snap.msg.Content[snap.textIdx].Text = snap.textBuf
	partial := snap.clone()
	out.Push(agentmsg.AssistantMessageEvent{
		Type:         agentmsg.EvTextDelta,
		ContentIndex: snap.textIdx,
		Delta:        delta,
		Partial:      &partial,
	})
}

func pushThinkDelta(out eventOut, snap *snapshot, delta string) {
	if snap.thinkIdx < 0 {
		snap.msg.Content = append(snap.msg.Content, agentmsg.ContentBlock{Kind: agentmsg.BlockThinking})
		snap.thinkIdx = len(snap.msg.Content) - 1
		snap.thinkBuf = ""
	}
	snap.thinkBuf += delta
	snap.msg.Content[snap.thinkIdx].Text = snap.thinkBuf
	partial := snap.clone()
	out.Push(agentmsg.AssistantMessageEvent{
		Type:         agentmsg.EvThinkDelta,
		ContentIndex: snap.thinkIdx,
		Delta:        delta,
		Partial:      &partial,
	})
}

func finalize(snap *snapshot, reason agentmsg.StopReason) agentmsg.Message {
	snap.msg.StopReason = reason
	return snap.clone()
}
