// Package proxycodec implements the Proxy Codec described in
// SPEC_FULL.md §4.I: a stateless, deterministic encode/decode pair that
// strips the bulky Partial snapshot from every AssistantMessageEvent before
// it crosses a proxy/transport boundary, and reconstructs it client-side
// from the event sequence alone.
package proxycodec

import (
	"encoding/json"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/streamer"
)

// WireEvent is the leaner transport shape of agentmsg.AssistantMessageEvent:
// every field except Partial and Message (which the client rebuilds locally)
// and Err (flattened to a string so it survives JSON transport).
type WireEvent struct {
	Type agentmsg.AssistantEventType `json:"type"`

	ContentIndex int    `json:"contentIndex,omitempty"`
	Delta        string `json:"delta,omitempty"`
	Content      string `json:"content,omitempty"`

	ToolCall agentmsg.ContentBlock `json:"toolCall"`

	Reason agentmsg.StopReason `json:"reason,omitempty"`
	Usage  agentmsg.Usage      `json:"usage,omitempty"`
	ErrMsg string              `json:"error,omitempty"`
}

// Encode strips Partial (and the finalized Message, redundant with the
// client's own reconstruction) from evt, producing the wire-efficient form.
// done carries usage only, per SPEC_FULL.md §4.I.
func Encode(evt agentmsg.AssistantMessageEvent) WireEvent {
	w := WireEvent{
		Type:         evt.Type,
		ContentIndex: evt.ContentIndex,
		Delta:        evt.Delta,
		Content:      evt.Content,
		ToolCall:     evt.ToolCall,
		Reason:       evt.Reason,
		Usage:        evt.Usage,
	}
	if evt.Err != nil {
		w.ErrMsg = evt.Err.Error()
	}
	if evt.Type == agentmsg.EvDone && evt.Message != nil {
		w.Usage = evt.Message.Usage
	}
	return w
}

// Decoder rebuilds a running partial Message from a sequence of WireEvents,
// mirroring internal/streamer's snapshot/toolCallAccumulator block-by-index
// logic so the two stay byte-for-byte consistent given the same event
// sequence. One Decoder serves exactly one stream.
type Decoder struct {
	identity agentmsg.ModelIdentity

	msg      agentmsg.Message
	textIdx  int
	thinkIdx int
	textBuf  string
	thinkBuf string

	toolByIndex map[int]int // wire ContentIndex -> argBuilders position
	argBuilders []string
}

// NewDecoder creates a Decoder for one stream produced by a model with the
// given identity.
func NewDecoder(identity agentmsg.ModelIdentity) *Decoder {
	return &Decoder{
		identity:    identity,
		msg:         agentmsg.Message{Role: agentmsg.RoleAssistant, Identity: identity},
		textIdx:     -1,
		thinkIdx:    -1,
		toolByIndex: make(map[int]int),
	}
}

// Apply feeds one WireEvent into the decoder and returns the reconstructed
// partial message snapshot after applying it (the finalized message, with
// Message.StopReason set, once w.Type is done/error).
func (d *Decoder) Apply(w WireEvent) agentmsg.Message {
	switch w.Type {
	case agentmsg.EvTextDelta:
		if d.textIdx < 0 {
			d.msg.Content = append(d.msg.Content, agentmsg.ContentBlock{Kind: agentmsg.BlockText})
			d.textIdx = len(d.msg.Content) - 1
		}
		d.textBuf += w.Delta
		d.msg.Content[d.textIdx].Text = d.textBuf

	case agentmsg.EvThinkDelta:
		if d.thinkIdx < 0 {
			d.msg.Content = append(d.msg.Content, agentmsg.ContentBlock{Kind: agentmsg.BlockThinking})
			d.thinkIdx = len(d.msg.Content) - 1
		}
		d.thinkBuf += w.Delta
		d.msg.Content[d.thinkIdx].Text = d.thinkBuf

	case agentmsg.EvToolCallStart:
		pos := len(d.argBuilders)
		d.toolByIndex[w.ContentIndex] = pos
		d.argBuilders = append(d.argBuilders, "")
		block := w.ToolCall
		block.ToolArguments = streamer.RepairPartialJSON("")
		d.msg.Content = append(d.msg.Content, block)

	case agentmsg.EvToolCallDelta:
		pos, ok := d.toolByIndex[w.ContentIndex]
		if !ok {
			break
		}
		d.argBuilders[pos] += w.Delta
		if w.ContentIndex >= 0 && w.ContentIndex < len(d.msg.Content) {
			d.msg.Content[w.ContentIndex].ToolArguments = streamer.RepairPartialJSON(d.argBuilders[pos])
		}

	case agentmsg.EvToolCallEnd:
		pos, ok := d.toolByIndex[w.ContentIndex]
		if ok && w.ContentIndex >= 0 && w.ContentIndex < len(d.msg.Content) {
			frozen := w.ToolCall
			frozen.ToolArguments = streamer.RepairPartialJSON(d.argBuilders[pos])
			d.msg.Content[w.ContentIndex] = frozen
		}

	case agentmsg.EvDone, agentmsg.EvError:
		d.msg.StopReason = w.Reason
		d.msg.Usage = w.Usage
		if w.ErrMsg != "" {
			d.msg.ErrorMessage = w.ErrMsg
		}
	}

	return d.msg.Clone()
}

// MarshalWireEvents is a convenience for transports that batch events as a
// single JSON array (e.g. a proxy's buffered HTTP response body).
func MarshalWireEvents(events []WireEvent) ([]byte, error) {
	return json.Marshal(events)
}

// UnmarshalWireEvents is the inverse of MarshalWireEvents.
func UnmarshalWireEvents(data []byte) ([]WireEvent, error) {
	var events []WireEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}
