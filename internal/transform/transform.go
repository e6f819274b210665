// Package transform implements the cross-model message normalization pass
// described in SPEC_FULL.md §4.B: per-message cleanup followed by orphan
// tool-call repair, run before any provider-specific wire conversion.
package transform

import (
	"fmt"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
)

// IDNormalizer maps a source tool-call id to a new id acceptable to the
// target model. Called only on cross-model replay. Implementations must be
// deterministic and collision-free within one Transform call.
type IDNormalizer func(id string, target agentmsg.ModelIdentity, source agentmsg.Message) string

// Now is overridable in tests; defaults to time.Now.
var Now = time.Now

// Transform runs the two-pass normalization over messages for replay to
// target, using normalizer (optional) for cross-model tool-call id rewrites.
func Transform(messages []agentmsg.Message, target agentmsg.ModelIdentity, normalizer IDNormalizer) []agentmsg.Message {
	pass1 := firstPass(messages, target, normalizer)
	return orphanRepair(pass1)
}

func firstPass(messages []agentmsg.Message, target agentmsg.ModelIdentity, normalizer IDNormalizer) []agentmsg.Message {
	out := make([]agentmsg.Message, 0, len(messages))
	idRewrite := map[string]string{}

	for _, m := range messages {
		switch m.Role {
		case agentmsg.RoleUser:
			out = append(out, m.Clone())
		case agentmsg.RoleToolResult:
			rewritten := m.Clone()
			if newID, ok := idRewrite[rewritten.ToolCallID]; ok {
				rewritten.ToolCallID = newID
			}
			out = append(out, rewritten)
		case agentmsg.RoleAssistant:
			sameModel := m.Identity.Equal(target)
			blocks := make([]agentmsg.ContentBlock, 0, len(m.Content))
			for _, b := range m.Content {
				switch b.Kind {
				case agentmsg.BlockThinking:
					switch {
					case sameModel && b.Signature != "":
						blocks = append(blocks, b.Clone())
					case b.Text == "":
						// drop: empty thinking blocks are never preserved
					case sameModel:
						blocks = append(blocks, b.Clone())
					default:
						downgraded := b.Clone()
						downgraded.Kind = agentmsg.BlockText
						downgraded.Signature = ""
						blocks = append(blocks, downgraded)
					}
				case agentmsg.BlockText:
					kept := b.Clone()
					if !sameModel {
						kept.Signature = ""
					}
					blocks = append(blocks, kept)
				case agentmsg.BlockToolCall:
					kept := b.Clone()
					if !sameModel {
						kept.ThoughtSignature = ""
						if normalizer != nil {
							newID := normalizer(kept.ToolCallID, target, m)
							idRewrite[kept.ToolCallID] = newID
							kept.ToolCallID = newID
						}
					}
					blocks = append(blocks, kept)
				default:
					blocks = append(blocks, b.Clone())
				}
			}
			rewritten := m.Clone()
			rewritten.Content = blocks
			out = append(out, rewritten)
		}
	}
	return out
}

func orphanRepair(messages []agentmsg.Message) []agentmsg.Message {
	out := make([]agentmsg.Message, 0, len(messages))
	var pending []string

	flush := func() {
		for _, id := range pending {
			out = append(out, agentmsg.Message{
				Role:       agentmsg.RoleToolResult,
				ToolCallID: id,
				Content:    []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: "No result provided"}},
				IsError:    true,
				Timestamp:  Now(),
			})
		}
		pending = nil
	}

	for _, m := range messages {
		switch m.Role {
		case agentmsg.RoleUser:
			flush()
			out = append(out, m)
		case agentmsg.RoleAssistant:
			if m.StopReason == agentmsg.StopError || m.StopReason == agentmsg.StopAborted {
				continue
			}
			calls := m.ToolCalls()
			if len(pending) > 0 {
				flush()
			}
			out = append(out, m)
			pending = nil
			for _, c := range calls {
				pending = append(pending, c.ToolCallID)
			}
		case agentmsg.RoleToolResult:
			pending = removeID(pending, m.ToolCallID)
			out = append(out, m)
		}
	}
	flush()
	return out
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// DefaultNormalizer assigns short, collision-free ids of the form
// "toolu_%04d" in call order, matching the style shown in SPEC_FULL.md
// scenario S6.
func DefaultNormalizer() IDNormalizer {
	counter := 0
	seen := map[string]string{}
	return func(id string, _ agentmsg.ModelIdentity, _ agentmsg.Message) string {
		if existing, ok := seen[id]; ok {
			return existing
		}
		counter++
		newID := fmt.Sprintf("toolu_%04d", counter)
		seen[id] = newID
		return newID
	}
}
