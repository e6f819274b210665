package compact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/relaywire/agentcore/internal/agentloop"
	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
	"github.com/relaywire/agentcore/internal/streamer"
)

// PromptKind selects one of the three summarization prompt shapes named in
// SPEC_FULL.md §4.G.
type PromptKind string

const (
	PromptInitial    PromptKind = "initial"
	PromptUpdate     PromptKind = "update"
	PromptTurnPrefix PromptKind = "turn_prefix"
)

// initialPrompt is rendered for PromptInitial; PromptUpdate renders
// updatePreamble alone, which asks for the previous summary's section
// structure — the teacher's summarization prompt (see other_examples' crush
// reference) names "decisions / code changes / active goals / blockers";
// this generalizes that shape into the six explicitly-named sections
// SPEC_FULL.md requires.
const initialPrompt = `Provide a structured summary of the conversation above. Preserve exact file paths, function names, and error strings verbatim; do not paraphrase identifiers. Use exactly these sections:

## Goal
## Constraints & Preferences
## Progress
(subsections: Done, In Progress, Blocked)
## Key Decisions
## Next Steps
## Critical Context`

const updatePreamble = `The following is a summary of the conversation so far:

<previous-summary>
%s
</previous-summary>

Produce an updated summary with the same section structure, merging in everything new above: move completed items into Done, preserve prior decisions, remove blockers that are now resolved, and keep precise identifiers (file paths, function names, error strings).`

const turnPrefixPrompt = `The conversation above is the beginning of a single conversational turn that was split by compaction. Summarize only this prefix using exactly these sections:

## Original Request
## Early Progress
## Context for Suffix`

// SummarizeRequest bundles one summarization call's inputs.
type SummarizeRequest struct {
	Kind            PromptKind
	Messages        []agentmsg.Message // the entries to summarize, already converted to LM messages
	PreviousSummary string             // PromptUpdate only
	ReserveTokens   int
}

// outputBudget returns the advisory token budget for req.Kind, per
// SPEC_FULL.md §4.G: ⌊0.8·reserveTokens⌋ for initial/update, ⌊0.5·reserveTokens⌋
// for turn-prefix.
func (r SummarizeRequest) outputBudget() int {
	switch r.Kind {
	case PromptTurnPrefix:
		return r.ReserveTokens / 2
	default:
		return (r.ReserveTokens * 8) / 10
	}
}

func (r SummarizeRequest) instruction() string {
	budget := r.outputBudget()
	var body string
	switch r.Kind {
	case PromptUpdate:
		body = fmt.Sprintf(updatePreamble, r.PreviousSummary)
	case PromptTurnPrefix:
		body = turnPrefixPrompt
	default:
		body = initialPrompt
	}
	if budget > 0 {
		body += fmt.Sprintf("\n\nKeep the summary within approximately %d tokens.", budget)
	}
	return body
}

// Summarize invokes the model to produce one structured summary. On
// success it returns the trimmed summary text and the usage the model
// reported; on a stopReason=error turn it surfaces the error directly, with
// no automatic retry at this layer (SPEC_FULL.md §4.G).
func Summarize(ctx context.Context, p provider.Provider, identity agentmsg.ModelIdentity, req SummarizeRequest) (string, agentmsg.Usage, error) {
	prompt := agentmsg.NewUserText(req.instruction(), time.Now())
	messages := append(append([]agentmsg.Message(nil), req.Messages...), prompt)

	wireMessages := agentloop.ToProviderMessages(messages)
	events, err := p.ChatStream(ctx, wireMessages, nil)
	if err != nil {
		return "", agentmsg.Usage{}, fmt.Errorf("summarize chat stream: %w", err)
	}

	out := streamer.Run(ctx, identity, events)
	for {
		_, ok := out.Next()
		if !ok {
			break
		}
	}

	final := out.Result()
	if final.StopReason == agentmsg.StopError {
		return "", final.Usage, fmt.Errorf("summarize turn failed: %s", final.ErrorMessage)
	}
	return strings.TrimSpace(final.Text()), final.Usage, nil
}
