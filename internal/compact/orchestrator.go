package compact

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
	"github.com/relaywire/agentcore/internal/store"
)

// TriggerReason classifies why (or whether) a compaction should run, per the
// trigger policy in SPEC_FULL.md §4.H.
type TriggerReason string

const (
	TriggerNone      TriggerReason = "none"
	TriggerOverflow  TriggerReason = "overflow"
	TriggerThreshold TriggerReason = "threshold"
)

// TriggerInput is evaluated on every agent_end to decide whether to
// compact.
type TriggerInput struct {
	StopReason        agentmsg.StopReason
	IsContextOverflow bool
	FailingModel      agentmsg.ModelIdentity
	CurrentModel      agentmsg.ModelIdentity
	FailingEntrySeq   int64 // seq of the entry to delete on an overflow trigger

	ContextTokens int
	ContextWindow int
	ReserveTokens int
}

// DecideTrigger implements the four-step policy from SPEC_FULL.md §4.H.
func DecideTrigger(in TriggerInput) TriggerReason {
	if in.StopReason == agentmsg.StopAborted {
		return TriggerNone
	}
	if in.IsContextOverflow && in.FailingModel.Equal(in.CurrentModel) {
		return TriggerOverflow
	}
	if in.StopReason == agentmsg.StopError {
		return TriggerNone
	}
	if in.ContextTokens > in.ContextWindow-in.ReserveTokens {
		return TriggerThreshold
	}
	return TriggerNone
}

// knownFileTools names the demonstrative tools (internal/tools) whose
// arguments carry a file path worth tracking across compaction, per
// SPEC_FULL.md §4.H's "known file-effecting tools" extraction step.
var knownFileTools = map[string]bool{
	"read": false, // false = read-only
	"edit": true,  // true = modifies
}

// Hooks are the extension points named in SPEC_FULL.md §4.H. Any may be nil.
type Hooks struct {
	// BeforeCompact may substitute a summary/details or cancel the run by
	// returning ok=false.
	BeforeCompact func(Preparation) (summary string, details store.CompactionDetails, ok bool)
	// Compact is notified once the new entry has been written.
	Compact func(Result)
}

// Orchestrator owns the trigger policy, preparation, and execution of
// compaction for one store.Cache.
type Orchestrator struct {
	Store             *store.Cache
	SummarizeProvider provider.Provider
	Identity          agentmsg.ModelIdentity
	KeepRecentTokens  int
	ReserveTokens     int
	Hooks             Hooks
}

// Preparation is the pure-function output of planning one compaction run.
type Preparation struct {
	SessionID string

	BoundaryStart int
	BoundaryEnd   int
	FirstKeptIdx  int
	TurnStartIdx  int
	IsSplitTurn   bool

	MessagesToSummarize []store.SessionEntry
	TurnPrefixMessages  []store.SessionEntry
	KeptTail            []store.SessionEntry

	PreviousSummary string
	TokensBefore    int
	ReadFiles       []string
	ModifiedFiles   []string
}

// Result is what one compaction run produced.
type Result struct {
	Entry   store.SessionEntry
	Summary string
}

// Prepare plans a compaction without mutating anything (SPEC_FULL.md §4.H
// preparation step).
func (o *Orchestrator) Prepare(sessionID string) (Preparation, error) {
	entries, err := o.Store.LoadEntries(sessionID)
	if err != nil {
		return Preparation{}, fmt.Errorf("load entries: %w", err)
	}

	boundaryStart := 0
	var previousSummary string
	var prevReadFiles, prevModifiedFiles []string
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == store.EntryCompaction {
			boundaryStart = i + 1
			previousSummary = entries[i].Summary
			prevReadFiles = entries[i].Details.ReadFiles
			prevModifiedFiles = entries[i].Details.ModifiedFiles
			break
		}
	}
	boundaryEnd := len(entries)

	firstKeptIdx, turnStartIdx, isSplitTurn := FindCutPoint(entries, boundaryStart, boundaryEnd, o.KeepRecentTokens)

	historyEnd := firstKeptIdx
	if isSplitTurn {
		historyEnd = turnStartIdx
	}

	prep := Preparation{
		SessionID:           sessionID,
		BoundaryStart:       boundaryStart,
		BoundaryEnd:         boundaryEnd,
		FirstKeptIdx:        firstKeptIdx,
		TurnStartIdx:        turnStartIdx,
		IsSplitTurn:         isSplitTurn,
		MessagesToSummarize: entries[boundaryStart:historyEnd],
		KeptTail:            entries[firstKeptIdx:boundaryEnd],
		PreviousSummary:     previousSummary,
	}
	if isSplitTurn {
		prep.TurnPrefixMessages = entries[turnStartIdx:firstKeptIdx]
	}

	for i := boundaryStart; i < boundaryEnd; i++ {
		prep.TokensBefore += EstimateTokens(entries[i])
	}

	read, modified := extractFileOps(append(append([]store.SessionEntry(nil), prep.MessagesToSummarize...), prep.TurnPrefixMessages...))
	prep.ReadFiles = unionSorted(prevReadFiles, read)
	prep.ModifiedFiles = unionSorted(prevModifiedFiles, modified)

	return prep, nil
}

// extractFileOps scans assistant tool-call blocks across entries for known
// file-effecting tools, returning the union of read and modified paths.
func extractFileOps(entries []store.SessionEntry) (read []string, modified []string) {
	for _, e := range entries {
		if e.Kind != store.EntryMessage || e.Message.Role != agentmsg.RoleAssistant {
			continue
		}
		for _, call := range e.Message.ToolCalls() {
			modifies, known := knownFileTools[call.ToolName]
			if !known {
				continue
			}
			path := toolArgPath(call.ToolArguments)
			if path == "" {
				continue
			}
			if modifies {
				modified = append(modified, path)
			} else {
				read = append(read, path)
			}
		}
	}
	return read, modified
}

func toolArgPath(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ""
	}
	return args.Path
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Execute runs the summarization calls planned by prep and writes the
// resulting compaction entry (SPEC_FULL.md §4.H execution step).
func (o *Orchestrator) Execute(ctx context.Context, prep Preparation) (Result, error) {
	req := func(kind PromptKind, msgs []store.SessionEntry) SummarizeRequest {
		return SummarizeRequest{
			Kind:            kind,
			Messages:        toLLMMessages(msgs),
			PreviousSummary: prep.PreviousSummary,
			ReserveTokens:   o.ReserveTokens,
		}
	}
	historyKind := PromptInitial
	if prep.PreviousSummary != "" {
		historyKind = PromptUpdate
	}

	var summary string
	if prep.IsSplitTurn {
		var historySummary, turnSummary string
		var historyErr, turnErr error
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			historySummary, _, historyErr = Summarize(ctx, o.SummarizeProvider, o.Identity, req(historyKind, prep.MessagesToSummarize))
		}()
		go func() {
			defer wg.Done()
			turnSummary, _, turnErr = Summarize(ctx, o.SummarizeProvider, o.Identity, req(PromptTurnPrefix, prep.TurnPrefixMessages))
		}()
		wg.Wait()
		if historyErr != nil {
			return Result{}, historyErr
		}
		if turnErr != nil {
			return Result{}, turnErr
		}
		summary = historySummary + "\n\n---\n\n**Turn Context (split turn):**\n\n" + turnSummary
	} else {
		var err error
		summary, _, err = Summarize(ctx, o.SummarizeProvider, o.Identity, req(historyKind, prep.MessagesToSummarize))
		if err != nil {
			return Result{}, err
		}
	}

	details := store.CompactionDetails{ReadFiles: prep.ReadFiles, ModifiedFiles: prep.ModifiedFiles}
	summary += formatFileOpsSection(details)

	if o.Hooks.BeforeCompact != nil {
		if overrideSummary, overrideDetails, ok := o.Hooks.BeforeCompact(prep); !ok {
			return Result{}, fmt.Errorf("compaction cancelled by before_compact hook")
		} else if overrideSummary != "" {
			summary = overrideSummary
			details = overrideDetails
		}
	}

	firstKeptEntryID := ""
	if len(prep.KeptTail) > 0 {
		firstKeptEntryID = prep.KeptTail[0].ID
	}

	entryID, err := o.Store.AppendEntry(store.SessionEntry{
		SessionID:        prep.SessionID,
		Kind:             store.EntryCompaction,
		Summary:          summary,
		FirstKeptEntryID: firstKeptEntryID,
		TokensBefore:     prep.TokensBefore,
		Details:          details,
		CreatedAt:        time.Now(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("append compaction entry: %w", err)
	}

	result := Result{
		Entry: store.SessionEntry{
			ID:               entryID,
			SessionID:        prep.SessionID,
			Kind:             store.EntryCompaction,
			Summary:          summary,
			FirstKeptEntryID: firstKeptEntryID,
			TokensBefore:     prep.TokensBefore,
			Details:          details,
		},
		Summary: summary,
	}
	if o.Hooks.Compact != nil {
		o.Hooks.Compact(result)
	}
	return result, nil
}

func formatFileOpsSection(d store.CompactionDetails) string {
	if len(d.ReadFiles) == 0 && len(d.ModifiedFiles) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## Files Touched\n")
	if len(d.ReadFiles) > 0 {
		b.WriteString("Read: " + strings.Join(d.ReadFiles, ", ") + "\n")
	}
	if len(d.ModifiedFiles) > 0 {
		b.WriteString("Modified: " + strings.Join(d.ModifiedFiles, ", ") + "\n")
	}
	return b.String()
}

// toLLMMessages drops entries down to their LM-facing agentmsg.Message,
// skipping metadata/compaction entries (they carry no message content).
func toLLMMessages(entries []store.SessionEntry) []agentmsg.Message {
	var out []agentmsg.Message
	for _, e := range entries {
		if e.Kind == store.EntryMessage {
			out = append(out, e.Message)
		}
	}
	return out
}

// Compact runs Prepare then Execute in one call, the common case for a
// non-interactive trigger.
func (o *Orchestrator) Compact(ctx context.Context, sessionID string) (Result, error) {
	prep, err := o.Prepare(sessionID)
	if err != nil {
		return Result{}, err
	}
	return o.Execute(ctx, prep)
}

// HandleTurnEnd evaluates the trigger policy for one agent_end and, if
// triggered, deletes the failing entry (overflow only) and runs compaction.
// shouldContinue reports whether the caller should re-invoke Loop.Continue
// after a short delay (overflow trigger only, SPEC_FULL.md §4.H step 2).
func (o *Orchestrator) HandleTurnEnd(ctx context.Context, sessionID string, in TriggerInput) (triggered bool, shouldContinue bool, err error) {
	reason := DecideTrigger(in)
	if reason == TriggerNone {
		return false, false, nil
	}

	if reason == TriggerOverflow {
		if err := o.Store.DeleteEntriesFrom(sessionID, in.FailingEntrySeq); err != nil {
			return false, false, fmt.Errorf("delete failing entry: %w", err)
		}
	}

	if _, err := o.Compact(ctx, sessionID); err != nil {
		return true, false, err
	}

	return true, reason == TriggerOverflow, nil
}
