// Package compact implements the Cut-Point Finder, Summarizer, and
// Compaction Orchestrator described in SPEC_FULL.md §§4.F-4.H.
package compact

import (
	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/store"
)

// charsPerToken and imageTokenCost calibrate the conservative (over-estimating)
// token heuristic SPEC_FULL.md §4.F specifies: ~4 characters per token, plus
// a fixed cost per embedded image.
const (
	charsPerToken  = 4
	imageTokenCost = 1200
)

// EstimateTokens is the token-estimation heuristic applied to one session
// entry: textual fields over charsPerToken, plus imageTokenCost per embedded
// image. Metadata entries (thinking_level_change, model_change, label) and
// compaction entries weigh zero for the purposes of the cut-point walk;
// their own content isn't part of the retained conversation body.
func EstimateTokens(e store.SessionEntry) int {
	switch e.Kind {
	case store.EntryMessage:
		chars := 0
		images := 0
		for _, b := range e.Message.Content {
			switch b.Kind {
			case agentmsg.BlockText, agentmsg.BlockThinking:
				chars += len(b.Text)
			case agentmsg.BlockImage:
				images++
			}
		}
		return chars/charsPerToken + 1 + images*imageTokenCost
	case store.EntryCustomMessage, store.EntryBranchSummary:
		return len(e.Summary)/charsPerToken + 1
	default:
		return 0
	}
}

// isValidCutPoint reports whether placing entries[i] at the start of a
// retained tail would leave no toolResult dangling (SPEC_FULL.md §4.F): a
// kind=message entry other than a toolResult, or a branch_summary /
// custom_message entry.
func isValidCutPoint(e store.SessionEntry) bool {
	switch e.Kind {
	case store.EntryMessage:
		return e.Message.Role != agentmsg.RoleToolResult
	case store.EntryBranchSummary, store.EntryCustomMessage:
		return true
	default:
		return false
	}
}

// isTurnStartCandidate reports whether e could open a new turn: a user
// message, or a custom_message entry (the generalized analog of the
// teacher's bashExecution/custom UI-surface variants, which likewise begin a
// turn rather than continue one).
func isTurnStartCandidate(e store.SessionEntry) bool {
	if e.Kind == store.EntryMessage && e.Message.Role == agentmsg.RoleUser {
		return true
	}
	return e.Kind == store.EntryCustomMessage
}

// FindCutPoint locates where to split session entries[boundaryStart:boundaryEnd]
// between the summarized history and the retained tail, per SPEC_FULL.md
// §4.F. Returns the index of the first kept entry, the index the retained
// turn actually starts at (may precede firstKeptIdx when the cut lands
// mid-turn), and whether that's a split ("isSplitTurn").
func FindCutPoint(entries []store.SessionEntry, boundaryStart, boundaryEnd int, keepRecentTokens int) (firstKeptIdx, turnStartIdx int, isSplitTurn bool) {
	// Step 1: collect valid cut points in range.
	var validCutPoints []int
	for i := boundaryStart; i < boundaryEnd; i++ {
		if isValidCutPoint(entries[i]) {
			validCutPoints = append(validCutPoints, i)
		}
	}
	if len(validCutPoints) == 0 {
		return boundaryStart, boundaryStart, false
	}

	// Step 2: walk backward accumulating tokens until the keep-recent budget
	// is met, then pick the smallest valid cut point at or after that index.
	cutIdx := boundaryStart
	running := 0
	found := false
	for i := boundaryEnd - 1; i >= boundaryStart; i-- {
		running += EstimateTokens(entries[i])
		if running >= keepRecentTokens {
			cutIdx = smallestValidAtOrAfter(validCutPoints, i)
			found = true
			break
		}
	}
	if !found {
		// Never crossed the budget walking the whole range: keep everything
		// from the first valid cut point.
		cutIdx = validCutPoints[0]
	}

	// Step 3: expand leftward to absorb adjacent metadata, stopping at a
	// previous compaction boundary or any message-kind entry.
	for cutIdx > boundaryStart {
		prev := entries[cutIdx-1]
		if prev.Kind == store.EntryCompaction {
			break
		}
		if !prev.IsMetadata() {
			break
		}
		cutIdx--
	}

	// Step 4: decide whether the cut lands mid-turn.
	if isTurnStartCandidate(entries[cutIdx]) {
		return cutIdx, cutIdx, false
	}
	for i := cutIdx - 1; i >= boundaryStart; i-- {
		if isTurnStartCandidate(entries[i]) {
			return cutIdx, i, true
		}
	}
	return cutIdx, cutIdx, false
}

// smallestValidAtOrAfter returns the smallest element of validCutPoints that
// is >= at. validCutPoints is sorted ascending (built in index order by
// FindCutPoint). Panics-as-invariant-violation is avoided by falling back to
// the last cut point if none qualifies, since callers only reach here with
// at least one valid cut point in range.
func smallestValidAtOrAfter(validCutPoints []int, at int) int {
	for _, idx := range validCutPoints {
		if idx >= at {
			return idx
		}
	}
	return validCutPoints[len(validCutPoints)-1]
}
