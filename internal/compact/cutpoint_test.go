package compact

import (
	"testing"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/store"
)

func userEntry(text string) store.SessionEntry {
	return store.SessionEntry{Kind: store.EntryMessage, Message: agentmsg.NewUserText(text, time.Now())}
}

func assistantEntry(text string) store.SessionEntry {
	return store.SessionEntry{Kind: store.EntryMessage, Message: agentmsg.Message{
		Role:    agentmsg.RoleAssistant,
		Content: []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: text}},
	}}
}

func toolResultEntry(text string) store.SessionEntry {
	return store.SessionEntry{Kind: store.EntryMessage, Message: agentmsg.NewToolResult("call_1", "echo", text, false, time.Now())}
}

func TestFindCutPointNeverCutsAtToolResult(t *testing.T) {
	entries := []store.SessionEntry{
		userEntry("do a thing"),       // 0
		assistantEntry("calling..."),  // 1
		toolResultEntry("tool reply"), // 2
		assistantEntry("done"),        // 3
	}
	firstKeptIdx, _, _ := FindCutPoint(entries, 0, len(entries), 1) // tiny budget forces an early cut
	if entries[firstKeptIdx].Kind == store.EntryMessage && entries[firstKeptIdx].Message.Role == agentmsg.RoleToolResult {
		t.Fatalf("cut landed on a toolResult at index %d", firstKeptIdx)
	}
}

func TestFindCutPointNoValidPointsKeepsEverything(t *testing.T) {
	entries := []store.SessionEntry{
		userEntry("start"),
		assistantEntry("working"),
		toolResultEntry("only a tool result follows"),
	}
	// Force every index but 0/1 to be invalid by making the range start at
	// the toolResult itself: no valid cut points in [2,3).
	firstKeptIdx, turnStartIdx, split := FindCutPoint(entries, 2, 3, 1000)
	if firstKeptIdx != 2 || turnStartIdx != 2 || split {
		t.Errorf("got (%d, %d, %v), want (2, 2, false) when no valid cut point exists", firstKeptIdx, turnStartIdx, split)
	}
}

func TestFindCutPointSplitsMidTurn(t *testing.T) {
	entries := []store.SessionEntry{
		userEntry("long task, part 1"),            // 0
		assistantEntry("lots of text here padding"), // 1
		toolResultEntry("tool output A"),             // 2
		assistantEntry("more work padding padding"),  // 3
		toolResultEntry("tool output B"),             // 4
		assistantEntry("final answer"),               // 5
	}
	// A very small keepRecentTokens forces the cut deep into the tail,
	// landing inside the turn that started at index 0 (no later user msg).
	firstKeptIdx, turnStartIdx, split := FindCutPoint(entries, 0, len(entries), 1)
	if !split {
		t.Fatalf("expected a split turn, got none (firstKeptIdx=%d)", firstKeptIdx)
	}
	if turnStartIdx != 0 {
		t.Errorf("turnStartIdx = %d, want 0 (the only preceding user message)", turnStartIdx)
	}
	if firstKeptIdx <= turnStartIdx {
		t.Errorf("firstKeptIdx (%d) should be after turnStartIdx (%d)", firstKeptIdx, turnStartIdx)
	}
}

func TestFindCutPointOnUserMessageIsNotASplit(t *testing.T) {
	entries := []store.SessionEntry{
		userEntry("turn one"),
		assistantEntry("reply one"),
		userEntry("turn two"),
		assistantEntry("reply two"),
	}
	// A huge budget means the walk never crosses threshold; falls back to
	// the first valid cut point, index 0, which is a user message.
	firstKeptIdx, turnStartIdx, split := FindCutPoint(entries, 0, len(entries), 1_000_000)
	if split {
		t.Errorf("split = true, want false when the cut lands exactly on a user message")
	}
	if firstKeptIdx != turnStartIdx {
		t.Errorf("firstKeptIdx (%d) != turnStartIdx (%d) for a non-split cut", firstKeptIdx, turnStartIdx)
	}
}

func TestFindCutPointAbsorbsAdjacentMetadata(t *testing.T) {
	entries := []store.SessionEntry{
		userEntry("turn one"),             // 0
		assistantEntry("reply one"),        // 1
		{Kind: store.EntryModelChange, Model: "gpt-5"}, // 2, weighs 0
		userEntry("turn two"),              // 3: 8 chars -> 3 tokens
		assistantEntry("reply two"),        // 4: 9 chars -> 3 tokens
	}
	// budget=5 crosses exactly between index 4 (3 tokens) and index 3 (+3 =
	// 6 >= 5), so the raw walk picks cutIdx=3; step 3 must then absorb the
	// model_change at index 2 into the retained tail, landing the cut there.
	firstKeptIdx, _, _ := FindCutPoint(entries, 0, len(entries), 5)
	if firstKeptIdx != 2 {
		t.Fatalf("firstKeptIdx = %d, want 2 (the absorbed model_change entry)", firstKeptIdx)
	}
	if entries[firstKeptIdx].Kind != store.EntryModelChange {
		t.Errorf("entries[firstKeptIdx].Kind = %v, want EntryModelChange", entries[firstKeptIdx].Kind)
	}
}

func TestEstimateTokensCountsImagesAndText(t *testing.T) {
	e := store.SessionEntry{
		Kind: store.EntryMessage,
		Message: agentmsg.Message{
			Role: agentmsg.RoleUser,
			Content: []agentmsg.ContentBlock{
				{Kind: agentmsg.BlockText, Text: "12345678"}, // 8 chars -> 2 tokens + 1
				{Kind: agentmsg.BlockImage, ImageData: "data:..."},
			},
		},
	}
	got := EstimateTokens(e)
	want := 8/charsPerToken + 1 + imageTokenCost
	if got != want {
		t.Errorf("EstimateTokens = %d, want %d", got, want)
	}
}

func TestEstimateTokensMetadataIsZero(t *testing.T) {
	e := store.SessionEntry{Kind: store.EntryModelChange, Model: "gpt-5"}
	if got := EstimateTokens(e); got != 0 {
		t.Errorf("EstimateTokens(metadata) = %d, want 0", got)
	}
}
