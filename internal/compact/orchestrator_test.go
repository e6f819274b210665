package compact

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
	"github.com/relaywire/agentcore/internal/store"
)

func openTestCache(t *testing.T) *store.Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDecideTriggerAbortedNeverTriggers(t *testing.T) {
	reason := DecideTrigger(TriggerInput{StopReason: agentmsg.StopAborted, ContextTokens: 1_000_000, ContextWindow: 1, ReserveTokens: 0})
	if reason != TriggerNone {
		t.Errorf("DecideTrigger(aborted) = %v, want TriggerNone", reason)
	}
}

func TestDecideTriggerOverflowOnMatchingModel(t *testing.T) {
	model := agentmsg.ModelIdentity{Provider: "p", API: "a", ModelID: "m"}
	reason := DecideTrigger(TriggerInput{
		StopReason:        agentmsg.StopStop,
		IsContextOverflow: true,
		FailingModel:      model,
		CurrentModel:      model,
	})
	if reason != TriggerOverflow {
		t.Errorf("DecideTrigger(overflow) = %v, want TriggerOverflow", reason)
	}
}

func TestDecideTriggerOverflowIgnoredOnModelSwitch(t *testing.T) {
	reason := DecideTrigger(TriggerInput{
		StopReason:        agentmsg.StopStop,
		IsContextOverflow: true,
		FailingModel:      agentmsg.ModelIdentity{Provider: "p", API: "a", ModelID: "old"},
		CurrentModel:      agentmsg.ModelIdentity{Provider: "p", API: "a", ModelID: "new"},
		ContextTokens:     0,
		ContextWindow:     1000,
		ReserveTokens:     100,
	})
	if reason != TriggerNone {
		t.Errorf("DecideTrigger(overflow after model switch) = %v, want TriggerNone", reason)
	}
}

func TestDecideTriggerPlainErrorNeverTriggers(t *testing.T) {
	reason := DecideTrigger(TriggerInput{StopReason: agentmsg.StopError, ContextTokens: 1_000_000, ContextWindow: 1, ReserveTokens: 0})
	if reason != TriggerNone {
		t.Errorf("DecideTrigger(error) = %v, want TriggerNone", reason)
	}
}

func TestDecideTriggerThreshold(t *testing.T) {
	reason := DecideTrigger(TriggerInput{
		StopReason:    agentmsg.StopStop,
		ContextTokens: 900,
		ContextWindow: 1000,
		ReserveTokens: 200,
	})
	if reason != TriggerThreshold {
		t.Errorf("DecideTrigger(over threshold) = %v, want TriggerThreshold", reason)
	}
}

func TestDecideTriggerUnderThreshold(t *testing.T) {
	reason := DecideTrigger(TriggerInput{
		StopReason:    agentmsg.StopStop,
		ContextTokens: 100,
		ContextWindow: 1000,
		ReserveTokens: 200,
	})
	if reason != TriggerNone {
		t.Errorf("DecideTrigger(under threshold) = %v, want TriggerNone", reason)
	}
}

func seedSession(t *testing.T, c *store.Cache, sessionID string) {
	t.Helper()
	if err := c.CreateSession(sessionID); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	entries := []store.SessionEntry{
		{SessionID: sessionID, Kind: store.EntryMessage, Message: agentmsg.NewUserText("build the widget", time.Now())},
		{SessionID: sessionID, Kind: store.EntryMessage, Message: agentmsg.Message{
			Role:    agentmsg.RoleAssistant,
			Content: []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: "done, widget built"}},
		}},
	}
	for _, e := range entries {
		if _, err := c.AppendEntry(e); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}
}

func TestPrepareStartsAtZeroWithNoPriorCompaction(t *testing.T) {
	c := openTestCache(t)
	seedSession(t, c, "sess-1")

	o := &Orchestrator{Store: c, KeepRecentTokens: 1_000_000}
	prep, err := o.Prepare("sess-1")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep.BoundaryStart != 0 {
		t.Errorf("BoundaryStart = %d, want 0", prep.BoundaryStart)
	}
	if prep.PreviousSummary != "" {
		t.Errorf("PreviousSummary = %q, want empty", prep.PreviousSummary)
	}
}

func TestPrepareStartsAfterPriorCompaction(t *testing.T) {
	c := openTestCache(t)
	seedSession(t, c, "sess-2")
	if _, err := c.AppendEntry(store.SessionEntry{
		SessionID: "sess-2",
		Kind:      store.EntryCompaction,
		Summary:   "## Goal\nprior summary",
	}); err != nil {
		t.Fatalf("AppendEntry(compaction): %v", err)
	}
	entries, err := c.LoadEntries("sess-2")
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}

	o := &Orchestrator{Store: c, KeepRecentTokens: 1_000_000}
	prep, err := o.Prepare("sess-2")
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prep.BoundaryStart != len(entries) {
		t.Errorf("BoundaryStart = %d, want %d (one past the compaction entry)", prep.BoundaryStart, len(entries))
	}
	if prep.PreviousSummary != "## Goal\nprior summary" {
		t.Errorf("PreviousSummary = %q, want the prior compaction's summary", prep.PreviousSummary)
	}
	if len(prep.MessagesToSummarize) != 0 {
		t.Errorf("MessagesToSummarize = %d entries, want 0 (nothing new since the prior compaction)", len(prep.MessagesToSummarize))
	}
}

func TestExecuteWritesCompactionEntryNonSplit(t *testing.T) {
	c := openTestCache(t)
	seedSession(t, c, "sess-3")

	mock := provider.NewMock("mock", "## Goal\nbuild widgets\n")
	o := &Orchestrator{
		Store:             c,
		SummarizeProvider: mock,
		Identity:          agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"},
		KeepRecentTokens:  0,
		ReserveTokens:     1000,
	}

	result, err := o.Compact(context.Background(), "sess-3")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if result.Entry.ID == "" {
		t.Error("Compact did not return an entry id")
	}

	entries, err := c.LoadEntries("sess-3")
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	last := entries[len(entries)-1]
	if last.Kind != store.EntryCompaction {
		t.Fatalf("last entry kind = %v, want EntryCompaction", last.Kind)
	}
	if last.Summary == "" {
		t.Error("compaction entry has an empty summary")
	}
}

func TestHandleTurnEndOverflowDeletesThenCompactsAndSignalsContinue(t *testing.T) {
	c := openTestCache(t)
	seedSession(t, c, "sess-4")
	entries, err := c.LoadEntries("sess-4")
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	failingSeq := entries[len(entries)-1].Seq

	model := agentmsg.ModelIdentity{Provider: "p", API: "a", ModelID: "m"}
	mock := provider.NewMock("mock", "## Goal\nrecovered\n")
	o := &Orchestrator{
		Store:             c,
		SummarizeProvider: mock,
		Identity:          model,
		KeepRecentTokens:  0,
		ReserveTokens:     1000,
	}

	triggered, shouldContinue, err := o.HandleTurnEnd(context.Background(), "sess-4", TriggerInput{
		StopReason:        agentmsg.StopStop,
		IsContextOverflow: true,
		FailingModel:      model,
		CurrentModel:      model,
		FailingEntrySeq:   failingSeq,
	})
	if err != nil {
		t.Fatalf("HandleTurnEnd: %v", err)
	}
	if !triggered || !shouldContinue {
		t.Fatalf("HandleTurnEnd(overflow) = (%v, %v), want (true, true)", triggered, shouldContinue)
	}

	remaining, err := c.LoadEntries("sess-4")
	if err != nil {
		t.Fatalf("LoadEntries after HandleTurnEnd: %v", err)
	}
	for _, e := range remaining {
		if e.Seq == failingSeq && e.Kind != store.EntryCompaction {
			t.Errorf("failing entry at seq %d was not deleted", failingSeq)
		}
	}
}

func TestHandleTurnEndNoneDoesNothing(t *testing.T) {
	c := openTestCache(t)
	seedSession(t, c, "sess-5")
	o := &Orchestrator{Store: c}

	triggered, shouldContinue, err := o.HandleTurnEnd(context.Background(), "sess-5", TriggerInput{StopReason: agentmsg.StopAborted})
	if err != nil {
		t.Fatalf("HandleTurnEnd: %v", err)
	}
	if triggered || shouldContinue {
		t.Errorf("HandleTurnEnd(aborted) = (%v, %v), want (false, false)", triggered, shouldContinue)
	}
}

func TestUnionSortedDedupsAndSorts(t *testing.T) {
	got := unionSorted([]string{"b.go", "a.go"}, []string{"a.go", "c.go"})
	want := []string{"a.go", "b.go", "c.go"}
	if len(got) != len(want) {
		t.Fatalf("unionSorted = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("unionSorted[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
