package compact

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
)

func TestSummarizeReturnsTrimmedText(t *testing.T) {
	mock := provider.NewMock("mock", "  ## Goal\nfinish the thing  \n")
	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}

	req := SummarizeRequest{
		Kind: PromptInitial,
		Messages: []agentmsg.Message{
			agentmsg.NewUserText("please build X", time.Now()),
		},
		ReserveTokens: 1000,
	}
	summary, _, err := Summarize(context.Background(), mock, identity, req)
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if summary != strings.TrimSpace("  ## Goal\nfinish the thing  \n") {
		t.Errorf("summary = %q", summary)
	}
}

func TestSummarizeSurfacesStreamError(t *testing.T) {
	mock := provider.NewMock("mock", "").WithStreamError(errors.New("boom"))
	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}

	_, _, err := Summarize(context.Background(), mock, identity, SummarizeRequest{Kind: PromptUpdate, ReserveTokens: 500})
	if err == nil {
		t.Fatal("expected an error from a stream that fails mid-flight")
	}
}

func TestOutputBudgetByKind(t *testing.T) {
	cases := []struct {
		kind PromptKind
		want int
	}{
		{PromptInitial, 800},
		{PromptUpdate, 800},
		{PromptTurnPrefix, 500},
	}
	for _, tc := range cases {
		req := SummarizeRequest{Kind: tc.kind, ReserveTokens: 1000}
		if got := req.outputBudget(); got != tc.want {
			t.Errorf("outputBudget(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
