package streamer

import (
	"context"
	"testing"

	"github.com/relaywire/agentcore/internal/agentmsg"
	provider "github.com/relaywire/agentcore/internal/providerhub"
)

func TestStreamFunctionAdapterDowngradesXHigh(t *testing.T) {
	mock := provider.NewMock("mock", "hi")
	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}
	adapter := NewStreamFunctionAdapter(mock, identity, false)

	out, normalized, err := adapter.Stream(context.Background(), nil, nil, agentmsg.ReasoningXHigh)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if normalized != agentmsg.ReasoningHigh {
		t.Errorf("normalized = %v, want ReasoningHigh (model doesn't advertise xhigh)", normalized)
	}
	for {
		if _, ok := out.Next(); !ok {
			break
		}
	}
}

func TestStreamFunctionAdapterKeepsXHighWhenAdvertised(t *testing.T) {
	mock := provider.NewMock("mock", "hi")
	identity := agentmsg.ModelIdentity{Provider: "mock", API: "mock", ModelID: "mock"}
	adapter := NewStreamFunctionAdapter(mock, identity, true)

	_, normalized, err := adapter.Stream(context.Background(), nil, nil, agentmsg.ReasoningXHigh)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if normalized != agentmsg.ReasoningXHigh {
		t.Errorf("normalized = %v, want ReasoningXHigh", normalized)
	}
}
