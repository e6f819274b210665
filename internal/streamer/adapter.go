package streamer

import (
	"context"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/eventstream"
	provider "github.com/relaywire/agentcore/internal/providerhub"
)

// StreamFunctionAdapter realizes the external StreamFunction named in
// SPEC_FULL.md §6 — (model, Context, options) -> EventStream<AssistantMessageEvent,
// AssistantMessage> — over one constructed providerhub.Provider. It lives here
// rather than in internal/providerhub because the translation step it performs
// is exactly streamer.Run, and providerhub must not import this package (the
// reverse dependency already exists).
type StreamFunctionAdapter struct {
	Provider provider.Provider
	Identity agentmsg.ModelIdentity

	// AdvertisesXHigh reports whether Identity's model supports the xhigh
	// reasoning level; Stream downgrades a requested xhigh to high when
	// false, per the StreamFunction contract.
	AdvertisesXHigh bool
}

// NewStreamFunctionAdapter wraps an already-constructed provider for one
// model identity.
func NewStreamFunctionAdapter(p provider.Provider, identity agentmsg.ModelIdentity, advertisesXHigh bool) *StreamFunctionAdapter {
	return &StreamFunctionAdapter{Provider: p, Identity: identity, AdvertisesXHigh: advertisesXHigh}
}

// Stream invokes the wrapped provider and returns the provider-agnostic
// snapshot stream together with reasoning normalized (xhigh -> high when
// unsupported). The normalized level is only returned: providerhub.Provider
// and providerhub.Options carry no reasoning setting, so it does not reach
// the provider request.
func (a *StreamFunctionAdapter) Stream(ctx context.Context, messages []provider.Message, tools []provider.Tool, reasoning agentmsg.ReasoningLevel) (*eventstream.Stream[agentmsg.AssistantMessageEvent, agentmsg.Message], agentmsg.ReasoningLevel, error) {
	normalized := reasoning.Normalize(a.AdvertisesXHigh)

	events, err := a.Provider.ChatStream(ctx, messages, tools)
	if err != nil {
		return nil, normalized, err
	}
	return Run(ctx, a.Identity, events), normalized, nil
}
