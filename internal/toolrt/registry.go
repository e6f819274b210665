// Package toolrt implements the Tool Validator & Executor described in
// SPEC_FULL.md §4.C: JSON-Schema argument validation plus coercion, and a
// registry of {name, label, parameterSchema, execute, validate} tools.
package toolrt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/relaywire/agentcore/internal/agentmsg"
)

// PartialFunc is called with intermediate ToolResult snapshots during
// execution; each call MUST be relayed as a tool_execution_update event by
// the caller without affecting the final result ordering.
type PartialFunc func(agentmsg.ToolResultPayload)

// ExecuteFunc runs one tool invocation. Implementations should observe ctx
// cancellation promptly; the caller still records a terminal result (or
// synthesizes an error one) regardless of how execute returns.
type ExecuteFunc func(ctx context.Context, toolCallID string, args map[string]any, onPartial PartialFunc) (agentmsg.ToolResultPayload, error)

// Tool is the spec's {name, label, parameterSchema, execute, validate}
// tuple. ParameterSchema is JSON-Schema-shaped; an empty schema disables
// validation for this tool (arguments trusted verbatim).
type Tool struct {
	Name            string
	Label           string
	Description     string
	ParameterSchema json.RawMessage
	Execute         ExecuteFunc
}

// Registry holds the set of tools available to one agent run, combining
// locally-implemented tools (this repository's demonstrative internal/tools
// package) with any caller-registered ones.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool definition.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

// Lookup returns the tool by name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Call validates args against the named tool's schema, then executes it,
// converting panics-as-errors and cancellation into a terminal ToolResult
// per SPEC_FULL.md §4.C. onPartial may be nil.
func (r *Registry) Call(ctx context.Context, toolCallID, name string, rawArgs json.RawMessage, onPartial PartialFunc) (result agentmsg.ToolResultPayload, err error) {
	tool, ok := r.Lookup(name)
	if !ok {
		return errorResult(fmt.Sprintf("unknown tool: %s", name)), nil
	}

	args, err := Validate(tool.ParameterSchema, rawArgs)
	if err != nil {
		if ve, ok := err.(*agentmsg.KindError); ok {
			return errorResult(ve.Message), nil
		}
		return errorResult(err.Error()), nil
	}

	defer func() {
		if p := recover(); p != nil {
			result, err = errorResult(fmt.Sprintf("tool %s panicked: %v", name, p)), nil
		}
	}()

	result, execErr := tool.Execute(ctx, toolCallID, args, onPartial)
	if execErr != nil {
		return errorResult(execErr.Error()), nil
	}
	return result, nil
}

func errorResult(message string) agentmsg.ToolResultPayload {
	return agentmsg.ToolResultPayload{
		Content: []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: message}},
		IsError: true,
	}
}

// Decode maps a validated args map onto a typed struct, for tool
// implementations that want to work with concrete Go types rather than
// map[string]any. args should already have passed Validate.
func Decode(args map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("build arg decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return &agentmsg.KindError{Kind: agentmsg.KindValidationError, Message: err.Error(), Wrapped: err}
	}
	return nil
}
