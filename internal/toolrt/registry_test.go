package toolrt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/relaywire/agentcore/internal/agentmsg"
)

var echoSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["text"],
  "properties": {
    "text": { "type": "string" }
  }
}`)

func echoExecute(_ context.Context, _ string, args map[string]any, _ PartialFunc) (agentmsg.ToolResultPayload, error) {
	return agentmsg.ToolResultPayload{
		Content: []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: args["text"].(string)}},
	}, nil
}

func TestValidateEmptySchemaTrustsVerbatim(t *testing.T) {
	args, err := Validate(nil, json.RawMessage(`{"anything": 1, "goes": true}`))
	if err != nil {
		t.Fatalf("Validate with empty schema returned error: %v", err)
	}
	if args["anything"].(float64) != 1 {
		t.Errorf("args = %+v, want anything=1 preserved", args)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	_, err := Validate(echoSchema, json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected validation error for missing required field")
	}
	ke, ok := err.(*agentmsg.KindError)
	if !ok {
		t.Fatalf("err = %T, want *agentmsg.KindError", err)
	}
	if ke.Kind != agentmsg.KindValidationError {
		t.Errorf("Kind = %v, want KindValidationError", ke.Kind)
	}
	if ke.Message == "invalid arguments" {
		t.Errorf("message %q does not enumerate the offending path", ke.Message)
	}
}

func TestValidateAcceptsAndClones(t *testing.T) {
	args, err := Validate(echoSchema, json.RawMessage(`{"text": "hi"}`))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if args["text"] != "hi" {
		t.Errorf("args = %+v", args)
	}
}

func TestRegistryCallUnknownTool(t *testing.T) {
	r := NewRegistry()
	result, err := r.Call(context.Background(), "call_1", "nope", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Call returned error, want nil (error surfaced via ToolResult): %v", err)
	}
	if !result.IsError {
		t.Errorf("result.IsError = false, want true for unknown tool")
	}
}

func TestRegistryCallValidationFailureSurfacesAsToolResult(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{Name: "echo", ParameterSchema: echoSchema, Execute: echoExecute})

	result, err := r.Call(context.Background(), "call_1", "echo", json.RawMessage(`{}`), nil)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if !result.IsError {
		t.Errorf("result.IsError = false, want true for invalid arguments")
	}
}

func TestRegistryCallSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(Tool{Name: "echo", ParameterSchema: echoSchema, Execute: echoExecute})

	result, err := r.Call(context.Background(), "call_1", "echo", json.RawMessage(`{"text": "hi"}`), nil)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("result.IsError = true, want false: %+v", result)
	}
	if result.Content[0].Text != "hi" {
		t.Errorf("result text = %q, want %q", result.Content[0].Text, "hi")
	}
}

func TestDecodeIntoTypedStruct(t *testing.T) {
	type echoArgs struct {
		Text string `json:"text"`
	}

	args, err := Validate(echoSchema, json.RawMessage(`{"text": "hi"}`))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	var typed echoArgs
	if err := Decode(args, &typed); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if typed.Text != "hi" {
		t.Errorf("typed.Text = %q, want %q", typed.Text, "hi")
	}
}
