package toolrt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/relaywire/agentcore/internal/agentmsg"
)

// schemaCache compiles each tool's parameterSchema once, keyed by its raw
// JSON text, mirroring the compile-once-cache pattern used for plugin
// config validation elsewhere in the pack.
var schemaCache sync.Map

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("tool-args.schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile tool schema: %w", err)
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// Validate coerces and validates raw arguments against schema, returning a
// clone that the caller owns. If schema is empty, arguments are trusted
// verbatim (SPEC_FULL.md §4.C: "when the validator is unavailable ...
// arguments are trusted verbatim").
func Validate(schema json.RawMessage, args json.RawMessage) (map[string]any, error) {
	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}

	if len(schema) == 0 {
		m, _ := decoded.(map[string]any)
		return cloneMap(m), nil
	}

	compiled, err := compileSchema(schema)
	if err != nil {
		return nil, err
	}

	if err := compiled.Validate(decoded); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return nil, agentmsg.NewValidationError(collectPaths(ve, nil))
		}
		return nil, agentmsg.NewValidationError([]string{err.Error()})
	}

	m, _ := decoded.(map[string]any)
	return cloneMap(m), nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	raw, _ := json.Marshal(m)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}

func collectPaths(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "(root)"
		}
		return append(out, fmt.Sprintf("%s: %s", loc, ve.Message))
	}
	for _, cause := range ve.Causes {
		out = collectPaths(cause, out)
	}
	return out
}
