package mcp

import (
	"context"
	"encoding/json"
	"fmt"
)

// SecretStore defines the interface for storing and retrieving session-scoped
// key/value secrets (API keys, tokens) that local tools may need. The store
// itself holds them outside the session store; a value passed to save_secret
// or returned by get_secret travels in the tool call or tool result like any
// other, and so appears in the transcript.
type SecretStore interface {
	SaveSecret(sessionID, key, value string) error
	GetSecret(sessionID, key string) (value string, err error)
}

// SaveSecretArgs represents arguments for the save_secret tool.
type SaveSecretArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetSecretArgs represents arguments for the get_secret tool.
type GetSecretArgs struct {
	Key string `json:"key"`
}

// NewSaveSecretTool creates the save_secret tool definition.
func NewSaveSecretTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Name of the secret to store",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Secret value",
			},
		},
		"required": []string{"key", "value"},
	}

	schemaJSON, _ := json.Marshal(schema)

	return Tool{
		Name:        "save_secret",
		Description: "Save a named secret for the current session. Values are held in memory for this session only and are never echoed back into the transcript.",
		InputSchema: schemaJSON,
	}
}

// NewGetSecretTool creates the get_secret tool definition.
func NewGetSecretTool() Tool {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Name of the secret to retrieve",
			},
		},
		"required": []string{"key"},
	}

	schemaJSON, _ := json.Marshal(schema)

	return Tool{
		Name:        "get_secret",
		Description: "Retrieve a previously saved secret for the current session. Returns an empty value if nothing is saved under that key.",
		InputSchema: schemaJSON,
	}
}

// MakeSaveSecretHandler creates a handler for the save_secret tool.
func MakeSaveSecretHandler(store SecretStore, sessionID string) ToolHandler {
	return func(ctx context.Context, arguments json.RawMessage) (*ToolResult, error) {
		var args SaveSecretArgs
		if err := json.Unmarshal(arguments, &args); err != nil {
			return &ToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Invalid arguments: %v", err)}},
				IsError: true,
			}, nil
		}

		if args.Key == "" {
			return &ToolResult{
				Content: []ContentBlock{{Type: "text", Text: "key cannot be empty"}},
				IsError: true,
			}, nil
		}

		if err := store.SaveSecret(sessionID, args.Key, args.Value); err != nil {
			return &ToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("failed to save secret: %v", err)}},
				IsError: true,
			}, nil
		}

		return &ToolResult{
			Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("secret '%s' saved", args.Key)}},
			IsError: false,
		}, nil
	}
}

// MakeGetSecretHandler creates a handler for the get_secret tool.
func MakeGetSecretHandler(store SecretStore, sessionID string) ToolHandler {
	return func(ctx context.Context, arguments json.RawMessage) (*ToolResult, error) {
		var args GetSecretArgs
		if err := json.Unmarshal(arguments, &args); err != nil {
			return &ToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("Invalid arguments: %v", err)}},
				IsError: true,
			}, nil
		}

		value, err := store.GetSecret(sessionID, args.Key)
		if err != nil {
			return &ToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("failed to retrieve secret: %v", err)}},
				IsError: true,
			}, nil
		}

		if value == "" {
			return &ToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("no secret saved under '%s'", args.Key)}},
				IsError: false,
			}, nil
		}

		resultJSON, err := json.Marshal(map[string]string{"key": args.Key, "value": value})
		if err != nil {
			return &ToolResult{
				Content: []ContentBlock{{Type: "text", Text: fmt.Sprintf("failed to format secret: %v", err)}},
				IsError: true,
			}, nil
		}

		return &ToolResult{
			Content: []ContentBlock{{Type: "text", Text: string(resultJSON)}},
			IsError: false,
		}, nil
	}
}
