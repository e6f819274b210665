package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/hashline"
	"github.com/relaywire/agentcore/internal/toolrt"
)

var readSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path":   {"type": "string", "description": "Path to the file to read"},
		"offset": {"type": "integer", "description": "1-indexed line to start at (default 1)"},
		"limit":  {"type": "integer", "description": "Maximum number of lines to return (default 2000)"}
	},
	"required": ["path"]
}`)

type readArgs struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

const defaultReadLimit = 2000

// NewReadTool returns the file reader that tags each returned line with its
// hashline anchor and records the read in tracker, satisfying Edit's
// read-before-write requirement.
func NewReadTool(root string, tracker *ReadTracker) toolrt.Tool {
	r := &reader{root: root, tracker: tracker}
	return toolrt.Tool{
		Name:            "read",
		Label:           "Read file",
		Description:     "Read a file's contents. Each line is tagged \"linenum:hash|content\" so Edit can anchor changes to it.",
		ParameterSchema: readSchema,
		Execute:         r.execute,
	}
}

type reader struct {
	root    string
	tracker *ReadTracker
}

func (r *reader) execute(ctx context.Context, toolCallID string, rawArgs map[string]any, onPartial toolrt.PartialFunc) (agentmsg.ToolResultPayload, error) {
	var args readArgs
	if err := toolrt.Decode(rawArgs, &args); err != nil {
		return errResult("invalid arguments: %v", err), nil
	}
	if args.Path == "" {
		return errResult("file path cannot be empty"), nil
	}

	absPath, err := resolvePath(r.root, args.Path)
	if err != nil {
		return errResult("%v", err), nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return errResult("failed to read file: %v", err), nil
	}

	offset := args.Offset
	if offset <= 0 {
		offset = 1
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultReadLimit
	}

	lines := strings.Split(string(content), "\n")
	if offset > len(lines) {
		return errResult("offset %d is past end of file (%d lines)", offset, len(lines)), nil
	}
	end := offset - 1 + limit
	if end > len(lines) {
		end = len(lines)
	}
	window := lines[offset-1 : end]

	tagged := hashline.TagLines(strings.Join(window, "\n"), offset)
	if r.tracker != nil {
		r.tracker.MarkRead(absPath)
	}

	text := fmt.Sprintf("%s (lines %d-%d of %d):\n\n%s", args.Path, offset, offset+len(window)-1, len(lines), hashline.FormatTagged(tagged))
	return okResult(text), nil
}
