// Package tools holds the demonstrative Tool implementations registered
// against internal/toolrt.Registry: a hash-anchored file editor, an
// in-process shell, and a filename/content search.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/hashline"
	"github.com/relaywire/agentcore/internal/toolrt"
)

// ReadTracker records which absolute paths have had a fresh Read since their
// last edit, so Edit can refuse to operate on hashes the model never saw.
type ReadTracker struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewReadTracker returns an empty tracker.
func NewReadTracker() *ReadTracker {
	return &ReadTracker{seen: make(map[string]bool)}
}

// MarkRead records a successful read of path.
func (t *ReadTracker) MarkRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[path] = true
}

// WasRead reports whether path has been read since it was last edited.
func (t *ReadTracker) WasRead(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen[path]
}

// clearRead forgets path, forcing a fresh Read before the next edit.
func (t *ReadTracker) clearRead(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, path)
}

const anchorSchema = `{"type": "object", "properties": {"line": {"type": "integer", "description": "1-indexed line number"}, "hash": {"type": "string", "description": "2-char hex hash from Read output"}}, "required": ["line", "hash"]}`

var editSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"path": {"type": "string", "description": "Path to the file to edit"},
		"replace": {
			"type": "object",
			"description": "Replace lines from start to end (inclusive) with new content",
			"properties": {
				"start":   ` + anchorSchema + `,
				"end":     ` + anchorSchema + `,
				"content": {"type": "string", "description": "Replacement text (may be multiple lines)"}
			},
			"required": ["start", "end", "content"]
		},
		"insert": {
			"type": "object",
			"description": "Insert new lines after the anchored line",
			"properties": {
				"after":   ` + anchorSchema + `,
				"content": {"type": "string", "description": "Text to insert (may be multiple lines)"}
			},
			"required": ["after", "content"]
		},
		"delete": {
			"type": "object",
			"description": "Delete lines from start to end (inclusive)",
			"properties": {
				"start": ` + anchorSchema + `,
				"end":   ` + anchorSchema + `
			},
			"required": ["start", "end"]
		},
		"create": {
			"type": "object",
			"description": "Create a new file (fails if the file already exists)",
			"properties": {
				"content": {"type": "string", "description": "Full file content"}
			},
			"required": ["content"]
		}
	},
	"required": ["path"]
}`)

// editArgs mirrors editSchema. Exactly one of Replace/Insert/Delete/Create
// must be set.
type editArgs struct {
	Path    string     `json:"path"`
	Replace *replaceOp `json:"replace,omitempty"`
	Insert  *insertOp  `json:"insert,omitempty"`
	Delete  *deleteOp  `json:"delete,omitempty"`
	Create  *createOp  `json:"create,omitempty"`
}

type replaceOp struct {
	Start   hashline.Anchor `json:"start"`
	End     hashline.Anchor `json:"end"`
	Content string          `json:"content"`
}

type insertOp struct {
	After   hashline.Anchor `json:"after"`
	Content string          `json:"content"`
}

type deleteOp struct {
	Start hashline.Anchor `json:"start"`
	End   hashline.Anchor `json:"end"`
}

type createOp struct {
	Content string `json:"content"`
}

// NewEditTool returns the hash-anchored file editor, rooted at root (an
// empty root resolves to the process's working directory). tracker may be
// shared with NewReadTool so Edit can require a prior Read.
func NewEditTool(root string, tracker *ReadTracker) toolrt.Tool {
	e := &editor{root: root, tracker: tracker}
	return toolrt.Tool{
		Name:  "edit",
		Label: "Edit file",
		Description: `Edit a file using hash-anchored operations. You MUST read the file first to get line hashes.
Each line from read is tagged as "linenum:hash|content". Use the line number and hash as anchors.
Exactly one operation per call: replace, insert, delete, or create.
If a hash does not match, the file changed since you read it; re-read and retry.`,
		ParameterSchema: editSchema,
		Execute:         e.execute,
	}
}

type editor struct {
	root    string
	tracker *ReadTracker
}

func (e *editor) execute(ctx context.Context, toolCallID string, rawArgs map[string]any, onPartial toolrt.PartialFunc) (agentmsg.ToolResultPayload, error) {
	var args editArgs
	if err := toolrt.Decode(rawArgs, &args); err != nil {
		return errResult("invalid arguments: %v", err), nil
	}
	if args.Path == "" {
		return errResult("file path cannot be empty"), nil
	}
	if err := validateEditOps(args); err != nil {
		return errResult("%v", err), nil
	}

	absPath, err := resolvePath(e.root, args.Path)
	if err != nil {
		return errResult("%v", err), nil
	}

	if args.Create != nil {
		return e.create(absPath, args.Path, args.Create), nil
	}

	if e.tracker != nil && !e.tracker.WasRead(absPath) {
		return errResult("read %s before editing it; you need the line hashes", args.Path), nil
	}

	return e.apply(absPath, args)
}

func validateEditOps(args editArgs) error {
	ops := 0
	for _, set := range []bool{args.Replace != nil, args.Insert != nil, args.Delete != nil, args.Create != nil} {
		if set {
			ops++
		}
	}
	if ops != 1 {
		return fmt.Errorf("exactly one operation (replace, insert, delete, or create) must be specified")
	}
	return nil
}

func (e *editor) apply(absPath string, args editArgs) (agentmsg.ToolResultPayload, error) {
	before, err := os.ReadFile(absPath)
	if err != nil {
		return errResult("failed to read file: %v", err), nil
	}
	lines := strings.Split(string(before), "\n")

	var after string
	switch {
	case args.Replace != nil:
		after, err = applyReplace(lines, args.Replace)
	case args.Insert != nil:
		after, err = applyInsert(lines, args.Insert)
	case args.Delete != nil:
		after, err = applyDelete(lines, args.Delete)
	}
	if err != nil {
		return errResult("%v", err), nil
	}

	if err := os.WriteFile(absPath, []byte(after), 0600); err != nil {
		return errResult("failed to write file: %v", err), nil
	}
	if e.tracker != nil {
		e.tracker.clearRead(absPath)
		e.tracker.MarkRead(absPath)
	}

	tagged := hashline.TagLines(after, 1)
	text := fmt.Sprintf("Edited %s (%d lines):\n\n%s\n\n%s",
		args.Path, len(tagged), hashline.FormatTagged(tagged), unifiedDiff(args.Path, string(before), after))

	return okResult(text), nil
}

func (e *editor) create(absPath, displayPath string, op *createOp) agentmsg.ToolResultPayload {
	if _, err := os.Stat(absPath); err == nil {
		return errResult("file already exists: %s (use replace/insert/delete to modify)", displayPath)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return errResult("failed to create directories: %v", err)
	}
	if err := os.WriteFile(absPath, []byte(op.Content), 0600); err != nil {
		return errResult("failed to create file: %v", err)
	}
	if e.tracker != nil {
		e.tracker.MarkRead(absPath)
	}

	tagged := hashline.TagLines(op.Content, 1)
	text := fmt.Sprintf("Created %s (%d lines):\n\n%s", displayPath, len(tagged), hashline.FormatTagged(tagged))
	return okResult(text)
}

// unifiedDiff renders before->after as a unified diff, or an empty string
// when the edit produced no textual change.
func unifiedDiff(path, before, after string) string {
	if before == after {
		return ""
	}
	uri := span.URIFromPath(path)
	edits := myers.ComputeEdits(uri, before, after)
	if len(edits) == 0 {
		return ""
	}
	diff := fmt.Sprint(gotextdiff.ToUnified(path, path, before, edits))
	if strings.TrimSpace(diff) == "" {
		return ""
	}
	return "```diff\n" + diff + "```"
}

func applyReplace(lines []string, op *replaceOp) (string, error) {
	if err := hashline.ValidateRange(op.Start, op.End, lines); err != nil {
		return "", fmt.Errorf("replace: %w", err)
	}
	out := make([]string, 0, len(lines))
	out = append(out, lines[:op.Start.Num-1]...)
	out = append(out, strings.Split(op.Content, "\n")...)
	out = append(out, lines[op.End.Num:]...)
	return strings.Join(out, "\n"), nil
}

func applyInsert(lines []string, op *insertOp) (string, error) {
	if err := op.After.Validate(lines); err != nil {
		return "", fmt.Errorf("insert: after anchor: %w", err)
	}
	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:op.After.Num]...)
	out = append(out, strings.Split(op.Content, "\n")...)
	out = append(out, lines[op.After.Num:]...)
	return strings.Join(out, "\n"), nil
}

func applyDelete(lines []string, op *deleteOp) (string, error) {
	if err := hashline.ValidateRange(op.Start, op.End, lines); err != nil {
		return "", fmt.Errorf("delete: %w", err)
	}
	out := make([]string, 0, len(lines))
	out = append(out, lines[:op.Start.Num-1]...)
	out = append(out, lines[op.End.Num:]...)
	return strings.Join(out, "\n"), nil
}

// resolvePath joins file onto root (defaulting root to the working
// directory) and rejects any result that escapes root.
func resolvePath(root, file string) (string, error) {
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	var absPath string
	if filepath.IsAbs(file) {
		absPath = file
	} else {
		absPath = filepath.Join(rootAbs, file)
	}
	absPath, err = filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}
	relPath, err := filepath.Rel(rootAbs, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("access denied: path outside working directory")
	}
	return absPath, nil
}

func okResult(text string) agentmsg.ToolResultPayload {
	return agentmsg.ToolResultPayload{Content: []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: text}}}
}

func errResult(format string, args ...any) agentmsg.ToolResultPayload {
	return agentmsg.ToolResultPayload{
		Content: []agentmsg.ContentBlock{{Kind: agentmsg.BlockText, Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}
