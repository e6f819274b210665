package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/filesearch"
	"github.com/relaywire/agentcore/internal/toolrt"
)

var searchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"pattern":        {"type": "string", "description": "Regular expression to search for"},
		"contentSearch":  {"type": "boolean", "description": "Search file contents instead of filenames (default false)"},
		"caseSensitive":  {"type": "boolean", "description": "Case-sensitive matching (default false)"},
		"maxResults":     {"type": "integer", "description": "Cap on returned matches (default 200)"}
	},
	"required": ["pattern"]
}`)

type searchArgs struct {
	Pattern       string `json:"pattern"`
	ContentSearch bool   `json:"contentSearch"`
	CaseSensitive bool   `json:"caseSensitive"`
	MaxResults    int    `json:"maxResults"`
}

const defaultSearchMaxResults = 200

// NewSearchTool returns a gitignore-aware filename/content search tool
// rooted at root (an empty root resolves to the working directory).
func NewSearchTool(root string) toolrt.Tool {
	s := &searchTool{root: root}
	return toolrt.Tool{
		Name:            "search",
		Label:           "Search files",
		Description:     "Search file names or contents by regular expression, honoring .gitignore.",
		ParameterSchema: searchSchema,
		Execute:         s.execute,
	}
}

type searchTool struct {
	root string
}

func (s *searchTool) execute(ctx context.Context, toolCallID string, rawArgs map[string]any, onPartial toolrt.PartialFunc) (agentmsg.ToolResultPayload, error) {
	var args searchArgs
	if err := toolrt.Decode(rawArgs, &args); err != nil {
		return errResult("invalid arguments: %v", err), nil
	}
	if args.Pattern == "" {
		return errResult("pattern cannot be empty"), nil
	}

	root, err := resolvePath(s.root, ".")
	if err != nil {
		return errResult("%v", err), nil
	}

	searcher, err := filesearch.NewSearcher(root)
	if err != nil {
		return errResult("failed to initialize search: %v", err), nil
	}

	maxResults := args.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSearchMaxResults
	}

	results, err := searcher.Search(ctx, filesearch.Options{
		Pattern:       args.Pattern,
		ContentSearch: args.ContentSearch,
		CaseSensitive: args.CaseSensitive,
		MaxResults:    maxResults,
		RootDir:       root,
	})
	if err != nil {
		return errResult("search failed: %v", err), nil
	}
	if len(results) == 0 {
		return okResult("no matches"), nil
	}

	var b strings.Builder
	for _, r := range results {
		if r.Line > 0 {
			fmt.Fprintf(&b, "%s:%d: %s\n", r.Path, r.Line, r.Content)
		} else {
			fmt.Fprintf(&b, "%s\n", r.Path)
		}
	}
	return okResult(strings.TrimRight(b.String(), "\n")), nil
}
