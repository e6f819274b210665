package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relaywire/agentcore/internal/agentmsg"
	"github.com/relaywire/agentcore/internal/shell"
	"github.com/relaywire/agentcore/internal/toolrt"
)

var shellSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"command": {"type": "string", "description": "Shell command to run"}
	},
	"required": ["command"]
}`)

type shellArgs struct {
	Command string `json:"command"`
}

// defaultBlockedCommands are refused outright; they either destroy state
// the agent loop can't recover from or reach outside the sandboxed root.
var defaultBlockedCommands = []string{"rm", "sudo", "shutdown", "reboot", "mkfs"}

// NewShellTool returns an in-process POSIX shell tool anchored at root (an
// empty root resolves to the working directory). Each call runs against the
// same persistent Shell, so cwd and exported env vars carry across calls.
func NewShellTool(root string) toolrt.Tool {
	sh := shell.New(root, []shell.BlockFunc{shell.CommandsBlocker(defaultBlockedCommands)})
	s := &shellTool{sh: sh}
	return toolrt.Tool{
		Name:            "bash",
		Label:           "Run shell command",
		Description:     "Run a shell command in a persistent in-process POSIX shell. cd, exported env vars, and cwd carry over between calls; cd is clamped to the project root.",
		ParameterSchema: shellSchema,
		Execute:         s.execute,
	}
}

type shellTool struct {
	sh *shell.Shell
}

func (s *shellTool) execute(ctx context.Context, toolCallID string, rawArgs map[string]any, onPartial toolrt.PartialFunc) (agentmsg.ToolResultPayload, error) {
	var args shellArgs
	if err := toolrt.Decode(rawArgs, &args); err != nil {
		return errResult("invalid arguments: %v", err), nil
	}
	if args.Command == "" {
		return errResult("command cannot be empty"), nil
	}

	stdout, stderr, err := s.sh.Exec(ctx, args.Command)
	code := shell.ExitCode(err)

	text := stdout
	if stderr != "" {
		if text != "" {
			text += "\n"
		}
		text += stderr
	}
	if code != 0 {
		text += fmt.Sprintf("\n[exit code %d]", code)
		return errResult("%s", text), nil
	}
	return okResult(text), nil
}
