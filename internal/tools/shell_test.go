package tools

import (
	"context"
	"strings"
	"testing"
)

func TestShellRunsCommandAndCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	sh := NewShellTool(dir)

	result, err := sh.Execute(context.Background(), "call1", map[string]any{"command": "echo hello"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if !strings.Contains(result.Content[0].Text, "hello") {
		t.Errorf("expected output to contain %q, got %q", "hello", result.Content[0].Text)
	}
}

func TestShellSurfacesNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	sh := NewShellTool(dir)

	result, err := sh.Execute(context.Background(), "call1", map[string]any{"command": "exit 3"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected a non-zero exit to be reported as an error result")
	}
	if !strings.Contains(result.Content[0].Text, "exit code 3") {
		t.Errorf("expected exit code in output, got %q", result.Content[0].Text)
	}
}

func TestShellBlocksDisallowedCommand(t *testing.T) {
	dir := t.TempDir()
	sh := NewShellTool(dir)

	result, err := sh.Execute(context.Background(), "call1", map[string]any{"command": "rm -rf /"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected rm to be blocked")
	}
}

func TestShellPersistsCwdAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	sh := NewShellTool(dir)

	if _, err := sh.Execute(context.Background(), "call1", map[string]any{"command": "mkdir sub && cd sub"}, nil); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	result, err := sh.Execute(context.Background(), "call2", map[string]any{"command": "pwd"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(result.Content[0].Text), "sub") {
		t.Errorf("expected cwd to persist as .../sub, got %q", result.Content[0].Text)
	}
}
