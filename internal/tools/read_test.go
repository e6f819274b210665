package tools

import (
	"context"
	"strings"
	"testing"
)

func TestReadTagsLinesAndMarksTracker(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.txt", "one\ntwo\nthree")

	tracker := NewReadTracker()
	read := NewReadTool(dir, tracker)

	result, err := read.Execute(context.Background(), "call1", map[string]any{"path": "a.txt"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	text := result.Content[0].Text
	if !strings.Contains(text, "1:") || !strings.Contains(text, "two") {
		t.Errorf("expected tagged output to mention line numbers and content, got %q", text)
	}
	if !tracker.WasRead(path) {
		t.Error("expected Read to mark the file as read")
	}
}

func TestReadOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.txt", "l1\nl2\nl3\nl4\nl5")

	read := NewReadTool(dir, NewReadTracker())
	result, err := read.Execute(context.Background(), "call1", map[string]any{
		"path": "a.txt", "offset": 2, "limit": 2,
	}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	text := result.Content[0].Text
	if strings.Contains(text, "l1") || strings.Contains(text, "l4") {
		t.Errorf("expected only lines 2-3 in window, got %q", text)
	}
	if !strings.Contains(text, "l2") || !strings.Contains(text, "l3") {
		t.Errorf("expected lines 2-3 present, got %q", text)
	}
}

func TestReadOffsetPastEndOfFile(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.txt", "only line")

	read := NewReadTool(dir, NewReadTracker())
	result, err := read.Execute(context.Background(), "call1", map[string]any{
		"path": "a.txt", "offset": 50,
	}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected an offset past the end of the file to error")
	}
}
