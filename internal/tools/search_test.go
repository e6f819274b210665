package tools

import (
	"context"
	"strings"
	"testing"
)

func TestSearchFindsFilenameMatch(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "needle.go", "package x")
	writeTemp(t, dir, "other.go", "package x")

	search := NewSearchTool(dir)
	result, err := search.Execute(context.Background(), "call1", map[string]any{"pattern": "needle"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if !strings.Contains(result.Content[0].Text, "needle.go") {
		t.Errorf("expected needle.go in results, got %q", result.Content[0].Text)
	}
	if strings.Contains(result.Content[0].Text, "other.go") {
		t.Errorf("did not expect other.go in results, got %q", result.Content[0].Text)
	}
}

func TestSearchContentMatch(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.go", "func Foo() {}\nfunc bar() {}")

	search := NewSearchTool(dir)
	result, err := search.Execute(context.Background(), "call1", map[string]any{
		"pattern": "func Foo", "contentSearch": true,
	}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !strings.Contains(result.Content[0].Text, "a.go:1:") {
		t.Errorf("expected a file:line match, got %q", result.Content[0].Text)
	}
}

func TestSearchNoMatches(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.go", "package x")

	search := NewSearchTool(dir)
	result, err := search.Execute(context.Background(), "call1", map[string]any{"pattern": "zzz_no_match"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %+v", result)
	}
	if result.Content[0].Text != "no matches" {
		t.Errorf("expected \"no matches\", got %q", result.Content[0].Text)
	}
}
