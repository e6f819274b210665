package provider

import (
	"context"
	"testing"
)

func TestVLLMFactoryNameAndCreate(t *testing.T) {
	f := NewVLLMFactory("vllm1", "http://localhost:8000", "key")
	if f.Name() != "vllm1" {
		t.Errorf("Name() = %q, want vllm1", f.Name())
	}
	p := f.Create("llama-3", Options{Temperature: 0.2, TopP: 0.9, MaxTokens: 512})
	if p.Name() != "vllm1" {
		t.Errorf("Create returned provider named %q, want vllm1", p.Name())
	}
}

func TestOpenCodeFactoryNameAndCreate(t *testing.T) {
	f := NewOpenCodeFactory("oc1", "https://opencode.ai/zen/v1", "key")
	if f.Name() != "oc1" {
		t.Errorf("Name() = %q, want oc1", f.Name())
	}
	p := f.Create("big-pickle", Options{Temperature: 0.5})
	if p.Name() != "oc1" {
		t.Errorf("Create returned provider named %q, want oc1", p.Name())
	}
}

func TestAnthropicFactoryDefaultsBaseURL(t *testing.T) {
	f := NewAnthropicFactory("claude", "", "key")
	p := f.Create("claude-sonnet", Options{Temperature: 0.3}).(*AnthropicProvider)
	if p.baseURL != "https://api.anthropic.com" {
		t.Errorf("baseURL = %q, want default public endpoint", p.baseURL)
	}
	if p.maxTokens != 8192 {
		t.Errorf("maxTokens = %d, want default 8192", p.maxTokens)
	}
}

func TestAnthropicFactoryHonorsMaxTokensOption(t *testing.T) {
	f := NewAnthropicFactory("claude", "https://custom.example", "key")
	p := f.Create("claude-sonnet", Options{MaxTokens: 2048}).(*AnthropicProvider)
	if p.maxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", p.maxTokens)
	}
	if p.baseURL != "https://custom.example" {
		t.Errorf("baseURL = %q, want custom.example", p.baseURL)
	}
}

func TestOpenCodeChatStreamRejectsNonStreamingModel(t *testing.T) {
	p := NewOpenCodeWithTemp("oc", "https://opencode.ai/zen/v1", "claude-opus-5", "key", 0.5)
	if _, err := p.ChatStream(context.Background(), nil, nil); err == nil {
		t.Error("expected ChatStream to reject a model routed away from chat/completions")
	}
}
