package mcp

import (
	"context"
	"testing"

	"github.com/relaywire/agentcore/internal/toolrt"
)

func TestRegisterIntoAddsUpstreamAndLocalTools(t *testing.T) {
	proxy := NewProxy(NewStubClient())
	proxy.RegisterTool(NewSaveSecretTool(), MakeSaveSecretHandler(NewMemorySecretStore(), "s1"))

	reg := toolrt.NewRegistry()
	if err := proxy.RegisterInto(context.Background(), reg); err != nil {
		t.Fatalf("RegisterInto returned error: %v", err)
	}

	for _, name := range []string{"echo", "clock", "save_secret"} {
		if _, ok := reg.Lookup(name); !ok {
			t.Errorf("registry missing tool %q", name)
		}
	}
}

func TestBridgeToolExecuteCallsUpstream(t *testing.T) {
	proxy := NewProxy(NewStubClient())
	tools, err := proxy.ToolRTTools(context.Background())
	if err != nil {
		t.Fatalf("ToolRTTools returned error: %v", err)
	}

	var echo *toolrt.Tool
	for i := range tools {
		if tools[i].Name == "echo" {
			echo = &tools[i]
		}
	}
	if echo == nil {
		t.Fatal("echo tool not found")
	}

	result, err := echo.Execute(context.Background(), "call_1", map[string]any{"text": "hi"}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("result.IsError = true, want false: %+v", result)
	}
	if len(result.Content) != 1 || result.Content[0].Text != "hi" {
		t.Errorf("result content = %+v, want [{text hi}]", result.Content)
	}
}

func TestBridgeToolExecuteSurfacesUpstreamError(t *testing.T) {
	proxy := NewProxy(NewStubClient())
	unknown := proxy.bridgeTool(Tool{Name: "not-a-real-tool"})

	result, err := unknown.Execute(context.Background(), "call_1", map[string]any{}, nil)
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if !result.IsError {
		t.Errorf("result.IsError = false, want true for unknown upstream tool")
	}
}
