// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package mcpmod

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tom-assistant/tom/pkg/errors"
)

type fakeCaller struct {
	tools  []mcp.Tool
	called string
	args   map[string]interface{}
	result *mcp.CallToolResult
}

func (f *fakeCaller) ListTools(_ context.Context) ([]mcp.Tool, error) {
	return f.tools, nil
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	f.called, f.args = name, args
	return f.result, nil
}

func searchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "web_search",
		Description: "Search the web",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query":       map[string]interface{}{"type": "string", "description": "Search query"},
				"max_results": map[string]interface{}{"type": "integer", "description": "Result cap"},
			},
			Required: []string{"query"},
		},
	}
}

func TestToolsBecomeOperations(t *testing.T) {
	caller := &fakeCaller{tools: []mcp.Tool{searchTool()}}
	m, err := New(context.Background(), "websearch", "Web search integration", caller)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ops := m.Operations()
	if len(ops) != 1 || ops[0].Name != "web_search" {
		t.Fatalf("unexpected operations: %+v", ops)
	}
	if err := ops[0].Params.Validate(map[string]interface{}{"max_results": float64(3)}, false); err == nil {
		t.Error("missing required query must fail validation")
	}
	if err := ops[0].Params.Validate(map[string]interface{}{"query": "go"}, false); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}
}

func TestHandlerDelegatesToRemote(t *testing.T) {
	caller := &fakeCaller{
		tools: []mcp.Tool{searchTool()},
		result: &mcp.CallToolResult{
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "three results"}},
		},
	}
	m, err := New(context.Background(), "websearch", "Web search integration", caller)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := m.Operations()[0].Handler(context.Background(), map[string]interface{}{"query": "go"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if caller.called != "web_search" || caller.args["query"] != "go" {
		t.Errorf("remote call not delegated: %q %v", caller.called, caller.args)
	}
	if out != "three results" {
		t.Errorf("unexpected output: %v", out)
	}
}

func TestRemoteErrorSurfacesAsOperationFailure(t *testing.T) {
	caller := &fakeCaller{
		tools: []mcp.Tool{searchTool()},
		result: &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "quota exceeded"}},
		},
	}
	m, err := New(context.Background(), "websearch", "Web search integration", caller)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = m.Operations()[0].Handler(context.Background(), map[string]interface{}{"query": "go"})
	if !errors.HasCode(err, errors.CodeOperationFailure) {
		t.Errorf("expected OPERATION_FAILURE, got %v", err)
	}
}
