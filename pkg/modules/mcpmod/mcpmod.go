// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcpmod adopts a remote MCP server's tools as a capability
// module: each remote tool becomes one operation, its JSON schema
// translated into the operation's parameter schema.
package mcpmod

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/schema"
)

// ToolCaller abstracts MCP tool execution.
type ToolCaller interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// Module exposes one MCP server's tools as operations.
type Module struct {
	name        string
	description string
	caller      ToolCaller
	ops         []core.Operation
}

// New discovers the server's tools and builds the module. The tool list is
// fixed at construction, like every other module's operation set.
func New(ctx context.Context, name, description string, caller ToolCaller) (*Module, error) {
	tools, err := caller.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp module %s: list tools: %w", name, err)
	}

	m := &Module{name: name, description: description, caller: caller}
	for _, tool := range tools {
		m.ops = append(m.ops, m.adapt(tool))
	}
	return m, nil
}

func (m *Module) Name() string        { return m.name }
func (m *Module) Description() string { return m.description }
func (m *Module) Complexity() int     { return 3 }

func (m *Module) SystemContext() string {
	return fmt.Sprintf("The %s operations are served by an external integration; results come back as text or structured data.", m.name)
}

func (m *Module) Operations() []core.Operation {
	ops := make([]core.Operation, len(m.ops))
	copy(ops, m.ops)
	return ops
}

func (m *Module) adapt(tool mcp.Tool) core.Operation {
	toolName := tool.Name
	return core.Operation{
		Name:        toolName,
		Description: tool.Description,
		Params:      translateSchema(tool.InputSchema),
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			result, err := m.caller.CallTool(ctx, toolName, args)
			if err != nil {
				return nil, errors.New(errors.CodeOperationFailure,
					fmt.Sprintf("mcp tool %q failed", toolName), err).
					WithRecoverable(true)
			}
			return resultToOutput(result)
		},
	}
}

// translateSchema converts an MCP input schema into the operation parameter
// model. Shapes the model can't express degrade to plain strings; remote
// servers validate their own arguments anyway.
func translateSchema(in mcp.ToolInputSchema) *schema.Object {
	if in.Type != "" && in.Type != "object" {
		return nil
	}

	out := schema.New()
	for name, raw := range in.Properties {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			out.Prop(name, schema.String(""))
			continue
		}
		description, _ := prop["description"].(string)
		switch prop["type"] {
		case "integer":
			out.Prop(name, schema.Integer(description))
		case "number":
			out.Prop(name, schema.Number(description))
		case "boolean":
			out.Prop(name, schema.Boolean(description))
		case "string":
			if raw, ok := prop["enum"].([]interface{}); ok && len(raw) > 0 {
				values := make([]string, 0, len(raw))
				for _, v := range raw {
					if s, ok := v.(string); ok {
						values = append(values, s)
					}
				}
				out.Prop(name, schema.StringEnum(description, values...))
			} else {
				out.Prop(name, schema.String(description))
			}
		default:
			out.Prop(name, schema.String(description))
		}
	}
	out.Require(in.Required...)
	return out
}

func resultToOutput(result *mcp.CallToolResult) (interface{}, error) {
	if result == nil {
		return nil, errors.New(errors.CodeOperationFailure, "mcp tool returned no result", nil)
	}
	if result.IsError {
		return nil, errors.New(errors.CodeOperationFailure,
			fmt.Sprintf("mcp tool returned error: %s", textContent(result.Content)), nil)
	}
	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	if text := textContent(result.Content); text != "" {
		return text, nil
	}
	return result, nil
}

func textContent(items []mcp.Content) string {
	var parts []string
	for _, item := range items {
		switch content := item.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ core.Module = (*Module)(nil)
