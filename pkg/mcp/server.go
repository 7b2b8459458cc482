// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp bridges Tom and the Model Context Protocol in both
// directions: a server front end that exposes capability operations as MCP
// tools, and a client wrapper that lets a capability module adopt a remote
// MCP server's tools as its own operations.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/registry"
)

// Server exposes a module subset's operations as MCP tools over stdio.
// Any MCP-speaking front end can then drive Tom's capabilities directly,
// bypassing the conversational loop.
type Server struct {
	mcpServer *server.MCPServer
	log       *slog.Logger
}

// NewServer creates an MCP server with the given identity.
func NewServer(name, version string) *Server {
	return &Server{
		mcpServer: server.NewMCPServer(name, version),
		log:       slog.Default(),
	}
}

// RegisterModules publishes every operation of the given modules as an MCP
// tool. Names follow the same collision qualification the model sees, so
// the two surfaces never diverge.
func (s *Server) RegisterModules(subset []core.Module) error {
	for _, def := range registry.MergedSchema(subset) {
		name := def.Function.Name
		rawSchema, err := json.Marshal(def.Function.Parameters)
		if err != nil {
			return err
		}
		tool := mcp.NewToolWithRawSchema(name, def.Function.Description, rawSchema)

		s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args, _ := request.Params.Arguments.(map[string]interface{})
			if args == nil {
				args = map[string]interface{}{}
			}

			mod, op, err := registry.ResolveIn(subset, name)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			if op.Params != nil {
				if err := op.Params.Validate(args, op.Strict); err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
			}

			out, err := op.Handler(ctx, args)
			if err != nil {
				s.log.Warn("mcp.tool.failed",
					slog.String("module", mod.Name()),
					slog.String("operation", op.Name),
					slog.String("error", err.Error()),
				)
				return mcp.NewToolResultError("operation failed"), nil
			}

			raw, err := json.Marshal(out)
			if err != nil {
				return mcp.NewToolResultError("unserializable operation result"), nil
			}
			return mcp.NewToolResultText(string(raw)), nil
		})
	}
	return nil
}

// ServeStdio starts the server on stdio and blocks until the stream closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
