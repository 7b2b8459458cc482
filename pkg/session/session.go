// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds per-user conversational state: the append-only turn
// history, the last triage result, and the expiry clock.
package session

import (
	"context"
	"time"

	"github.com/tom-assistant/tom/pkg/llm"
)

// Role tags one turn in a conversation history.
type Role string

const (
	RoleSystem          Role = "system"
	RoleUser            Role = "user"
	RoleAssistant       Role = "assistant"
	RoleOperationResult Role = "operation-result"
)

// Turn is one message in history. Turns are append-only and strictly
// ordered; an operation-result turn immediately follows the assistant turn
// that requested it, and its InvocationID matches one issued by that turn.
type Turn struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls records the operation invocations an assistant turn
	// requested, so replays of the transcript stay causally consistent.
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`

	// InvocationID ties an operation-result turn to its originating call.
	InvocationID string `json:"invocation_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Session is the per-user conversational state. It is exclusively owned by
// its Store; modules never hold a reference.
type Session struct {
	ID         string    `json:"id"`
	Turns      []Turn    `json:"turns"`
	LastTriage []string  `json:"last_triage,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Store is the session lifecycle contract: creation on first sight, append,
// reset, and expiry sweeping.
type Store interface {
	// Get returns the session, creating it if absent. Expiry is never an
	// error: an expired id simply yields a fresh session.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Append adds turns to the session history and refreshes its expiry.
	Append(ctx context.Context, sessionID string, turns ...Turn) error

	// SetLastTriage records the module names last selected for the session.
	SetLastTriage(ctx context.Context, sessionID string, modules []string) error

	// Reset clears history but preserves identity and the expiry clock.
	Reset(ctx context.Context, sessionID string) error

	// Sweep evicts sessions past their expiry, returning how many were
	// removed. Invoked periodically by the Sweeper.
	Sweep(ctx context.Context) (int, error)
}

// History converts the stored turns into gateway messages. Operation-result
// turns become tool-role messages carrying their invocation id; this string
// rendering is a serialization detail of the gateway boundary only.
func History(turns []Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case RoleOperationResult:
			out = append(out, llm.Message{
				Role:       llm.RoleTool,
				Content:    turn.Content,
				ToolCallID: turn.InvocationID,
			})
		case RoleAssistant:
			out = append(out, llm.Message{
				Role:      llm.RoleAssistant,
				Content:   turn.Content,
				ToolCalls: turn.ToolCalls,
			})
		case RoleSystem:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: turn.Content})
		default:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: turn.Content})
		}
	}
	return out
}

// Window keeps only the last max turns, preserving system turns regardless
// of the window. Applied when loading history for the gateway.
func Window(turns []Turn, max int) []Turn {
	if max <= 0 || len(turns) <= max {
		return turns
	}

	var systemTurns []Turn
	var otherTurns []Turn
	for _, turn := range turns {
		if turn.Role == RoleSystem {
			systemTurns = append(systemTurns, turn)
		} else {
			otherTurns = append(otherTurns, turn)
		}
	}

	available := max - len(systemTurns)
	if available < 0 {
		available = 0
	}
	if len(otherTurns) > available {
		otherTurns = otherTurns[len(otherTurns)-available:]
	}

	result := make([]Turn, 0, len(systemTurns)+len(otherTurns))
	result = append(result, systemTurns...)
	result = append(result, otherTurns...)
	return result
}
