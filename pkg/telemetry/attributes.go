// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry integration with rich attributes
// for assistant observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for Tom telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Session attributes
	AttrSessionID     = "tom.session.id"
	AttrSessionTurns  = "tom.session.turn_count"
	AttrSessionUserID = "tom.session.user_id"

	// Triage attributes
	AttrTriageSelected = "tom.triage.selected"
	AttrTriageOutcome  = "tom.triage.outcome" // "selected", "reset", "empty", "fallback"

	// Dispatch loop attributes
	AttrTurnIteration     = "tom.turn.iteration"
	AttrTurnMaxIterations = "tom.turn.max_iterations"
	AttrTurnRunID         = "tom.turn.run_id"

	// Module / operation attributes
	AttrModuleName        = "tom.module.name"
	AttrModuleCount       = "tom.modules.count"
	AttrOperationName     = "tom.operation.name"
	AttrOperationCallID   = "tom.operation.call_id"
	AttrOperationDuration = "tom.operation.duration_ms"
	AttrOperationSuccess  = "tom.operation.success"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMDurationMs   = "gen_ai.duration_ms"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
)

// SessionAttributes returns span attributes for a session.
func SessionAttributes(sessionID, userID string, turns int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrSessionUserID, userID),
		attribute.Int(AttrSessionTurns, turns),
	}
}

// TriageAttributes returns span attributes for a triage decision.
func TriageAttributes(outcome string, selected []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTriageOutcome, outcome),
		attribute.StringSlice(AttrTriageSelected, selected),
	}
}

// TurnAttributes returns span attributes for a dispatch-loop turn.
func TurnAttributes(runID string, iteration, maxIterations int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTurnRunID, runID),
		attribute.Int(AttrTurnIteration, iteration),
		attribute.Int(AttrTurnMaxIterations, maxIterations),
	}
}

// OperationAttributes returns span attributes for one operation invocation.
func OperationAttributes(module, operation, callID string, durationMs float64, success bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrModuleName, module),
		attribute.String(AttrOperationName, operation),
		attribute.String(AttrOperationCallID, callID),
		attribute.Float64(AttrOperationDuration, durationMs),
		attribute.Bool(AttrOperationSuccess, success),
	}
}

// LLMAttributes returns span attributes for a gateway call.
func LLMAttributes(model string, messages, toolCalls int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, messages),
		attribute.Int(AttrLLMToolCalls, toolCalls),
	}
}
