// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives one user turn to completion: triage the
// request onto a module subset, expose the merged operation schema to the
// gateway, execute requested operations, and loop until the model produces
// a final answer or the iteration bound is hit.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tom-assistant/tom/pkg/adjust"
	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/llm"
	"github.com/tom-assistant/tom/pkg/registry"
	"github.com/tom-assistant/tom/pkg/resilience"
	"github.com/tom-assistant/tom/pkg/session"
	"github.com/tom-assistant/tom/pkg/telemetry"
	"github.com/tom-assistant/tom/pkg/triage"
)

// Fixed user-visible responses for the non-model paths.
const (
	ResetConfirmation = "Okay, I've cleared our conversation. What can I do for you?"
	CantHelpMessage   = "I'm sorry, I don't think I can help with that."
	DegradedMessage   = "I'm having trouble completing that right now. Please try again in a moment."
)

// Options configures an Orchestrator. Zero values fall back to sane
// defaults in New.
type Options struct {
	Registry *registry.Store
	Sessions session.Store
	Provider llm.Provider
	Triage   *triage.Engine
	Adjust   *adjust.Store

	Model          string
	MaxIterations  int
	HistoryWindow  int
	GatewayTimeout time.Duration
	HandlerTimeout time.Duration
}

// Orchestrator is the per-turn dispatch loop. Safe for concurrent use;
// turns for the same session are serialized internally.
type Orchestrator struct {
	registry *registry.Store
	sessions session.Store
	provider llm.Provider
	triage   *triage.Engine
	adjust   *adjust.Store
	locks    *session.KeyedLocks

	model          string
	maxIterations  int
	historyWindow  int
	gatewayTimeout time.Duration
	handlerTimeout time.Duration
	retry          resilience.RetryConfig

	log *slog.Logger
}

// New builds an orchestrator from options.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:       opts.Registry,
		sessions:       opts.Sessions,
		provider:       opts.Provider,
		triage:         opts.Triage,
		adjust:         opts.Adjust,
		locks:          session.NewKeyedLocks(),
		model:          opts.Model,
		maxIterations:  opts.MaxIterations,
		historyWindow:  opts.HistoryWindow,
		gatewayTimeout: opts.GatewayTimeout,
		handlerTimeout: opts.HandlerTimeout,
		retry:          resilience.GatewayRetryConfig(),
		log:            slog.Default(),
	}
	if o.maxIterations <= 0 {
		o.maxIterations = 8
	}
	return o
}

// HandleTurn runs one user utterance to completion and returns the final
// natural-language response. The full exchange, including every
// intermediate assistant and operation-result turn, is appended to the
// session. Turns for the same session are serialized; distinct sessions
// proceed concurrently.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, userID, utterance string) (string, error) {
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	ctx, runID := core.EnsureRunID(ctx)
	ctx = core.WithSessionID(ctx, sessionID)
	ctx = core.WithUserID(ctx, userID)

	ctx, span := otel.Tracer("tom/orchestrator").Start(ctx, "turn.handle",
		trace.WithAttributes(telemetry.SessionAttributes(sessionID, userID, 0)...),
	)
	defer span.End()

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}

	history := session.History(session.Window(sess.Turns, o.historyWindow))
	conversation := append(history, llm.Message{Role: llm.RoleUser, Content: utterance})

	candidates := o.registry.Load().Active(userID)
	decision := o.triage.Triage(ctx, conversation, candidates, sess.LastTriage)

	if decision.Reset {
		if err := o.sessions.Reset(ctx, sessionID); err != nil {
			return "", err
		}
		span.SetAttributes(attribute.String("tom.turn.outcome", "reset"))
		o.log.Info("turn.reset", slog.String("session_id", sessionID), slog.String("run_id", runID))
		return ResetConfirmation, nil
	}

	if len(decision.Modules) == 0 {
		span.SetAttributes(attribute.String("tom.turn.outcome", "no-module"))
		o.log.Info("turn.no.module", slog.String("session_id", sessionID), slog.String("run_id", runID))
		if err := o.sessions.Append(ctx, sessionID,
			session.Turn{Role: session.RoleUser, Content: utterance},
			session.Turn{Role: session.RoleAssistant, Content: CantHelpMessage},
		); err != nil {
			return "", err
		}
		return CantHelpMessage, nil
	}

	if err := o.sessions.SetLastTriage(ctx, sessionID, decision.Modules); err != nil {
		return "", err
	}

	subset := pick(candidates, decision.Modules)
	tools := registry.MergedSchema(subset)
	instructions := o.instructions(subset, decision.Modules)

	response, turns := o.loop(ctx, instructions, conversation, subset, tools)

	appended := make([]session.Turn, 0, len(turns)+1)
	appended = append(appended, session.Turn{Role: session.RoleUser, Content: utterance})
	appended = append(appended, turns...)
	if err := o.sessions.Append(ctx, sessionID, appended...); err != nil {
		return "", err
	}
	return response, nil
}

// loop is the tool-calling state machine. It returns the final response
// text and every intermediate turn produced after the user utterance, in
// order. It never returns an error: all failures degrade to fixed text.
func (o *Orchestrator) loop(ctx context.Context, instructions string, conversation []llm.Message, subset []core.Module, tools []llm.Tool) (string, []session.Turn) {
	var turns []session.Turn
	var guidance []string

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		runID, _ := core.RunID(ctx)
		iterCtx, iterSpan := otel.Tracer("tom/orchestrator").Start(ctx, "turn.iteration",
			trace.WithAttributes(telemetry.TurnAttributes(runID, iteration, o.maxIterations)...),
		)

		system := instructions
		if len(guidance) > 0 {
			system = system + "\n\nWhen phrasing your answer:\n" + strings.Join(guidance, "\n")
		}

		messages := make([]llm.Message, 0, len(conversation)+len(turns)+1)
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
		messages = append(messages, conversation...)
		messages = append(messages, session.History(turns)...)

		resp, err := o.callGateway(iterCtx, messages, tools)
		if err != nil {
			iterSpan.RecordError(err)
			iterSpan.End()
			telemetry.GetErrorMetrics().RecordError(ctx, err, "orchestrator")
			o.log.Error("turn.gateway.failed",
				slog.Int("iteration", iteration),
				slog.String("error", err.Error()),
			)
			turns = append(turns, session.Turn{Role: session.RoleAssistant, Content: DegradedMessage})
			return DegradedMessage, turns
		}
		iterSpan.SetAttributes(telemetry.LLMAttributes(o.model, len(messages), len(resp.ToolCalls))...)

		if resp.IsFinal() {
			iterSpan.End()
			turns = append(turns, session.Turn{Role: session.RoleAssistant, Content: resp.Content})
			return resp.Content, turns
		}

		// The assistant turn that requested the batch comes first; each
		// operation-result follows in invocation order.
		turns = append(turns, session.Turn{
			Role:      session.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result, opGuidance := o.execute(iterCtx, subset, call)
			turns = append(turns, result)
			if opGuidance != "" {
				guidance = append(guidance, opGuidance)
			}
		}
		iterSpan.End()
	}

	o.log.Warn("turn.iteration.exhausted", slog.Int("max_iterations", o.maxIterations))
	turns = append(turns, session.Turn{Role: session.RoleAssistant, Content: DegradedMessage})
	return DegradedMessage, turns
}

// callGateway wraps the model call with the per-call timeout and a single
// retry with backoff.
func (o *Orchestrator) callGateway(ctx context.Context, messages []llm.Message, tools []llm.Tool) (*llm.ChatResponse, error) {
	raw, err := o.retry.DoWithResult(ctx, func() (interface{}, error) {
		return resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: o.gatewayTimeout},
			func(ctx context.Context) (interface{}, error) {
				return o.provider.Chat(ctx, llm.ChatRequest{
					Model:    o.model,
					Messages: messages,
					Tools:    tools,
				})
			})
	})
	if err != nil {
		return nil, err
	}
	return raw.(*llm.ChatResponse), nil
}

// execute runs a single requested invocation: resolve, validate, invoke.
// Every failure is captured as a structured payload in the returned
// operation-result turn; nothing propagates past this boundary. The second
// return value is the operation's response guidance when it was actually
// invoked.
func (o *Orchestrator) execute(ctx context.Context, subset []core.Module, call llm.ToolCall) (session.Turn, string) {
	invocationID := call.ID
	if invocationID == "" {
		invocationID = uuid.New().String()
	}
	resultTurn := func(payload interface{}) session.Turn {
		raw, err := json.Marshal(payload)
		if err != nil {
			raw = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"unserializable operation result"}}`)
		}
		return session.Turn{
			Role:         session.RoleOperationResult,
			Content:      string(raw),
			InvocationID: invocationID,
		}
	}

	mod, op, err := registry.ResolveIn(subset, call.Function.Name)
	if err != nil {
		o.log.Warn("operation.unknown",
			slog.String("operation", call.Function.Name),
			slog.String("invocation_id", invocationID),
		)
		telemetry.GetErrorMetrics().RecordError(ctx, err, "orchestrator")
		return resultTurn(errorPayload(err)), ""
	}

	var args map[string]interface{}
	if call.Function.Arguments != "" {
		if jsonErr := json.Unmarshal([]byte(call.Function.Arguments), &args); jsonErr != nil {
			argErr := errors.New(errors.CodeInvalidArgument,
				fmt.Sprintf("arguments for %q are not a JSON object", call.Function.Name), jsonErr)
			return resultTurn(errorPayload(argErr)), ""
		}
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	if op.Params != nil {
		if valErr := op.Params.Validate(args, op.Strict); valErr != nil {
			o.log.Warn("operation.arguments.invalid",
				slog.String("module", mod.Name()),
				slog.String("operation", op.Name),
				slog.String("error", valErr.Error()),
			)
			return resultTurn(errorPayload(valErr)), ""
		}
	}

	opCtx, opSpan := otel.Tracer("tom/orchestrator").Start(ctx, "operation.invoke")
	start := time.Now()
	var out interface{}
	invokeErr := resilience.WithTimeout(opCtx, resilience.TimeoutConfig{Duration: o.handlerTimeout},
		func(ctx context.Context) error {
			var handlerErr error
			out, handlerErr = op.Handler(ctx, args)
			return handlerErr
		})
	durationMs := float64(time.Since(start).Seconds() * 1000)
	opSpan.SetAttributes(telemetry.OperationAttributes(mod.Name(), op.Name, invocationID, durationMs, invokeErr == nil)...)
	opSpan.End()

	if invokeErr != nil {
		opErr, typed := errors.Match(invokeErr)
		if !typed {
			opErr = errors.New(errors.CodeOperationFailure,
				fmt.Sprintf("%s.%s failed", mod.Name(), op.Name), invokeErr)
		}
		// The raw cause goes to the log only; the model sees a
		// sanitized message.
		o.log.Error("operation.failed",
			slog.String("module", mod.Name()),
			slog.String("operation", op.Name),
			slog.String("invocation_id", invocationID),
			slog.String("error", invokeErr.Error()),
			slog.Float64("duration_ms", durationMs),
		)
		telemetry.GetErrorMetrics().RecordError(ctx, opErr, mod.Name())
		return resultTurn(map[string]interface{}{
			"error": map[string]interface{}{
				"code":    string(opErr.Code),
				"message": opErr.Sanitized(),
			},
		}), ""
	}

	o.log.Info("operation.done",
		slog.String("module", mod.Name()),
		slog.String("operation", op.Name),
		slog.String("invocation_id", invocationID),
		slog.Float64("duration_ms", durationMs),
	)
	return resultTurn(map[string]interface{}{"result": out}), op.ResponseGuidance
}

// instructions concatenates the selected modules' system context with any
// behavioral adjustments configured for them.
func (o *Orchestrator) instructions(subset []core.Module, names []string) string {
	var parts []string
	for _, m := range subset {
		if text := strings.TrimSpace(m.SystemContext()); text != "" {
			parts = append(parts, text)
		}
	}
	if o.adjust != nil {
		if text := o.adjust.Text(names); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// pick filters candidates down to the named subset, preserving the triage
// selection order.
func pick(candidates []core.Module, names []string) []core.Module {
	byName := make(map[string]core.Module, len(candidates))
	for _, m := range candidates {
		byName[m.Name()] = m
	}
	out := make([]core.Module, 0, len(names))
	for _, name := range names {
		if m, ok := byName[name]; ok {
			out = append(out, m)
		}
	}
	return out
}

// errorPayload renders a typed error as the structured payload the model
// sees in an operation-result turn.
func errorPayload(err error) map[string]interface{} {
	if typed := errors.As(err); typed != nil {
		return map[string]interface{}{
			"error": map[string]interface{}{
				"code":    string(typed.Code),
				"message": typed.Message,
			},
		}
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    string(errors.CodeInternal),
			"message": err.Error(),
		},
	}
}
