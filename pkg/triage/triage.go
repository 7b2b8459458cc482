// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package triage narrows the universe of capability modules before the full
// tool-calling loop: a single cheap decision call that returns the subset of
// module names relevant to the conversation, a reset sentinel, or nothing.
package triage

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/llm"
	"github.com/tom-assistant/tom/pkg/registry"
	"github.com/tom-assistant/tom/pkg/resilience"
	"github.com/tom-assistant/tom/pkg/telemetry"
)

// ResetSentinel is the triage outcome meaning "clear session state".
const ResetSentinel = "reset"

// greetings are utterances that always map to the reset sentinel, without
// spending a model call. Matching is case-insensitive on the trimmed text.
var greetings = map[string]bool{
	"hi":    true,
	"hello": true,
	"hey":   true,
	"reset": true,
}

const decisionDirective = `You are a request router. Given the conversation above, answer with ONLY a comma-separated list of the module names relevant to the latest user request, chosen from the modules listed below. Answer with exactly "reset" if the latest message is a greeting or an explicit request to start over. Answer with exactly "none" if no module applies. Do not add any other text.

Available modules:
`

// Result is one triage decision.
type Result struct {
	// Modules is the validated, ordered subset of candidate module names.
	Modules []string

	// Reset reports that the user wants to clear session state.
	Reset bool

	// Degraded reports that the decision call failed and Modules carries
	// the previous turn's selection instead of a fresh one.
	Degraded bool
}

// Engine asks the gateway which modules are relevant to a conversation.
type Engine struct {
	provider llm.Provider
	model    string
	timeout  time.Duration
	retry    resilience.RetryConfig
	log      *slog.Logger
}

// NewEngine builds a triage engine over the given gateway provider.
// A zero timeout disables the per-call deadline.
func NewEngine(provider llm.Provider, model string, timeout time.Duration) *Engine {
	return &Engine{
		provider: provider,
		model:    model,
		timeout:  timeout,
		retry:    resilience.GatewayRetryConfig(),
		log:      slog.Default(),
	}
}

// Triage selects the candidate modules relevant to the conversation.
//
// The decision call attaches no operation schemas; it only returns a choice.
// If the gateway fails even after retry, the previous selection lastTriage is
// returned as a degraded fallback (empty on a first turn). Names the model
// returns that match no candidate are dropped with a warning, never fatally.
func (e *Engine) Triage(ctx context.Context, conversation []llm.Message, candidates []core.Module, lastTriage []string) Result {
	ctx, span := otel.Tracer("tom/triage").Start(ctx, "triage.decide")
	defer span.End()

	if utter := latestUserText(conversation); greetings[strings.ToLower(strings.TrimSpace(utter))] {
		span.SetAttributes(telemetry.TriageAttributes("reset", nil)...)
		e.log.Info("triage.reset", slog.String("utterance", utter))
		return Result{Reset: true}
	}

	if len(candidates) == 0 {
		span.SetAttributes(telemetry.TriageAttributes("empty", nil)...)
		return Result{}
	}

	messages := make([]llm.Message, 0, len(conversation)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: e.instruction(candidates)})
	messages = append(messages, conversation...)

	raw, err := e.retry.DoWithResult(ctx, func() (interface{}, error) {
		return resilience.WithTimeoutResult(ctx, resilience.TimeoutConfig{Duration: e.timeout},
			func(ctx context.Context) (interface{}, error) {
				return e.provider.Chat(ctx, llm.ChatRequest{
					Model:    e.model,
					Messages: messages,
				})
			})
	})
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(telemetry.TriageAttributes("degraded", lastTriage)...)
		e.log.Warn("triage.gateway.failed",
			slog.String("error", err.Error()),
			slog.Any("fallback", lastTriage),
		)
		return Result{Modules: append([]string(nil), lastTriage...), Degraded: true}
	}
	resp := raw.(*llm.ChatResponse)

	result := e.parse(resp.Content, candidates)
	outcome := "selected"
	switch {
	case result.Reset:
		outcome = "reset"
	case len(result.Modules) == 0:
		outcome = "empty"
	}
	span.SetAttributes(telemetry.TriageAttributes(outcome, result.Modules)...)
	span.SetAttributes(telemetry.LLMAttributes(e.model, len(messages), 0)...)
	e.log.Info("triage.decision",
		slog.String("outcome", outcome),
		slog.Any("modules", result.Modules),
		slog.String("trace_id", span.SpanContext().TraceID().String()),
	)
	return result
}

// latestUserText returns the content of the most recent user message.
func latestUserText(conversation []llm.Message) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == llm.RoleUser {
			return conversation[i].Content
		}
	}
	return ""
}

func (e *Engine) instruction(candidates []core.Module) string {
	var b strings.Builder
	b.WriteString(decisionDirective)
	for _, line := range registry.Descriptions(candidates) {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// parse validates the model's free-text answer against the candidate set.
func (e *Engine) parse(content string, candidates []core.Module) Result {
	known := make(map[string]string, len(candidates))
	for _, m := range candidates {
		known[strings.ToLower(m.Name())] = m.Name()
	}

	var result Result
	seen := make(map[string]bool)
	for _, token := range strings.FieldsFunc(content, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '\t'
	}) {
		name := strings.ToLower(strings.Trim(token, "\"'.`"))
		switch {
		case name == "" || name == "none":
			continue
		case name == ResetSentinel:
			result.Reset = true
		default:
			canonical, ok := known[name]
			if !ok {
				e.log.Warn("triage.unknown.module", slog.String("name", name))
				continue
			}
			if !seen[canonical] {
				seen[canonical] = true
				result.Modules = append(result.Modules, canonical)
			}
		}
	}
	if result.Reset {
		// Reset wins over any module names the model tacked on.
		result.Modules = nil
	}
	return result
}
