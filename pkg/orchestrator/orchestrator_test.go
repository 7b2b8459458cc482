// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/llm"
	"github.com/tom-assistant/tom/pkg/registry"
	"github.com/tom-assistant/tom/pkg/schema"
	"github.com/tom-assistant/tom/pkg/session"
	"github.com/tom-assistant/tom/pkg/triage"
)

// fixture wires an orchestrator around a scripted dispatch gateway and a
// mock triage gateway answering with a fixed module list.
type fixture struct {
	orch     *Orchestrator
	store    *session.InMemoryStore
	dispatch *llm.ScriptedMockProvider
}

func newFixture(t *testing.T, triageAnswer string, modules []core.Module, responses ...*llm.ChatResponse) *fixture {
	t.Helper()

	reg := registry.New(nil)
	for _, m := range modules {
		if err := reg.Register(m); err != nil {
			t.Fatalf("register %s: %v", m.Name(), err)
		}
	}

	store := session.NewInMemoryStore(time.Hour)
	dispatch := llm.NewScriptedMockProvider(responses...)
	triageGateway := &llm.StaticMockProvider{Response: llm.TextResponse(triageAnswer)}

	orch := New(Options{
		Registry:       registry.NewStore(reg),
		Sessions:       store,
		Provider:       dispatch,
		Triage:         triage.NewEngine(triageGateway, "test-model", time.Second),
		Model:          "test-model",
		MaxIterations:  4,
		GatewayTimeout: time.Second,
		HandlerTimeout: time.Second,
	})
	return &fixture{orch: orch, store: store, dispatch: dispatch}
}

func weatherModule(calls *[]string) *core.StaticModule {
	return &core.StaticModule{
		ModuleName:        "weather",
		ModuleDescription: "Weather forecasts",
		Context:           "You can look up weather by coordinates.",
		Ops: []core.Operation{
			{
				Name:        "get_gps_position_by_city_name",
				Description: "Resolve a city name to coordinates",
				Params:      schema.New().Prop("city_name", schema.String("City name")).Require("city_name"),
				Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
					*calls = append(*calls, "geocode")
					return map[string]interface{}{"lat": 48.85, "lon": 2.35}, nil
				},
			},
			{
				Name:        "weather_get_by_gps_position",
				Description: "Forecast for coordinates",
				Params: schema.New().
					Prop("lat", schema.Number("Latitude")).
					Prop("lon", schema.Number("Longitude")).
					Require("lat", "lon"),
				Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
					*calls = append(*calls, "forecast")
					return map[string]interface{}{"tomorrow": "sunny, 24C"}, nil
				},
			},
		},
	}
}

func turnRoles(turns []session.Turn) []string {
	roles := make([]string, len(turns))
	for i, turn := range turns {
		roles[i] = string(turn.Role)
	}
	return roles
}

func TestScenarioWeatherTwoOperations(t *testing.T) {
	var calls []string
	fx := newFixture(t, "weather", []core.Module{weatherModule(&calls)},
		llm.ToolCallResponse(llm.Call("call-1", "get_gps_position_by_city_name", `{"city_name":"Paris"}`)),
		llm.ToolCallResponse(llm.Call("call-2", "weather_get_by_gps_position", `{"lat":48.85,"lon":2.35}`)),
		llm.TextResponse("Tomorrow in Paris will be sunny with a high of 24C."),
	)

	resp, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "What's the weather in Paris tomorrow?")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp == "" || !strings.Contains(resp, "sunny") {
		t.Errorf("expected non-empty forecast text, got %q", resp)
	}
	if len(calls) != 2 || calls[0] != "geocode" || calls[1] != "forecast" {
		t.Errorf("expected geocode then forecast, got %v", calls)
	}

	sess, _ := fx.store.Get(context.Background(), "s1")
	want := []string{"user", "assistant", "operation-result", "assistant", "operation-result", "assistant"}
	got := turnRoles(sess.Turns)
	if len(got) != len(want) {
		t.Fatalf("expected roles %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: expected role %q, got %q (%v)", i, want[i], got[i], got)
		}
	}
	// Each operation-result must carry the invocation id its assistant
	// turn issued.
	if sess.Turns[2].InvocationID != "call-1" || sess.Turns[4].InvocationID != "call-2" {
		t.Errorf("invocation ids out of order: %q, %q", sess.Turns[2].InvocationID, sess.Turns[4].InvocationID)
	}
}

func TestScenarioReminderDatetime(t *testing.T) {
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02") + " 09:00:00"
	var storedDatetime string
	reminder := &core.StaticModule{
		ModuleName:        "reminder",
		ModuleDescription: "Reminders",
		Ops: []core.Operation{{
			Name:        "tom_add_reminder",
			Description: "Add a reminder",
			Params: schema.New().
				Prop("reminder_text", schema.String("What to remind")).
				Prop("reminder_datetime", schema.String("When, as YYYY-MM-DD HH:MM:SS")).
				Prop("reminder_recipient", schema.String("Who to remind")).
				Require("reminder_text", "reminder_datetime"),
			Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
				storedDatetime = args["reminder_datetime"].(string)
				return map[string]interface{}{"id": 1}, nil
			},
		}},
	}

	args := fmt.Sprintf(`{"reminder_text":"buy bread","reminder_datetime":"%s","reminder_recipient":"alice"}`, tomorrow)
	fx := newFixture(t, "reminder", []core.Module{reminder},
		llm.ToolCallResponse(llm.Call("call-1", "tom_add_reminder", args)),
		llm.TextResponse("Done, I'll remind you tomorrow at 9am to buy bread."),
	)

	resp, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "Remind me tomorrow at 9am to buy bread")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if !strings.Contains(strings.ToLower(resp), "remind") {
		t.Errorf("expected acknowledgement, got %q", resp)
	}
	if storedDatetime != tomorrow {
		t.Errorf("expected stored datetime %q, got %q", tomorrow, storedDatetime)
	}
}

func TestResetClearsHistory(t *testing.T) {
	var calls []string
	fx := newFixture(t, "weather", []core.Module{weatherModule(&calls)},
		llm.TextResponse("unreachable"),
	)
	ctx := context.Background()

	fx.store.Append(ctx, "s1", session.Turn{Role: session.RoleUser, Content: "old message"})

	resp, err := fx.orch.HandleTurn(ctx, "s1", "alice", "Reset")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp != ResetConfirmation {
		t.Errorf("expected fixed reset confirmation, got %q", resp)
	}
	sess, _ := fx.store.Get(ctx, "s1")
	if len(sess.Turns) != 0 {
		t.Errorf("reset must clear history, got %d turns", len(sess.Turns))
	}
	if fx.dispatch.CallCount != 0 {
		t.Errorf("reset must not reach the dispatch gateway, got %d calls", fx.dispatch.CallCount)
	}
}

func TestEmptyTriageShortCircuits(t *testing.T) {
	var calls []string
	fx := newFixture(t, "none", []core.Module{weatherModule(&calls)},
		llm.TextResponse("unreachable"),
	)

	resp, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "write me a sonnet")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp != CantHelpMessage {
		t.Errorf("expected fixed can't-help message, got %q", resp)
	}
	if fx.dispatch.CallCount != 0 {
		t.Errorf("empty selection must not reach the dispatch gateway, got %d calls", fx.dispatch.CallCount)
	}

	sess, _ := fx.store.Get(context.Background(), "s1")
	if len(sess.Turns) != 2 {
		t.Errorf("expected user + assistant turns persisted, got %d", len(sess.Turns))
	}
}

func TestIterationBoundDegrades(t *testing.T) {
	var calls []string
	looping := llm.NewScriptedMockProvider(
		llm.ToolCallResponse(llm.Call("c", "get_gps_position_by_city_name", `{"city_name":"Paris"}`)),
	)
	looping.Loop = true

	fx := newFixture(t, "weather", []core.Module{weatherModule(&calls)})
	fx.orch.provider = looping

	resp, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "weather in Paris")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp != DegradedMessage {
		t.Errorf("expected degraded response, got %q", resp)
	}
	if looping.CallCount != fx.orch.maxIterations {
		t.Errorf("expected exactly %d gateway calls, got %d", fx.orch.maxIterations, looping.CallCount)
	}
}

func TestStrictValidationBlocksHandler(t *testing.T) {
	executed := false
	strict := &core.StaticModule{
		ModuleName:        "grocery",
		ModuleDescription: "Grocery list",
		Ops: []core.Operation{{
			Name:        "add_item",
			Description: "Add an item",
			Params:      schema.New().Prop("item", schema.String("Item name")).Require("item"),
			Strict:      true,
			Handler: func(_ context.Context, args map[string]interface{}) (interface{}, error) {
				executed = true
				return "ok", nil
			},
		}},
	}

	fx := newFixture(t, "grocery", []core.Module{strict},
		llm.ToolCallResponse(llm.Call("call-1", "add_item", `{"item":"milk","aisle":7}`)),
		llm.TextResponse("Sorry, that didn't work."),
	)

	if _, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "add milk"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if executed {
		t.Fatal("handler must not run when strict validation fails")
	}

	sess, _ := fx.store.Get(context.Background(), "s1")
	payload := findOperationResult(t, sess.Turns, "call-1")
	if payload["error"] == nil {
		t.Errorf("expected error payload, got %v", payload)
	}
}

func TestUnknownOperationRecovered(t *testing.T) {
	var calls []string
	fx := newFixture(t, "weather", []core.Module{weatherModule(&calls)},
		llm.ToolCallResponse(llm.Call("call-1", "teleport_user", `{}`)),
		llm.TextResponse("I couldn't do that, but here's what I can do."),
	)

	resp, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "beam me up")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if resp != "I couldn't do that, but here's what I can do." {
		t.Errorf("loop must continue after unknown operation, got %q", resp)
	}

	sess, _ := fx.store.Get(context.Background(), "s1")
	payload := findOperationResult(t, sess.Turns, "call-1")
	errObj, ok := payload["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected structured error payload, got %v", payload)
	}
	if errObj["code"] != "UNKNOWN_OPERATION" {
		t.Errorf("expected UNKNOWN_OPERATION code, got %v", errObj["code"])
	}
}

func TestPlainHandlerErrorBecomesOperationFailure(t *testing.T) {
	failing := &core.StaticModule{
		ModuleName:        "transit",
		ModuleDescription: "Transit times",
		Ops: []core.Operation{{
			Name:        "next_departure",
			Description: "Next departure",
			Handler: func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("backend unreachable")
			},
		}},
	}

	fx := newFixture(t, "transit", []core.Module{failing},
		llm.ToolCallResponse(llm.Call("call-1", "next_departure", `{}`)),
		llm.TextResponse("The transit service seems to be down."),
	)

	if _, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "when is my bus"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	sess, _ := fx.store.Get(context.Background(), "s1")
	payload := findOperationResult(t, sess.Turns, "call-1")
	errObj := payload["error"].(map[string]interface{})
	if code := errObj["code"].(string); code != "OPERATION_FAILURE" {
		t.Errorf("code = %s, want OPERATION_FAILURE", code)
	}
	msg := errObj["message"].(string)
	if !strings.Contains(msg, "next_departure") {
		t.Errorf("message should name the failed operation: %q", msg)
	}
	if strings.Contains(msg, "backend unreachable") {
		t.Errorf("raw handler error leaked to the model: %q", msg)
	}
}

func TestHandlerFailureSanitized(t *testing.T) {
	failing := &core.StaticModule{
		ModuleName:        "transit",
		ModuleDescription: "Transit times",
		Ops: []core.Operation{{
			Name:        "next_departure",
			Description: "Next departure",
			Handler: func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
				return nil, fmt.Errorf("dial tcp 10.0.0.5:443: connection refused (token=secret123)")
			},
		}},
	}

	fx := newFixture(t, "transit", []core.Module{failing},
		llm.ToolCallResponse(llm.Call("call-1", "next_departure", `{}`)),
		llm.TextResponse("The transit service seems to be down."),
	)

	if _, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "when is my bus"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	sess, _ := fx.store.Get(context.Background(), "s1")
	payload := findOperationResult(t, sess.Turns, "call-1")
	errObj := payload["error"].(map[string]interface{})
	if msg := errObj["message"].(string); strings.Contains(msg, "secret123") {
		t.Errorf("raw handler error leaked to the model: %q", msg)
	}
}

func TestGatewayFailureDegrades(t *testing.T) {
	var calls []string
	fx := newFixture(t, "weather", []core.Module{weatherModule(&calls)})
	fx.orch.provider = &llm.FailingMockProvider{}
	fx.orch.retry = fx.orch.retry.WithInitialDelay(time.Millisecond)

	resp, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "weather in Paris")
	if err != nil {
		t.Fatalf("gateway failure must not surface as an error: %v", err)
	}
	if resp != DegradedMessage {
		t.Errorf("expected degraded response, got %q", resp)
	}
}

func TestResponseGuidanceAppliedNextIteration(t *testing.T) {
	guided := &core.StaticModule{
		ModuleName:        "flashcards",
		ModuleDescription: "Flashcards",
		Ops: []core.Operation{{
			Name:        "list_decks",
			Description: "List decks",
			Handler: func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
				return []string{"Spanish", "Go"}, nil
			},
			ResponseGuidance: "List deck names as bullet points.",
		}},
	}

	fx := newFixture(t, "flashcards", []core.Module{guided},
		llm.ToolCallResponse(llm.Call("call-1", "list_decks", `{}`)),
		llm.TextResponse("- Spanish\n- Go"),
	)

	if _, err := fx.orch.HandleTurn(context.Background(), "s1", "alice", "what decks do I have"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}

	reqs := fx.dispatch.Requests
	if len(reqs) != 2 {
		t.Fatalf("expected 2 gateway calls, got %d", len(reqs))
	}
	first := reqs[0].Messages[0].Content
	second := reqs[1].Messages[0].Content
	if strings.Contains(first, "bullet points") {
		t.Error("guidance must not appear before the operation has been invoked")
	}
	if !strings.Contains(second, "bullet points") {
		t.Error("guidance missing from the follow-up iteration's instructions")
	}
}

func TestSameSessionSerialized(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var active, maxActive int

	slow := &core.StaticModule{
		ModuleName:        "memory",
		ModuleDescription: "Memory",
		Ops: []core.Operation{{
			Name:        "recall",
			Description: "Recall a fact",
			Handler: func(_ context.Context, _ map[string]interface{}) (interface{}, error) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				<-release
				mu.Lock()
				active--
				mu.Unlock()
				return "fact", nil
			},
		}},
	}

	script := func() *llm.ScriptedMockProvider {
		return llm.NewScriptedMockProvider(
			llm.ToolCallResponse(llm.Call("c", "recall", `{}`)),
			llm.TextResponse("here you go"),
		)
	}

	fx := newFixture(t, "memory", []core.Module{slow})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each turn gets its own script; the shared session must
			// still serialize them.
			o := *fx.orch
			o.provider = script()
			o.HandleTurn(context.Background(), "shared", "alice", "what do you remember")
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("same-session turns overlapped: max concurrent handlers = %d", maxActive)
	}
}

func findOperationResult(t *testing.T, turns []session.Turn, invocationID string) map[string]interface{} {
	t.Helper()
	for _, turn := range turns {
		if turn.Role == session.RoleOperationResult && turn.InvocationID == invocationID {
			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(turn.Content), &payload); err != nil {
				t.Fatalf("operation-result payload is not JSON: %v", err)
			}
			return payload
		}
	}
	t.Fatalf("no operation-result turn with invocation id %q", invocationID)
	return nil
}
