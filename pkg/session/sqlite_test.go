// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/tom-assistant/tom/pkg/llm"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// The in-memory database vanishes if its lone connection is recycled.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(openTestDB(t), time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()

	turns := []Turn{
		{Role: RoleUser, Content: "remind me to water the plants"},
		{Role: RoleAssistant, Content: "", ToolCalls: []llm.ToolCall{
			{ID: "inv-9", Type: llm.ToolTypeFunction, Function: llm.FunctionCall{Name: "tom_add_reminder", Arguments: `{"reminder_text":"water the plants","reminder_datetime":"2026-08-30 09:00:00"}`}},
		}},
		{Role: RoleOperationResult, Content: `{"id":1}`, InvocationID: "inv-9"},
		{Role: RoleAssistant, Content: "Done, I'll remind you tomorrow at 9."},
	}
	if err := store.Append(ctx, "u", turns...); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.SetLastTriage(ctx, "u", []string{"reminder"}); err != nil {
		t.Fatalf("SetLastTriage: %v", err)
	}

	sess, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(sess.Turns))
	}
	if sess.Turns[1].Role != RoleAssistant || len(sess.Turns[1].ToolCalls) != 1 {
		t.Errorf("tool calls lost in persistence: %+v", sess.Turns[1])
	}
	if sess.Turns[1].ToolCalls[0].Function.Name != "tom_add_reminder" {
		t.Errorf("tool call name mangled: %q", sess.Turns[1].ToolCalls[0].Function.Name)
	}
	if sess.Turns[2].InvocationID != "inv-9" {
		t.Errorf("invocation id lost: %q", sess.Turns[2].InvocationID)
	}
	if len(sess.LastTriage) != 1 || sess.LastTriage[0] != "reminder" {
		t.Errorf("triage result lost: %v", sess.LastTriage)
	}
}

func TestSQLiteAppendPreservesOrderAcrossCalls(t *testing.T) {
	store, err := NewSQLiteStore(openTestDB(t), 0)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()

	for i, content := range []string{"one", "two", "three"} {
		if err := store.Append(ctx, "u", Turn{Role: RoleUser, Content: content}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	sess, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(sess.Turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(sess.Turns))
	}
	for i, turn := range sess.Turns {
		if turn.Content != want[i] {
			t.Errorf("turn %d: expected %q, got %q", i, want[i], turn.Content)
		}
	}
}

func TestSQLiteResetPreservesIdentity(t *testing.T) {
	store, err := NewSQLiteStore(openTestDB(t), time.Hour)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()

	store.Append(ctx, "u", Turn{Role: RoleUser, Content: "hello"})
	store.SetLastTriage(ctx, "u", []string{"weather"})
	if err := store.Reset(ctx, "u"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	sess, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.ID != "u" {
		t.Errorf("reset changed identity: %q", sess.ID)
	}
	if len(sess.Turns) != 0 || len(sess.LastTriage) != 0 {
		t.Errorf("reset must clear history and triage: %d turns, %v", len(sess.Turns), sess.LastTriage)
	}
}

func TestSQLiteExpiredSessionIsFresh(t *testing.T) {
	store, err := NewSQLiteStore(openTestDB(t), time.Minute)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	store.Append(ctx, "u", Turn{Role: RoleUser, Content: "stale"})

	current = current.Add(2 * time.Minute)
	sess, err := store.Get(ctx, "u")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Turns) != 0 {
		t.Errorf("expired session must come back empty, got %d turns", len(sess.Turns))
	}
}

func TestSQLiteSweep(t *testing.T) {
	store, err := NewSQLiteStore(openTestDB(t), time.Minute)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	current := time.Now()
	store.now = func() time.Time { return current }
	ctx := context.Background()

	store.Append(ctx, "old", Turn{Role: RoleUser, Content: "x"})
	current = current.Add(30 * time.Second)
	store.Append(ctx, "fresh", Turn{Role: RoleUser, Content: "y"})

	current = current.Add(45 * time.Second)
	evicted, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", evicted)
	}

	sess, err := store.Get(ctx, "fresh")
	if err != nil {
		t.Fatalf("Get fresh: %v", err)
	}
	if len(sess.Turns) != 1 {
		t.Errorf("fresh session lost its history: %d turns", len(sess.Turns))
	}
}
