// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package reminder

import (
	"context"
	"database/sql"
	"testing"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
)

func newTestModule(t *testing.T) *Module {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	m, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestAddStoresExactDatetime(t *testing.T) {
	m := newTestModule(t)

	out, err := m.add(context.Background(), map[string]interface{}{
		"reminder_text":      "buy bread",
		"reminder_datetime":  "2026-08-30 09:00:00",
		"reminder_recipient": "alice",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got := out.(map[string]interface{})
	if got["datetime"] != "2026-08-30 09:00:00" {
		t.Errorf("datetime altered on store: %v", got["datetime"])
	}

	listed, err := m.list(context.Background(), nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	reminders := listed.(map[string]interface{})["reminders"].([]map[string]interface{})
	if len(reminders) != 1 {
		t.Fatalf("expected 1 reminder, got %d", len(reminders))
	}
	if reminders[0]["datetime"] != "2026-08-30 09:00:00" {
		t.Errorf("datetime altered on read: %v", reminders[0]["datetime"])
	}
}

func TestAddRejectsMalformedDatetime(t *testing.T) {
	m := newTestModule(t)

	_, err := m.add(context.Background(), map[string]interface{}{
		"reminder_text":     "x",
		"reminder_datetime": "tomorrow at 9",
	})
	if !errors.HasCode(err, errors.CodeInvalidArgument) {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestAddDefaultsRecipientToContextUser(t *testing.T) {
	m := newTestModule(t)

	ctx := core.WithUserID(context.Background(), "alice")
	out, err := m.add(ctx, map[string]interface{}{
		"reminder_text":     "water the plants",
		"reminder_datetime": "2026-09-01 18:30:00",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if out.(map[string]interface{})["recipient"] != "alice" {
		t.Errorf("expected recipient from context, got %v", out)
	}
}

func TestDelete(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	out, _ := m.add(ctx, map[string]interface{}{
		"reminder_text":     "x",
		"reminder_datetime": "2026-09-01 10:00:00",
	})
	id := out.(map[string]interface{})["id"].(int64)

	if _, err := m.delete(ctx, map[string]interface{}{"reminder_id": float64(id)}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.delete(ctx, map[string]interface{}{"reminder_id": float64(id)}); !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND on second delete, got %v", err)
	}
}
