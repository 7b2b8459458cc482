// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package reminder stores and retrieves reminders in SQLite. Datetimes are
// stored exactly as "YYYY-MM-DD HH:MM:SS" so confirmations can echo the
// stored time verbatim.
package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/schema"
)

// DatetimeLayout is the canonical stored datetime format.
const DatetimeLayout = "2006-01-02 15:04:05"

// Module is the reminder capability.
type Module struct {
	db *sql.DB
}

// New builds the reminder module and ensures its schema.
func New(db *sql.DB) (*Module, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tom_reminders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		datetime TEXT NOT NULL,
		recipient TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);`); err != nil {
		return nil, err
	}
	return &Module{db: db}, nil
}

func (m *Module) Name() string        { return "reminder" }
func (m *Module) Description() string { return "Create, list and delete reminders" }
func (m *Module) Complexity() int     { return 1 }

func (m *Module) SystemContext() string {
	return "Reminders need an exact datetime. Resolve relative times ('tomorrow at 9am') to YYYY-MM-DD HH:MM:SS before adding."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "tom_add_reminder",
			Description: "Add a reminder at an exact datetime",
			Params: schema.New().
				Prop("reminder_text", schema.String("What to remind the user about")).
				Prop("reminder_datetime", schema.String("When to remind, as YYYY-MM-DD HH:MM:SS")).
				Prop("reminder_recipient", schema.String("Who to remind; defaults to the requesting user")).
				Require("reminder_text", "reminder_datetime"),
			Handler:          m.add,
			ResponseGuidance: "Confirm the reminder back to the user with the exact stored date and time.",
		},
		{
			Name:        "tom_list_reminders",
			Description: "List all upcoming reminders",
			Handler:     m.list,
		},
		{
			Name:        "tom_delete_reminder",
			Description: "Delete a reminder by its id",
			Params: schema.New().
				Prop("reminder_id", schema.Integer("Id of the reminder to delete")).
				Require("reminder_id"),
			Strict:  true,
			Handler: m.delete,
		},
	}
}

func (m *Module) add(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	text, _ := args["reminder_text"].(string)
	datetime, _ := args["reminder_datetime"].(string)
	recipient, _ := args["reminder_recipient"].(string)
	if recipient == "" {
		if user, ok := core.UserID(ctx); ok {
			recipient = user
		}
	}

	if _, err := time.Parse(DatetimeLayout, datetime); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			fmt.Sprintf("reminder_datetime %q is not in YYYY-MM-DD HH:MM:SS form", datetime), err)
	}

	res, err := m.db.ExecContext(ctx,
		`INSERT INTO tom_reminders (text, datetime, recipient, created_at) VALUES (?, ?, ?, ?)`,
		text, datetime, recipient, time.Now().Unix())
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to store reminder", err)
	}
	id, _ := res.LastInsertId()
	return map[string]interface{}{
		"id":        id,
		"text":      text,
		"datetime":  datetime,
		"recipient": recipient,
	}, nil
}

func (m *Module) list(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, text, datetime, recipient FROM tom_reminders ORDER BY datetime`)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to list reminders", err)
	}
	defer rows.Close()

	reminders := []map[string]interface{}{}
	for rows.Next() {
		var id int64
		var text, datetime, recipient string
		if err := rows.Scan(&id, &text, &datetime, &recipient); err != nil {
			return nil, errors.New(errors.CodeOperationFailure, "failed to read reminder", err)
		}
		reminders = append(reminders, map[string]interface{}{
			"id": id, "text": text, "datetime": datetime, "recipient": recipient,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to read reminders", err)
	}
	return map[string]interface{}{"reminders": reminders}, nil
}

func (m *Module) delete(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	raw, _ := args["reminder_id"].(float64)
	id := int64(raw)

	res, err := m.db.ExecContext(ctx, `DELETE FROM tom_reminders WHERE id = ?`, id)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to delete reminder", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, errors.New(errors.CodeNotFound,
			fmt.Sprintf("no reminder with id %d", id), nil)
	}
	return map[string]interface{}{"deleted": id}, nil
}

var _ core.Module = (*Module)(nil)
