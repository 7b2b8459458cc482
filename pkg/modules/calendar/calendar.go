// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package calendar stores events in SQLite. Times use the same canonical
// "YYYY-MM-DD HH:MM:SS" form as reminders.
package calendar

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

const datetimeLayout = "2006-01-02 15:04:05"

// Module is the calendar capability.
type Module struct {
	db *sql.DB
}

// New builds the calendar module and ensures its schema.
func New(db *sql.DB) (*Module, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tom_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`); err != nil {
		return nil, err
	}
	return &Module{db: db}, nil
}

func (m *Module) Name() string        { return "calendar" }
func (m *Module) Description() string { return "Add and look up calendar events" }
func (m *Module) Complexity() int     { return 2 }

func (m *Module) SystemContext() string {
	return "Calendar events have a title, a start and an end. Resolve relative dates to YYYY-MM-DD HH:MM:SS before adding."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "add_event",
			Description: "Add a calendar event",
			Params: schema.New().
				Prop("title", schema.String("Event title")).
				Prop("start", schema.String("Start time, as YYYY-MM-DD HH:MM:SS")).
				Prop("end", schema.String("End time, as YYYY-MM-DD HH:MM:SS")).
				Require("title", "start", "end"),
			Handler:          m.add,
			ResponseGuidance: "Confirm the event with its title and start time.",
		},
		{
			Name:        "list_events",
			Description: "List the events on a given day",
			Params: schema.New().
				Prop("day", schema.String("Day to list, as YYYY-MM-DD")).
				Require("day"),
			Handler: m.list,
		},
	}
}

func (m *Module) add(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	title, _ := args["title"].(string)
	start, _ := args["start"].(string)
	end, _ := args["end"].(string)

	startTime, err := time.Parse(datetimeLayout, start)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			fmt.Sprintf("start %q is not in YYYY-MM-DD HH:MM:SS form", start), err)
	}
	endTime, err := time.Parse(datetimeLayout, end)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			fmt.Sprintf("end %q is not in YYYY-MM-DD HH:MM:SS form", end), err)
	}
	if !endTime.After(startTime) {
		return nil, errors.New(errors.CodeInvalidArgument, "end must be after start", nil)
	}

	res, err := m.db.ExecContext(ctx,
		`INSERT INTO tom_events (title, start_at, end_at, created_at) VALUES (?, ?, ?, ?)`,
		title, start, end, time.Now().Unix())
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to store event", err)
	}
	id, _ := res.LastInsertId()
	return map[string]interface{}{"id": id, "title": title, "start": start, "end": end}, nil
}

func (m *Module) list(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	day, _ := args["day"].(string)
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return nil, errors.New(errors.CodeInvalidArgument,
			fmt.Sprintf("day %q is not in YYYY-MM-DD form", day), err)
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id, title, start_at, end_at FROM tom_events WHERE start_at LIKE ? ORDER BY start_at`,
		day+"%")
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to list events", err)
	}
	defer rows.Close()

	events := []map[string]interface{}{}
	for rows.Next() {
		var id int64
		var title, start, end string
		if err := rows.Scan(&id, &title, &start, &end); err != nil {
			return nil, errors.New(errors.CodeOperationFailure, "failed to read event", err)
		}
		events = append(events, map[string]interface{}{
			"id": id, "title": title, "start": start, "end": end,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to read events", err)
	}
	return map[string]interface{}{"day": day, "events": events}, nil
}

var _ core.Module = (*Module)(nil)
