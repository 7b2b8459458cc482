// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package grocery keeps the shared grocery list in SQLite.
package grocery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/schema"
)

// Module is the grocery-list capability.
type Module struct {
	db *sql.DB
}

// New builds the grocery module and ensures its schema.
func New(db *sql.DB) (*Module, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tom_grocery (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item TEXT NOT NULL COLLATE NOCASE UNIQUE,
		added_at INTEGER NOT NULL
	);`); err != nil {
		return nil, err
	}
	return &Module{db: db}, nil
}

func (m *Module) Name() string        { return "grocery" }
func (m *Module) Description() string { return "Manage the grocery shopping list" }
func (m *Module) Complexity() int     { return 1 }

func (m *Module) SystemContext() string {
	return "The grocery list is shared by the household. Items are unique; adding an existing item is reported, not duplicated."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "add_grocery_item",
			Description: "Add an item to the grocery list",
			Params: schema.New().
				Prop("item", schema.String("Item to add, e.g. 'milk'")).
				Require("item"),
			Strict:  true,
			Handler: m.add,
		},
		{
			Name:        "list_grocery_items",
			Description: "List everything currently on the grocery list",
			Handler:     m.list,
		},
		{
			Name:        "remove_grocery_item",
			Description: "Remove an item from the grocery list",
			Params: schema.New().
				Prop("item", schema.String("Item to remove")).
				Require("item"),
			Strict:  true,
			Handler: m.remove,
		},
	}
}

func (m *Module) add(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	item := strings.TrimSpace(args["item"].(string))
	if item == "" {
		return nil, errors.New(errors.CodeInvalidArgument, "item must not be empty", nil)
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO tom_grocery (item, added_at) VALUES (?, ?)`, item, time.Now().Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return map[string]interface{}{"item": item, "already_present": true}, nil
		}
		return nil, errors.New(errors.CodeOperationFailure, "failed to add grocery item", err)
	}
	return map[string]interface{}{"item": item, "added": true}, nil
}

func (m *Module) list(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT item FROM tom_grocery ORDER BY added_at`)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to list grocery items", err)
	}
	defer rows.Close()

	items := []string{}
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, errors.New(errors.CodeOperationFailure, "failed to read grocery item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to read grocery items", err)
	}
	return map[string]interface{}{"items": items}, nil
}

func (m *Module) remove(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	item := strings.TrimSpace(args["item"].(string))

	res, err := m.db.ExecContext(ctx, `DELETE FROM tom_grocery WHERE item = ?`, item)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to remove grocery item", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, errors.New(errors.CodeNotFound,
			fmt.Sprintf("%q is not on the grocery list", item), nil)
	}
	return map[string]interface{}{"item": item, "removed": true}, nil
}

var _ core.Module = (*Module)(nil)
