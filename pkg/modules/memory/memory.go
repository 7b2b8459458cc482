// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/schema"
)

const (
	defaultLimit     = 5
	defaultThreshold = 0.3
)

// Module is the long-term memory capability.
type Module struct {
	store      VectorStore
	embedder   Embedder
	collection string

	initOnce sync.Once
	initErr  error
}

// New builds the memory module over a vector store and an embedder.
func New(store VectorStore, embedder Embedder, collection string) *Module {
	return &Module{store: store, embedder: embedder, collection: collection}
}

func (m *Module) Name() string        { return "memory" }
func (m *Module) Description() string { return "Remember facts about the user and recall them later" }
func (m *Module) Complexity() int     { return 3 }

func (m *Module) SystemContext() string {
	return "When the user states a lasting fact about themselves, remember it. When a question may depend on such facts, recall first."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "remember",
			Description: "Store a fact about the user for later recall",
			Params: schema.New().
				Prop("fact", schema.String("The fact to remember, as a standalone sentence")).
				Require("fact"),
			Strict:  true,
			Handler: m.remember,
		},
		{
			Name:        "recall",
			Description: "Recall stored facts related to a query",
			Params: schema.New().
				Prop("query", schema.String("What to look for")).
				Prop("limit", schema.Integer("Maximum number of facts to return")).
				Require("query"),
			Handler:          m.recall,
			ResponseGuidance: "Weave recalled facts into the answer naturally; don't enumerate them unless asked.",
		},
	}
}

// ensureCollection creates the collection on first use, sized to the
// embedder's output.
func (m *Module) ensureCollection(ctx context.Context, dim int) error {
	m.initOnce.Do(func() {
		m.initErr = m.store.CreateCollection(ctx, m.collection, uint64(dim))
	})
	return m.initErr
}

func (m *Module) remember(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fact, _ := args["fact"].(string)

	vector, err := m.embedder.Embed(ctx, fact)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to embed fact", err).
			WithRecoverable(true)
	}
	if err := m.ensureCollection(ctx, len(vector)); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to prepare memory collection", err)
	}

	id := uuid.New().String()
	point := Point{
		ID:     id,
		Vector: vector,
		Payload: map[string]interface{}{
			"fact": fact,
		},
		Timestamp: time.Now().Unix(),
	}
	if user, ok := core.UserID(ctx); ok {
		point.Payload["user"] = user
	}

	if err := m.store.Upsert(ctx, m.collection, []Point{point}); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to store fact", err).
			WithRecoverable(true)
	}
	return map[string]interface{}{"id": id, "remembered": fact}, nil
}

func (m *Module) recall(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, _ := args["query"].(string)
	limit := defaultLimit
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to embed query", err).
			WithRecoverable(true)
	}
	if err := m.ensureCollection(ctx, len(vector)); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to prepare memory collection", err)
	}

	results, err := m.store.Search(ctx, m.collection, vector, limit, defaultThreshold)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to search memories", err).
			WithRecoverable(true)
	}

	facts := []map[string]interface{}{}
	for _, r := range results {
		facts = append(facts, map[string]interface{}{
			"fact":  r.Point.Payload["fact"],
			"score": r.Score,
		})
	}
	return map[string]interface{}{"facts": facts}, nil
}

var _ core.Module = (*Module)(nil)
