// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package flashcards fronts a spaced-repetition service. The deck list is
// cached module-side; the cache is private state guarded by the module's
// own mutex, invisible to the dispatch core.
package flashcards

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/schema"
)

// Client is the backing flashcard service.
type Client interface {
	DeckNames(ctx context.Context) ([]string, error)
	AddCard(ctx context.Context, deck, front, back string) error
	DueCount(ctx context.Context, deck string) (int, error)
}

const deckCacheTTL = 5 * time.Minute

// Module is the flashcards capability.
type Module struct {
	client Client

	mu          sync.Mutex
	decks       []string
	decksExpiry time.Time
}

// New builds the flashcards module.
func New(client Client) *Module {
	return &Module{client: client}
}

func (m *Module) Name() string        { return "flashcards" }
func (m *Module) Description() string { return "Manage flashcard decks and add cards for studying" }
func (m *Module) Complexity() int     { return 2 }

func (m *Module) SystemContext() string {
	return "Flashcards live in named decks. Check the deck exists before adding cards to it."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "list_decks",
			Description: "List the names of all flashcard decks",
			Handler:     m.listDecks,
		},
		{
			Name:        "add_flashcard",
			Description: "Add a flashcard to a deck",
			Params: schema.New().
				Prop("deck", schema.String("Deck to add the card to")).
				Prop("front", schema.String("Front side of the card")).
				Prop("back", schema.String("Back side of the card")).
				Require("deck", "front", "back"),
			Strict:  true,
			Handler: m.addCard,
		},
		{
			Name:        "due_counts",
			Description: "Number of cards due for review in a deck",
			Params: schema.New().
				Prop("deck", schema.String("Deck to check")).
				Require("deck"),
			Handler: m.dueCounts,
		},
	}
}

// deckNames returns the cached deck list, refreshing it from the client
// when stale. forceRefresh bypasses the cache.
func (m *Module) deckNames(ctx context.Context, forceRefresh bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !forceRefresh && len(m.decks) > 0 && time.Now().Before(m.decksExpiry) {
		return append([]string(nil), m.decks...), nil
	}

	decks, err := m.client.DeckNames(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "flashcard service unreachable", err).
			WithRecoverable(true)
	}
	m.decks = decks
	m.decksExpiry = time.Now().Add(deckCacheTTL)
	return append([]string(nil), decks...), nil
}

func (m *Module) listDecks(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	decks, err := m.deckNames(ctx, false)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"decks": decks}, nil
}

func (m *Module) addCard(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	deck, _ := args["deck"].(string)
	front, _ := args["front"].(string)
	back, _ := args["back"].(string)

	decks, err := m.deckNames(ctx, false)
	if err != nil {
		return nil, err
	}
	if !contains(decks, deck) {
		// The deck may have been created since the cache was filled.
		if decks, err = m.deckNames(ctx, true); err != nil {
			return nil, err
		}
		if !contains(decks, deck) {
			return nil, errors.New(errors.CodeNotFound,
				fmt.Sprintf("no deck named %q", deck), nil)
		}
	}

	if err := m.client.AddCard(ctx, deck, front, back); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to add flashcard", err).
			WithRecoverable(true)
	}
	return map[string]interface{}{"deck": deck, "added": true}, nil
}

func (m *Module) dueCounts(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	deck, _ := args["deck"].(string)

	count, err := m.client.DueCount(ctx, deck)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to fetch due count", err).
			WithRecoverable(true)
	}
	return map[string]interface{}{"deck": deck, "due": count}, nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

var _ core.Module = (*Module)(nil)
