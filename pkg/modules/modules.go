// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package modules assembles the capability modules into a registry: an
// explicit factory map from module identifier to constructor, filtered by a
// per-user enablement file. No reflection; a module exists because a
// factory for its name was registered here.
package modules

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tom-assistant/tom/pkg/config"
	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/modules/calendar"
	"github.com/tom-assistant/tom/pkg/modules/contact"
	"github.com/tom-assistant/tom/pkg/modules/flashcards"
	"github.com/tom-assistant/tom/pkg/modules/grocery"
	"github.com/tom-assistant/tom/pkg/modules/mcpmod"
	"github.com/tom-assistant/tom/pkg/modules/memory"
	"github.com/tom-assistant/tom/pkg/modules/reminder"
	"github.com/tom-assistant/tom/pkg/modules/transit"
	"github.com/tom-assistant/tom/pkg/modules/weather"
	"github.com/tom-assistant/tom/pkg/registry"
)

// Deps carries the shared backends the factories draw from. Optional
// fields left nil disable the modules that need them.
type Deps struct {
	Config config.ModulesConfig
	DB     *sql.DB
	HTTP   *http.Client

	VectorStore memory.VectorStore
	Embedder    memory.Embedder

	FlashcardClient flashcards.Client
	ContactSender   contact.Sender
	MCPCaller       mcpmod.ToolCaller
}

// Factory builds one capability module.
type Factory func(ctx context.Context, deps Deps) (core.Module, error)

// Factories is the startup registration table: identifier → constructor.
func Factories() map[string]Factory {
	return map[string]Factory{
		"weather": func(_ context.Context, d Deps) (core.Module, error) {
			return weather.New(weather.Config{
				GeocodeURL:  d.Config.Weather.GeocodeURL,
				ForecastURL: d.Config.Weather.ForecastURL,
				HTTPClient:  d.HTTP,
			}), nil
		},
		"reminder": func(_ context.Context, d Deps) (core.Module, error) {
			return reminder.New(d.DB)
		},
		"grocery": func(_ context.Context, d Deps) (core.Module, error) {
			return grocery.New(d.DB)
		},
		"calendar": func(_ context.Context, d Deps) (core.Module, error) {
			return calendar.New(d.DB)
		},
		"memory": func(_ context.Context, d Deps) (core.Module, error) {
			if d.VectorStore == nil || d.Embedder == nil {
				return nil, nil
			}
			return memory.New(d.VectorStore, d.Embedder, d.Config.Memory.Collection), nil
		},
		"transit": func(_ context.Context, d Deps) (core.Module, error) {
			return transit.New(transit.Config{
				BaseURL:    d.Config.Transit.BaseURL,
				HTTPClient: d.HTTP,
			}), nil
		},
		"flashcards": func(_ context.Context, d Deps) (core.Module, error) {
			if d.FlashcardClient == nil {
				return nil, nil
			}
			return flashcards.New(d.FlashcardClient), nil
		},
		"contact": func(_ context.Context, d Deps) (core.Module, error) {
			if d.ContactSender == nil {
				return nil, nil
			}
			return contact.New(d.ContactSender), nil
		},
		"mcp": func(ctx context.Context, d Deps) (core.Module, error) {
			if d.MCPCaller == nil {
				return nil, nil
			}
			return mcpmod.New(ctx, "mcp", "External integrations over the Model Context Protocol", d.MCPCaller)
		},
	}
}

// BuildOrder is the deterministic construction order of the factories.
var BuildOrder = []string{
	"weather", "reminder", "grocery", "calendar", "memory",
	"flashcards", "transit", "contact", "mcp",
}

// enablementFile is the on-disk shape of the per-user enablement list.
type enablementFile struct {
	Global []string            `yaml:"global"`
	Users  map[string][]string `yaml:"users"`
}

// LoadEnablement reads the per-user enablement YAML. A missing or empty
// path enables every module for every user (nil enablement).
func LoadEnablement(path string) (registry.Enablement, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var doc enablementFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse enablement %s: %w", path, err)
	}

	enablement := make(registry.Enablement)
	if len(doc.Global) > 0 {
		enablement["*"] = doc.Global
	}
	for user, names := range doc.Users {
		enablement[user] = names
	}
	return enablement, nil
}

// BuildRegistry constructs every module the deps can support and registers
// them. Factories returning (nil, nil) are skipped: their backend is not
// configured.
func BuildRegistry(ctx context.Context, deps Deps, enablement registry.Enablement) (*registry.Registry, error) {
	reg := registry.New(enablement)
	factories := Factories()
	for _, name := range BuildOrder {
		factory := factories[name]
		mod, err := factory(ctx, deps)
		if err != nil {
			return nil, fmt.Errorf("build module %s: %w", name, err)
		}
		if mod == nil {
			continue
		}
		if err := reg.Register(mod); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
