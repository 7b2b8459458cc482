// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry collects the capability modules enabled for a process and
// exposes their operations to the dispatch loop under one calling convention.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/llm"
)

// qualifierSep joins a module name and an operation name when the bare
// operation name collides across the exposed subset.
const qualifierSep = "__"

// Enablement maps a user id to the module names enabled for that user.
// The "*" key lists modules enabled for every user.
type Enablement map[string][]string

// Registry is built once at startup and read-only afterwards. Hot reloads
// build a fresh Registry and swap it atomically through a Store.
type Registry struct {
	modules    map[string]core.Module
	order      []string
	enablement Enablement
}

// New creates an empty registry with the given enablement table.
// A nil enablement enables every module for every user.
func New(enablement Enablement) *Registry {
	return &Registry{
		modules:    make(map[string]core.Module),
		enablement: enablement,
	}
}

// Register adds a capability module.
// Fails with errors.CodeDuplicateModule if the name is already present; the
// registry is unchanged after a failed attempt.
func (r *Registry) Register(m core.Module) error {
	name := m.Name()
	if name == "" {
		return errors.New(errors.CodeDuplicateModule, "module name must not be empty", nil)
	}
	if _, exists := r.modules[name]; exists {
		return errors.New(errors.CodeDuplicateModule,
			fmt.Sprintf("module %q already registered", name), nil).
			WithContext("module", name)
	}
	r.modules[name] = m
	r.order = append(r.order, name)
	return nil
}

// Modules returns all registered modules in registration order.
func (r *Registry) Modules() []core.Module {
	out := make([]core.Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}

// Get returns the module with the given name.
func (r *Registry) Get(name string) (core.Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Active returns the modules enabled for the given user, in registration
// order. Which modules are global and which are personal is configuration,
// not registry logic.
func (r *Registry) Active(userID string) []core.Module {
	if r.enablement == nil {
		return r.Modules()
	}

	enabled := make(map[string]bool)
	for _, name := range r.enablement["*"] {
		enabled[name] = true
	}
	for _, name := range r.enablement[userID] {
		enabled[name] = true
	}

	out := make([]core.Module, 0, len(r.order))
	for _, name := range r.order {
		if enabled[name] {
			out = append(out, r.modules[name])
		}
	}
	return out
}

// MergedSchema produces the flattened operation schema list for exactly the
// given modules. Operation names are module-qualified when the bare name
// collides across the subset. Pure and deterministic: same subset, same
// output.
func MergedSchema(subset []core.Module) []llm.Tool {
	// First pass: count bare-name owners across the subset.
	owners := make(map[string]int)
	for _, m := range subset {
		for _, op := range m.Operations() {
			owners[op.Name]++
		}
	}

	tools := make([]llm.Tool, 0)
	for _, m := range subset {
		for _, op := range m.Operations() {
			name := op.Name
			if owners[op.Name] > 1 {
				name = m.Name() + qualifierSep + op.Name
			}
			var params interface{} = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
			if op.Params != nil {
				params = op.Params.JSONSchema()
			}
			tools = append(tools, llm.Tool{
				Type: llm.ToolTypeFunction,
				Function: llm.FunctionDef{
					Name:        name,
					Description: op.Description,
					Parameters:  params,
					Strict:      op.Strict,
				},
			})
		}
	}
	return tools
}

// Resolve returns the module and operation that own a (possibly qualified)
// operation name, or fails with errors.CodeUnknownOperation.
func (r *Registry) Resolve(name string) (core.Module, core.Operation, error) {
	subset := make([]core.Module, 0, len(r.order))
	for _, modName := range r.order {
		subset = append(subset, r.modules[modName])
	}
	return ResolveIn(subset, name)
}

// ResolveIn resolves an operation name against exactly the given modules,
// mirroring the qualification rules of MergedSchema. The dispatch loop uses
// this so a model can never reach an operation outside the triaged subset.
func ResolveIn(subset []core.Module, name string) (core.Module, core.Operation, error) {
	if moduleName, opName, found := strings.Cut(name, qualifierSep); found {
		for _, m := range subset {
			if m.Name() != moduleName {
				continue
			}
			for _, op := range m.Operations() {
				if op.Name == opName {
					return m, op, nil
				}
			}
		}
		// A name containing the separator may still be a bare operation
		// name; fall through to the unqualified scan.
	}

	var foundModule core.Module
	var foundOp core.Operation
	matches := 0
	for _, m := range subset {
		for _, op := range m.Operations() {
			if op.Name == name {
				foundModule, foundOp = m, op
				matches++
			}
		}
	}
	switch matches {
	case 1:
		return foundModule, foundOp, nil
	case 0:
		return nil, core.Operation{}, errors.New(errors.CodeUnknownOperation,
			fmt.Sprintf("operation %q is not exposed by any module", name), nil).
			WithContext("operation", name)
	default:
		return nil, core.Operation{}, errors.New(errors.CodeUnknownOperation,
			fmt.Sprintf("operation %q is ambiguous; qualify it with the module name", name), nil).
			WithContext("operation", name)
	}
}

// Descriptions returns "name: description" lines for the given modules,
// sorted by name. Triage builds its instruction block from this.
func Descriptions(subset []core.Module) []string {
	lines := make([]string, 0, len(subset))
	for _, m := range subset {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Name(), m.Description()))
	}
	sort.Strings(lines)
	return lines
}

// Store holds the current registry and allows atomic wholesale replacement
// on hot reload. Lookups never observe a partially built registry.
type Store struct {
	current atomic.Pointer[Registry]
}

// NewStore creates a store seeded with the given registry.
func NewStore(r *Registry) *Store {
	s := &Store{}
	s.current.Store(r)
	return s
}

// Load returns the current registry.
func (s *Store) Load() *Registry {
	return s.current.Load()
}

// Swap replaces the registry wholesale.
func (s *Store) Swap(r *Registry) {
	s.current.Store(r)
}
