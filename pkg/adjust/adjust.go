// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package adjust loads behavioral-adjustment text: operator-authored
// instructions concatenated into the model's system prompt, either globally
// or per capability module.
package adjust

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// document is the on-disk YAML shape.
type document struct {
	Global  []string            `yaml:"global"`
	Modules map[string][]string `yaml:"modules"`
}

// Store holds the current adjustment set. Reload replaces it wholesale, so
// a turn in flight keeps the set it started with.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  document
}

// Load reads the adjustment file at path. A missing file is not an error:
// it yields an empty store that Reload can later populate.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Reload re-reads the backing file and swaps the adjustment set.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse adjustments %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

// Global returns the process-wide adjustment lines.
func (s *Store) Global() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.doc.Global...)
}

// For returns the adjustment lines for one module.
func (s *Store) For(module string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.doc.Modules[module]...)
}

// Text renders the global lines plus the lines for each named module as one
// instruction block. Empty when nothing applies.
func (s *Store) Text(modules []string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lines []string
	lines = append(lines, s.doc.Global...)
	for _, name := range modules {
		lines = append(lines, s.doc.Modules[name]...)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
