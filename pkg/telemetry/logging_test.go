// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/tom-assistant/tom/pkg/core"
)

func TestConfigureSlogInjectsTurnIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "debug", "json")

	ctx := core.WithSessionID(context.Background(), "s-42")
	ctx = core.WithUserID(ctx, "alice")
	ctx, runID := core.EnsureRunID(ctx)

	logger.InfoContext(ctx, "turn.handle")

	out := buf.String()
	for _, want := range []string{
		`"session_id":"s-42"`,
		`"user_id":"alice"`,
		`"run_id":"` + runID + `"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestConfigureSlogKeepsExplicitAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureSlog(&buf, "info", "json")

	ctx := core.WithSessionID(context.Background(), "from-context")
	logger.InfoContext(ctx, "session.sweep.done", "session_id", "explicit")

	if out := buf.String(); strings.Contains(out, "from-context") {
		t.Errorf("context id overrode the explicit attribute: %s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"warn":    "WARN",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		if got := parseLogLevel(in).String(); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
