// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package transit answers "when is my next bus" against a departures API.
package transit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tom-assistant/tom/pkg/core"
	"github.com/tom-assistant/tom/pkg/errors"
	"github.com/tom-assistant/tom/pkg/schema"
)

// Config points the module at its departures endpoint.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Module is the transit capability.
type Module struct {
	baseURL string
	client  *http.Client
}

// New builds the transit module.
func New(cfg Config) *Module {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Module{baseURL: cfg.BaseURL, client: client}
}

func (m *Module) Name() string        { return "transit" }
func (m *Module) Description() string { return "Public transit departures for a stop" }
func (m *Module) Complexity() int     { return 1 }

func (m *Module) SystemContext() string {
	return "Departure times come from the live transit feed; quote them as given, do not round."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "next_departures",
			Description: "Next departures from a stop",
			Params: schema.New().
				Prop("stop_name", schema.String("Name of the stop")).
				Prop("limit", schema.Integer("Maximum departures to return")).
				Require("stop_name"),
			Handler:          m.nextDepartures,
			ResponseGuidance: "Give the next departure prominently; mention later ones briefly.",
		},
	}
}

type departuresResponse struct {
	Departures []struct {
		Line        string `json:"line"`
		Direction   string `json:"direction"`
		ScheduledAt string `json:"scheduled_at"`
	} `json:"departures"`
}

func (m *Module) nextDepartures(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	stop, _ := args["stop_name"].(string)
	limit := 3
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	q := url.Values{"stop": {stop}, "limit": {strconv.Itoa(limit)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "failed to build transit request", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "transit service unreachable", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New(errors.CodeNotFound,
			fmt.Sprintf("no stop named %q", stop), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeOperationFailure,
			fmt.Sprintf("transit service returned status %d", resp.StatusCode), nil)
	}

	var out departuresResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.New(errors.CodeOperationFailure, "malformed transit response", err)
	}

	departures := []map[string]interface{}{}
	for _, d := range out.Departures {
		departures = append(departures, map[string]interface{}{
			"line": d.Line, "direction": d.Direction, "scheduled_at": d.ScheduledAt,
		})
	}
	return map[string]interface{}{"stop": stop, "departures": departures}, nil
}

var _ core.Module = (*Module)(nil)
