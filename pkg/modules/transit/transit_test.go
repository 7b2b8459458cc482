// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

package transit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tom-assistant/tom/pkg/errors"
)

func TestNextDepartures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("stop") != "Central Station" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"departures":[
			{"line":"M4","direction":"Airport","scheduled_at":"2026-08-29 18:04:00"},
			{"line":"12","direction":"Harbor","scheduled_at":"2026-08-29 18:09:00"}]}`))
	}))
	defer srv.Close()

	m := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	out, err := m.nextDepartures(context.Background(), map[string]interface{}{
		"stop_name": "Central Station", "limit": float64(2),
	})
	if err != nil {
		t.Fatalf("nextDepartures: %v", err)
	}
	departures := out.(map[string]interface{})["departures"].([]map[string]interface{})
	if len(departures) != 2 {
		t.Fatalf("expected 2 departures, got %d", len(departures))
	}
	if departures[0]["scheduled_at"] != "2026-08-29 18:04:00" {
		t.Errorf("departure time altered: %v", departures[0]["scheduled_at"])
	}
}

func TestUnknownStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	m := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err := m.nextDepartures(context.Background(), map[string]interface{}{"stop_name": "Nowhere"})
	if !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
