// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package weather provides forecasts in two steps: resolve a city name to
// coordinates, then fetch the forecast for those coordinates. Splitting the
// lookup lets the model chain the calls itself and reuse coordinates it
// already knows.
package weather

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

// Config points the module at its geocoding and forecast endpoints.
type Config struct {
	GeocodeURL  string
	ForecastURL string
	HTTPClient  *http.Client
}

// Module is the weather capability.
type Module struct {
	geocodeURL  string
	forecastURL string
	client      *http.Client
}

// New builds the weather module.
func New(cfg Config) *Module {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Module{
		geocodeURL:  cfg.GeocodeURL,
		forecastURL: cfg.ForecastURL,
		client:      client,
	}
}

func (m *Module) Name() string        { return "weather" }
func (m *Module) Description() string { return "Weather forecasts and current conditions for any city" }
func (m *Module) Complexity() int     { return 1 }

func (m *Module) SystemContext() string {
	return "To answer weather questions, first resolve the city to GPS coordinates, then fetch the forecast for those coordinates."
}

func (m *Module) Operations() []core.Operation {
	return []core.Operation{
		{
			Name:        "get_gps_position_by_city_name",
			Description: "Resolve a city name to its GPS coordinates (latitude and longitude)",
			Params: schema.New().
				Prop("city_name", schema.String("Name of the city, e.g. 'Paris'")).
				Require("city_name"),
			Strict:  true,
			Handler: m.geocode,
		},
		{
			Name:        "weather_get_by_gps_position",
			Description: "Get the weather forecast for a GPS position",
			Params: schema.New().
				Prop("latitude", schema.Number("Latitude in decimal degrees")).
				Prop("longitude", schema.Number("Longitude in decimal degrees")).
				Prop("day", schema.Integer("Day offset: 0 today, 1 tomorrow, up to 6")).
				Require("latitude", "longitude"),
			Handler:          m.forecast,
			ResponseGuidance: "Summarize the forecast conversationally; mention temperature and precipitation, skip raw numbers the user didn't ask for.",
		},
	}
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Country   string  `json:"country"`
	} `json:"results"`
}

func (m *Module) geocode(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	city, _ := args["city_name"].(string)

	q := url.Values{"name": {city}, "count": {"1"}}
	var out geocodeResponse
	if err := m.getJSON(ctx, m.geocodeURL+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if len(out.Results) == 0 {
		return nil, errors.New(errors.CodeNotFound,
			fmt.Sprintf("no coordinates found for city %q", city), nil)
	}
	r := out.Results[0]
	return map[string]interface{}{
		"city":      r.Name,
		"country":   r.Country,
		"latitude":  r.Latitude,
		"longitude": r.Longitude,
	}, nil
}

type forecastResponse struct {
	Daily struct {
		Time             []string  `json:"time"`
		TemperatureMax   []float64 `json:"temperature_2m_max"`
		TemperatureMin   []float64 `json:"temperature_2m_min"`
		PrecipitationSum []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

func (m *Module) forecast(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	lat, _ := args["latitude"].(float64)
	lon, _ := args["longitude"].(float64)
	day := 0
	if v, ok := args["day"].(float64); ok {
		day = int(v)
	}
	if day < 0 || day > 6 {
		return nil, errors.New(errors.CodeInvalidArgument, "day must be between 0 and 6", nil)
	}

	q := url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', 4, 64)},
		"daily":     {"temperature_2m_max,temperature_2m_min,precipitation_sum"},
		"timezone":  {"auto"},
	}
	var out forecastResponse
	if err := m.getJSON(ctx, m.forecastURL+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if day >= len(out.Daily.Time) {
		return nil, errors.New(errors.CodeNotFound,
			fmt.Sprintf("no forecast available for day offset %d", day), nil)
	}
	// The daily arrays are parallel to Time; a truncated response must not
	// panic the handler.
	if day >= len(out.Daily.TemperatureMax) || day >= len(out.Daily.TemperatureMin) ||
		day >= len(out.Daily.PrecipitationSum) {
		return nil, errors.New(errors.CodeOperationFailure,
			fmt.Sprintf("forecast response is missing daily values for day offset %d", day), nil).
			WithRecoverable(true)
	}
	return map[string]interface{}{
		"date":              out.Daily.Time[day],
		"temperature_max":   out.Daily.TemperatureMax[day],
		"temperature_min":   out.Daily.TemperatureMin[day],
		"precipitation_sum": out.Daily.PrecipitationSum[day],
	}, nil
}

func (m *Module) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.New(errors.CodeOperationFailure, "failed to build weather request", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return errors.New(errors.CodeOperationFailure, "weather service unreachable", err).
			WithRecoverable(true)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeOperationFailure,
			fmt.Sprintf("weather service returned status %d", resp.StatusCode), nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.New(errors.CodeOperationFailure, "malformed weather response", err)
	}
	return nil
}

var _ core.Module = (*Module)(nil)
