// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads Tom's configuration from a YAML file with
// environment-variable overrides (TOM_LLM_MODEL -> llm.model).
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log          LogConfig          `koanf:"log"`
	LLM          LLMConfig          `koanf:"llm"`
	Session      SessionConfig      `koanf:"session"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Modules      ModulesConfig      `koanf:"modules"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider    string `koanf:"provider"` // ollama, gemini
	Model       string `koanf:"model"`
	TriageModel string `koanf:"triage_model"`
	BaseURL     string `koanf:"base_url"`
	APIKey      string `koanf:"api_key"`
}

type SessionConfig struct {
	Backend       string        `koanf:"backend"` // memory, sqlite
	DBPath        string        `koanf:"db_path"`
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	HistoryWindow int           `koanf:"history_window"`
}

type OrchestratorConfig struct {
	MaxIterations  int           `koanf:"max_iterations"`
	GatewayTimeout time.Duration `koanf:"gateway_timeout"`
	HandlerTimeout time.Duration `koanf:"handler_timeout"`
}

type ModulesConfig struct {
	EnablementPath  string `koanf:"enablement_path"`
	AdjustmentsPath string `koanf:"adjustments_path"`
	DBPath          string `koanf:"db_path"`

	Weather WeatherConfig `koanf:"weather"`
	Memory  MemoryConfig  `koanf:"memory"`
	Transit TransitConfig `koanf:"transit"`
	MCP     MCPConfig     `koanf:"mcp"`
}

type WeatherConfig struct {
	GeocodeURL  string `koanf:"geocode_url"`
	ForecastURL string `koanf:"forecast_url"`
}

type MemoryConfig struct {
	Enabled         bool   `koanf:"enabled"`
	QdrantAddr      string `koanf:"qdrant_addr"`
	Collection      string `koanf:"collection"`
	EmbedderBaseURL string `koanf:"embedder_base_url"`
	EmbedderModel   string `koanf:"embedder_model"`
}

type TransitConfig struct {
	BaseURL string `koanf:"base_url"`
}

type MCPConfig struct {
	Enabled bool     `koanf:"enabled"`
	Servers []string `koanf:"servers"` // commands to spawn over stdio
}

type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Exporter string `koanf:"exporter"` // stdout, otlp
	Endpoint string `koanf:"endpoint"`
	Insecure bool   `koanf:"insecure"`
}

// Load reads configuration from path (optional) and the TOM_ environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5:7b-instruct")
	k.Set("llm.triage_model", "qwen2.5:7b-instruct")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("session.backend", "memory")
	k.Set("session.db_path", "tom.db")
	k.Set("session.ttl", "24h")
	k.Set("session.sweep_interval", "10m")
	k.Set("session.history_window", 40)

	k.Set("orchestrator.max_iterations", 8)
	k.Set("orchestrator.gateway_timeout", "60s")
	k.Set("orchestrator.handler_timeout", "30s")

	k.Set("modules.db_path", "tom.db")
	k.Set("modules.weather.geocode_url", "https://geocoding-api.open-meteo.com/v1/search")
	k.Set("modules.weather.forecast_url", "https://api.open-meteo.com/v1/forecast")
	k.Set("modules.memory.enabled", false)
	k.Set("modules.memory.qdrant_addr", "localhost:6334")
	k.Set("modules.memory.collection", "tom_memories")
	k.Set("modules.memory.embedder_base_url", "http://localhost:11434")
	k.Set("modules.memory.embedder_model", "nomic-embed-text")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.insecure", true)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (TOM_LLM_PROVIDER -> llm.provider)
	if err := k.Load(env.Provider("TOM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "TOM_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
