// Copyright 2026 © The Tom Authors
// SPDX-License-Identifier: Apache-2.0

// Command tom is the personal assistant entry point. `tom chat` runs an
// interactive session against the configured model; `tom serve-mcp`
// exposes the enabled capability modules as MCP tools over stdio.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tom-assistant/tom/pkg/adjust"
	"github.com/tom-assistant/tom/pkg/config"
	"github.com/tom-assistant/tom/pkg/llm"
	tommcp "github.com/tom-assistant/tom/pkg/mcp"
	"github.com/tom-assistant/tom/pkg/modules"
	"github.com/tom-assistant/tom/pkg/modules/memory"
	"github.com/tom-assistant/tom/pkg/orchestrator"
	"github.com/tom-assistant/tom/pkg/registry"
	"github.com/tom-assistant/tom/pkg/session"
	"github.com/tom-assistant/tom/pkg/telemetry"
	"github.com/tom-assistant/tom/pkg/triage"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigPath string
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch cmd := args[0]; cmd {
	case "chat":
		runChat(ctx, global, args[1:])
	case "serve-mcp":
		runServeMCP(ctx, global, args[1:])
	case "version":
		fmt.Println(version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", cmd))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{ConfigPath: os.Getenv("TOM_CONFIG")}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --config")
			}
			flags.ConfigPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			return flags, nil, fmt.Errorf("unknown flag %q", arg)
		}
	}
	return flags, nil, nil
}

// runtime holds the assembled assistant and everything that needs
// explicit teardown.
type runtime struct {
	cfg      *config.Config
	registry *registry.Store
	sessions session.Store
	orch     *orchestrator.Orchestrator
	adjust   *adjust.Store

	sweeper  *session.Sweeper
	watcher  *config.Watcher
	shutdown telemetry.ShutdownFunc
	closers  []func() error
}

func (r *runtime) close() {
	if r.watcher != nil {
		r.watcher.Stop()
	}
	if r.sweeper != nil {
		r.sweeper.Stop()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
	if r.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.shutdown(ctx)
	}
}

func setup(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	rt := &runtime{cfg: cfg}
	log := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init("tom", version, cfg.Telemetry)
		if err != nil {
			return nil, fmt.Errorf("init telemetry: %w", err)
		}
		rt.shutdown = shutdown
	}

	db, err := sql.Open("sqlite", cfg.Modules.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := modules.Deps{
		Config: cfg.Modules,
		DB:     db,
		HTTP:   &http.Client{Timeout: 30 * time.Second},
	}

	if cfg.Modules.Memory.Enabled {
		store, err := memory.NewQdrantStore(cfg.Modules.Memory.QdrantAddr)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		rt.closers = append(rt.closers, store.Close)
		deps.VectorStore = store
		deps.Embedder = memory.NewOllamaEmbedder(
			llm.NewOllama(cfg.Modules.Memory.EmbedderBaseURL),
			cfg.Modules.Memory.EmbedderModel,
		)
	}

	if cfg.Modules.MCP.Enabled && len(cfg.Modules.MCP.Servers) > 0 {
		// One upstream server per process for now; further entries are
		// ignored until the registry grows named MCP modules.
		command, cmdArgs, err := splitServerCommand(cfg.Modules.MCP.Servers[0])
		if err != nil {
			return nil, err
		}
		mcpClient, err := tommcp.NewClientWithStdio(command, cmdArgs)
		if err != nil {
			return nil, fmt.Errorf("start mcp server %q: %w", cfg.Modules.MCP.Servers[0], err)
		}
		rt.closers = append(rt.closers, mcpClient.Close)
		deps.MCPCaller = mcpClient
	}

	enablement, err := modules.LoadEnablement(cfg.Modules.EnablementPath)
	if err != nil {
		return nil, fmt.Errorf("load enablement: %w", err)
	}

	reg, err := modules.BuildRegistry(ctx, deps, enablement)
	if err != nil {
		return nil, err
	}
	rt.registry = registry.NewStore(reg)

	rt.adjust, err = adjust.Load(cfg.Modules.AdjustmentsPath)
	if err != nil {
		return nil, fmt.Errorf("load adjustments: %w", err)
	}

	switch cfg.Session.Backend {
	case "sqlite":
		sessionDB := db
		if cfg.Session.DBPath != cfg.Modules.DBPath {
			sessionDB, err = sql.Open("sqlite", cfg.Session.DBPath)
			if err != nil {
				return nil, fmt.Errorf("open session database: %w", err)
			}
			rt.closers = append(rt.closers, sessionDB.Close)
		}
		rt.sessions, err = session.NewSQLiteStore(sessionDB, cfg.Session.TTL)
		if err != nil {
			return nil, fmt.Errorf("init session store: %w", err)
		}
	default:
		rt.sessions = session.NewInMemoryStore(cfg.Session.TTL)
	}

	rt.sweeper = session.NewSweeper(rt.sessions, cfg.Session.SweepInterval, time.Minute)
	rt.sweeper.Start()

	engine := triage.NewEngine(provider, cfg.LLM.TriageModel, cfg.Orchestrator.GatewayTimeout)

	rt.orch = orchestrator.New(orchestrator.Options{
		Registry:       rt.registry,
		Sessions:       rt.sessions,
		Provider:       provider,
		Triage:         engine,
		Adjust:         rt.adjust,
		Model:          cfg.LLM.Model,
		MaxIterations:  cfg.Orchestrator.MaxIterations,
		HistoryWindow:  cfg.Session.HistoryWindow,
		GatewayTimeout: cfg.Orchestrator.GatewayTimeout,
		HandlerTimeout: cfg.Orchestrator.HandlerTimeout,
	})

	if configPath != "" {
		paths := []string{configPath}
		if cfg.Modules.EnablementPath != "" {
			paths = append(paths, cfg.Modules.EnablementPath)
		}
		if cfg.Modules.AdjustmentsPath != "" {
			paths = append(paths, cfg.Modules.AdjustmentsPath)
		}
		watcher, err := config.NewWatcher(paths, config.WithWatchLogger(log))
		if err != nil {
			log.Warn("config.watcher.disabled", "error", err)
		} else {
			watcher.OnChange(func(next *config.Config) {
				enablement, err := modules.LoadEnablement(next.Modules.EnablementPath)
				if err != nil {
					log.Error("config.reload.enablement_error", "error", err)
					return
				}
				deps.Config = next.Modules
				reg, err := modules.BuildRegistry(ctx, deps, enablement)
				if err != nil {
					log.Error("config.reload.registry_error", "error", err)
					return
				}
				rt.registry.Swap(reg)
				if err := rt.adjust.Reload(); err != nil {
					log.Error("config.reload.adjust_error", "error", err)
				}
			})
			watcher.Start(ctx)
			rt.watcher = watcher
		}
	}

	return rt, nil
}

// splitServerCommand splits an MCP server entry into command and arguments.
func splitServerCommand(entry string) (string, []string, error) {
	parts := strings.Fields(entry)
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("mcp server entry is empty")
	}
	return parts[0], parts[1:], nil
}

func buildProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "ollama", "":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "gemini":
		return llm.NewGeminiWithAPIKey(ctx, cfg.LLM.APIKey, llm.WithGeminiModel(cfg.LLM.Model))
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func runChat(ctx context.Context, global globalFlags, args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	sessionID := fs.String("session", "", "session id to resume (default: new session)")
	userID := fs.String("user", "default", "user id for module enablement")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}

	rt, err := setup(ctx, global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	defer rt.close()

	fmt.Printf("tom %s (session %s) — ctrl-d to quit\n", version, *sessionID)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		reply, err := rt.orch.HandleTurn(ctx, *sessionID, *userID, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Printf("tom> %s\n", reply)
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Println()
}

func runServeMCP(ctx context.Context, global globalFlags, args []string) {
	fs := flag.NewFlagSet("serve-mcp", flag.ExitOnError)
	userID := fs.String("user", "default", "user id whose enabled modules are published")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	rt, err := setup(ctx, global.ConfigPath)
	if err != nil {
		fatal(err)
	}
	defer rt.close()

	srv := tommcp.NewServer("tom", version)
	if err := srv.RegisterModules(rt.registry.Load().Active(*userID)); err != nil {
		fatal(err)
	}
	if err := srv.ServeStdio(); err != nil {
		fatal(err)
	}
}

func printUsage() {
	fmt.Println(`Tom personal assistant

Usage:
  tom [global flags] <command> [args]

Global flags:
  --config <path>      Path to config YAML (or TOM_CONFIG)

Commands:
  chat [--session <id>] [--user <id>]   Interactive assistant session
  serve-mcp [--user <id>]               Publish enabled modules as MCP tools on stdio
  version
  help`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
