// choir TUI - A terminal client for the Choir postchain pipeline.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/choirchat/choir-tui/internal/config"
	"github.com/choirchat/choir-tui/internal/coordinator"
	"github.com/choirchat/choir-tui/internal/model"
	"github.com/choirchat/choir-tui/internal/paginate"
	"github.com/choirchat/choir-tui/internal/protocol"
	"github.com/choirchat/choir-tui/internal/sse"
	"github.com/choirchat/choir-tui/internal/storage"
	"github.com/choirchat/choir-tui/internal/ui/chat"
	"github.com/choirchat/choir-tui/internal/ui/styles"
	"github.com/choirchat/choir-tui/internal/viewmodel"
)

// Version information (set at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "config file path (default: ~/.choir/config.toml)")
		threadID    = flag.String("thread", "", "resume a stored thread by id")
		listFlag    = flag.Bool("threads", false, "list stored threads and exit")
		mockFlag    = flag.Bool("mock", false, "replay a canned pipeline instead of connecting")
		versionFlag = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("choir %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := openLogger()
	if w, h, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		logger.Printf("UI: terminal %dx%d", w, h)
	}

	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening thread storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *listFlag {
		if err := printThreads(store); err != nil {
			fmt.Fprintf(os.Stderr, "Error listing threads: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// The -threads listing above may be piped; everything past this
	// point owns the terminal.
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "choir requires an interactive terminal")
		os.Exit(1)
	}

	thread, err := resolveThread(store, *threadID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading thread %q: %v\n", *threadID, err)
		os.Exit(1)
	}

	proj := viewmodel.NewProjection(cfg.UI.UpdatesPerSecond)
	coord := buildCoordinator(cfg, thread, store, proj.Apply, logger, *mockFlag)

	// Background cache sweeper stops when the program exits.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := buildPaginationEngine(cfg)
	go engine.RunSweeper(ctx)

	// Live config reload only logs for now; most settings require a
	// restart to take effect.
	watchConfig(*configPath, logger)

	theme := styles.NewTheme(cfg.UI.Theme)
	m := chat.New(theme, coord, proj, engine, thread, cfg.UI.ShowPhaseDetails)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running choir: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// STARTUP WIRING
// =============================================================================

// loadConfig loads from an explicit path or the default search order.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// openLogger appends to ~/.choir/choir.log. The TUI owns the terminal,
// so logs never go to stdout.
func openLogger() *log.Logger {
	dir, err := config.ConfigDir()
	if err != nil {
		return log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return log.New(io.Discard, "", 0)
	}
	f, err := os.OpenFile(filepath.Join(dir, "choir.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open log file: %v\n", err)
		return log.New(io.Discard, "", 0)
	}
	return log.New(f, "", log.LstdFlags)
}

func openStore(cfg *config.Config) (*storage.ThreadStore, error) {
	if cfg.Storage.DatabasePath != "" {
		return storage.Open(cfg.Storage.DatabasePath)
	}
	return storage.OpenDefault()
}

func printThreads(store *storage.ThreadStore) error {
	metas, err := store.ListThreads()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("No stored threads.")
		return nil
	}
	for _, meta := range metas {
		fmt.Printf("%s  %-40s  %3d messages  %s\n",
			meta.ID, meta.Title, meta.MessageCount, meta.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

// resolveThread loads the requested thread or starts a fresh one.
func resolveThread(store *storage.ThreadStore, id string) (*model.Thread, error) {
	if id == "" {
		return model.NewThread(), nil
	}
	return store.GetThread(id)
}

// buildCoordinator picks the transport from config: SSE by default,
// REST polling when poll_fallback is set, scripted replay under -mock.
func buildCoordinator(cfg *config.Config, thread *model.Thread, store *storage.ThreadStore, onUpdate coordinator.UpdateFunc, logger *log.Logger, mock bool) coordinator.Coordinator {
	if mock {
		c := coordinator.NewMockCoordinator(demoScript(), onUpdate)
		c.StepDelay = 350 * time.Millisecond
		c.ThreadID = thread.ID
		return c
	}

	legacy := model.PhaseExperienceVectors
	if p, ok := model.PhaseFromWire(cfg.Stream.LegacyExperiencePhase); ok {
		legacy = p
	}

	models := make(map[string]protocol.ModelConfig, len(cfg.Models))
	for phase, sel := range cfg.Models {
		models[phase] = protocol.ModelConfig{
			Provider:    sel.Provider,
			ModelName:   sel.ModelName,
			Temperature: sel.Temperature,
		}
	}

	ccfg := coordinator.Config{
		Endpoint:              cfg.Server.URL,
		AuthToken:             cfg.Server.AuthToken,
		HistoryTurns:          cfg.Stream.HistoryTurns,
		ModelConfigs:          models,
		LegacyExperiencePhase: legacy,
		Transport: sse.Config{
			MaxRetries:     cfg.Stream.MaxRetries,
			ReconnectDelay: time.Duration(cfg.Stream.ReconnectDelaySecs * float64(time.Second)),
			ChannelBuffer:  cfg.Stream.ChannelBuffer,
		},
		Logger: logger,
	}

	if cfg.Stream.PollFallback {
		interval := time.Duration(cfg.Stream.PollIntervalSecs * float64(time.Second))
		return coordinator.NewPollCoordinator(ccfg, thread, store, interval, onUpdate)
	}
	return coordinator.NewStreamCoordinator(ccfg, thread, store, onUpdate)
}

func buildPaginationEngine(cfg *config.Config) *paginate.Engine {
	paginator := paginate.NewPaginator(paginate.Options{
		TargetFill:    cfg.Pagination.TargetFill,
		MaxFill:       cfg.Pagination.MaxFill,
		MinFill:       cfg.Pagination.MinFill,
		LongParagraph: cfg.Pagination.LongParagraphChars,
	}, nil)
	cache := paginate.NewCache(
		cfg.Pagination.CacheEntries,
		time.Duration(cfg.Pagination.CacheTTLMinutes)*time.Minute,
	)
	return paginate.NewEngine(paginator, cache)
}

// watchConfig reports config file edits to the log. Reload failures
// leave the running config untouched.
func watchConfig(explicitPath string, logger *log.Logger) {
	path := explicitPath
	if path == "" {
		p, err := config.ConfigPathTOML()
		if err != nil {
			return
		}
		path = p
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	w, err := config.NewWatcher(path,
		func(*config.Config) {
			logger.Printf("CONFIG: %s reloaded; restart to apply changes", path)
		},
		func(err error) {
			logger.Printf("CONFIG: reload of %s failed: %v", path, err)
		})
	if err != nil {
		logger.Printf("CONFIG: watch failed: %v", err)
		return
	}
	go func() {
		if err := w.Watch(); err != nil {
			logger.Printf("CONFIG: watcher stopped: %v", err)
		}
	}()
}

// =============================================================================
// MOCK SCRIPT
// =============================================================================

// demoScript replays one full pipeline run for -mock.
func demoScript() []protocol.PhaseEvent {
	step := func(phase model.Phase, status model.Status, content string) protocol.PhaseEvent {
		return protocol.PhaseEvent{Phase: phase, Status: status, Content: content}
	}

	var script []protocol.PhaseEvent
	for _, phase := range model.AllPhases() {
		script = append(script,
			step(phase, model.StatusInProgress, ""),
			step(phase, model.StatusInProgress, "Working through the "+phase.DisplayName()+" phase..."),
			step(phase, model.StatusComplete, "This is canned "+phase.DisplayName()+" output produced by the mock coordinator. Run without -mock to talk to a real server."),
		)
	}
	return script
}
