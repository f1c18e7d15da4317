// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nexus-goc/commandroom/lib/clock"
	"github.com/nexus-goc/commandroom/lib/config"
	"github.com/nexus-goc/commandroom/lib/llm"
	"github.com/nexus-goc/commandroom/lib/schema"
	"github.com/nexus-goc/commandroom/lib/service"
	"github.com/nexus-goc/commandroom/lib/snapshot"
	"github.com/nexus-goc/commandroom/lib/version"
	"github.com/nexus-goc/commandroom/relay"
	"github.com/nexus-goc/commandroom/room"
)

// providerTimeout bounds one provider HTTP exchange, including the
// whole streamed body.
const providerTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		offline     bool
		showVersion bool
	)

	flags := pflag.NewFlagSet("commandroom-service", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to commandroom.yaml (default: $COMMANDROOM_CONFIG)")
	flags.BoolVar(&offline, "offline", false, "answer with a local echo provider instead of calling AI endpoints")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println(version.Banner("commandroom-service"))
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	timings, err := cfg.Room.Timings()
	if err != nil {
		return err
	}
	flushInterval, err := cfg.Snapshots.IntervalDuration()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	hub := relay.NewHub(relay.HubConfig{
		Clock:         clk,
		Logger:        logger,
		Store:         store,
		FlushInterval: flushInterval,
		AIDefaults: schema.AIConfig{
			Provider:        cfg.AI.DefaultProvider,
			ModelID:         cfg.AI.DefaultModel,
			Mode:            schema.ModeEncyclopedia,
			ThinkingEnabled: true,
		},
	})

	providers := newProviderRegistry(cfg.AI, offline, logger)

	reasoningEffort := make(map[string]string)
	for name, provider := range cfg.AI.Providers {
		if provider.ReasoningEffort != "" {
			reasoningEffort[name] = provider.ReasoningEffort
		}
	}

	rooms, err := room.NewService(room.Config{
		Hub:              hub,
		Providers:        providers,
		Clock:            clk,
		Logger:           logger,
		MaxTokens:        cfg.AI.MaxTokens,
		MaxToolSteps:     cfg.AI.MaxToolSteps,
		HistoryLimit:     cfg.AI.HistoryLimit,
		ReasoningEffort:  reasoningEffort,
		StallTimeout:     timings.StallTimeout,
		ToolTimeout:      timings.ToolTimeout,
		WatchdogInterval: timings.WatchdogInterval,
		AssistantName:    cfg.Room.AssistantName,
	})
	if err != nil {
		return err
	}

	commandRoom := &CommandRoomService{
		rooms:     rooms,
		hub:       hub,
		clock:     clk,
		startedAt: clk.Now(),
		logger:    logger,
	}

	hubDone := make(chan error, 1)
	go func() {
		hubDone <- hub.Run(ctx)
	}()

	socketServer := service.NewSocketServer(cfg.Paths.Socket, logger)
	commandRoom.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	logger.Info("command room service running",
		"socket", cfg.Paths.Socket,
		"environment", cfg.Environment,
		"providers", providers.Names(),
		"snapshots", store != nil,
		"offline", offline,
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Stream handlers end with their connections; sessions and
	// generations end here so the final flush sees their last writes.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	rooms.Close()
	if err := <-hubDone; err != nil {
		logger.Error("final snapshot flush failed", "error", err)
	}

	return nil
}

// loadConfig reads the file named by --config, or by
// COMMANDROOM_CONFIG when the flag is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// openStore returns nil when snapshots are disabled.
func openStore(cfg *config.Config) (*snapshot.Store, error) {
	if !cfg.Snapshots.Enabled {
		return nil, nil
	}

	compression, err := snapshot.ParseCompression(cfg.Snapshots.Compression)
	if err != nil {
		return nil, err
	}
	recipients, err := snapshot.ParseRecipients(cfg.Snapshots.Recipients)
	if err != nil {
		return nil, fmt.Errorf("snapshots.recipients: %w", err)
	}
	options := snapshot.Options{
		Compression: compression,
		Recipients:  recipients,
	}
	if cfg.Snapshots.IdentityFile != "" {
		identities, err := snapshot.ReadIdentityFile(cfg.Snapshots.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("snapshots.identity_file: %w", err)
		}
		options.Identities = identities
	}

	store, err := snapshot.NewStore(cfg.Paths.State, options)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newProviderRegistry binds every configured provider name. Offline
// mode binds the same names to an echo provider so rooms keep working
// without network access or API keys.
func newProviderRegistry(ai config.AIConfig, offline bool, logger *slog.Logger) *llm.Registry {
	registry := llm.NewRegistry()
	httpClient := &http.Client{Timeout: providerTimeout}

	for _, name := range ai.ProviderNames() {
		if offline {
			registry.Register(name, llm.Echo{Prefix: "[offline] "})
			continue
		}
		provider := ai.Providers[name]
		apiKey := os.Getenv(provider.APIKeyEnv)
		if apiKey == "" {
			logger.Warn("provider API key is not set; requests will be rejected upstream",
				"provider", name,
				"env", provider.APIKeyEnv,
			)
		}
		registry.Register(name, llm.NewOpenAI(httpClient, provider.BaseURL, apiKey))
	}
	return registry
}

// CommandRoomService is the socket front of a [room.Service].
type CommandRoomService struct {
	rooms     *room.Service
	hub       *relay.Hub
	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger
}
