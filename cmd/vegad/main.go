// Package main is the entry point for the Vega swarm daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vega-swarm/vega/internal/api"
	"github.com/vega-swarm/vega/internal/bus"
	"github.com/vega-swarm/vega/internal/crypto"
	"github.com/vega-swarm/vega/internal/executor/echo"
	"github.com/vega-swarm/vega/internal/history"
	"github.com/vega-swarm/vega/internal/pipeline"
	"github.com/vega-swarm/vega/internal/swarm"
	"github.com/vega-swarm/vega/internal/trigger"
	"github.com/vega-swarm/vega/pkg/types"
)

var (
	configPath  = flag.String("config", "", "Path to config file")
	showVersion = flag.Bool("version", false, "Show version")
)

const version = "0.1.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("vegad version %s\n", version)
		os.Exit(0)
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := run(config); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func loadConfig(path string) (*types.Config, error) {
	// Use default config if no path specified
	if path == "" {
		candidates := []string{
			"vega.yaml",
			"vega.yml",
			".vega/config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	// Return default config if no file found
	if path == "" {
		return types.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := types.DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

func run(config *types.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	logger.Info("starting vega swarm daemon", "version", version)

	// Initialize crypto
	keyManager := crypto.NewKeyManager(config.Crypto.IdentityPath)
	if err := keyManager.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize crypto: %w", err)
	}
	logger.Info("crypto initialized", "public_key", keyManager.PublicKeyHint())

	payloadService := crypto.NewPayloadService(keyManager)

	// Initialize the history archive
	var archive *history.Store
	if config.History.Enabled {
		archive = history.NewStore(config.History.Path, payloadService, logger)
		if err := archive.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize history archive: %w", err)
		}
		defer archive.Close()
		logger.Info("history archive initialized", "path", config.History.Path)
	}

	// Message bus for broadcasts and message triggers
	messages := bus.New()

	// Agent roster: configured agents, or the builtin nine
	roster := config.Roster
	if len(roster) == 0 {
		roster = swarm.BuiltinRoster()
	}

	// Scheduler with the echo executor; agents report heartbeats back
	// through the scheduler itself.
	scheduler, err := swarm.New(config.Swarm, roster, nil, messages, logger)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	scheduler.SetExecutor(echo.New(scheduler))
	if archive != nil {
		scheduler.SetHistory(archive)
	}
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info("scheduler started", "agents", len(roster))

	// Trigger engine
	triggers, err := trigger.NewEngine(scheduler, messages, logger)
	if err != nil {
		return fmt.Errorf("failed to create trigger engine: %w", err)
	}
	triggers.Start()
	defer triggers.Stop()

	// Pipeline engine
	pipelines := pipeline.NewEngine(scheduler, logger)

	// Initialize API router
	router := api.NewRouter(scheduler, triggers, pipelines, archive)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router.Handler(),
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	logger.Info("vega swarm ready",
		"api", fmt.Sprintf("http://%s/api/v1", addr),
		"websocket", fmt.Sprintf("ws://%s/ws", addr))

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
