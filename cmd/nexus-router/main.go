// Command nexus-router serves the router's MCP tools over stdio.
//
// The event store path, adapter wiring, and telemetry endpoint come from
// NEXUS_* environment variables (see internal/config).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcp-tool-shop/nexus-router/dispatch"
	"github.com/mcp-tool-shop/nexus-router/internal/config"
	"github.com/mcp-tool-shop/nexus-router/internal/mcp"
	"github.com/mcp-tool-shop/nexus-router/internal/redact"
	"github.com/mcp-tool-shop/nexus-router/internal/store"
	"github.com/mcp-tool-shop/nexus-router/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("NEXUS_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	// Logs go to stderr: stdout belongs to the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	instr, err := telemetry.NewInstruments()
	if err != nil {
		return fmt.Errorf("create instruments: %w", err)
	}

	s, err := store.Open(cfg.DBPath, logger, instr)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	}()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	srv := mcp.New(s, registry, redact.NewDefault(), instr, version, logger)

	logger.Info("nexus-router MCP server starting",
		"version", version,
		"db_path", cfg.DBPath,
		"default_adapter", cfg.DefaultAdapter,
		"adapters", registry.ListIDs(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.ServeStdio(srv.MCPServer())
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve stdio: %w", err)
		}
		return nil
	}
}

// buildRegistry wires the built-in adapters the configuration enables.
// The null adapter is always registered so dry runs work out of the box.
func buildRegistry(cfg config.Config) (*dispatch.Registry, error) {
	registry := dispatch.NewRegistry(cfg.DefaultAdapter)
	if err := registry.Register(dispatch.NewNullAdapter("")); err != nil {
		return nil, fmt.Errorf("register null adapter: %w", err)
	}

	if len(cfg.SubprocessCmd) > 0 {
		sub, err := dispatch.NewSubprocessAdapter("subprocess", cfg.SubprocessCmd,
			dispatch.WithTimeout(cfg.SubprocessTimeout))
		if err != nil {
			return nil, fmt.Errorf("build subprocess adapter: %w", err)
		}
		if err := registry.Register(sub); err != nil {
			return nil, fmt.Errorf("register subprocess adapter: %w", err)
		}
	}

	if cfg.HTTPAdapterURL != "" {
		httpAdapter, err := dispatch.NewHTTPAdapter("http", cfg.HTTPAdapterURL)
		if err != nil {
			return nil, fmt.Errorf("build http adapter: %w", err)
		}
		if err := registry.Register(httpAdapter); err != nil {
			return nil, fmt.Errorf("register http adapter: %w", err)
		}
	}

	// Fail fast when the configured default never got registered.
	if _, err := registry.GetDefault(); err != nil {
		return nil, fmt.Errorf("default adapter: %w", err)
	}
	return registry, nil
}
