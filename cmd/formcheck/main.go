package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/formcheck/internal/app"
	"github.com/a3tai/formcheck/internal/config"
	"github.com/a3tai/formcheck/internal/httpapi"
	"github.com/a3tai/formcheck/internal/logging"
	"github.com/a3tai/formcheck/internal/mcp"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging builds the process logger. Logs always go to stderr so that
// stdio mode keeps stdout for the MCP protocol; stdio mode stays quiet below
// warnings unless debug logging was requested.
func setupLogging(cfg *config.Config, stderr io.Writer) (*slog.Logger, error) {
	level := cfg.LogLevel
	if cfg.IsStdioMode() && !cfg.IsDebug() {
		level = "warn"
	}
	return logging.New(level, cfg.LogFormat, stderr)
}

// run loads the configuration from args and serves until ctx is done.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(args, stderr)
	if errors.Is(err, config.ErrVersionRequested) {
		printVersion(stdout)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger, err := setupLogging(cfg, stderr)
	if err != nil {
		return err
	}
	logger.Debug("starting", "config", cfg.String())

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	if cfg.IsServerMode() {
		return runServerMode(ctx, a)
	}
	return runStdioMode(ctx, a)
}

// runServerMode serves the HTTP API until ctx is done.
func runServerMode(ctx context.Context, a *app.App) error {
	handler, err := httpapi.New(a.Engine, a.Loader, a.Logger)
	if err != nil {
		return err
	}

	srv := httpapi.NewServer(a.Config.Address(), handler.Routes(), a.Logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	a.Logger.Info("server stopped successfully")
	return nil
}

// runStdioMode serves MCP tools on standard I/O; the parent process controls
// the lifecycle by closing stdin.
func runStdioMode(ctx context.Context, a *app.App) error {
	server, err := mcp.NewServer(a.Config, a.Engine, a.Loader, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "formcheck\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
