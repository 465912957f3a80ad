package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/szaher/sandboxd/internal/catalog"
	"github.com/szaher/sandboxd/internal/daemonconfig"
	"github.com/szaher/sandboxd/internal/dispatcher"
	"github.com/szaher/sandboxd/internal/opsserver"
	"github.com/szaher/sandboxd/internal/session"
	"github.com/szaher/sandboxd/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: MCP stdio server plus an ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg := daemonconfig.FromEnv()
	// Stdout is the MCP wire channel; all of the daemon's own logging
	// goes to stderr so it can never corrupt the protocol stream.
	logger := telemetry.NewLogger(os.Stderr, slog.LevelInfo)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)

	mgr := session.NewManager(resolverFor(cat), cfg.SessionIdleTimeout, cfg.SessionMaxLifetime, logger, metrics)
	if err := mgr.StartReaper(cfg.ReapInterval); err != nil {
		return fmt.Errorf("start reaper: %w", err)
	}

	disp := dispatcher.New(cat, mgr, metrics, logger)

	mcpServer := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "sandboxd", Version: version}, nil)
	disp.Register(mcpServer)

	ops := opsserver.New(reg, mgr, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mcpServer.Run(gctx, &mcpsdk.StdioTransport{})
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- ops.ListenAndServe(cfg.OpsAddr) }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ops.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	})

	err = g.Wait()
	if shutdownErr := mgr.Shutdown(); shutdownErr != nil {
		logger.Warn("session manager shutdown", "error", shutdownErr)
	}
	return err
}

// resolverFor adapts a catalog lookup into the function shape the session
// manager needs, translating catalog.Environment into session.Environment.
func resolverFor(cat *catalog.Catalog) func(string) (session.Environment, bool) {
	return func(name string) (session.Environment, bool) {
		env, ok := cat.Lookup(name)
		if !ok {
			return session.Environment{}, false
		}
		return session.Environment{
			Name:            env.Name,
			InterpreterType: env.InterpreterType,
			SessionExec:     env.SessionExec,
		}, true
	}
}
