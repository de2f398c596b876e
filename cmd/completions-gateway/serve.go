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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"completions-gateway/internal/audit"
	"completions-gateway/internal/backend"
	"completions-gateway/internal/config"
	"completions-gateway/internal/gateway"
	"completions-gateway/internal/httpserver"
	"completions-gateway/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(cmd.Context(), opts, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")
	return cmd
}

func runGateway(ctx context.Context, opts *rootOptions, watch bool) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(os.Stdout, opts.logLevel, cfg.LogLevel)
	store := config.NewStore(cfg)

	collector := metrics.NewCollector(prometheus.NewRegistry())
	serviceOpts := []gateway.Option{gateway.WithMetrics(collector)}

	if cfg.Audit.Enabled {
		auditStore, err := audit.OpenSQLite(cfg.Audit.Path)
		if err != nil {
			return err
		}
		defer auditStore.Close()

		scheduler := audit.NewScheduler(auditStore, cfg.Audit.RetentionDays, cfg.Audit.PruneSchedule, logger)
		if err := scheduler.Start(ctx); err != nil {
			return err
		}
		defer scheduler.Stop()

		serviceOpts = append(serviceOpts, gateway.WithAudit(auditStore))
		logger.Info("audit log enabled", "path", cfg.Audit.Path)
	}

	service := gateway.NewService(store, backend.NewDefaultRegistry(), logger, serviceOpts...)
	server := httpserver.New(cfg.Listen, logger, service, httpserver.Options{Store: store, Metrics: collector})

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch {
		startWatcher(sigCtx, opts.configPath, store, cfg, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "listen", cfg.Listen, "models", cfg.ModelNames())
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited unexpectedly: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}

// startWatcher reloads routes on config changes. Server-level settings are
// read once at startup.
func startWatcher(ctx context.Context, path string, store *config.Store, initial *config.Config, logger *slog.Logger) {
	watcher := config.NewWatcher(path, store, logger)
	watcher.OnReload(func(next *config.Config) {
		if next.Listen != initial.Listen || next.Metrics != initial.Metrics || next.Audit != initial.Audit {
			logger.Warn("config change requires a restart to take full effect")
		}
	})
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("config watcher stopped", "error", err)
		}
	}()
}
