package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/cta/internal/api"
	"github.com/newthinker/cta/internal/backtest"
	"github.com/newthinker/cta/internal/config"
	"github.com/newthinker/cta/internal/storage/archive"
	"github.com/newthinker/cta/internal/storage/bars"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server for backtest jobs and archived results",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bars.Open(ctx, cfg.Database.Path, log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := startServices(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	opts := []backtest.Option{backtest.WithTicks(store)}
	if svc.metrics != nil {
		opts = append(opts, backtest.WithMetrics(svc.metrics))
	}
	for _, o := range svc.observers {
		opts = append(opts, backtest.WithObserver(o))
	}

	deps := api.Dependencies{
		Backtester: backtest.New(store, newStrategyRegistry(log), log, opts...),
		Metrics:    svc.metrics,
	}
	if cfg.Archive.Enabled {
		st, err := archive.New(cfg.Archive.Config)
		if err != nil {
			return err
		}
		deps.Archive = st
	}

	return serveAPI(ctx, cfg, deps, log)
}

// serveAPI runs the API server until ctx is cancelled.
func serveAPI(ctx context.Context, cfg *config.Config, deps api.Dependencies, log *zap.Logger) error {
	server, err := api.NewServer(api.Config{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		APIKey:  cfg.Server.APIKey,
		MaxJobs: cfg.Server.MaxJobs,
		JobTTL:  cfg.Server.JobTTL,
	}, deps, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.Start()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
