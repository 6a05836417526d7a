package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"commuterbliss/internal/device"
	"commuterbliss/internal/handler"
	"commuterbliss/internal/observability"
	"commuterbliss/internal/pipeline"
	"commuterbliss/internal/server"
)

const (
	outboxSize    = 8
	pruneInterval = time.Hour
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the companion HTTP service",
	Long: `Serve device endpoints: an SSE stream per watch, the update trigger,
the settings hand-over, the feasibility check, a status page and /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	serveCmd.Flags().StringVar(&cfg.DeviceKey, "device-key", cfg.DeviceKey, "shared key required on device endpoints")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing,
		ServiceName: "commuterbliss",
		Writer:      os.Stdout,
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.fetcher != nil {
		go a.fetcher.Start(ctx, gtfsrtInterval)
	}
	go pruneDispatches(ctx, a)

	hub := device.NewHub(outboxSize, logger, a.metrics)
	pipe := pipeline.New(a.resolver, a.source, a.clock,
		device.NewRecorder(hub, a.db, logger), cfg.NumberOfTrains, logger, a.metrics)
	defer pipe.Wait()

	h := handler.New(handler.Deps{
		DB:          a.db,
		Pipeline:    pipe,
		Hub:         hub,
		Feasibility: a.board,
		Index:       a.index,
		Clock:       a.clock,
		Defaults:    cfg.Preferences,
	}, logger)

	srv := server.New(cfg, h, a.metrics.Handler(), logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shut down")
	return nil
}

func pruneDispatches(ctx context.Context, a *app) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := a.db.PruneDispatches(ctx, cfg.DispatchKeep)
			if err != nil {
				logger.Warn("pruning dispatch log", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned dispatch log", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
