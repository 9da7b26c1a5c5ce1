package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/buzzer/internal/archive"
	"github.com/playperu/buzzer/internal/broadcast"
	"github.com/playperu/buzzer/internal/config"
	"github.com/playperu/buzzer/internal/database"
	"github.com/playperu/buzzer/internal/handler/health"
	"github.com/playperu/buzzer/internal/metrics"
	"github.com/playperu/buzzer/internal/migrations"
	"github.com/playperu/buzzer/internal/server"
	"github.com/playperu/buzzer/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checks := map[string]health.Checker{}
	storeOpts := []session.Option{session.WithMetrics(m), session.WithLogger(logger)}

	// --- Round archive (optional) ---
	var recorder *archive.Recorder
	if cfg.ArchiveDB != "" {
		db, err := database.Open(ctx, cfg.ArchiveDB)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer db.Close()

		if err := migrations.Run(db); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("round archive enabled", "path", cfg.ArchiveDB)

		recorder = archive.NewRecorder(db, logger, m)
		checks["archive"] = recorder
		storeOpts = append(storeOpts, session.WithRoundObserver(recorder))
	}

	// --- Session + broadcast ---
	hub := broadcast.NewHub(
		broadcast.WithHeartbeatInterval(cfg.HeartbeatInterval),
		broadcast.WithBufferSize(cfg.ViewerBuffer),
		broadcast.WithMetrics(m),
		broadcast.WithLogger(logger),
	)
	storeOpts = append(storeOpts, session.WithPublisher(hub))
	store := session.NewStore(storeOpts...)

	// --- HTTP Server ---
	deps := server.Deps{
		Store:     store,
		Hub:       hub,
		Gatherer:  reg,
		Checks:    checks,
		SPADir:    cfg.SPADir,
		PublicURL: cfg.PublicURL,
		JoinLimit:  cfg.JoinLimit,
		JoinWindow: cfg.JoinWindow,
	}
	if recorder != nil {
		deps.Rounds = recorder
	}
	srv := server.New(cfg.HTTPAddr, logger, deps)

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return hub.Run(gctx)
	})

	// The recorder outlives the HTTP server so the final flush is written.
	recCtx, stopRecorder := context.WithCancel(context.Background())
	defer stopRecorder()
	if recorder != nil {
		g.Go(func() error {
			return recorder.Run(recCtx)
		})
	}

	g.Go(func() error {
		defer stopRecorder()
		<-gctx.Done()
		logger.Info("shutting down http server")
		hub.Close()
		err := srv.Shutdown(context.Background())
		store.Flush()
		return err
	})

	return g.Wait()
}
