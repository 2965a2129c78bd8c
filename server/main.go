package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/meikuraledutech/workflow"
	"github.com/meikuraledutech/workflow/api"
	"github.com/meikuraledutech/workflow/config"
	"github.com/meikuraledutech/workflow/ctxlog"
	"github.com/meikuraledutech/workflow/engine"
	"github.com/meikuraledutech/workflow/memory"
	"github.com/meikuraledutech/workflow/metrics"
	"github.com/meikuraledutech/workflow/notify"
	"github.com/meikuraledutech/workflow/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	var store workflow.Store
	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.New(pool)
		logger.Info("using postgres store")
	} else {
		store = memory.New()
		logger.Warn("DATABASE_URL is not set, using in-memory store")
	}
	if err := store.CreateSchema(ctx); err != nil {
		return err
	}

	notifiers := notify.Multi{notify.Log{}}
	if cfg.NATSURL != "" {
		nc, err := notify.Connect(ctx, cfg.NATSURL)
		if err != nil {
			return err
		}
		defer nc.Drain()
		notifiers = append(notifiers, notify.NewNATS(nc))
	}

	reg := metrics.DefaultRegistry()
	opts := cfg.EngineOptions()
	opts.Notifier = notifiers
	opts.Metrics = reg
	manager := engine.NewManager(store, opts)

	app := api.New(store, manager, reg, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		errc <- app.Listen(cfg.Listen, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	return manager.Shutdown(sctx)
}
