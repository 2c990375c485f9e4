package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/NSAlexeyMK/noblindezone/internal/archive"
	"github.com/NSAlexeyMK/noblindezone/internal/config"
	"github.com/NSAlexeyMK/noblindezone/internal/journal"
	"github.com/NSAlexeyMK/noblindezone/internal/notify"
	"github.com/NSAlexeyMK/noblindezone/internal/pipeline"
	"github.com/NSAlexeyMK/noblindezone/internal/report"
	"github.com/NSAlexeyMK/noblindezone/internal/reputation"
	"github.com/NSAlexeyMK/noblindezone/internal/runlock"
	"github.com/NSAlexeyMK/noblindezone/internal/source"
	"github.com/NSAlexeyMK/noblindezone/internal/state"
)

// One full pass over every monitored category. Repetition comes from an
// external scheduler; exit 0 covers normal completion including partial
// internal failures, exit 1 only startup preconditions.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		slog.Error("sources config error", "error", err)
		os.Exit(1)
	}

	if err := runlock.Acquire(cfg.LockFile); err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			slog.Error("already running", "lock", cfg.LockFile)
		} else {
			slog.Error("lock error", "error", err)
		}
		os.Exit(1)
	}
	defer runlock.Release(cfg.LockFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var notifier notify.Notifier = notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if cfg.AMQPURL != "" {
		queueSink, err := notify.NewAMQP(cfg.AMQPURL)
		if err != nil {
			slog.Error("queue sink unavailable, continuing without it", "error", err)
		} else {
			defer queueSink.Close()
			notifier = notify.Fanout{notifier, queueSink}
		}
	}

	var store *archive.Store
	if store, err = archive.Open(cfg.ArchivePath); err != nil {
		slog.Error("archive unavailable, continuing without it", "path", cfg.ArchivePath, "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	watermarks := &state.WatermarkStore{Dir: cfg.StateDir}
	journals := &journal.Store{Dir: cfg.StateDir}

	p := &pipeline.Pipeline{
		RunID:      uuid.NewString(),
		Sources:    &source.FileCatalog{Paths: sources.Paths, BatchSize: sources.BatchSize},
		Notifier:   notifier,
		Reputation: reputation.NewClient(cfg.VTAPIKey),
		Watermarks: watermarks,
		Identity:   state.NewIdentityCache(cfg.StateDir),
		RepCache:   state.NewReputationCache(cfg.StateDir),
		Journal:    journals,
		Rollover: &report.Rollover{
			Watermarks: watermarks,
			Journal:    journals,
			Renderer:   &report.TextRenderer{Dir: cfg.StateDir},
			Notifier:   notifier,
		},
		Archive: store,
		Window:  cfg.Window,
		Now:     time.Now,
	}

	slog.Info("run starting", "run_id", p.RunID, "window", cfg.Window.String())
	if err := p.Run(ctx); err != nil {
		slog.Error("run error", "error", err)
	}
	slog.Info("run complete", "run_id", p.RunID)
}
