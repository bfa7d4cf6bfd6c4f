package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"marketfeed/internal/app"
	"marketfeed/internal/domain"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Optional .env for environment overrides; absence is fine.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env")
	}

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := bootstrap.Service
	svc.OnSnapshotUpdated(func(snap *domain.MarketDataSnapshot) {
		slog.Debug("snapshot updated",
			slog.String("symbol", snap.Symbol),
			slog.Time("computed_at", snap.ComputedAt))
	})

	if err := svc.Start(ctx); err != nil {
		slog.Error("failed to start market data service", slog.Any("error", err))
		os.Exit(1)
	}

	slog.InfoContext(ctx, "marketfeed operational, press Ctrl+C to exit")

	<-ctx.Done()

	slog.Info("shutting down gracefully...")
	svc.Stop()

	m := svc.Metrics()
	slog.Info("final counters",
		slog.Uint64("frames", m.FramesReceived),
		slog.Uint64("parse_errors", m.ParseErrors),
		slog.Uint64("reconnects", m.Reconnects),
		slog.Uint64("recomputes", m.IndicatorRecomputes),
		slog.Uint64("flushes", m.PersistenceFlushes))
}
