// Command server runs the trading-agent orchestrator.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mosaicfin/atrader/internal/config"
	"github.com/mosaicfin/atrader/internal/di"
	"github.com/mosaicfin/atrader/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		errLog := logger.New(logger.Config{Level: "error"})
		errLog.Fatal().Err(err).Msg("configuration load failed")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().
		Int("port", cfg.Port).
		Str("data_dir", cfg.DataDir).
		Bool("dev_mode", cfg.DevMode).
		Msg("starting orchestrator")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring failed")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := container.Scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- container.Server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	container.Scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := container.Server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	log.Info().Msg("orchestrator stopped")
}
