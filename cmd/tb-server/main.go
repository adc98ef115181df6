package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"triplebarrier/internal/api"
	"triplebarrier/internal/config"
	"triplebarrier/internal/label"
	"triplebarrier/internal/store"
	"triplebarrier/internal/strategy"
	"triplebarrier/internal/strategy/builtins"
	"triplebarrier/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	bars := store.NewParquetStore(cfg.Storage.DataDir, cfg.Gather.Timeframe())
	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Storage.SQLitePath).Msg("open run store")
	}
	defer runs.Close()

	registry := strategy.NewRegistry()
	builtins.Register(registry)
	bt := strategy.NewBacktester(bars, registry, cfg.Gather.Market, logger).WithPersistence(runs, bars)

	srv := api.NewServer(cfg, api.Deps{
		Backtester: bt,
		Labeler:    label.NewLabeler(cfg.Labeling.Workers, logger),
		Bars:       bars,
		Runs:       runs,
		Ledgers:    bars,
	}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().
		Str("data_dir", cfg.Storage.DataDir).
		Strs("strategies", registry.List()).
		Msg("tb-server starting")
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
}
