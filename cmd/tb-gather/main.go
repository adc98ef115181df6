package main

import (
	"context"
	"flag"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"triplebarrier/internal/config"
	"triplebarrier/internal/gather"
	"triplebarrier/internal/gather/crypto"
	"triplebarrier/internal/metrics"
	"triplebarrier/internal/store"
	"triplebarrier/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols, overriding the config")
	metricsAddr := flag.String("metrics", "", "serve /metrics on this address while gathering")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	if *symbols != "" {
		cfg.Gather.Symbols = strings.Split(*symbols, ",")
	}
	if *metricsAddr != "" {
		_ = metrics.Serve(*metricsAddr)
		logger.Info().Str("addr", *metricsAddr).Msg("metrics up")
	}

	opts := crypto.Options{
		Market:           cfg.Gather.Market,
		Symbols:          cfg.Gather.Symbols,
		TimeframeMinutes: cfg.Gather.TimeframeMinutes,
		StartDate:        cfg.Gather.StartDate,
		MaxWorkers:       cfg.Gather.MaxWorkers,
		RateLimitPerMin:  cfg.Gather.RateLimitPerMin,
	}
	if err := opts.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("gather options")
	}

	client := crypto.NewClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	pstore := store.NewParquetStore(cfg.Storage.DataDir, cfg.Gather.Timeframe())
	var g gather.Gatherer = crypto.NewBarGatherer(client, pstore, opts, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info().Str("gatherer", g.Name()).Strs("symbols", opts.Symbols).Msg("starting")
	if err := g.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("gather failed")
	}
	logger.Info().Msg("done")
}
