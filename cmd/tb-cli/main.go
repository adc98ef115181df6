package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"triplebarrier/internal/config"
	"triplebarrier/internal/util"
)

const version = "0.1.0"

// app carries what every command needs.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"version", "Print the CLI version", nil},
	{"resample", "Aggregate a bar CSV to a coarser timeframe", runResample},
	{"indicators", "Add EMA, RSI, and EMA-cross columns and write a checkpoint", runIndicators},
	{"split", "Split a bar CSV into train and holdout sets by date", runSplit},
	{"label", "Add triple-barrier outcome columns to a bar CSV", runLabel},
	{"backtest", "Replay entry signals and print the summary", runBacktest},
	{"symbols", "List stored symbols", runSymbols},
	{"runs", "List stored backtest runs, or show one with -id", runRuns},
	{"health", "Check the server's HTTP and gRPC health", runHealth},
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tb-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "  %-11s%s\n", c.name, c.usage)
		}
		fmt.Fprintf(os.Stderr, "\nRun 'tb-cli <command> -h' for command options.\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}
	if os.Args[1] == "version" {
		fmt.Printf("tb-cli %s\n", version)
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == os.Args[1] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()
	cfg, err := config.LoadOptional(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.run(ctx, &app{cfg: cfg, log: logger}, os.Args[2:]); err != nil {
		logger.Fatal().Err(err).Str("command", cmd.name).Msg("command failed")
	}
}
