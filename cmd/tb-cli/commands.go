package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"triplebarrier/internal/api"
	"triplebarrier/internal/backtest"
	"triplebarrier/internal/barrier"
	"triplebarrier/internal/dataset"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/indicators"
	"triplebarrier/internal/label"
	"triplebarrier/internal/report"
	"triplebarrier/internal/store"
	"triplebarrier/internal/strategy"
	"triplebarrier/internal/strategy/builtins"
	tb "triplebarrier/pkg/triplebarrier"
)

// ---------------------------------------------------------------------------
// Dataset commands
// ---------------------------------------------------------------------------

func runResample(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("resample", flag.ExitOnError)
	in := fs.String("in", "", "input bar CSV")
	out := fs.String("out", "", "output CSV")
	symbol := fs.String("symbol", "", "symbol recorded on the bars")
	minutes := fs.Int("minutes", a.cfg.Gather.TimeframeMinutes, "bucket width in minutes")
	fs.Parse(args)
	if *in == "" || *out == "" {
		return errors.New("-in and -out are required")
	}
	if *minutes <= 0 {
		return fmt.Errorf("-minutes must be positive, got %d", *minutes)
	}

	f, err := dataset.ReadCSVFile(*in, *symbol)
	if err != nil {
		return err
	}
	bars := dataset.Resample(f.Bars, time.Duration(*minutes)*time.Minute)
	if err := dataset.WriteCSVFile(*out, dataset.NewFrame(*symbol, bars)); err != nil {
		return err
	}
	a.log.Info().Int("in", f.Len()).Int("out", len(bars)).Str("path", *out).Msg("resampled")
	return nil
}

func runIndicators(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("indicators", flag.ExitOnError)
	in := fs.String("in", "", "input bar CSV")
	outDir := fs.String("out-dir", ".", "directory for the checkpoint CSV")
	symbol := fs.String("symbol", "", "symbol, used in the checkpoint name")
	fast := fs.Int("fast", 12, "fast EMA span")
	slow := fs.Int("slow", 26, "slow EMA span")
	rsi := fs.Int("rsi", 14, "RSI period")
	fs.Parse(args)
	if *in == "" || *symbol == "" {
		return errors.New("-in and -symbol are required")
	}
	if *fast <= 0 || *slow <= *fast || *rsi <= 0 {
		return fmt.Errorf("invalid periods: fast %d, slow %d, rsi %d", *fast, *slow, *rsi)
	}

	f, err := dataset.ReadCSVFile(*in, *symbol)
	if err != nil {
		return err
	}
	closes := lo.Map(f.Bars, func(b domain.Bar, _ int) float64 { return b.Close })
	cross := lo.Map(indicators.EMACross(closes, *fast, *slow), func(v int, _ int) float64 { return float64(v) })
	steps := []struct {
		name   string
		values []float64
	}{
		{indicators.RSIColumn(*rsi), indicators.RSI(closes, *rsi)},
		{indicators.EMAColumn(*fast), indicators.EMA(closes, *fast)},
		{indicators.EMAColumn(*slow), indicators.EMA(closes, *slow)},
		{indicators.CrossColumn(*fast, *slow), cross},
	}
	for _, s := range steps {
		if err := f.AddFloat(s.name, s.values); err != nil {
			return err
		}
	}

	name, err := dataset.CheckpointName(*symbol, f)
	if err != nil {
		return err
	}
	path := filepath.Join(*outDir, name)
	if err := dataset.WriteCSVFile(path, f); err != nil {
		return err
	}
	a.log.Info().Int("bars", f.Len()).Str("path", path).Msg("checkpoint written")
	return nil
}

func runSplit(_ context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	in := fs.String("in", "", "input CSV")
	outDir := fs.String("out-dir", ".", "directory for <symbol>_train.csv and <symbol>_holdout.csv")
	symbol := fs.String("symbol", "", "symbol, used in the output names")
	total := fs.Int("total-years", 5, "years of data to keep, counted back from the latest bar")
	holdout := fs.Int("holdout-years", 1, "final years split off as holdout")
	fs.Parse(args)
	if *in == "" || *symbol == "" {
		return errors.New("-in and -symbol are required")
	}

	f, err := dataset.ReadCSVFile(*in, *symbol)
	if err != nil {
		return err
	}
	train, hold, err := dataset.SplitByDate(f, *total, *holdout)
	if err != nil {
		return err
	}
	for suffix, part := range map[string]*dataset.Frame{"train": train, "holdout": hold} {
		path := filepath.Join(*outDir, fmt.Sprintf("%s_%s.csv", *symbol, suffix))
		if err := dataset.WriteCSVFile(path, part); err != nil {
			return err
		}
		a.log.Info().Str("set", suffix).Int("bars", part.Len()).Str("path", path).Msg("split written")
	}
	return nil
}

func runLabel(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("label", flag.ExitOnError)
	in := fs.String("in", "", "input bar CSV")
	out := fs.String("out", "", "output CSV (default: overwrite -in)")
	symbol := fs.String("symbol", "", "symbol recorded on the bars")
	horizon := fs.Int("horizon", a.cfg.Labeling.Horizon, "look-ahead window in bars")
	tp := fs.Float64("tp", a.cfg.Labeling.TakeProfitPct, "take-profit offset in percent")
	sl := fs.Float64("sl", a.cfg.Labeling.StopLossPct, "stop-loss offset in percent")
	workers := fs.Int("workers", a.cfg.Labeling.Workers, "parallel labeling workers")
	fs.Parse(args)
	if *in == "" {
		return errors.New("-in is required")
	}
	if *out == "" {
		*out = *in
	}

	f, err := dataset.ReadCSVFile(*in, *symbol)
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	p := label.Params{Horizon: *horizon, Params: barrier.Params{TakeProfitPct: *tp, StopLossPct: *sl}}
	res, err := label.NewLabeler(*workers, a.log).Apply(ctx, f, p)
	if err != nil {
		return err
	}
	if err := dataset.WriteCSVFile(*out, f); err != nil {
		return err
	}
	return report.NewPrinter(os.Stdout).Labels(res)
}

// ---------------------------------------------------------------------------
// Backtest
// ---------------------------------------------------------------------------

func runBacktest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	in := fs.String("in", "", "bar CSV with a model_pred column; empty reads bars from the store")
	predsPath := fs.String("predictions", "", "CSV of date,model_pred[,pred_proba] merged onto the bars")
	threshold := fs.Float64("threshold", 0, "signal when pred_proba >= threshold; 0 uses model_pred")
	strat := fs.String("strategy", "", "builtin strategy (ema-cross, rsi-oversold) instead of predictions")
	symbol := fs.String("symbol", "", "symbol")
	start := fs.String("start", "", "first day (YYYY-MM-DD) when reading from the store")
	end := fs.String("end", "", "last day (YYYY-MM-DD) when reading from the store; default today")
	tp := fs.Float64("tp", a.cfg.Backtest.TakeProfitPct, "take-profit offset in percent")
	sl := fs.Float64("sl", a.cfg.Backtest.StopLossPct, "stop-loss offset in percent")
	capital := fs.Float64("capital", a.cfg.Backtest.InitialCapital, "initial capital")
	sweepTP := fs.String("sweep-tp", "", "comma-separated take-profit offsets to sweep")
	sweepSL := fs.String("sweep-sl", "", "comma-separated stop-loss offsets to sweep")
	out := fs.String("out", "", "write bars with the ledger columns to this CSV")
	save := fs.Bool("save", false, "persist the run to the run and ledger stores")
	showTrades := fs.Bool("trades", false, "print every closed trade")
	fs.Parse(args)

	registry := strategy.NewRegistry()
	builtins.Register(registry)
	var preds []dataset.Prediction
	if *predsPath != "" {
		var err error
		if preds, err = dataset.ReadPredictionsFile(*predsPath); err != nil {
			return err
		}
		registry.Register(func() strategy.Strategy { return builtins.NewPredictions(preds, *threshold) })
	}

	frame, signals, name, err := loadSignals(ctx, a, registry, preds, *in, *strat, *symbol, *start, *end, *threshold)
	if err != nil {
		return err
	}
	printer := report.NewPrinter(os.Stdout)

	if *sweepTP != "" || *sweepSL != "" {
		tps, err := parseFloats(*sweepTP, *tp)
		if err != nil {
			return fmt.Errorf("-sweep-tp: %w", err)
		}
		sls, err := parseFloats(*sweepSL, *sl)
		if err != nil {
			return fmt.Errorf("-sweep-sl: %w", err)
		}
		results := backtest.Sweep(frame.Bars, signals, backtest.Grid(*capital, tps, sls))
		if err := printer.Sweep(results); err != nil {
			return err
		}
		best, err := backtest.Best(results)
		if err != nil {
			return err
		}
		return printer.Summary(fmt.Sprintf("Best: tp %g%% sl %g%%", best.Config.TakeProfitPct, best.Config.StopLossPct), best.Summary)
	}

	ps := a.barStore()
	bt := strategy.NewBacktester(ps, registry, a.cfg.Gather.Market, a.log)
	if *save {
		runs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer runs.Close()
		bt.WithPersistence(runs, ps)
	}
	cfg := backtest.Config{Params: barrier.Params{TakeProfitPct: *tp, StopLossPct: *sl}, InitialCapital: *capital}
	rep, err := bt.Replay(ctx, name, *symbol, frame.Bars, signals, cfg)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := dataset.AppendLedger(frame, rep.Ledger); err != nil {
			return err
		}
		if err := dataset.WriteCSVFile(*out, frame); err != nil {
			return err
		}
	}
	title := fmt.Sprintf("%s %s  tp %g%% sl %g%%", *symbol, name, *tp, *sl)
	if rep.Run.ID != 0 {
		title += fmt.Sprintf("  run #%d", rep.Run.ID)
	}
	if err := printer.Summary(title, rep.Summary); err != nil {
		return err
	}
	if *showTrades {
		return printer.Trades(rep.Trades)
	}
	return nil
}

// loadSignals returns the bars to replay, sorted by time, with their entry
// signals and the name the run is recorded under. Predictions are merged
// onto CSV input as columns.
func loadSignals(ctx context.Context, a *app, registry *strategy.Registry, preds []dataset.Prediction, in, strat, symbol, start, end string, threshold float64) (*dataset.Frame, []bool, string, error) {
	var f *dataset.Frame
	if in != "" {
		var err error
		if f, err = dataset.ReadCSVFile(in, symbol); err != nil {
			return nil, nil, "", err
		}
		if preds != nil {
			if err := dataset.MergePredictions(f, preds); err != nil {
				return nil, nil, "", err
			}
		}
	} else {
		if symbol == "" || start == "" {
			return nil, nil, "", errors.New("-symbol and -start are required without -in")
		}
		from, to, err := dayRange(start, end)
		if err != nil {
			return nil, nil, "", err
		}
		bars, err := a.barStore().ReadBars(ctx, symbol, a.cfg.Gather.Market, from, to)
		if err != nil {
			return nil, nil, "", err
		}
		if len(bars) == 0 {
			return nil, nil, "", fmt.Errorf("%w: %s %s..%s", strategy.ErrNoBars, symbol, start, end)
		}
		f = dataset.NewFrame(symbol, bars)
	}
	if err := f.Validate(); err != nil {
		return nil, nil, "", err
	}

	// Without -strategy, a model_pred column is replayed as is; otherwise the
	// configured strategy runs.
	if strat == "" && !f.Has(dataset.ColModelPred) {
		strat = a.cfg.Backtest.Strategy
	}
	if strat != "" {
		s, ok := registry.Get(strat)
		if !ok {
			return nil, nil, "", fmt.Errorf("%w: %q (have %s)", strategy.ErrUnknownStrategy, strat, strings.Join(registry.List(), ", "))
		}
		signals, err := strategy.Signals(ctx, s, f.Bars)
		return f, signals, s.Name(), err
	}

	if threshold > 0 {
		probs, err := f.Floats(dataset.ColPredProba)
		if err != nil {
			return nil, nil, "", err
		}
		return f, dataset.ThresholdPredictions(probs, threshold), "predictions", nil
	}
	signals, err := f.Bools(dataset.ColModelPred)
	return f, signals, "predictions", err
}

// ---------------------------------------------------------------------------
// Store and server commands
// ---------------------------------------------------------------------------

func runSymbols(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("symbols", flag.ExitOnError)
	market := fs.String("market", a.cfg.Gather.Market, "market")
	server := fs.String("server", "", "query this server URL instead of the local store")
	fs.Parse(args)

	var symbols []string
	if *server != "" {
		resp, err := tb.NewClient(*server).Symbols(ctx, *market)
		if err != nil {
			return err
		}
		symbols = resp.Symbols
	} else {
		var err error
		if symbols, err = a.barStore().ListSymbols(ctx, *market); err != nil {
			return err
		}
	}
	for _, s := range symbols {
		fmt.Println(s)
	}
	return nil
}

func runRuns(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	symbol := fs.String("symbol", "", "only runs of this symbol")
	limit := fs.Int("limit", 20, "maximum runs to list")
	id := fs.Int64("id", 0, "show this run with its trades")
	server := fs.String("server", "", "query this server URL instead of the local store")
	fs.Parse(args)

	printer := report.NewPrinter(os.Stdout)
	if *server != "" {
		c := tb.NewClient(*server)
		if *id != 0 {
			resp, err := c.GetRun(ctx, *id)
			if err != nil {
				return err
			}
			return printRun(printer, resp.Run, resp.Trades)
		}
		runs, err := c.ListRuns(ctx, *symbol, *limit)
		if err != nil {
			return err
		}
		return printer.Runs(runs)
	}

	runs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer runs.Close()
	if *id != 0 {
		run, err := runs.GetRun(ctx, *id)
		if err != nil {
			return err
		}
		trades, err := runs.ListTrades(ctx, *id)
		if err != nil {
			return err
		}
		return printRun(printer, *run, trades)
	}
	list, err := runs.ListRuns(ctx, *symbol, *limit)
	if err != nil {
		return err
	}
	return printer.Runs(list)
}

func printRun(p *report.Printer, run domain.Run, trades []domain.Trade) error {
	if err := p.Runs([]domain.Run{run}); err != nil {
		return err
	}
	return p.Trades(trades)
}

func runHealth(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	server := fs.String("server", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port), "HTTP server URL")
	grpcAddr := fs.String("grpc", fmt.Sprintf("localhost:%d", a.cfg.Server.GRPCPort), "gRPC server address")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	h, err := tb.NewClient(*server).Health(ctx)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	fmt.Printf("http  %s  %s\n", *server, h.Status)

	status, err := api.CheckHealth(ctx, *grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc: %w", err)
	}
	fmt.Printf("grpc  %s  %s\n", *grpcAddr, status)
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (a *app) barStore() *store.ParquetStore {
	return store.NewParquetStore(a.cfg.Storage.DataDir, a.cfg.Gather.Timeframe())
}

// dayRange parses inclusive YYYY-MM-DD bounds; an empty end means now.
func dayRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q: %w", start, err)
	}
	to := time.Now().UTC()
	if end != "" {
		day, err := time.Parse(time.DateOnly, end)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q: %w", end, err)
		}
		to = day.Add(24*time.Hour - time.Nanosecond)
	}
	return from, to, nil
}

// parseFloats splits a comma-separated list; an empty list is just def.
func parseFloats(s string, def float64) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return []float64{def}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
