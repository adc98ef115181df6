package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"triplebarrier/internal/backtest"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/metrics"
	"triplebarrier/internal/store"
)

// ErrUnknownStrategy is returned when a request names an unregistered
// strategy.
var ErrUnknownStrategy = errors.New("strategy: unknown strategy")

// ErrNoBars is returned when the store holds no bars for the request.
var ErrNoBars = errors.New("strategy: no bars in range")

// Request selects a strategy, a bar range, and the replay parameters.
type Request struct {
	Strategy string          `json:"strategy"`
	Symbol   string          `json:"symbol"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	Config   backtest.Config `json:"config"`
}

// Report is the outcome of one backtest run.
type Report struct {
	Run     domain.Run         `json:"run"`
	Summary backtest.Summary   `json:"summary"`
	Trades  []domain.Trade     `json:"trades"`
	Ledger  []domain.LedgerRow `json:"ledger,omitempty"`
}

// Backtester replays historical bar data through a strategy, computes the
// summary, and persists the run when stores are attached.
type Backtester struct {
	store    store.BarStore
	registry *Registry
	market   string
	runs     store.RunStore
	ledgers  store.LedgerStore
	log      zerolog.Logger
}

// NewBacktester creates a Backtester that reads bars for market from the
// given store and looks up strategies in the provided registry.
func NewBacktester(barStore store.BarStore, registry *Registry, market string, log zerolog.Logger) *Backtester {
	return &Backtester{
		store:    barStore,
		registry: registry,
		market:   market,
		log:      log,
	}
}

// WithPersistence attaches the stores runs and ledgers are saved to.
func (bt *Backtester) WithPersistence(runs store.RunStore, ledgers store.LedgerStore) *Backtester {
	bt.runs = runs
	bt.ledgers = ledgers
	return bt
}

// Registry returns the registry strategies are looked up in.
func (bt *Backtester) Registry() *Registry { return bt.registry }

// Run executes a backtest for the named strategy over bars read from the
// store within [req.Start, req.End].
func (bt *Backtester) Run(ctx context.Context, req Request) (*Report, error) {
	s, ok := bt.registry.Get(req.Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, req.Strategy)
	}
	if err := req.Config.Validate(); err != nil {
		return nil, err
	}
	if bt.store == nil {
		return nil, errors.New("strategy: backtester has no bar store")
	}

	bars, err := bt.store.ReadBars(ctx, req.Symbol, bt.market, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s: %w", req.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s %s..%s", ErrNoBars, req.Symbol,
			req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly))
	}

	signals, err := Signals(ctx, s, bars)
	if err != nil {
		return nil, err
	}
	return bt.Replay(ctx, s.Name(), req.Symbol, bars, signals, req.Config)
}

// Replay runs the engine over bars and precomputed signals, then records
// the run. strategyName is stored with the run for reference.
func (bt *Backtester) Replay(ctx context.Context, strategyName, symbol string, bars []domain.Bar, signals []bool, cfg backtest.Config) (*Report, error) {
	res, err := backtest.Run(bars, signals, cfg)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", symbol, err)
	}
	summary := res.Summarize()
	trades := res.Trades()

	report := &Report{
		Run: domain.Run{
			Strategy:       strategyName,
			Symbol:         symbol,
			TakeProfitPct:  cfg.TakeProfitPct,
			StopLossPct:    cfg.StopLossPct,
			InitialCapital: summary.InitialCapital,
			FinalCapital:   summary.FinalCapital,
			Start:          summary.Start,
			End:            summary.End,
			TradeCount:     summary.TotalTrades,
			CreatedAt:      time.Now().UTC(),
		},
		Summary: summary,
		Trades:  trades,
		Ledger:  res.Rows,
	}

	if bt.runs != nil {
		if err := bt.runs.SaveRun(ctx, &report.Run, trades); err != nil {
			return nil, fmt.Errorf("saving run: %w", err)
		}
		if bt.ledgers != nil {
			if err := bt.ledgers.WriteLedger(ctx, report.Run.ID, res.Rows); err != nil {
				return nil, fmt.Errorf("saving ledger: %w", err)
			}
		}
	}

	metrics.BacktestsTotal.WithLabelValues(strategyName).Inc()
	for _, t := range trades {
		metrics.TradesTotal.WithLabelValues(string(t.Reason)).Inc()
	}
	bt.log.Info().
		Int64("run_id", report.Run.ID).
		Str("strategy", strategyName).
		Str("symbol", symbol).
		Int("bars", len(bars)).
		Int("trades", summary.TotalTrades).
		Float64("final_capital", summary.FinalCapital).
		Msg("backtest complete")
	return report, nil
}
