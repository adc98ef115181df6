package backtest

import (
	"errors"

	"github.com/samber/lo"
	lop "github.com/samber/lo/parallel"

	"triplebarrier/internal/domain"
)

// SweepResult pairs a config with the summary of its replay.
type SweepResult struct {
	Config  Config  `json:"config"`
	Summary Summary `json:"summary"`
	Err     string  `json:"error,omitempty"`
}

// Sweep replays the same signals under every config in parallel. Replays
// share nothing, so each runs on its own goroutine. Results keep the order
// of configs.
func Sweep(bars []domain.Bar, signals []bool, configs []Config) []SweepResult {
	return lop.Map(configs, func(cfg Config, _ int) SweepResult {
		res, err := Run(bars, signals, cfg)
		if err != nil {
			return SweepResult{Config: cfg, Err: err.Error()}
		}
		return SweepResult{Config: cfg, Summary: res.Summarize()}
	})
}

// Best returns the successful sweep result with the highest final capital.
func Best(results []SweepResult) (SweepResult, error) {
	ok := lo.Filter(results, func(r SweepResult, _ int) bool { return r.Err == "" })
	if len(ok) == 0 {
		return SweepResult{}, errors.New("backtest: no successful sweep result")
	}
	return lo.MaxBy(ok, func(a, b SweepResult) bool {
		return a.Summary.FinalCapital > b.Summary.FinalCapital
	}), nil
}

// Grid builds one config per take-profit and stop-loss combination.
func Grid(initialCapital float64, takeProfits, stopLosses []float64) []Config {
	configs := make([]Config, 0, len(takeProfits)*len(stopLosses))
	for _, tp := range takeProfits {
		for _, sl := range stopLosses {
			cfg := Config{InitialCapital: initialCapital}
			cfg.TakeProfitPct = tp
			cfg.StopLossPct = sl
			configs = append(configs, cfg)
		}
	}
	return configs
}
