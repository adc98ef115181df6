// Package barrier implements the take-profit / stop-loss crossing test shared
// by outcome labeling and backtest replay.
//
// Tie-break policy: when a single bar reaches both levels, the stop-loss is
// reported. Intrabar order is unknown, so the loss is assumed to resolve
// first.
package barrier

import (
	"errors"
	"fmt"
	"math"

	"triplebarrier/internal/domain"
)

var (
	// ErrNonFinite is returned when an entry price or a window price is NaN
	// or infinite. NaN comparisons are always false and would read as "no
	// barrier touched".
	ErrNonFinite = errors.New("barrier: non-finite price")

	// ErrLengthMismatch is returned when highs and lows differ in length.
	ErrLengthMismatch = errors.New("barrier: highs and lows differ in length")

	// ErrInvalidParams is returned for non-positive percentages or entry.
	ErrInvalidParams = errors.New("barrier: invalid parameters")
)

// Params are the barrier offsets in percent (3 means 3%).
type Params struct {
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
}

// Validate checks that both offsets are positive and finite. A stop-loss of
// 100% or more would put the lower level at or below zero.
func (p Params) Validate() error {
	if !(p.TakeProfitPct > 0) || math.IsInf(p.TakeProfitPct, 0) {
		return fmt.Errorf("%w: take_profit_pct %v", ErrInvalidParams, p.TakeProfitPct)
	}
	if !(p.StopLossPct > 0) || p.StopLossPct >= 100 {
		return fmt.Errorf("%w: stop_loss_pct %v", ErrInvalidParams, p.StopLossPct)
	}
	return nil
}

// Levels are the absolute exit prices derived from an entry price. They are
// fixed for the life of a position.
type Levels struct {
	Entry      float64
	TakeProfit float64
	StopLoss   float64
}

// NewLevels computes the take-profit and stop-loss prices for entry.
func NewLevels(entry float64, p Params) (Levels, error) {
	if !finite(entry) {
		return Levels{}, fmt.Errorf("%w: entry %v", ErrNonFinite, entry)
	}
	if entry <= 0 {
		return Levels{}, fmt.Errorf("%w: entry %v", ErrInvalidParams, entry)
	}
	if err := p.Validate(); err != nil {
		return Levels{}, err
	}
	return Levels{
		Entry:      entry,
		TakeProfit: entry * (1 + p.TakeProfitPct/100),
		StopLoss:   entry * (1 - p.StopLossPct/100),
	}, nil
}

// Touch tests a single bar's extremes against the levels. It is the one
// place the tie-break policy lives.
func (l Levels) Touch(high, low float64) domain.Outcome {
	if low <= l.StopLoss {
		return domain.OutcomeStopLoss
	}
	if high >= l.TakeProfit {
		return domain.OutcomeTakeProfit
	}
	return domain.OutcomeNone
}

// ExitPrice is the fill assumed when a barrier is touched: the bar low for a
// stop-loss and the bar high for a take-profit.
func ExitPrice(hit domain.Outcome, high, low float64) float64 {
	if hit == domain.OutcomeStopLoss {
		return low
	}
	return high
}

// Result is the first barrier reached in a window. Offset is the 0-based
// index into the window, or -1 when no barrier was reached.
type Result struct {
	Hit    domain.Outcome
	Offset int
}

// None is the result for an unresolved window.
var None = Result{Hit: domain.OutcomeNone, Offset: -1}

// Evaluate scans highs and lows forward from an entry and reports which
// barrier is touched first. An empty window yields None.
func Evaluate(entry float64, p Params, highs, lows []float64) (Result, error) {
	if len(highs) != len(lows) {
		return None, fmt.Errorf("%w: %d highs, %d lows", ErrLengthMismatch, len(highs), len(lows))
	}
	if len(highs) == 0 {
		return None, nil
	}
	levels, err := NewLevels(entry, p)
	if err != nil {
		return None, err
	}
	return levels.Scan(highs, lows)
}

// Scan runs Touch over each offset until one resolves.
func (l Levels) Scan(highs, lows []float64) (Result, error) {
	if len(highs) != len(lows) {
		return None, fmt.Errorf("%w: %d highs, %d lows", ErrLengthMismatch, len(highs), len(lows))
	}
	for i := range highs {
		if !finite(highs[i]) || !finite(lows[i]) {
			return None, fmt.Errorf("%w: offset %d (high %v, low %v)", ErrNonFinite, i, highs[i], lows[i])
		}
		if hit := l.Touch(highs[i], lows[i]); hit != domain.OutcomeNone {
			return Result{Hit: hit, Offset: i}, nil
		}
	}
	return None, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
