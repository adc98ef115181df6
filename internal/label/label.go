// Package label assigns each bar the first barrier its forward window
// reaches. The entry price is the bar's own close and the window is the next
// Horizon bars, clipped at the end of the series.
package label

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"triplebarrier/internal/barrier"
	"triplebarrier/internal/dataset"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/metrics"
)

// ErrHorizon is returned for a non-positive look-ahead horizon.
var ErrHorizon = errors.New("label: horizon must be positive")

// minChunk keeps goroutine overhead below the cost of the scans it runs.
const minChunk = 512

// Params are the barrier offsets plus the look-ahead horizon in bars.
type Params struct {
	Horizon int `json:"horizon" yaml:"horizon"`
	barrier.Params
}

// Validate checks the horizon and the barrier offsets.
func (p Params) Validate() error {
	if p.Horizon <= 0 {
		return fmt.Errorf("%w: %d", ErrHorizon, p.Horizon)
	}
	return p.Params.Validate()
}

func (p Params) suffix() string {
	return fmt.Sprintf("%dN_%gTP_%gSL", p.Horizon, p.TakeProfitPct, p.StopLossPct)
}

// OutcomeColumn is the name of the outcome column for p,
// e.g. "result_trade_outcome_10N_3TP_1SL".
func (p Params) OutcomeColumn() string { return "result_trade_outcome_" + p.suffix() }

// GainColumn is the name of the profit-achieved column for p,
// e.g. "result_gain_10N_3TP_1SL_bool".
func (p Params) GainColumn() string { return "result_gain_" + p.suffix() + "_bool" }

// Result holds one outcome per input bar. Valid[i] is false when bar i had
// an empty window (the last bar); those rows are NONE and should be masked
// before training. Rows near the end with a clipped but non-empty window are
// valid; FullWindow counts the stricter set of rows whose window spans the
// whole horizon.
type Result struct {
	Params   Params
	Outcomes []domain.Outcome
	Valid    []bool
}

// ProfitAchieved derives the boolean training target from the outcomes.
func (r *Result) ProfitAchieved() []bool {
	return ProfitAchieved(r.Outcomes)
}

// Counts tallies outcomes over the valid rows.
func (r *Result) Counts() map[domain.Outcome]int {
	valid := lo.Filter(r.Outcomes, func(_ domain.Outcome, i int) bool { return r.Valid[i] })
	return lo.CountValues(valid)
}

// ProfitAchieved maps outcomes to outcome == TAKE_PROFIT.
func ProfitAchieved(outcomes []domain.Outcome) []bool {
	return lo.Map(outcomes, func(o domain.Outcome, _ int) bool { return o.ProfitAchieved() })
}

// FullWindow is the number of leading rows whose window spans the whole
// horizon. It is a stricter mask than Result.Valid.
func FullWindow(n, horizon int) int {
	return max(0, n-horizon)
}

// Labeler evaluates forward windows, optionally across several goroutines.
// Bars must already be sorted by time.
type Labeler struct {
	workers int
	log     zerolog.Logger
}

// NewLabeler creates a Labeler. workers <= 1 runs sequentially.
func NewLabeler(workers int, log zerolog.Logger) *Labeler {
	if workers < 1 {
		workers = 1
	}
	return &Labeler{workers: workers, log: log}
}

// Label computes the outcome of every bar in bars.
func (l *Labeler) Label(ctx context.Context, bars []domain.Bar, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(bars)
	highs := lo.Map(bars, func(b domain.Bar, _ int) float64 { return b.High })
	lows := lo.Map(bars, func(b domain.Bar, _ int) float64 { return b.Low })

	res := &Result{
		Params:   p,
		Outcomes: make([]domain.Outcome, n),
		Valid:    make([]bool, n),
	}

	chunk := n
	if l.workers > 1 && n > minChunk {
		chunk = max(minChunk, (n+l.workers-1)/l.workers)
	}

	g, gctx := errgroup.WithContext(ctx)
	for from := 0; from < n; from += chunk {
		from, to := from, min(from+chunk, n)
		g.Go(func() error {
			return labelRange(gctx, bars, highs, lows, p, res, from, to)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for outcome, count := range res.Counts() {
		metrics.LabelsTotal.WithLabelValues(string(outcome)).Add(float64(count))
	}
	l.log.Debug().
		Int("bars", n).
		Int("valid", lo.Count(res.Valid, true)).
		Int("full_window", FullWindow(n, p.Horizon)).
		Str("column", p.OutcomeColumn()).
		Msg("labeled series")
	return res, nil
}

// labelRange fills rows [from, to). Each row writes only its own slot.
func labelRange(ctx context.Context, bars []domain.Bar, highs, lows []float64, p Params, res *Result, from, to int) error {
	n := len(bars)
	for i := from; i < to; i++ {
		if i%minChunk == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		end := min(i+1+p.Horizon, n)
		r, err := barrier.Evaluate(bars[i].Close, p.Params, highs[i+1:end], lows[i+1:end])
		if err != nil {
			return fmt.Errorf("row %d (%s): %w", i, bars[i].Timestamp.Format("2006-01-02 15:04:05"), err)
		}
		res.Outcomes[i] = r.Hit
		res.Valid[i] = end > i+1
	}
	return nil
}

// Apply labels the frame and appends the outcome and profit columns.
func (l *Labeler) Apply(ctx context.Context, f *dataset.Frame, p Params) (*Result, error) {
	res, err := l.Label(ctx, f.Bars, p)
	if err != nil {
		return nil, err
	}
	outcomes := lo.Map(res.Outcomes, func(o domain.Outcome, _ int) string { return string(o) })
	if err := f.AddString(p.OutcomeColumn(), outcomes); err != nil {
		return nil, err
	}
	if err := f.AddBool(p.GainColumn(), res.ProfitAchieved()); err != nil {
		return nil, err
	}
	return res, nil
}
