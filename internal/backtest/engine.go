// Package backtest replays entry signals bar by bar with a single position,
// barrier exits, and compounding capital.
//
// A signal on bar i fills at the open of bar i+1. From the fill bar on, every
// bar is tested against the fixed take-profit and stop-loss levels; the last
// bar force-closes any open position at its close. A bar that closes a
// position does not evaluate a new signal.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"triplebarrier/internal/barrier"
	"triplebarrier/internal/domain"
)

var (
	// ErrLengthMismatch is returned when bars and signals differ in length.
	ErrLengthMismatch = errors.New("backtest: bars and signals differ in length")

	// ErrInvalidConfig is returned for a non-positive initial capital.
	ErrInvalidConfig = errors.New("backtest: invalid config")
)

// Config holds the barrier offsets and the starting capital.
type Config struct {
	barrier.Params
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
}

// Validate checks the barrier offsets and the capital.
func (c Config) Validate() error {
	if err := c.Params.Validate(); err != nil {
		return err
	}
	if !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0) {
		return fmt.Errorf("%w: initial_capital %v", ErrInvalidConfig, c.InitialCapital)
	}
	return nil
}

// Phase is the position state between bars.
type Phase int

const (
	// Closed: no position. A signal moves to Pending if another bar follows.
	Closed Phase = iota
	// Pending: a signal fired on the previous bar; fill at this bar's open.
	Pending
	// Open: levels are fixed and each bar is tested against them.
	Open
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// State is the replay state carried from one bar to the next.
type State struct {
	Phase      Phase
	Levels     barrier.Levels
	EntryIndex int
}

// Step applies bar i to s and returns the next state with the bar's ledger
// row. next is the following bar, or nil when bar is the last one. The
// row's Capital is left at zero; Run fills it once all gains are known.
func Step(s State, i int, bar domain.Bar, next *domain.Bar, signal bool, cfg Config) (State, domain.LedgerRow, error) {
	row := domain.LedgerRow{Timestamp: bar.Timestamp}

	if s.Phase == Pending {
		levels, err := barrier.NewLevels(bar.Open, cfg.Params)
		if err != nil {
			return s, row, fmt.Errorf("fill at bar %d: %w", i, err)
		}
		s = State{Phase: Open, Levels: levels, EntryIndex: i}
	}

	switch s.Phase {
	case Open:
		row.OpenPosition = true
		row.EntryPrice = s.Levels.Entry
		if math.IsNaN(bar.High) || math.IsNaN(bar.Low) || math.IsInf(bar.High, 0) || math.IsInf(bar.Low, 0) {
			return s, row, fmt.Errorf("bar %d: %w (high %v, low %v)", i, barrier.ErrNonFinite, bar.High, bar.Low)
		}
		if hit := s.Levels.Touch(bar.High, bar.Low); hit != domain.OutcomeNone {
			row.ExitPrice = barrier.ExitPrice(hit, bar.High, bar.Low)
			row.ExitReason = domain.ExitReasonFromOutcome(hit)
			row.Gain = (row.ExitPrice - row.EntryPrice) / row.EntryPrice
			return State{}, row, nil
		}
		if next == nil {
			if math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
				return s, row, fmt.Errorf("bar %d: %w (close %v)", i, barrier.ErrNonFinite, bar.Close)
			}
			row.ExitPrice = bar.Close
			row.ExitReason = domain.ExitEndOfData
			row.Gain = (row.ExitPrice - row.EntryPrice) / row.EntryPrice
			return State{}, row, nil
		}
		return s, row, nil
	default:
		if signal && next != nil {
			return State{Phase: Pending}, row, nil
		}
		return State{}, row, nil
	}
}

// Result is a completed replay. Bars and Signals are in replay order; Rows
// and Curve align with them, except Curve which also starts with the
// initial capital.
type Result struct {
	Config  Config
	Bars    []domain.Bar
	Signals []bool
	Rows    []domain.LedgerRow
	Curve   []float64
}

// Run replays signals over bars. The pair is stably sorted by timestamp
// once, then processed in order.
func Run(bars []domain.Bar, signals []bool, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(bars) != len(signals) {
		return nil, fmt.Errorf("%w: %d bars, %d signals", ErrLengthMismatch, len(bars), len(signals))
	}

	bars, signals = sortByTime(bars, signals)
	rows := make([]domain.LedgerRow, len(bars))
	var s State
	for i := range bars {
		var next *domain.Bar
		if i+1 < len(bars) {
			next = &bars[i+1]
		}
		var err error
		s, rows[i], err = Step(s, i, bars[i], next, signals[i], cfg)
		if err != nil {
			return nil, err
		}
	}

	gains := make([]float64, len(rows))
	for i, r := range rows {
		gains[i] = r.Gain
	}
	curve := Compound(cfg.InitialCapital, gains)
	for i := range rows {
		rows[i].Capital = curve[i+1]
	}
	return &Result{Config: cfg, Bars: bars, Signals: signals, Rows: rows, Curve: curve}, nil
}

// Compound returns the equity curve for gains: the initial value followed by
// initial * prod(1 + gains[:i+1]) for each i.
func Compound(initial float64, gains []float64) []float64 {
	curve := make([]float64, len(gains)+1)
	curve[0] = initial
	for i, g := range gains {
		curve[i+1] = curve[i] * (1 + g)
	}
	return curve
}

func sortByTime(bars []domain.Bar, signals []bool) ([]domain.Bar, []bool) {
	idx := make([]int, len(bars))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return bars[idx[a]].Timestamp.Before(bars[idx[b]].Timestamp)
	})
	sb := make([]domain.Bar, len(bars))
	ss := make([]bool, len(signals))
	for i, j := range idx {
		sb[i] = bars[j]
		ss[i] = signals[j]
	}
	return sb, ss
}
