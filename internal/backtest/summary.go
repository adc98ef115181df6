package backtest

import (
	"time"

	"github.com/samber/lo"

	"triplebarrier/internal/domain"
)

// Trades extracts closed positions from the replay. The entry time is the
// fill bar's timestamp.
func (r *Result) Trades() []domain.Trade {
	var (
		trades []domain.Trade
		entry  = -1
	)
	for i, row := range r.Rows {
		if !row.OpenPosition {
			continue
		}
		if entry < 0 {
			entry = i
		}
		if row.ExitReason == domain.ExitNone {
			continue
		}
		trades = append(trades, domain.Trade{
			Symbol:     r.Bars[i].Symbol,
			EntryTime:  r.Bars[entry].Timestamp,
			ExitTime:   row.Timestamp,
			EntryPrice: row.EntryPrice,
			ExitPrice:  row.ExitPrice,
			Gain:       row.Gain,
			Reason:     row.ExitReason,
		})
		entry = -1
	}
	return trades
}

// Summary is the report for a replay.
type Summary struct {
	InitialCapital float64                   `json:"initial_capital"`
	FinalCapital   float64                   `json:"final_capital"`
	AbsoluteChange float64                   `json:"absolute_change"`
	PercentChange  float64                   `json:"percent_change"`
	Start          time.Time                 `json:"start"`
	End            time.Time                 `json:"end"`
	ElapsedDays    float64                   `json:"elapsed_days"`
	DailyReturn    float64                   `json:"daily_return"`
	AnnualReturn   float64                   `json:"annual_return"`
	TotalTrades    int                       `json:"total_trades"`
	ByReason       map[domain.ExitReason]int `json:"by_reason"`
	WinRate        float64                   `json:"win_rate"`
	MaxDrawdown    float64                   `json:"max_drawdown"`
}

// Summarize computes the report. DailyReturn is the sum of per-bar gains
// divided by the elapsed calendar days between the first and last bar, and
// AnnualReturn is DailyReturn * 365. Both are 0 for a span under one instant.
func (r *Result) Summarize() Summary {
	s := Summary{
		InitialCapital: r.Config.InitialCapital,
		FinalCapital:   r.Config.InitialCapital,
		ByReason:       make(map[domain.ExitReason]int, len(domain.ExitReasons)),
	}
	for _, reason := range domain.ExitReasons {
		s.ByReason[reason] = 0
	}
	if len(r.Curve) > 0 {
		s.FinalCapital = r.Curve[len(r.Curve)-1]
	}
	s.AbsoluteChange = s.FinalCapital - s.InitialCapital
	if s.InitialCapital != 0 {
		s.PercentChange = s.AbsoluteChange / s.InitialCapital * 100
	}

	if len(r.Bars) > 0 {
		s.Start = r.Bars[0].Timestamp
		s.End = r.Bars[len(r.Bars)-1].Timestamp
		s.ElapsedDays = s.End.Sub(s.Start).Hours() / 24
	}
	if s.ElapsedDays > 0 {
		s.DailyReturn = lo.SumBy(r.Rows, func(row domain.LedgerRow) float64 { return row.Gain }) / s.ElapsedDays
		s.AnnualReturn = s.DailyReturn * 365
	}

	trades := r.Trades()
	s.TotalTrades = len(trades)
	for reason, n := range lo.CountValuesBy(trades, func(t domain.Trade) domain.ExitReason { return t.Reason }) {
		s.ByReason[reason] = n
	}
	if len(trades) > 0 {
		wins := lo.CountBy(trades, func(t domain.Trade) bool { return t.Gain > 0 })
		s.WinRate = float64(wins) / float64(len(trades))
	}
	s.MaxDrawdown = MaxDrawdown(r.Curve)
	return s
}

// MaxDrawdown is the largest peak-to-trough decline of curve as a fraction
// of the peak.
func MaxDrawdown(curve []float64) float64 {
	var peak, worst float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
