// Package domain holds the value types shared by the labeling, replay,
// storage, and API layers.
package domain

import "time"

// Bar is a single OHLCV bar. Bars are immutable once ingested.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Outcome is the result of a barrier evaluation.
type Outcome string

const (
	OutcomeNone       Outcome = "NONE"
	OutcomeTakeProfit Outcome = "TAKE_PROFIT"
	OutcomeStopLoss   Outcome = "STOP_LOSS"
)

// ProfitAchieved reports whether the take-profit barrier was reached first.
func (o Outcome) ProfitAchieved() bool { return o == OutcomeTakeProfit }

// ExitReason records why a replayed position was closed. The zero value
// means no position closed on that bar.
type ExitReason string

const (
	ExitNone       ExitReason = ""
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitEndOfData  ExitReason = "END_OF_DATA"
)

// ExitReasons lists every closing reason in report order.
var ExitReasons = []ExitReason{ExitTakeProfit, ExitStopLoss, ExitEndOfData}

// ExitReasonFromOutcome maps a barrier hit onto the exit reason it causes.
func ExitReasonFromOutcome(o Outcome) ExitReason {
	switch o {
	case OutcomeTakeProfit:
		return ExitTakeProfit
	case OutcomeStopLoss:
		return ExitStopLoss
	default:
		return ExitNone
	}
}

// LedgerRow is one bar of backtest output. Rows are produced once per bar
// and never rewritten.
type LedgerRow struct {
	Timestamp    time.Time  `json:"timestamp"`
	OpenPosition bool       `json:"open_position"`
	Gain         float64    `json:"gains"`
	EntryPrice   float64    `json:"entry_price"`
	ExitPrice    float64    `json:"exit_price"`
	ExitReason   ExitReason `json:"exit_reason,omitempty"`
	Capital      float64    `json:"disponible"`
}

// Trade is a closed position extracted from a ledger.
type Trade struct {
	Symbol     string     `json:"symbol"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Gain       float64    `json:"gain"`
	Reason     ExitReason `json:"reason"`
}

// Run describes a persisted backtest.
type Run struct {
	ID             int64     `json:"id"`
	Strategy       string    `json:"strategy"`
	Symbol         string    `json:"symbol"`
	TakeProfitPct  float64   `json:"take_profit_pct"`
	StopLossPct    float64   `json:"stop_loss_pct"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	TradeCount     int       `json:"trade_count"`
	CreatedAt      time.Time `json:"created_at"`
}
