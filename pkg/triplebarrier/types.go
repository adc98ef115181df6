package triplebarrier

import (
	"triplebarrier/internal/backtest"
	"triplebarrier/internal/domain"
)

// Domain types shared with the server.
type (
	Bar       = domain.Bar
	Outcome   = domain.Outcome
	Trade     = domain.Trade
	LedgerRow = domain.LedgerRow
	Run       = domain.Run
	Summary   = backtest.Summary
)

// HealthResponse is returned by GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SymbolsResponse is returned by GET /api/v1/symbols.
type SymbolsResponse struct {
	Market  string   `json:"market"`
	Symbols []string `json:"symbols"`
}

// StrategiesResponse is returned by GET /api/v1/strategies.
type StrategiesResponse struct {
	Strategies []string `json:"strategies"`
}

// RunsResponse is returned by GET /api/v1/runs.
type RunsResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse is a stored run with its trades and, when kept, its ledger.
type RunResponse struct {
	Run    Run         `json:"run"`
	Trades []Trade     `json:"trades"`
	Ledger []LedgerRow `json:"ledger,omitempty"`
}

// LabelRequest asks for triple-barrier outcomes of Bars. Zero parameters
// take the server defaults.
type LabelRequest struct {
	Bars          []Bar   `json:"bars"`
	Horizon       int     `json:"horizon,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"`
	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`
}

// LabelResponse carries one outcome per requested bar.
type LabelResponse struct {
	Horizon        int             `json:"horizon"`
	TakeProfitPct  float64         `json:"take_profit_pct"`
	StopLossPct    float64         `json:"stop_loss_pct"`
	OutcomeColumn  string          `json:"outcome_column"`
	GainColumn     string          `json:"gain_column"`
	Outcomes       []Outcome       `json:"outcomes"`
	ProfitAchieved []bool          `json:"profit_achieved"`
	Valid          []bool          `json:"valid"`
	Counts         map[Outcome]int `json:"counts"`
}

// BacktestRequest asks for a replay. With Bars set, Signals are replayed
// over them directly; otherwise Strategy runs over stored bars of Symbol
// between Start and End (YYYY-MM-DD, inclusive). Zero parameters take the
// server defaults.
type BacktestRequest struct {
	Strategy       string  `json:"strategy,omitempty"`
	Symbol         string  `json:"symbol"`
	Start          string  `json:"start,omitempty"`
	End            string  `json:"end,omitempty"`
	TakeProfitPct  float64 `json:"take_profit_pct,omitempty"`
	StopLossPct    float64 `json:"stop_loss_pct,omitempty"`
	InitialCapital float64 `json:"initial_capital,omitempty"`
	Bars           []Bar   `json:"bars,omitempty"`
	Signals        []bool  `json:"signals,omitempty"`
}

// BacktestResponse is the outcome of a replay.
type BacktestResponse struct {
	Run     Run         `json:"run"`
	Summary Summary     `json:"summary"`
	Trades  []Trade     `json:"trades"`
	Ledger  []LedgerRow `json:"ledger,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
