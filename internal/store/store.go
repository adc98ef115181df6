// Package store defines storage interfaces for bars, replay ledgers, and
// backtest runs, with Parquet and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"triplebarrier/internal/domain"
)

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("store: not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// LedgerStore persists the per-bar ledger of a backtest run.
type LedgerStore interface {
	// WriteLedger stores the rows of run id, replacing any previous ledger.
	WriteLedger(ctx context.Context, runID int64, rows []domain.LedgerRow) error

	// ReadLedger returns the rows of run id in bar order.
	ReadLedger(ctx context.Context, runID int64) ([]domain.LedgerRow, error)
}

// RunStore persists backtest run summaries and their closed trades.
type RunStore interface {
	// SaveRun inserts run and its trades and sets run.ID.
	SaveRun(ctx context.Context, run *domain.Run, trades []domain.Trade) error

	// GetRun retrieves a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id int64) (*domain.Run, error)

	// ListRuns returns the most recent runs, newest first. An empty symbol
	// matches every symbol.
	ListRuns(ctx context.Context, symbol string, limit int) ([]domain.Run, error)

	// ListTrades returns the closed trades of a run in exit order.
	ListTrades(ctx context.Context, runID int64) ([]domain.Trade, error)
}
