package dataset

import (
	"fmt"

	"github.com/samber/lo"

	"triplebarrier/internal/domain"
)

// Ledger column names.
const (
	ColOpenPosition = "open_position"
	ColGains        = "gains"
	ColEntryPrice   = "entry_price"
	ColExitPrice    = "exit_price"
	ColExitReason   = "exit_reason"
	ColCapital      = "disponible"
)

// AppendLedger adds the backtest ledger as columns of f. rows must be
// aligned 1:1 with f's bars.
func AppendLedger(f *Frame, rows []domain.LedgerRow) error {
	if len(rows) != f.Len() {
		return fmt.Errorf("%w: ledger has %d rows, frame has %d bars", ErrColumnLength, len(rows), f.Len())
	}
	steps := []func() error{
		func() error {
			return f.AddBool(ColOpenPosition, lo.Map(rows, func(r domain.LedgerRow, _ int) bool { return r.OpenPosition }))
		},
		func() error {
			return f.AddFloat(ColGains, lo.Map(rows, func(r domain.LedgerRow, _ int) float64 { return r.Gain }))
		},
		func() error {
			return f.AddFloat(ColEntryPrice, lo.Map(rows, func(r domain.LedgerRow, _ int) float64 { return r.EntryPrice }))
		},
		func() error {
			return f.AddFloat(ColExitPrice, lo.Map(rows, func(r domain.LedgerRow, _ int) float64 { return r.ExitPrice }))
		},
		func() error {
			return f.AddString(ColExitReason, lo.Map(rows, func(r domain.LedgerRow, _ int) string { return string(r.ExitReason) }))
		},
		func() error {
			return f.AddFloat(ColCapital, lo.Map(rows, func(r domain.LedgerRow, _ int) float64 { return r.Capital }))
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
