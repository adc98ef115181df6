package dataset

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"triplebarrier/internal/domain"
)

// SplitByDate keeps the last totalYears of data measured back from the
// latest bar, and splits off the final holdoutYears as a separate frame:
//
//	train:   [max - totalYears, max - holdoutYears)
//	holdout: [max - holdoutYears, max]
func SplitByDate(f *Frame, totalYears, holdoutYears int) (train, holdout *Frame, err error) {
	if totalYears <= 0 || holdoutYears < 0 || holdoutYears > totalYears {
		return nil, nil, fmt.Errorf("invalid split: total %d years, holdout %d years", totalYears, holdoutYears)
	}
	if f.Len() == 0 {
		return f.Slice(0, 0), f.Slice(0, 0), nil
	}
	latest := lo.MaxBy(f.Bars, func(a, b domain.Bar) bool { return a.Timestamp.After(b.Timestamp) }).Timestamp
	start := latest.AddDate(-totalYears, 0, 0)
	cut := latest.AddDate(-holdoutYears, 0, 0)

	inTrain := make([]bool, f.Len())
	inHoldout := make([]bool, f.Len())
	for i, b := range f.Bars {
		ts := b.Timestamp
		inTrain[i] = !ts.Before(start) && ts.Before(cut)
		inHoldout[i] = !ts.Before(cut)
	}
	return f.Select(inTrain), f.Select(inHoldout), nil
}

// CheckpointName builds a checkpoint file name from the symbol and every
// extra column, e.g. "BTCUSDT_rsi_14_ema_12.csv". It fails when the frame
// has no extra columns, since the name would not describe anything.
func CheckpointName(symbol string, f *Frame) (string, error) {
	cols := f.Columns()
	if len(cols) == 0 {
		return "", fmt.Errorf("%w: no extra columns to checkpoint", ErrMissingColumn)
	}
	return symbol + "_" + strings.Join(cols, "_") + ".csv", nil
}
