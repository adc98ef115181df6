package builtins

import (
	"context"

	"triplebarrier/internal/domain"
	"triplebarrier/internal/indicators"
	"triplebarrier/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RSIOversold)(nil)

// RSIOversold signals an entry while the RSI of closes is below threshold.
type RSIOversold struct {
	period    int
	threshold float64
	rsi       *indicators.RSIStream
}

// NewRSIOversold creates an RSIOversold strategy.
func NewRSIOversold(period int, threshold float64) *RSIOversold {
	return &RSIOversold{period: period, threshold: threshold}
}

// Name returns "rsi-oversold".
func (s *RSIOversold) Name() string {
	return "rsi-oversold"
}

// Init resets the RSI window.
func (s *RSIOversold) Init(_ context.Context) error {
	s.rsi = indicators.NewRSIStream(s.period)
	return nil
}

// OnBar folds in the close. NaN during warmup never signals.
func (s *RSIOversold) OnBar(_ context.Context, bar domain.Bar) (bool, error) {
	return s.rsi.Next(bar.Close) < s.threshold, nil
}
