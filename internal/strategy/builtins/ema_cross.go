package builtins

import (
	"context"

	"triplebarrier/internal/domain"
	"triplebarrier/internal/indicators"
	"triplebarrier/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*EMACross)(nil)

// EMACross signals an entry on the bar where the fast EMA of closes crosses
// above the slow EMA.
type EMACross struct {
	fastPeriod int
	slowPeriod int

	fast     *indicators.EMAStream
	slow     *indicators.EMAStream
	prevFast float64
	prevSlow float64
	seen     int
}

// NewEMACross creates a new EMACross strategy with the specified fast and
// slow EMA spans.
func NewEMACross(fast, slow int) *EMACross {
	return &EMACross{
		fastPeriod: fast,
		slowPeriod: slow,
	}
}

// Name returns "ema-cross".
func (s *EMACross) Name() string {
	return "ema-cross"
}

// Init resets the EMA state.
func (s *EMACross) Init(_ context.Context) error {
	s.fast = indicators.NewEMAStream(s.fastPeriod)
	s.slow = indicators.NewEMAStream(s.slowPeriod)
	s.seen = 0
	return nil
}

// OnBar updates both EMAs with the bar close and reports an upward cross.
func (s *EMACross) OnBar(_ context.Context, bar domain.Bar) (bool, error) {
	fast := s.fast.Next(bar.Close)
	slow := s.slow.Next(bar.Close)
	cross := s.seen > 0 && fast > slow && s.prevFast <= s.prevSlow
	s.prevFast, s.prevSlow = fast, slow
	s.seen++
	return cross, nil
}
