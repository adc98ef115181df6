package builtins

import (
	"context"
	"math"

	"triplebarrier/internal/dataset"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*Predictions)(nil)

// Predictions replays classifier output. A bar signals when its prediction
// is true, or, with a positive threshold, when its probability reaches the
// threshold. Bars without a prediction never signal.
type Predictions struct {
	byTime    map[int64]dataset.Prediction
	threshold float64
}

// NewPredictions indexes preds by timestamp. threshold <= 0 uses the
// boolean prediction as is.
func NewPredictions(preds []dataset.Prediction, threshold float64) *Predictions {
	byTime := make(map[int64]dataset.Prediction, len(preds))
	for _, p := range preds {
		byTime[p.Timestamp.UnixNano()] = p
	}
	return &Predictions{byTime: byTime, threshold: threshold}
}

// Name returns "predictions".
func (s *Predictions) Name() string {
	return "predictions"
}

// Init is a no-op; predictions carry no state between bars.
func (s *Predictions) Init(_ context.Context) error {
	return nil
}

// OnBar looks up the prediction for the bar's timestamp.
func (s *Predictions) OnBar(_ context.Context, bar domain.Bar) (bool, error) {
	p, ok := s.byTime[bar.Timestamp.UnixNano()]
	if !ok {
		return false, nil
	}
	if s.threshold > 0 {
		return !math.IsNaN(p.Proba) && p.Proba >= s.threshold, nil
	}
	return p.Pred, nil
}
