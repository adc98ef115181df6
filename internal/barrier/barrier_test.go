package barrier

import (
	"errors"
	"math"
	"testing"

	"triplebarrier/internal/domain"
)

func TestNewLevels(t *testing.T) {
	l, err := NewLevels(100, Params{TakeProfitPct: 3, StopLossPct: 1})
	if err != nil {
		t.Fatalf("NewLevels: %v", err)
	}
	if math.Abs(l.TakeProfit-103) > 1e-9 {
		t.Errorf("TakeProfit = %v, want 103", l.TakeProfit)
	}
	if math.Abs(l.StopLoss-99) > 1e-9 {
		t.Errorf("StopLoss = %v, want 99", l.StopLoss)
	}
}

func TestNewLevelsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		entry float64
		p     Params
		want  error
	}{
		{"nan entry", math.NaN(), Params{3, 1}, ErrNonFinite},
		{"inf entry", math.Inf(1), Params{3, 1}, ErrNonFinite},
		{"zero entry", 0, Params{3, 1}, ErrInvalidParams},
		{"zero take profit", 100, Params{0, 1}, ErrInvalidParams},
		{"negative stop loss", 100, Params{3, -1}, ErrInvalidParams},
		{"stop loss of 100%", 100, Params{3, 100}, ErrInvalidParams},
		{"nan stop loss", 100, Params{3, math.NaN()}, ErrInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLevels(tt.entry, tt.p)
			if !errors.Is(err, tt.want) {
				t.Fatalf("NewLevels error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEvaluateTakeProfitAtSecondOffset(t *testing.T) {
	highs := []float64{101, 104, 102}
	lows := []float64{99.5, 100, 98}

	got, err := Evaluate(100, Params{TakeProfitPct: 3, StopLossPct: 1}, highs, lows)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Hit != domain.OutcomeTakeProfit || got.Offset != 1 {
		t.Errorf("Evaluate = %+v, want TAKE_PROFIT at offset 1", got)
	}
}

func TestEvaluateSameBarTieIsStopLoss(t *testing.T) {
	got, err := Evaluate(100, Params{TakeProfitPct: 3, StopLossPct: 1}, []float64{105}, []float64{98})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Hit != domain.OutcomeStopLoss || got.Offset != 0 {
		t.Errorf("Evaluate = %+v, want STOP_LOSS at offset 0", got)
	}
}

func TestEvaluateEarlierOffsetWins(t *testing.T) {
	p := Params{TakeProfitPct: 3, StopLossPct: 1}

	// Stop-loss first, take-profit later.
	got, err := Evaluate(100, p, []float64{100.5, 110}, []float64{98.9, 100})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Hit != domain.OutcomeStopLoss || got.Offset != 0 {
		t.Errorf("got %+v, want STOP_LOSS at 0", got)
	}

	// Take-profit first, stop-loss later.
	got, err = Evaluate(100, p, []float64{100.5, 103.5, 100}, []float64{99.5, 99.5, 90})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Hit != domain.OutcomeTakeProfit || got.Offset != 1 {
		t.Errorf("got %+v, want TAKE_PROFIT at 1", got)
	}
}

func TestEvaluateBoundariesAreInclusive(t *testing.T) {
	l, err := NewLevels(200, Params{TakeProfitPct: 5, StopLossPct: 5})
	if err != nil {
		t.Fatalf("NewLevels: %v", err)
	}
	if got := l.Touch(l.TakeProfit, l.Entry); got != domain.OutcomeTakeProfit {
		t.Errorf("Touch at take-profit level = %s, want TAKE_PROFIT", got)
	}
	if got := l.Touch(l.Entry, l.StopLoss); got != domain.OutcomeStopLoss {
		t.Errorf("Touch at stop-loss level = %s, want STOP_LOSS", got)
	}
}

func TestEvaluateNoTouch(t *testing.T) {
	got, err := Evaluate(100, Params{TakeProfitPct: 3, StopLossPct: 1}, []float64{101, 102, 102.9}, []float64{99.1, 99.5, 99.9})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != None {
		t.Errorf("Evaluate = %+v, want None", got)
	}
}

func TestEvaluateEmptyWindow(t *testing.T) {
	got, err := Evaluate(100, Params{TakeProfitPct: 3, StopLossPct: 1}, nil, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got != None {
		t.Errorf("Evaluate = %+v, want None", got)
	}
}

func TestEvaluateRejectsNaNWindow(t *testing.T) {
	_, err := Evaluate(100, Params{TakeProfitPct: 3, StopLossPct: 1}, []float64{101, math.NaN()}, []float64{99.5, 99.5})
	if !errors.Is(err, ErrNonFinite) {
		t.Fatalf("Evaluate error = %v, want ErrNonFinite", err)
	}
}

func TestEvaluateLengthMismatch(t *testing.T) {
	_, err := Evaluate(100, Params{TakeProfitPct: 3, StopLossPct: 1}, []float64{101}, nil)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("Evaluate error = %v, want ErrLengthMismatch", err)
	}
}

func TestExitPrice(t *testing.T) {
	if got := ExitPrice(domain.OutcomeStopLoss, 110, 90); got != 90 {
		t.Errorf("ExitPrice(STOP_LOSS) = %v, want 90", got)
	}
	if got := ExitPrice(domain.OutcomeTakeProfit, 110, 90); got != 110 {
		t.Errorf("ExitPrice(TAKE_PROFIT) = %v, want 110", got)
	}
}
