package builtins

import (
	"context"
	"math"
	"testing"
	"time"

	"triplebarrier/internal/dataset"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/indicators"
	"triplebarrier/internal/strategy"
)

func closesToBars(closes []float64) []domain.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "BTC/USD", Timestamp: t0.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func TestEMACrossMatchesIndicator(t *testing.T) {
	closes := []float64{10, 9, 8, 9, 11, 12, 11, 9, 8, 10, 12, 13}
	signals, err := strategy.Signals(context.Background(), NewEMACross(2, 4), closesToBars(closes))
	if err != nil {
		t.Fatalf("Signals: %v", err)
	}
	cross := indicators.EMACross(closes, 2, 4)
	found := false
	for i := range closes {
		if signals[i] != (cross[i] == 1) {
			t.Errorf("bar %d: signal %v, cross %d", i, signals[i], cross[i])
		}
		found = found || signals[i]
	}
	if !found {
		t.Error("no upward cross detected")
	}
}

func TestEMACrossInitResets(t *testing.T) {
	s := NewEMACross(2, 4)
	bars := closesToBars([]float64{10, 9, 8, 9, 11, 12})
	first, _ := strategy.Signals(context.Background(), s, bars)
	second, _ := strategy.Signals(context.Background(), s, bars)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("bar %d differs between runs", i)
		}
	}
}

func TestRSIOversold(t *testing.T) {
	closes := []float64{10, 9, 8, 7, 6, 7}
	signals, err := strategy.Signals(context.Background(), NewRSIOversold(3, 30), closesToBars(closes))
	if err != nil {
		t.Fatalf("Signals: %v", err)
	}
	// Warmup, then straight losses (RSI 0), then a bounce to RSI 33.3.
	want := []bool{false, false, false, true, true, false}
	for i := range want {
		if signals[i] != want[i] {
			t.Errorf("bar %d: signal %v, want %v", i, signals[i], want[i])
		}
	}
}

func TestPredictions(t *testing.T) {
	bars := closesToBars([]float64{1, 1, 1, 1})
	preds := []dataset.Prediction{
		{Timestamp: bars[0].Timestamp, Pred: true, Proba: 0.4},
		{Timestamp: bars[2].Timestamp, Pred: false, Proba: 0.9},
		{Timestamp: bars[3].Timestamp, Pred: true, Proba: math.NaN()},
	}

	got, _ := strategy.Signals(context.Background(), NewPredictions(preds, 0), bars)
	want := []bool{true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bool bar %d: %v, want %v", i, got[i], want[i])
		}
	}

	got, _ = strategy.Signals(context.Background(), NewPredictions(preds, 0.5), bars)
	want = []bool{false, false, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("threshold bar %d: %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRegister(t *testing.T) {
	r := strategy.NewRegistry()
	Register(r)
	names := r.List()
	if len(names) != 2 || names[0] != "ema-cross" || names[1] != "rsi-oversold" {
		t.Errorf("List = %v", names)
	}
}
