package backtest

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"triplebarrier/internal/barrier"
	"triplebarrier/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func ohlc(i int, o, h, l, c float64) domain.Bar {
	return domain.Bar{
		Symbol:    "BTCUSDT",
		Timestamp: t0.Add(time.Duration(i) * time.Hour),
		Open:      o, High: h, Low: l, Close: c,
	}
}

func cfg(tp, sl float64) Config {
	return Config{Params: barrier.Params{TakeProfitPct: tp, StopLossPct: sl}, InitialCapital: 100}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCompound(t *testing.T) {
	got := Compound(100, []float64{0, 0.02, -0.01, 0})
	want := []float64{100, 100, 102, 100.98, 100.98}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Errorf("Compound[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRunTakeProfit(t *testing.T) {
	bars := []domain.Bar{
		ohlc(0, 100, 100, 100, 100),
		ohlc(1, 100, 102, 99.5, 101),
		ohlc(2, 101, 104, 100, 103),
		ohlc(3, 103, 103, 103, 103),
	}
	// The signal on bar 2 lands on the closing bar and must be ignored.
	signals := []bool{true, false, true, false}
	res, err := Run(bars, signals, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rows := res.Rows
	if rows[0].OpenPosition {
		t.Error("row 0: position open on signal bar")
	}
	if !rows[1].OpenPosition || rows[1].EntryPrice != 100 || rows[1].Gain != 0 || rows[1].ExitReason != domain.ExitNone {
		t.Errorf("row 1 = %+v, want open at 100 without exit", rows[1])
	}
	if rows[2].ExitReason != domain.ExitTakeProfit || rows[2].ExitPrice != 104 || !near(rows[2].Gain, 0.04) {
		t.Errorf("row 2 = %+v, want TAKE_PROFIT at 104", rows[2])
	}
	if rows[3].OpenPosition {
		t.Error("row 3: closing bar re-entered")
	}
	wantCap := []float64{100, 100, 104, 104}
	for i, w := range wantCap {
		if !near(rows[i].Capital, w) {
			t.Errorf("Capital[%d] = %v, want %v", i, rows[i].Capital, w)
		}
	}
}

func TestRunStopLossWinsTie(t *testing.T) {
	bars := []domain.Bar{
		ohlc(0, 100, 100, 100, 100),
		ohlc(1, 100, 105, 98, 100), // both levels on the fill bar
		ohlc(2, 100, 100, 100, 100),
	}
	res, err := Run(bars, []bool{true, false, false}, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := res.Rows[1]
	if r.ExitReason != domain.ExitStopLoss || r.ExitPrice != 98 || !near(r.Gain, -0.02) {
		t.Errorf("row 1 = %+v, want STOP_LOSS at 98", r)
	}
}

func TestRunEndOfData(t *testing.T) {
	bars := []domain.Bar{
		ohlc(0, 100, 100, 100, 100),
		ohlc(1, 100, 101, 99.5, 100.5),
		ohlc(2, 100.5, 101, 99.5, 101.5),
	}
	res, err := Run(bars, []bool{true, false, false}, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := res.Rows[2]
	if !last.OpenPosition || last.ExitReason != domain.ExitEndOfData || last.ExitPrice != 101.5 || !near(last.Gain, 0.015) {
		t.Errorf("last row = %+v, want END_OF_DATA at close 101.5", last)
	}
	if got := res.Summarize().ByReason[domain.ExitEndOfData]; got != 1 {
		t.Errorf("ByReason[END_OF_DATA] = %d, want 1", got)
	}
}

func TestRunSignalOnLastBarDropped(t *testing.T) {
	bars := []domain.Bar{ohlc(0, 100, 100, 100, 100), ohlc(1, 100, 100, 100, 100)}
	res, err := Run(bars, []bool{false, true}, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, r := range res.Rows {
		if r.OpenPosition || r.ExitReason != domain.ExitNone {
			t.Errorf("row %d = %+v, want no position", i, r)
		}
	}
	if len(res.Trades()) != 0 {
		t.Errorf("Trades = %v, want none", res.Trades())
	}
}

func TestRunNoTouchStaysOpen(t *testing.T) {
	bars := make([]domain.Bar, 6)
	for i := range bars {
		bars[i] = ohlc(i, 100, 100.5, 99.5, 100)
	}
	signals := make([]bool, len(bars))
	signals[0] = true
	res, err := Run(bars, signals, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 1; i < len(bars)-1; i++ {
		r := res.Rows[i]
		if !r.OpenPosition || r.Gain != 0 || r.Capital != 100 {
			t.Errorf("row %d = %+v, want open with zero gain", i, r)
		}
	}
}

func TestRunSinglePosition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 400
	bars := make([]domain.Bar, n)
	signals := make([]bool, n)
	price := 100.0
	for i := range bars {
		o := price
		price *= 1 + (rng.Float64()-0.5)/25
		h := math.Max(o, price) * (1 + rng.Float64()/200)
		l := math.Min(o, price) * (1 - rng.Float64()/200)
		bars[i] = ohlc(i, o, h, l, price)
		signals[i] = rng.Intn(3) == 0
	}
	res, err := Run(bars, signals, cfg(2, 1.5))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	open := false
	for i, r := range res.Rows {
		if !r.OpenPosition && r.Gain != 0 {
			t.Errorf("row %d: gain %v without a position", i, r.Gain)
		}
		if r.ExitReason != domain.ExitNone && !r.OpenPosition {
			t.Errorf("row %d: exit without a position", i)
		}
		open = r.OpenPosition && r.ExitReason == domain.ExitNone
	}
	if open {
		t.Error("position still open after the last bar")
	}

	prev := 100.0
	for i, r := range res.Rows {
		if want := prev * (1 + r.Gain); math.Abs(r.Capital-want) > 1e-9*want {
			t.Fatalf("Capital[%d] = %v, want %v", i, r.Capital, want)
		}
		prev = r.Capital
	}

	trades := res.Trades()
	for k := 1; k < len(trades); k++ {
		if !trades[k].EntryTime.After(trades[k-1].ExitTime) {
			t.Errorf("trade %d enters at %v before trade %d exits at %v", k, trades[k].EntryTime, k-1, trades[k-1].ExitTime)
		}
	}
}

func TestRunSortsInput(t *testing.T) {
	bars := []domain.Bar{
		ohlc(2, 101, 104, 100, 103),
		ohlc(0, 100, 100, 100, 100),
		ohlc(1, 100, 102, 99.5, 101),
	}
	signals := []bool{false, true, false}
	res, err := Run(bars, signals, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Bars[0].Timestamp.Equal(t0) || !res.Signals[0] {
		t.Fatalf("first replayed bar = %v signal %v", res.Bars[0].Timestamp, res.Signals[0])
	}
	if res.Rows[2].ExitReason != domain.ExitTakeProfit {
		t.Errorf("row 2 exit = %q, want TAKE_PROFIT", res.Rows[2].ExitReason)
	}
	if bars[0].Timestamp.Equal(t0) {
		t.Error("Run reordered the caller's slice")
	}
}

func TestRunErrors(t *testing.T) {
	bars := []domain.Bar{ohlc(0, 100, 100, 100, 100)}
	if _, err := Run(bars, nil, cfg(3, 1)); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Run length mismatch = %v, want ErrLengthMismatch", err)
	}
	bad := cfg(3, 1)
	bad.InitialCapital = 0
	if _, err := Run(bars, []bool{false}, bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Run zero capital = %v, want ErrInvalidConfig", err)
	}
	if _, err := Run(bars, []bool{false}, cfg(0, 1)); !errors.Is(err, barrier.ErrInvalidParams) {
		t.Errorf("Run zero tp = %v, want ErrInvalidParams", err)
	}
	nan := []domain.Bar{ohlc(0, 100, 100, 100, 100), ohlc(1, 100, math.NaN(), 99, 100), ohlc(2, 100, 100, 100, 100)}
	if _, err := Run(nan, []bool{true, false, false}, cfg(3, 1)); !errors.Is(err, barrier.ErrNonFinite) {
		t.Errorf("Run NaN high = %v, want ErrNonFinite", err)
	}
}

func TestRunNonFiniteExitPrices(t *testing.T) {
	tests := []struct {
		name string
		last domain.Bar
	}{
		{"nan close", ohlc(2, 100, 100.5, 99.5, math.NaN())},
		{"inf close", ohlc(2, 100, 100.5, 99.5, math.Inf(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := []domain.Bar{ohlc(0, 100, 100, 100, 100), ohlc(1, 100, 100.5, 99.5, 100), tt.last}
			res, err := Run(bars, []bool{true, false, false}, cfg(3, 1))
			if !errors.Is(err, barrier.ErrNonFinite) {
				t.Fatalf("Run = %v, want ErrNonFinite", err)
			}
			if res != nil {
				t.Errorf("Run returned a result with final capital %v", res.Curve[len(res.Curve)-1])
			}
		})
	}

	// The final close is only a price when a position is still open.
	bars := []domain.Bar{ohlc(0, 100, 100, 100, 100), ohlc(1, 100, 100.5, 99.5, math.NaN())}
	res, err := Run(bars, []bool{false, false}, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run without position: %v", err)
	}
	if got := res.Curve[len(res.Curve)-1]; got != 100 {
		t.Errorf("final capital = %v, want 100", got)
	}
}

func TestRunEmpty(t *testing.T) {
	res, err := Run(nil, nil, cfg(3, 1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Rows) != 0 || len(res.Curve) != 1 || res.Curve[0] != 100 {
		t.Errorf("empty replay = %+v", res)
	}
	s := res.Summarize()
	if s.FinalCapital != 100 || s.TotalTrades != 0 {
		t.Errorf("empty summary = %+v", s)
	}
}

func TestStepTransitions(t *testing.T) {
	c := cfg(3, 1)
	cur := ohlc(0, 100, 100, 100, 100)
	next := ohlc(1, 100, 100, 100, 100)

	s, row, err := Step(State{}, 0, cur, &next, true, c)
	if err != nil || s.Phase != Pending || row.OpenPosition {
		t.Fatalf("Step(closed, signal) = %v, %+v, %v; want pending", s.Phase, row, err)
	}
	s, row, err = Step(s, 1, next, nil, false, c)
	if err != nil {
		t.Fatalf("Step(pending): %v", err)
	}
	if s.Phase != Closed || row.ExitReason != domain.ExitEndOfData || row.EntryPrice != 100 {
		t.Errorf("Step(pending, last) = %v, %+v; want END_OF_DATA close", s.Phase, row)
	}

	s, _, _ = Step(State{}, 0, cur, nil, true, c)
	if s.Phase != Closed {
		t.Errorf("Step(closed, signal, last) phase = %v, want closed", s.Phase)
	}
}
