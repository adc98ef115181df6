package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"triplebarrier/internal/config"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/label"
	"triplebarrier/internal/store"
	"triplebarrier/internal/strategy"
	tb "triplebarrier/pkg/triplebarrier"
)

// firstBar signals on the first bar it sees.
type firstBar struct{ seen bool }

func (s *firstBar) Name() string                 { return "first-bar" }
func (s *firstBar) Init(_ context.Context) error { s.seen = false; return nil }
func (s *firstBar) OnBar(_ context.Context, _ domain.Bar) (bool, error) {
	sig := !s.seen
	s.seen = true
	return sig, nil
}

func day(d int) time.Time {
	return time.Date(2024, 3, 1+d, 0, 0, 0, 0, time.UTC)
}

// replayBars reach take-profit on the third bar: fill at 100, high 104.
func replayBars(symbol string) []domain.Bar {
	return []domain.Bar{
		{Symbol: symbol, Timestamp: day(0), Open: 100, High: 100, Low: 100, Close: 100},
		{Symbol: symbol, Timestamp: day(1), Open: 100, High: 101, Low: 99.5, Close: 100.5},
		{Symbol: symbol, Timestamp: day(2), Open: 101, High: 104, Low: 100, Close: 103},
		{Symbol: symbol, Timestamp: day(3), Open: 103, High: 103, Low: 102, Close: 102},
	}
}

type fixture struct {
	srv     *Server
	handler http.Handler
	bars    *store.ParquetStore
	runs    *store.SQLiteStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	ps := store.NewParquetStore(dir, "")
	ss, err := store.NewSQLiteStore(filepath.Join(dir, "runs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	reg := strategy.NewRegistry()
	reg.Register(func() strategy.Strategy { return &firstBar{} })

	cfg := config.Default()
	cfg.Backtest.TakeProfitPct = 3
	cfg.Backtest.StopLossPct = 1
	cfg.Backtest.Strategy = "first-bar"

	log := zerolog.Nop()
	bt := strategy.NewBacktester(ps, reg, cfg.Gather.Market, log).WithPersistence(ss, ps)
	srv := NewServer(cfg, Deps{
		Backtester: bt,
		Labeler:    label.NewLabeler(2, log),
		Bars:       ps,
		Runs:       ss,
		Ledgers:    ps,
	}, log)
	return &fixture{srv: srv, handler: srv.Handler(), bars: ps, runs: ss}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[tb.HealthResponse](t, rec); got.Status != "ok" {
		t.Errorf("status = %q, want ok", got.Status)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestOptionsPreflight(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodOptions, "/api/v1/backtest", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestLabel(t *testing.T) {
	f := newFixture(t)
	bars := []domain.Bar{
		{Timestamp: day(0), Open: 100, High: 100, Low: 100, Close: 100},
		{Timestamp: day(1), Open: 100, High: 102, Low: 99.5, Close: 101},
		{Timestamp: day(2), Open: 101, High: 101, Low: 100, Close: 100},
	}
	rec := f.do(t, http.MethodPost, "/api/v1/label", tb.LabelRequest{
		Bars: bars, Horizon: 2, TakeProfitPct: 1, StopLossPct: 1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	got := decode[tb.LabelResponse](t, rec)

	want := []domain.Outcome{domain.OutcomeTakeProfit, domain.OutcomeNone, domain.OutcomeNone}
	if len(got.Outcomes) != len(want) {
		t.Fatalf("len(outcomes) = %d, want %d", len(got.Outcomes), len(want))
	}
	for i := range want {
		if got.Outcomes[i] != want[i] {
			t.Errorf("outcomes[%d] = %s, want %s", i, got.Outcomes[i], want[i])
		}
	}
	if !got.ProfitAchieved[0] || got.ProfitAchieved[1] {
		t.Errorf("profit_achieved = %v, want [true false false]", got.ProfitAchieved)
	}
	if !got.Valid[1] || got.Valid[2] {
		t.Errorf("valid = %v, want [true true false]", got.Valid)
	}
	if got.OutcomeColumn != "result_trade_outcome_2N_1TP_1SL" {
		t.Errorf("outcome_column = %q", got.OutcomeColumn)
	}
	if got.Counts[domain.OutcomeTakeProfit] != 1 {
		t.Errorf("counts = %v, want one TAKE_PROFIT", got.Counts)
	}
}

// invertedBars has a bar whose high is below its low.
func invertedBars(symbol string) []domain.Bar {
	bars := replayBars(symbol)
	bars[2].High, bars[2].Low = bars[2].Low, bars[2].High
	return bars
}

func TestLabelDefaultsAndErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/label", tb.LabelRequest{Bars: replayBars("X")})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	got := decode[tb.LabelResponse](t, rec)
	def := config.Default().Labeling
	if got.Horizon != def.Horizon || got.TakeProfitPct != def.TakeProfitPct {
		t.Errorf("params = %d/%v, want defaults %d/%v", got.Horizon, got.TakeProfitPct, def.Horizon, def.TakeProfitPct)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/label", tb.LabelRequest{Bars: replayBars("X"), Horizon: -1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative horizon status = %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/label", tb.LabelRequest{Bars: invertedBars("X")})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted bar status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/label", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}
}

func TestBacktestWithSignalsPersists(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/backtest", tb.BacktestRequest{
		Strategy:       "model",
		Symbol:         "ETHUSD",
		InitialCapital: 100,
		Bars:           replayBars("ETHUSD"),
		Signals:        []bool{true, false, false, false},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	got := decode[tb.BacktestResponse](t, rec)
	if got.Run.ID == 0 {
		t.Error("run ID = 0, want a persisted run")
	}
	if got.Summary.TotalTrades != 1 {
		t.Errorf("total trades = %d, want 1", got.Summary.TotalTrades)
	}
	if got.Summary.ByReason[domain.ExitTakeProfit] != 1 {
		t.Errorf("by_reason = %v, want one TAKE_PROFIT", got.Summary.ByReason)
	}
	if want := 104.0; math.Abs(got.Summary.FinalCapital-want) > 1e-9 {
		t.Errorf("final capital = %v, want %v", got.Summary.FinalCapital, want)
	}
	if len(got.Ledger) != 4 {
		t.Fatalf("len(ledger) = %d, want 4", len(got.Ledger))
	}

	// The stored run is listed and readable with its ledger.
	rec = f.do(t, http.MethodGet, "/api/v1/runs?symbol=ETHUSD", nil)
	runs := decode[tb.RunsResponse](t, rec)
	if len(runs.Runs) != 1 || runs.Runs[0].ID != got.Run.ID {
		t.Fatalf("runs = %+v, want the saved run", runs.Runs)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/runs/"+strconv.FormatInt(got.Run.ID, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET run status = %d, want 200: %s", rec.Code, rec.Body)
	}
	run := decode[tb.RunResponse](t, rec)
	if run.Run.Strategy != "model" {
		t.Errorf("strategy = %q, want model", run.Run.Strategy)
	}
	if len(run.Trades) != 1 || run.Trades[0].Reason != domain.ExitTakeProfit {
		t.Errorf("trades = %+v, want one TAKE_PROFIT", run.Trades)
	}
	if len(run.Ledger) != 4 {
		t.Errorf("len(ledger) = %d, want 4", len(run.Ledger))
	}
}

func TestBacktestFromStore(t *testing.T) {
	f := newFixture(t)
	if err := f.bars.WriteBars(context.Background(), "crypto", replayBars("ETHUSD")); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/backtest", tb.BacktestRequest{
		Symbol: "ETHUSD",
		Start:  "2024-03-01",
		End:    "2024-03-04",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	got := decode[tb.BacktestResponse](t, rec)
	if got.Run.Strategy != "first-bar" {
		t.Errorf("strategy = %q, want first-bar", got.Run.Strategy)
	}
	if got.Summary.TotalTrades != 1 {
		t.Errorf("total trades = %d, want 1", got.Summary.TotalTrades)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/symbols", nil)
	syms := decode[tb.SymbolsResponse](t, rec)
	if len(syms.Symbols) != 1 || syms.Symbols[0] != "ETHUSD" {
		t.Errorf("symbols = %v, want [ETHUSD]", syms.Symbols)
	}
}

func TestBacktestErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  tb.BacktestRequest
		want int
	}{
		{"unknown strategy", tb.BacktestRequest{Strategy: "nope", Symbol: "ETHUSD", Start: "2024-03-01"}, http.StatusNotFound},
		{"no bars stored", tb.BacktestRequest{Symbol: "ETHUSD", Start: "2024-03-01", End: "2024-03-04"}, http.StatusNotFound},
		{"missing start", tb.BacktestRequest{Symbol: "ETHUSD"}, http.StatusBadRequest},
		{"bad start", tb.BacktestRequest{Symbol: "ETHUSD", Start: "03/01/2024"}, http.StatusBadRequest},
		{"signal length", tb.BacktestRequest{Symbol: "ETHUSD", Bars: replayBars("ETHUSD"), Signals: []bool{true}}, http.StatusBadRequest},
		{"inverted bar", tb.BacktestRequest{Symbol: "ETHUSD", Bars: invertedBars("ETHUSD"), Signals: make([]bool, 4)}, http.StatusBadRequest},
		{"stop loss too wide", tb.BacktestRequest{Symbol: "ETHUSD", StopLossPct: 150, Bars: replayBars("ETHUSD"), Signals: make([]bool, 4)}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/backtest", tt.req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
			if got := decode[tb.ErrorResponse](t, rec); got.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestRunNotFound(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/api/v1/runs/42", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/runs/abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/runs?limit=0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", rec.Code)
	}
}

func TestStrategiesAndMetrics(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/strategies", nil)
	got := decode[tb.StrategiesResponse](t, rec)
	if len(got.Strategies) != 1 || got.Strategies[0] != "first-bar" {
		t.Errorf("strategies = %v, want [first-bar]", got.Strategies)
	}

	rec = f.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}

func TestMissingDeps(t *testing.T) {
	srv := NewServer(config.Default(), Deps{}, zerolog.Nop())
	h := srv.Handler()
	for _, path := range []string{"/api/v1/symbols", "/api/v1/runs", "/api/v1/strategies"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestGRPCHealth(t *testing.T) {
	f := newFixture(t)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go f.srv.grpcSrv.Serve(lis)
	t.Cleanup(f.srv.grpcSrv.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	status, err := CheckHealth(ctx, lis.Addr().String())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", status)
	}
}
