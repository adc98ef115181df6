package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	zlog "github.com/rs/zerolog/log"

	"triplebarrier/internal/backtest"
	"triplebarrier/internal/barrier"
	"triplebarrier/internal/dataset"
	"triplebarrier/internal/label"
	"triplebarrier/internal/metrics"
	"triplebarrier/internal/store"
	"triplebarrier/internal/strategy"
	tb "triplebarrier/pkg/triplebarrier"
)

// maxBody bounds request bodies; a year of minute bars fits comfortably.
const maxBody = 64 << 20

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/symbols", s.handleSymbols)
	mux.HandleFunc("GET /api/v1/strategies", s.handleStrategies)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRun)
	mux.HandleFunc("POST /api/v1/backtest", s.handleBacktest)
	mux.HandleFunc("POST /api/v1/label", s.handleLabel)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, tb.HealthResponse{Status: "ok"})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bars == nil {
		writeError(w, http.StatusServiceUnavailable, "bar store not configured")
		return
	}
	market := r.URL.Query().Get("market")
	if market == "" {
		market = s.market
	}
	symbols, err := s.deps.Bars.ListSymbols(r.Context(), market)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, tb.SymbolsResponse{Market: market, Symbols: symbols})
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Backtester == nil {
		writeError(w, http.StatusServiceUnavailable, "backtester not configured")
		return
	}
	writeJSON(w, tb.StrategiesResponse{Strategies: s.deps.Backtester.Registry().List()})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}
	runs, err := s.deps.Runs.ListRuns(r.Context(), r.URL.Query().Get("symbol"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if runs == nil {
		runs = []tb.Run{}
	}
	writeJSON(w, tb.RunsResponse{Runs: runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run id %q", r.PathValue("id")))
		return
	}
	run, err := s.deps.Runs.GetRun(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	trades, err := s.deps.Runs.ListTrades(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if trades == nil {
		trades = []tb.Trade{}
	}
	resp := tb.RunResponse{Run: *run, Trades: trades}
	if s.deps.Ledgers != nil {
		// Runs saved without a ledger still answer with their trades.
		ledger, err := s.deps.Ledgers.ReadLedger(r.Context(), id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.fail(w, r, err)
			return
		}
		resp.Ledger = ledger
	}
	writeJSON(w, resp)
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Backtester == nil {
		writeError(w, http.StatusServiceUnavailable, "backtester not configured")
		return
	}
	var req tb.BacktestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg := s.backtest
	if req.TakeProfitPct != 0 {
		cfg.TakeProfitPct = req.TakeProfitPct
	}
	if req.StopLossPct != 0 {
		cfg.StopLossPct = req.StopLossPct
	}
	if req.InitialCapital != 0 {
		cfg.InitialCapital = req.InitialCapital
	}

	var (
		report *strategy.Report
		err    error
	)
	if len(req.Bars) > 0 {
		if err := dataset.ValidateBars(req.Bars); err != nil {
			s.fail(w, r, err)
			return
		}
		name := req.Strategy
		if name == "" {
			name = "signals"
		}
		report, err = s.deps.Backtester.Replay(r.Context(), name, req.Symbol, req.Bars, req.Signals, cfg)
	} else {
		sreq, perr := s.strategyRequest(req, cfg)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		report, err = s.deps.Backtester.Run(r.Context(), sreq)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, tb.BacktestResponse{
		Run:     report.Run,
		Summary: report.Summary,
		Trades:  report.Trades,
		Ledger:  report.Ledger,
	})
}

// strategyRequest resolves a stored-bars replay: the strategy defaults to
// the configured one and End defaults to now.
func (s *Server) strategyRequest(req tb.BacktestRequest, cfg backtest.Config) (strategy.Request, error) {
	if req.Symbol == "" {
		return strategy.Request{}, errors.New("symbol is required")
	}
	if req.Start == "" {
		return strategy.Request{}, errors.New("start is required without bars")
	}
	start, err := time.Parse(time.DateOnly, req.Start)
	if err != nil {
		return strategy.Request{}, fmt.Errorf("invalid start %q", req.Start)
	}
	end := time.Now().UTC()
	if req.End != "" {
		day, err := time.Parse(time.DateOnly, req.End)
		if err != nil {
			return strategy.Request{}, fmt.Errorf("invalid end %q", req.End)
		}
		end = day.Add(24*time.Hour - time.Nanosecond)
	}
	name := req.Strategy
	if name == "" {
		name = s.strategy
	}
	return strategy.Request{Strategy: name, Symbol: req.Symbol, Start: start, End: end, Config: cfg}, nil
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Labeler == nil {
		writeError(w, http.StatusServiceUnavailable, "labeler not configured")
		return
	}
	var req tb.LabelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p := s.label
	if req.Horizon != 0 {
		p.Horizon = req.Horizon
	}
	if req.TakeProfitPct != 0 {
		p.TakeProfitPct = req.TakeProfitPct
	}
	if req.StopLossPct != 0 {
		p.StopLossPct = req.StopLossPct
	}

	if err := dataset.ValidateBars(req.Bars); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Labeler.Label(r.Context(), req.Bars, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, tb.LabelResponse{
		Horizon:        p.Horizon,
		TakeProfitPct:  p.TakeProfitPct,
		StopLossPct:    p.StopLossPct,
		OutcomeColumn:  p.OutcomeColumn(),
		GainColumn:     p.GainColumn(),
		Outcomes:       res.Outcomes,
		ProfitAchieved: res.ProfitAchieved(),
		Valid:          res.Valid,
		Counts:         res.Counts(),
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrNoBars):
		return http.StatusNotFound
	case errors.Is(err, barrier.ErrInvalidParams),
		errors.Is(err, barrier.ErrNonFinite),
		errors.Is(err, barrier.ErrLengthMismatch),
		errors.Is(err, backtest.ErrInvalidConfig),
		errors.Is(err, backtest.ErrLengthMismatch),
		errors.Is(err, label.ErrHorizon),
		errors.Is(err, dataset.ErrInvalidBar):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("encoding JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(tb.ErrorResponse{Error: msg})
}
