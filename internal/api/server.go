// Package api provides the HTTP and gRPC server for triplebarrier,
// exposing labeling, backtest replay, and stored run endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"triplebarrier/internal/backtest"
	"triplebarrier/internal/barrier"
	"triplebarrier/internal/config"
	"triplebarrier/internal/label"
	"triplebarrier/internal/store"
	"triplebarrier/internal/strategy"
)

// Deps are the components the server routes requests to. Stores may be nil,
// in which case the endpoints that need them answer 503.
type Deps struct {
	Backtester *strategy.Backtester
	Labeler    *label.Labeler
	Bars       store.BarStore
	Runs       store.RunStore
	Ledgers    store.LedgerStore
}

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	deps     Deps
	market   string
	label    label.Params
	backtest backtest.Config
	strategy string
	log      zerolog.Logger

	httpAddr string
	grpcAddr string
	httpSrv  *http.Server
	grpcSrv  *grpc.Server
	health   *health.Server
}

// NewServer creates a new Server configured from the given Config. The
// labeling and backtest sections supply defaults for request fields left
// at zero.
func NewServer(cfg *config.Config, deps Deps, log zerolog.Logger) *Server {
	s := &Server{
		deps:   deps,
		market: cfg.Gather.Market,
		label: label.Params{
			Horizon: cfg.Labeling.Horizon,
			Params: barrier.Params{
				TakeProfitPct: cfg.Labeling.TakeProfitPct,
				StopLossPct:   cfg.Labeling.StopLossPct,
			},
		},
		backtest: backtest.Config{
			Params: barrier.Params{
				TakeProfitPct: cfg.Backtest.TakeProfitPct,
				StopLossPct:   cfg.Backtest.StopLossPct,
			},
			InitialCapital: cfg.Backtest.InitialCapital,
		},
		strategy: cfg.Backtest.Strategy,
		log:      log.With().Str("component", "api").Logger(),
		httpAddr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		grpcAddr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort),
		health:   health.NewServer(),
	}
	s.httpSrv = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.grpcSrv = grpc.NewServer()
	s.RegisterGRPC(s.grpcSrv)
	return s
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs. Both servers are shut down
// before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.grpcAddr, err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.log.Info().Str("addr", s.httpAddr).Msg("HTTP server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		s.log.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
		if err := s.grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	s.grpcSrv.GracefulStop()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.Info().Msg("servers stopped")
	return nil
}
