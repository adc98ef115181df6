// Package crypto gathers historical crypto bars from the Alpaca market-data
// API into the bar store.
package crypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"triplebarrier/internal/dataset"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/gather"
	"triplebarrier/internal/metrics"
	"triplebarrier/internal/store"
	"triplebarrier/internal/util"
)

// Compile-time interface check.
var _ gather.Gatherer = (*BarGatherer)(nil)

// chunk is the span fetched per API call sequence.
const chunk = 30 * 24 * time.Hour

// BarFetcher is the subset of *marketdata.Client the gatherer uses.
type BarFetcher interface {
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
}

// Options configures a BarGatherer.
type Options struct {
	Market           string
	Symbols          []string
	TimeframeMinutes int
	StartDate        string
	MaxWorkers       int
	RateLimitPerMin  int

	// RetryDelay is the first backoff between failed calls; zero means 2s.
	RetryDelay time.Duration

	// Now overrides the end of the gathering range; zero means time.Now.
	Now func() time.Time
}

// BarGatherer fetches one-minute crypto bars, resamples them to the
// configured timeframe, and merges them into the store. Reruns resume from
// the latest stored bar.
type BarGatherer struct {
	client  BarFetcher
	store   store.BarStore
	opts    Options
	limiter *util.RateLimiter
	log     zerolog.Logger
}

// NewClient builds an Alpaca market-data client. An empty dataURL uses the
// SDK default.
func NewClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// NewBarGatherer creates a BarGatherer.
func NewBarGatherer(client BarFetcher, s store.BarStore, opts Options, log zerolog.Logger) *BarGatherer {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.TimeframeMinutes < 1 {
		opts.TimeframeMinutes = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BarGatherer{
		client:  client,
		store:   s,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		log:     log.With().Str("gatherer", "crypto-bars").Logger(),
	}
}

// Name returns the gatherer identifier.
func (g *BarGatherer) Name() string { return "crypto-bars" }

// Run gathers every configured symbol, at most MaxWorkers at a time.
func (g *BarGatherer) Run(ctx context.Context) error {
	start, err := time.Parse(time.DateOnly, g.opts.StartDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.opts.StartDate, err)
	}
	width := time.Duration(g.opts.TimeframeMinutes) * time.Minute
	// Only closed buckets are stored.
	end := g.opts.Now().UTC().Truncate(width)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.opts.MaxWorkers)
	for _, sym := range g.opts.Symbols {
		eg.Go(func() error {
			n, err := g.gatherSymbol(ctx, sym, start, end, width)
			if err != nil {
				return fmt.Errorf("%s: %w", sym, err)
			}
			g.log.Info().Str("symbol", sym).Int("bars", n).Msg("symbol gathered")
			return nil
		})
	}
	return eg.Wait()
}

func (g *BarGatherer) gatherSymbol(ctx context.Context, symbol string, start, end time.Time, width time.Duration) (int, error) {
	from, err := g.resumeFrom(ctx, symbol, start, end, width)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, rng := range (gather.DateRange{Start: from, End: end}).Split(chunk) {
		if err := g.limiter.Wait(ctx); err != nil {
			return total, err
		}

		var raw []marketdata.CryptoBar
		err := util.Retry(ctx, 3, g.opts.RetryDelay, func() error {
			var ferr error
			raw, ferr = g.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
				TimeFrame: marketdata.OneMin,
				Start:     rng.Start,
				End:       rng.End,
			})
			return ferr
		})
		if err != nil {
			return total, fmt.Errorf("GetCryptoBars %s..%s: %w", rng.Start.Format(time.DateOnly), rng.End.Format(time.DateOnly), err)
		}

		bars := dataset.Resample(toBars(symbol, raw, rng.End), width)
		if len(bars) == 0 {
			continue
		}
		if err := g.store.WriteBars(ctx, g.opts.Market, bars); err != nil {
			return total, err
		}
		metrics.BarsGathered.WithLabelValues(symbol).Add(float64(len(bars)))
		total += len(bars)
		g.log.Debug().
			Str("symbol", symbol).
			Time("from", rng.Start).
			Time("to", rng.End).
			Int("bars", len(bars)).
			Msg("chunk stored")
	}
	return total, nil
}

// resumeFrom returns the bucket after the latest stored bar, or start when
// nothing is stored yet. The search walks back one year at a time.
func (g *BarGatherer) resumeFrom(ctx context.Context, symbol string, start, end time.Time, width time.Duration) (time.Time, error) {
	for year := end.Year(); year >= start.Year(); year-- {
		lo := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
		hi := time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC)
		bars, err := g.store.ReadBars(ctx, symbol, g.opts.Market, lo, hi)
		if err != nil {
			return time.Time{}, err
		}
		if len(bars) > 0 {
			latest := bars[len(bars)-1].Timestamp
			if next := latest.Add(width); next.After(start) {
				return next, nil
			}
			return start, nil
		}
	}
	return start, nil
}

// toBars converts API bars, dropping any at or after end so a partially
// filled bucket is never stored.
func toBars(symbol string, raw []marketdata.CryptoBar, end time.Time) []domain.Bar {
	bars := make([]domain.Bar, 0, len(raw))
	for _, b := range raw {
		if !b.Timestamp.Before(end) {
			continue
		}
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return bars
}

// ErrNoSymbols is returned by Validate when nothing is configured to gather.
var ErrNoSymbols = errors.New("crypto: no symbols configured")

// Validate checks the options before a run.
func (o Options) Validate() error {
	if len(o.Symbols) == 0 {
		return ErrNoSymbols
	}
	if _, err := time.Parse(time.DateOnly, o.StartDate); err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	return nil
}
