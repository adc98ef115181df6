// Package strategy defines the Strategy interface that turns bars into entry
// signals, a Registry of named strategies, and the Backtester that replays
// them.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"triplebarrier/internal/domain"
)

// Strategy is the interface that all entry-signal strategies must implement.
// A Strategy instance is used for one replay at a time.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init resets any state before the strategy begins processing bars.
	Init(ctx context.Context) error

	// OnBar is called for each bar in time order. It reports whether to
	// enter a position at the next bar's open.
	OnBar(ctx context.Context, bar domain.Bar) (bool, error)
}

// Factory builds a fresh Strategy so concurrent replays never share state.
type Factory func() Strategy

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory to the registry, keyed by the Name() of the
// strategy it builds.
func (r *Registry) Register(f Factory) {
	r.factories[f().Name()] = f
}

// Get builds a new instance of the named strategy. The second return value
// indicates whether the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	f, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Signals runs s over bars and collects one entry signal per bar.
func Signals(ctx context.Context, s Strategy, bars []domain.Bar) ([]bool, error) {
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s: %w", s.Name(), err)
	}
	out := make([]bool, len(bars))
	for i, b := range bars {
		sig, err := s.OnBar(ctx, b)
		if err != nil {
			return nil, fmt.Errorf("%s at %s: %w", s.Name(), b.Timestamp.Format("2006-01-02 15:04:05"), err)
		}
		out[i] = sig
	}
	return out, nil
}
