// Package gather defines the interface shared by market data collectors.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run gathers until done or until ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange is the half-open time range [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Split cuts r into consecutive ranges no longer than step. An empty range
// or a non-positive step yields nothing.
func (r DateRange) Split(step time.Duration) []DateRange {
	if step <= 0 || !r.Start.Before(r.End) {
		return nil
	}
	var out []DateRange
	for lo := r.Start; lo.Before(r.End); lo = lo.Add(step) {
		hi := lo.Add(step)
		if hi.After(r.End) {
			hi = r.End
		}
		out = append(out, DateRange{Start: lo, End: hi})
	}
	return out
}
