package dataset

import (
	"math"
	"time"

	"triplebarrier/internal/domain"
)

// Resample aggregates sorted bars into buckets of the given width: open is
// the first open, high the max, low the min, close the last close, and
// volume the sum. Buckets with no input are not emitted, and input bars with
// a missing price are skipped.
func Resample(bars []domain.Bar, width time.Duration) []domain.Bar {
	if width <= 0 || len(bars) == 0 {
		return nil
	}
	var (
		out []domain.Bar
		cur domain.Bar
		has bool
	)
	for _, b := range bars {
		if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) {
			continue
		}
		bucket := b.Timestamp.Truncate(width)
		if has && bucket.Equal(cur.Timestamp) {
			cur.High = math.Max(cur.High, b.High)
			cur.Low = math.Min(cur.Low, b.Low)
			cur.Close = b.Close
			if !math.IsNaN(b.Volume) {
				cur.Volume += b.Volume
			}
			continue
		}
		if has {
			out = append(out, cur)
		}
		cur = domain.Bar{
			Symbol:    b.Symbol,
			Timestamp: bucket,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
		}
		if !math.IsNaN(b.Volume) {
			cur.Volume = b.Volume
		}
		has = true
	}
	if has {
		out = append(out, cur)
	}
	return out
}
