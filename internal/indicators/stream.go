package indicators

import "math"

// EMAStream is the incremental form of EMA.
type EMAStream struct {
	alpha  float64
	value  float64
	seeded bool
}

// NewEMAStream creates an EMAStream with alpha = 2/(span+1).
func NewEMAStream(span int) *EMAStream {
	if span < 1 {
		span = 1
	}
	return &EMAStream{alpha: 2 / (float64(span) + 1)}
}

// Next folds v in and returns the updated average.
func (e *EMAStream) Next(v float64) float64 {
	if !e.seeded {
		e.value, e.seeded = v, true
		return v
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}

// RSIStream is the incremental form of RSI.
type RSIStream struct {
	period  int
	prev    float64
	started bool
	gains   []float64
	losses  []float64
	pos     int
	filled  int
	sumGain float64
	sumLoss float64
}

// NewRSIStream creates an RSIStream over the given period.
func NewRSIStream(period int) *RSIStream {
	if period < 1 {
		period = 1
	}
	return &RSIStream{period: period, gains: make([]float64, period), losses: make([]float64, period)}
}

// Next folds in a close and returns the RSI, or NaN during warmup.
func (r *RSIStream) Next(close float64) float64 {
	if !r.started {
		r.prev, r.started = close, true
		return math.NaN()
	}
	d := close - r.prev
	r.prev = close
	var g, l float64
	if d > 0 {
		g = d
	} else {
		l = -d
	}
	r.sumGain += g - r.gains[r.pos]
	r.sumLoss += l - r.losses[r.pos]
	r.gains[r.pos], r.losses[r.pos] = g, l
	r.pos = (r.pos + 1) % r.period
	if r.filled < r.period {
		r.filled++
	}
	if r.filled < r.period {
		return math.NaN()
	}
	avgGain := r.sumGain / float64(r.period)
	avgLoss := r.sumLoss / float64(r.period)
	switch {
	case avgLoss == 0 && avgGain == 0:
		return math.NaN()
	case avgLoss == 0:
		return 100
	default:
		return 100 - 100/(1+avgGain/avgLoss)
	}
}
