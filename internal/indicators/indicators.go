// Package indicators computes the handful of price indicators used to build
// entry signals. Outputs are aligned 1:1 with the input; positions without
// enough history are NaN.
package indicators

import (
	"fmt"
	"math"
)

// EMAColumn is the frame column name for an EMA of the given span.
func EMAColumn(span int) string { return fmt.Sprintf("ema_%d", span) }

// RSIColumn is the frame column name for an RSI of the given period.
func RSIColumn(period int) string { return fmt.Sprintf("rsi_%d", period) }

// CrossColumn is the frame column name for a fast/slow EMA cross signal.
func CrossColumn(fast, slow int) string { return fmt.Sprintf("ema_cross_signal_%d_%d", fast, slow) }

// EMA is the exponential moving average with alpha = 2/(span+1), seeded
// with the first value and without bias adjustment.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if span < 1 {
		span = 1
	}
	alpha := 2 / (float64(span) + 1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI is the relative strength index over simple rolling means of gains and
// losses. The first period values are NaN. A window with no losses reads
// 100; a window with no movement at all is NaN.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 || len(closes) <= period {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}
	var sumGain, sumLoss float64
	for i := 1; i < len(closes); i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
		if i > period {
			sumGain -= gains[i-period]
			sumLoss -= losses[i-period]
		}
		if i < period {
			continue
		}
		avgGain := sumGain / float64(period)
		avgLoss := sumLoss / float64(period)
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = math.NaN()
		case avgLoss == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+avgGain/avgLoss)
		}
	}
	return out
}

// Cross reports +1 where fast crosses above slow, -1 where it crosses
// below, and 0 otherwise. The first position is always 0.
func Cross(fast, slow []float64) []int {
	n := min(len(fast), len(slow))
	out := make([]int, n)
	for i := 1; i < n; i++ {
		switch {
		case fast[i] > slow[i] && fast[i-1] <= slow[i-1]:
			out[i] = 1
		case fast[i] < slow[i] && fast[i-1] >= slow[i-1]:
			out[i] = -1
		}
	}
	return out
}

// EMACross computes EMA(fast) and EMA(slow) over closes and their cross.
func EMACross(closes []float64, fast, slow int) []int {
	return Cross(EMA(closes, fast), EMA(closes, slow))
}
