// Package report renders labeling and backtest results as terminal text.
package report

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	return humanize.Comma(int64(n))
}

// FormatCount formats a count, using a K suffix for large values.
func FormatCount(n int) string {
	if n >= 100_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	}
	return FormatInt(n)
}

// FormatMoney formats a capital amount with separators and at most two
// decimals.
func FormatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return humanize.CommafWithDigits(math.Round(v*100)/100, 2)
}

// FormatPrice formats a price, or "-" when there is none.
func FormatPrice(p float64) string {
	if p == 0 || math.IsNaN(p) {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatPct formats a fraction as a signed percentage: 0.04 is "+4.00%".
func FormatPct(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", f*100)
}

// FormatRate formats a fraction as an unsigned percentage with one decimal.
func FormatRate(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}
