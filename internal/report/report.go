package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"triplebarrier/internal/backtest"
	"triplebarrier/internal/domain"
	"triplebarrier/internal/label"
)

// Printer writes styled reports to w. Colors are dropped automatically when
// w is not a terminal.
type Printer struct {
	w      io.Writer
	header lipgloss.Style
	gain   lipgloss.Style
	loss   lipgloss.Style
	dim    lipgloss.Style
}

// NewPrinter creates a Printer for w.
func NewPrinter(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:      w,
		header: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		gain:   r.NewStyle().Foreground(lipgloss.Color("10")),
		loss:   r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:    r.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// signed renders a padded percentage in the gain or loss color.
func (p *Printer) signed(f float64, width int) string {
	s := fmt.Sprintf("%*s", width, FormatPct(f))
	switch {
	case f > 0:
		return p.gain.Render(s)
	case f < 0:
		return p.loss.Render(s)
	default:
		return s
	}
}

func (p *Printer) flush(b *strings.Builder) error {
	_, err := io.WriteString(p.w, b.String())
	return err
}

// Summary writes the capital, return, and trade statistics of a replay.
func (p *Printer) Summary(title string, s backtest.Summary) error {
	var b strings.Builder
	fmt.Fprintln(&b, p.header.Render(title))
	fmt.Fprintf(&b, "  %-16s %s .. %s (%.1f days)\n", "Period",
		s.Start.Format(time.DateTime), s.End.Format(time.DateTime), s.ElapsedDays)
	fmt.Fprintf(&b, "  %-16s %s\n", "Initial capital", FormatMoney(s.InitialCapital))
	fmt.Fprintf(&b, "  %-16s %s\n", "Final capital", FormatMoney(s.FinalCapital))
	fmt.Fprintf(&b, "  %-16s %s %s\n", "Change", FormatMoney(s.AbsoluteChange), p.signed(s.PercentChange/100, 0))
	fmt.Fprintf(&b, "  %-16s %s\n", "Daily return", p.signed(s.DailyReturn, 0))
	fmt.Fprintf(&b, "  %-16s %s\n", "Annual return", p.signed(s.AnnualReturn, 0))
	reasons := make([]string, 0, len(domain.ExitReasons))
	for _, r := range domain.ExitReasons {
		reasons = append(reasons, fmt.Sprintf("%s %d", r, s.ByReason[r]))
	}
	fmt.Fprintf(&b, "  %-16s %s %s\n", "Trades", FormatCount(s.TotalTrades),
		p.dim.Render("("+strings.Join(reasons, ", ")+")"))
	fmt.Fprintf(&b, "  %-16s %s\n", "Win rate", FormatRate(s.WinRate))
	fmt.Fprintf(&b, "  %-16s %s\n", "Max drawdown", FormatRate(s.MaxDrawdown))
	return p.flush(&b)
}

// Trades writes one line per closed trade.
func (p *Printer) Trades(trades []domain.Trade) error {
	var b strings.Builder
	fmt.Fprintln(&b, p.header.Render(fmt.Sprintf("%-19s  %-19s  %10s  %10s  %9s  %s",
		"ENTRY", "EXIT", "ENTRY PX", "EXIT PX", "GAIN", "REASON")))
	for _, t := range trades {
		fmt.Fprintf(&b, "%-19s  %-19s  %10s  %10s  %s  %s\n",
			t.EntryTime.Format(time.DateTime), t.ExitTime.Format(time.DateTime),
			FormatPrice(t.EntryPrice), FormatPrice(t.ExitPrice),
			p.signed(t.Gain, 9), t.Reason)
	}
	return p.flush(&b)
}

// Runs writes one line per stored run.
func (p *Printer) Runs(runs []domain.Run) error {
	var b strings.Builder
	fmt.Fprintln(&b, p.header.Render(fmt.Sprintf("%5s  %-14s  %-10s  %5s  %5s  %12s  %12s  %6s  %s",
		"ID", "STRATEGY", "SYMBOL", "TP%", "SL%", "INITIAL", "FINAL", "TRADES", "CREATED")))
	for _, r := range runs {
		fmt.Fprintf(&b, "%5d  %-14s  %-10s  %5g  %5g  %12s  %12s  %6s  %s\n",
			r.ID, r.Strategy, r.Symbol, r.TakeProfitPct, r.StopLossPct,
			FormatMoney(r.InitialCapital), FormatMoney(r.FinalCapital),
			FormatCount(r.TradeCount), p.dim.Render(r.CreatedAt.Format(time.DateTime)))
	}
	return p.flush(&b)
}

// Sweep writes one line per swept configuration; failed configurations show
// their error.
func (p *Printer) Sweep(results []backtest.SweepResult) error {
	var b strings.Builder
	fmt.Fprintln(&b, p.header.Render(fmt.Sprintf("%5s  %5s  %12s  %9s  %9s  %6s  %6s",
		"TP%", "SL%", "FINAL", "CHANGE", "ANNUAL", "TRADES", "WIN")))
	for _, r := range results {
		if r.Err != "" {
			fmt.Fprintf(&b, "%5g  %5g  %s\n", r.Config.TakeProfitPct, r.Config.StopLossPct, p.loss.Render(r.Err))
			continue
		}
		s := r.Summary
		fmt.Fprintf(&b, "%5g  %5g  %12s  %s  %s  %6s  %6s\n",
			r.Config.TakeProfitPct, r.Config.StopLossPct, FormatMoney(s.FinalCapital),
			p.signed(s.PercentChange/100, 9), p.signed(s.AnnualReturn, 9),
			FormatCount(s.TotalTrades), FormatRate(s.WinRate))
	}
	return p.flush(&b)
}

// Labels writes the outcome distribution over the valid rows of a labeling
// pass.
func (p *Printer) Labels(res *label.Result) error {
	var b strings.Builder
	fmt.Fprintln(&b, p.header.Render(res.Params.OutcomeColumn()))
	counts := res.Counts()
	total := len(res.Outcomes)
	valid := lo.Count(res.Valid, true)
	for _, o := range []domain.Outcome{domain.OutcomeTakeProfit, domain.OutcomeStopLoss, domain.OutcomeNone} {
		share := 0.0
		if valid > 0 {
			share = float64(counts[o]) / float64(valid)
		}
		fmt.Fprintf(&b, "  %-12s %10s  %s\n", o, FormatInt(counts[o]), p.dim.Render(FormatRate(share)))
	}
	fmt.Fprintf(&b, "  %-12s %10s\n", "bars", FormatInt(total))
	fmt.Fprintf(&b, "  %-12s %10s\n", "valid", FormatInt(valid))
	fmt.Fprintf(&b, "  %-12s %10s\n", "full window", FormatInt(label.FullWindow(total, res.Params.Horizon)))
	return p.flush(&b)
}
