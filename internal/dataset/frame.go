// Package dataset holds a bar series together with named per-bar columns
// (indicators, labels, predictions) and the CSV, resampling, and splitting
// helpers that move it between pipeline stages.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"triplebarrier/internal/domain"
)

// Required input columns, in file order.
const (
	ColDate   = "date"
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"

	// ColModelPred is the boolean entry-signal column produced by an
	// external classifier.
	ColModelPred = "model_pred"
	// ColPredProba is the optional probability column behind ColModelPred.
	ColPredProba = "pred_proba"
)

// BaseColumns are the bar columns every frame carries.
var BaseColumns = []string{ColDate, ColOpen, ColHigh, ColLow, ColClose, ColVolume}

var (
	// ErrMissingColumn is a configuration error: a column the caller needs
	// is not present.
	ErrMissingColumn = errors.New("dataset: missing column")

	// ErrDuplicateColumn is returned when a step tries to write a column
	// that another step already produced.
	ErrDuplicateColumn = errors.New("dataset: duplicate column")

	// ErrColumnLength is returned when a column does not match the bar count.
	ErrColumnLength = errors.New("dataset: column length mismatch")

	// ErrColumnKind is returned when a column is read as the wrong type.
	ErrColumnKind = errors.New("dataset: column kind mismatch")

	// ErrInvalidBar is returned by Validate for non-finite or inconsistent
	// OHLC values.
	ErrInvalidBar = errors.New("dataset: invalid bar")
)

// Kind is the value type of an extra column.
type Kind int

const (
	KindFloat Kind = iota
	KindBool
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

// Column is one named extra column aligned 1:1 with the frame's bars.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Bools   []bool
	Strings []string
}

func (c *Column) len() int {
	switch c.Kind {
	case KindFloat:
		return len(c.Floats)
	case KindBool:
		return len(c.Bools)
	default:
		return len(c.Strings)
	}
}

// Frame is an ordered bar series plus extra columns. Columns are append-only:
// once added, a column is never rewritten by another step.
type Frame struct {
	Symbol  string
	Bars    []domain.Bar
	order   []string
	columns map[string]*Column
}

// NewFrame wraps bars in a Frame with no extra columns.
func NewFrame(symbol string, bars []domain.Bar) *Frame {
	return &Frame{
		Symbol:  symbol,
		Bars:    bars,
		columns: make(map[string]*Column),
	}
}

// Len returns the number of bars.
func (f *Frame) Len() int { return len(f.Bars) }

// Columns returns the extra column names in insertion order.
func (f *Frame) Columns() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Has reports whether name is a base or extra column.
func (f *Frame) Has(name string) bool {
	if lo.Contains(BaseColumns, name) {
		return true
	}
	_, ok := f.columns[name]
	return ok
}

// Require fails with ErrMissingColumn naming every absent column.
func (f *Frame) Require(names ...string) error {
	missing := lo.Filter(names, func(n string, _ int) bool { return !f.Has(n) })
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}
	return nil
}

// Column returns the named extra column.
func (f *Frame) Column(name string) (*Column, error) {
	c, ok := f.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
	}
	return c, nil
}

// AddFloat appends a float column.
func (f *Frame) AddFloat(name string, values []float64) error {
	return f.add(&Column{Name: name, Kind: KindFloat, Floats: values})
}

// AddBool appends a bool column.
func (f *Frame) AddBool(name string, values []bool) error {
	return f.add(&Column{Name: name, Kind: KindBool, Bools: values})
}

// AddString appends a string column.
func (f *Frame) AddString(name string, values []string) error {
	return f.add(&Column{Name: name, Kind: KindString, Strings: values})
}

func (f *Frame) add(c *Column) error {
	if f.Has(c.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateColumn, c.Name)
	}
	if c.len() != len(f.Bars) {
		return fmt.Errorf("%w: %s has %d values, frame has %d bars", ErrColumnLength, c.Name, c.len(), len(f.Bars))
	}
	if f.columns == nil {
		f.columns = make(map[string]*Column)
	}
	f.columns[c.Name] = c
	f.order = append(f.order, c.Name)
	return nil
}

// Floats returns a float column's values.
func (f *Frame) Floats(name string) ([]float64, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindFloat {
		return nil, fmt.Errorf("%w: %s is %s", ErrColumnKind, name, c.Kind)
	}
	return c.Floats, nil
}

// Bools returns a bool column's values.
func (f *Frame) Bools(name string) ([]bool, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindBool {
		return nil, fmt.Errorf("%w: %s is %s", ErrColumnKind, name, c.Kind)
	}
	return c.Bools, nil
}

// Strings returns a string column's values.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != KindString {
		return nil, fmt.Errorf("%w: %s is %s", ErrColumnKind, name, c.Kind)
	}
	return c.Strings, nil
}

// Validate rejects bars with non-finite prices or inconsistent extremes.
func (f *Frame) Validate() error {
	return ValidateBars(f.Bars)
}

// ValidateBars checks every bar for finite, non-negative prices with
// high >= max(open, close) and low <= min(open, close).
func ValidateBars(bars []domain.Bar) error {
	for i, b := range bars {
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return fmt.Errorf("%w: row %d (%s) has value %v", ErrInvalidBar, i, b.Timestamp.Format(dateLayout), v)
			}
		}
		if b.High < b.Low || b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) {
			return fmt.Errorf("%w: row %d (%s) OHLC out of order", ErrInvalidBar, i, b.Timestamp.Format(dateLayout))
		}
	}
	return nil
}

// SortByTime stably orders bars and every column by timestamp.
func (f *Frame) SortByTime() {
	idx := make([]int, len(f.Bars))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return f.Bars[idx[a]].Timestamp.Before(f.Bars[idx[b]].Timestamp)
	})
	f.permute(idx)
}

// Slice returns a new frame holding rows [from, to).
func (f *Frame) Slice(from, to int) *Frame {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	out := f.clone()
	out.permute(idx)
	return out
}

// Select returns a new frame holding the rows where keep is true.
func (f *Frame) Select(keep []bool) *Frame {
	idx := make([]int, 0, len(f.Bars))
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	out := f.clone()
	out.permute(idx)
	return out
}

func (f *Frame) clone() *Frame {
	out := NewFrame(f.Symbol, append([]domain.Bar(nil), f.Bars...))
	for _, name := range f.order {
		c := *f.columns[name]
		c.Floats = append([]float64(nil), c.Floats...)
		c.Bools = append([]bool(nil), c.Bools...)
		c.Strings = append([]string(nil), c.Strings...)
		out.columns[name] = &c
		out.order = append(out.order, name)
	}
	return out
}

// permute rewrites every row so that row i becomes old row idx[i].
func (f *Frame) permute(idx []int) {
	f.Bars = pick(f.Bars, idx)
	for _, c := range f.columns {
		switch c.Kind {
		case KindFloat:
			c.Floats = pick(c.Floats, idx)
		case KindBool:
			c.Bools = pick(c.Bools, idx)
		default:
			c.Strings = pick(c.Strings, idx)
		}
	}
}

func pick[T any](in []T, idx []int) []T {
	return lo.Map(idx, func(i int, _ int) T { return in[i] })
}
