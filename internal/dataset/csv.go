package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"triplebarrier/internal/domain"
)

// dateLayout is the on-disk timestamp format, e.g. "2024-01-02 15:04:05+00:00".
const dateLayout = "2006-01-02 15:04:05-07:00"

var dateLayouts = []string{
	dateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// ParseDate accepts the on-disk layout, a few common variants, and unix
// seconds. Zoneless values are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// FormatDate renders t in the on-disk layout (UTC).
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// headerAliases maps raw exchange export headers onto base column names.
var headerAliases = map[string]string{
	"timestamp": ColDate,
	"time":      ColDate,
	"datetime":  ColDate,
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path, symbol string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return ReadCSV(file, symbol)
}

// ReadCSV parses a bar series with a header row. The base columns
// (date, open, high, low, close, volume) are required; every other column is
// kept as an extra column whose kind is inferred from its values. The
// resulting frame is sorted by date.
func ReadCSV(r io.Reader, symbol string) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	pos := make(map[string]int, len(header))
	names := make([]string, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if alias, ok := headerAliases[name]; ok {
			if _, taken := pos[ColDate]; !taken {
				name = alias
			}
		}
		names[i] = name
		pos[name] = i
	}
	var missing []string
	for _, c := range BaseColumns {
		if _, ok := pos[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}

	bars := make([]domain.Bar, 0, len(records))
	for n, rec := range records {
		line := n + 2
		ts, err := ParseDate(rec[pos[ColDate]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var vals [5]float64
		for k, c := range BaseColumns[1:] {
			v, err := parseFloat(rec[pos[c]])
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, c, err)
			}
			vals[k] = v
		}
		bars = append(bars, domain.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}

	frame := NewFrame(symbol, bars)
	for i, name := range names {
		if frame.Has(name) {
			continue
		}
		raw := make([]string, len(records))
		for n, rec := range records {
			raw[n] = rec[i]
		}
		col := inferColumn(name, raw)
		if name == ColModelPred && col.Kind != KindBool {
			if bools, ok := parsePreds(raw); ok {
				col = &Column{Name: name, Kind: KindBool, Bools: bools}
			}
		}
		if err := frame.add(col); err != nil {
			return nil, err
		}
	}
	frame.SortByTime()
	return frame, nil
}

// inferColumn picks bool when every value is a bool literal, float when
// every non-empty value parses as a number, and string otherwise.
func inferColumn(name string, raw []string) *Column {
	if bools, ok := parseBools(raw); ok {
		return &Column{Name: name, Kind: KindBool, Bools: bools}
	}
	floats := make([]float64, len(raw))
	for i, s := range raw {
		v, err := parseFloat(s)
		if err != nil {
			return &Column{Name: name, Kind: KindString, Strings: raw}
		}
		floats[i] = v
	}
	return &Column{Name: name, Kind: KindFloat, Floats: floats}
}

func parseBools(raw []string) ([]bool, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	out := make([]bool, len(raw))
	for i, s := range raw {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			out[i] = true
		case "false":
		default:
			return nil, false
		}
	}
	return out, true
}

// parsePreds reads a model_pred column the way the predictions file does,
// so 0/1 classifier output is a signal column too.
func parsePreds(raw []string) ([]bool, bool) {
	out := make([]bool, len(raw))
	for i, s := range raw {
		v, err := parsePred(s)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// parseFloat reads an empty cell as NaN so gaps stay visible to Validate.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// WriteCSVFile writes f to path, creating parent directories.
func WriteCSVFile(path string, f *Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(file, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteCSV writes the base columns followed by every extra column.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, BaseColumns...), f.order...)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, b := range f.Bars {
		row[0] = FormatDate(b.Timestamp)
		row[1] = formatFloat(b.Open)
		row[2] = formatFloat(b.High)
		row[3] = formatFloat(b.Low)
		row[4] = formatFloat(b.Close)
		row[5] = formatFloat(b.Volume)
		for k, name := range f.order {
			c := f.columns[name]
			switch c.Kind {
			case KindFloat:
				row[len(BaseColumns)+k] = formatFloat(c.Floats[i])
			case KindBool:
				row[len(BaseColumns)+k] = strconv.FormatBool(c.Bools[i])
			default:
				row[len(BaseColumns)+k] = c.Strings[i]
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
