package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Prediction is one classifier output for the bar at Timestamp.
type Prediction struct {
	Timestamp time.Time
	Pred      bool
	Proba     float64
}

// ReadPredictionsFile opens path and reads it with ReadPredictions.
func ReadPredictionsFile(path string) ([]Prediction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return ReadPredictions(file)
}

// ReadPredictions parses a CSV with a date column and a model_pred column.
// A pred_proba column is read when present; otherwise Proba is NaN.
func ReadPredictions(r io.Reader) ([]Prediction, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if alias, ok := headerAliases[name]; ok {
			name = alias
		}
		pos[name] = i
	}
	for _, c := range []string{ColDate, ColModelPred} {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	probaIdx, hasProba := pos[ColPredProba]

	var out []Prediction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ts, err := ParseDate(rec[pos[ColDate]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pred, err := parsePred(rec[pos[ColModelPred]])
		if err != nil {
			return nil, fmt.Errorf("line %d column %s: %w", line, ColModelPred, err)
		}
		p := Prediction{Timestamp: ts, Pred: pred, Proba: math.NaN()}
		if hasProba {
			if p.Proba, err = parseFloat(rec[probaIdx]); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, ColPredProba, err)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// parsePred accepts bool literals and 0/1.
func parsePred(s string) (bool, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	}
	return strconv.ParseBool(s)
}

// MergePredictions left-joins predictions onto f by timestamp, adding a
// model_pred column (false where no prediction exists) and a pred_proba
// column (NaN where missing). The frame is then sorted by time.
func MergePredictions(f *Frame, preds []Prediction) error {
	byTime := make(map[int64]Prediction, len(preds))
	for _, p := range preds {
		byTime[p.Timestamp.UnixNano()] = p
	}
	signal := make([]bool, f.Len())
	proba := make([]float64, f.Len())
	for i, b := range f.Bars {
		p, ok := byTime[b.Timestamp.UnixNano()]
		if !ok {
			proba[i] = math.NaN()
			continue
		}
		signal[i] = p.Pred
		proba[i] = p.Proba
	}
	if err := f.AddBool(ColModelPred, signal); err != nil {
		return err
	}
	if err := f.AddFloat(ColPredProba, proba); err != nil {
		return err
	}
	f.SortByTime()
	return nil
}

// ThresholdPredictions turns class probabilities into entry signals:
// probability >= threshold. NaN probabilities never signal.
func ThresholdPredictions(probs []float64, threshold float64) []bool {
	out := make([]bool, len(probs))
	for i, p := range probs {
		out[i] = p >= threshold
	}
	return out
}
