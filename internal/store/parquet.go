package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"triplebarrier/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ LedgerStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and LedgerStore using Parquet files on
// disk. Timeframe names the bar directory, e.g. "10min".
type ParquetStore struct {
	DataDir   string
	Timeframe string
}

// NewParquetStore creates a new ParquetStore rooted at the given data
// directory. An empty timeframe defaults to "1min".
func NewParquetStore(dataDir, timeframe string) *ParquetStore {
	if timeframe == "" {
		timeframe = "1min"
	}
	return &ParquetStore{DataDir: dataDir, Timeframe: timeframe}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// LedgerRecord is the Parquet schema for one replayed bar.
type LedgerRecord struct {
	Timestamp    int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	OpenPosition bool    `parquet:"open_position"`
	Gains        float64 `parquet:"gains"`
	EntryPrice   float64 `parquet:"entry_price"`
	ExitPrice    float64 `parquet:"exit_price"`
	ExitReason   string  `parquet:"exit_reason"`
	Disponible   float64 `parquet:"disponible"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bars to Parquet files grouped by symbol and year, merging
// with what is already on disk:
//
//	<DataDir>/<market>/<timeframe>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    b.Symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bars for the given symbol within [start, end], in time order.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.barPath(symbol, market, year)

		records, err := readParquetFile[BarRecord](path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      r.Open,
				High:      r.High,
				Low:       r.Low,
				Close:     r.Close,
				Volume:    r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbol directories with bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, s.Timeframe)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// LedgerStore implementation
// ---------------------------------------------------------------------------

// WriteLedger writes the ledger of a run to <DataDir>/ledgers/<id>.parquet.
func (s *ParquetStore) WriteLedger(_ context.Context, runID int64, rows []domain.LedgerRow) error {
	records := make([]LedgerRecord, len(rows))
	for i, r := range rows {
		records[i] = LedgerRecord{
			Timestamp:    r.Timestamp.UnixMilli(),
			OpenPosition: r.OpenPosition,
			Gains:        r.Gain,
			EntryPrice:   r.EntryPrice,
			ExitPrice:    r.ExitPrice,
			ExitReason:   string(r.ExitReason),
			Disponible:   r.Capital,
		}
	}
	if err := writeParquetFile(s.ledgerPath(runID), records); err != nil {
		return fmt.Errorf("writing ledger for run %d: %w", runID, err)
	}
	return nil
}

// ReadLedger reads the ledger of a run. A missing file is ErrNotFound.
func (s *ParquetStore) ReadLedger(_ context.Context, runID int64) ([]domain.LedgerRow, error) {
	records, err := readParquetFile[LedgerRecord](s.ledgerPath(runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ledger for run %d: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger for run %d: %w", runID, err)
	}
	rows := make([]domain.LedgerRow, len(records))
	for i, r := range records {
		rows[i] = domain.LedgerRow{
			Timestamp:    time.UnixMilli(r.Timestamp).UTC(),
			OpenPosition: r.OpenPosition,
			Gain:         r.Gains,
			EntryPrice:   r.EntryPrice,
			ExitPrice:    r.ExitPrice,
			ExitReason:   domain.ExitReason(r.ExitReason),
			Capital:      r.Disponible,
		}
	}
	return rows, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/<timeframe>/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, s.Timeframe, symbolDir(symbol), fmt.Sprintf("%d.parquet", year))
}

// ledgerPath returns the filesystem path for a run ledger.
// Layout: <dataDir>/ledgers/<id>.parquet
func (s *ParquetStore) ledgerPath(runID int64) string {
	return filepath.Join(s.DataDir, "ledgers", fmt.Sprintf("%d.parquet", runID))
}

// symbolDir maps a pair such as "BTC/USD" onto a directory name ("BTC-USD").
func symbolDir(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", "-"))
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
