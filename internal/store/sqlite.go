package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"triplebarrier/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	strategy        TEXT    NOT NULL,
	symbol          TEXT    NOT NULL,
	take_profit_pct REAL    NOT NULL,
	stop_loss_pct   REAL    NOT NULL,
	initial_capital REAL    NOT NULL,
	final_capital   REAL    NOT NULL,
	start_ms        INTEGER NOT NULL,
	end_ms          INTEGER NOT NULL,
	trade_count     INTEGER NOT NULL,
	created_ms      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol);
CREATE TABLE IF NOT EXISTS trades (
	run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	symbol      TEXT    NOT NULL,
	entry_ms    INTEGER NOT NULL,
	exit_ms     INTEGER NOT NULL,
	entry_price REAL    NOT NULL,
	exit_price  REAL    NOT NULL,
	gain        REAL    NOT NULL,
	reason      TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// tables if needed, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY under concurrent API requests.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts the run and its trades in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.Run, trades []domain.Trade) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (strategy, symbol, take_profit_pct, stop_loss_pct, initial_capital,
			final_capital, start_ms, end_ms, trade_count, created_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Strategy, run.Symbol, run.TakeProfitPct, run.StopLossPct, run.InitialCapital,
		run.FinalCapital, run.Start.UnixMilli(), run.End.UnixMilli(), run.TradeCount, run.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, seq, symbol, entry_ms, exit_ms, entry_price, exit_price, gain, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, t := range trades {
		if _, err := stmt.ExecContext(ctx, id, i, t.Symbol, t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(),
			t.EntryPrice, t.ExitPrice, t.Gain, string(t.Reason)); err != nil {
			return fmt.Errorf("inserting trade %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id
	return nil
}

const runColumns = `id, strategy, symbol, take_profit_pct, stop_loss_pct, initial_capital,
	final_capital, start_ms, end_ms, trade_count, created_ms`

// GetRun retrieves a single run by its ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, symbol string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs
		WHERE ? = '' OR symbol = ?
		ORDER BY id DESC LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListTrades returns the closed trades of a run in exit order.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, entry_ms, exit_ms, entry_price, exit_price, gain, reason
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			t               domain.Trade
			entryMs, exitMs int64
			reason          string
		)
		if err := rows.Scan(&t.Symbol, &entryMs, &exitMs, &t.EntryPrice, &t.ExitPrice, &t.Gain, &reason); err != nil {
			return nil, err
		}
		t.EntryTime = time.UnixMilli(entryMs).UTC()
		t.ExitTime = time.UnixMilli(exitMs).UTC()
		t.Reason = domain.ExitReason(reason)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ---------------------------------------------------------------------------
// Scan helpers
// ---------------------------------------------------------------------------

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*domain.Run, error) {
	var (
		r                          domain.Run
		startMs, endMs, createdMs int64
	)
	if err := sc.Scan(&r.ID, &r.Strategy, &r.Symbol, &r.TakeProfitPct, &r.StopLossPct, &r.InitialCapital,
		&r.FinalCapital, &startMs, &endMs, &r.TradeCount, &createdMs); err != nil {
		return nil, err
	}
	r.Start = time.UnixMilli(startMs).UTC()
	r.End = time.UnixMilli(endMs).UTC()
	r.CreatedAt = time.UnixMilli(createdMs).UTC()
	return &r, nil
}
