package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradelab/internal/backtest"
)

// Journal persists backtest runs and their trades for later analysis.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		strategy    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		summary     TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS trades (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id         TEXT NOT NULL REFERENCES runs(run_id),
		strategy       TEXT NOT NULL,
		entry_index    INTEGER NOT NULL,
		exit_index     INTEGER NOT NULL,
		entry_time     DATETIME,
		exit_time      DATETIME,
		entry_price    REAL NOT NULL,
		exit_price     REAL NOT NULL,
		shares         REAL NOT NULL,
		short          INTEGER NOT NULL,
		capital_before REAL NOT NULL,
		capital_after  REAL NOT NULL,
		pnl            REAL NOT NULL,
		reason         TEXT NOT NULL,
		forced         INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id);
	CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("trade journal opened", "path", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// RecordReport stores the report summary and every trade under runID in one
// transaction.
func (j *Journal) RecordReport(ctx context.Context, runID, symbol string, r *backtest.Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	summary, err := json.Marshal(r.Summary())
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, strategy, symbol, summary) VALUES (?, ?, ?, ?)`,
		runID, r.Strategy(), symbol, string(summary),
	); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, strategy, entry_index, exit_index, entry_time, exit_time,
			entry_price, exit_price, shares, short, capital_before, capital_after, pnl, reason, forced)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range r.Trades() {
		if _, err := stmt.ExecContext(ctx,
			runID, r.Strategy(), t.EntryIndex, t.ExitIndex,
			formatTime(t.EntryTime), formatTime(t.ExitTime),
			t.EntryPrice, t.ExitPrice, t.Shares, t.Short,
			t.CapitalBefore, t.CapitalAfter, t.PnL, string(t.Reason), t.Forced,
		); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return tx.Commit()
}

// TradeRecord represents a row from the trades table.
type TradeRecord struct {
	ID         int64   `json:"id"`
	RunID      string  `json:"run_id"`
	Strategy   string  `json:"strategy"`
	EntryIndex int     `json:"entry_index"`
	ExitIndex  int     `json:"exit_index"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
	Reason     string  `json:"reason"`
	Forced     bool    `json:"forced"`
}

// Trades returns the trades of runID in entry order.
func (j *Journal) Trades(ctx context.Context, runID string) ([]TradeRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, strategy, entry_index, exit_index, entry_price, exit_price, pnl, reason, forced
		 FROM trades WHERE run_id = ? ORDER BY entry_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.RunID, &t.Strategy, &t.EntryIndex, &t.ExitIndex,
			&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.Reason, &t.Forced); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Summary loads the stored summary of runID.
func (j *Journal) Summary(ctx context.Context, runID string) (backtest.Summary, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var s backtest.Summary
	var data string
	if err := j.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE run_id = ?`, runID).Scan(&data); err != nil {
		return s, fmt.Errorf("run %s: %w", runID, err)
	}
	return s, json.Unmarshal([]byte(data), &s)
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
