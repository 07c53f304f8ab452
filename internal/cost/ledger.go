// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package cost

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Ledger persists every cost record to SQLite. It is append-only from
// the tracker's point of view; rows are never updated.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (or creates) the cost ledger database at dbPath.
func OpenLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, veererr.Wrap(err, veererr.CodeCostLedgerOpenFailure, "opening cost ledger")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, veererr.Wrap(err, veererr.CodeCostLedgerOpenFailure, "pinging cost ledger")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, veererr.Wrap(err, veererr.CodeCostLedgerOpenFailure, "migrating cost ledger")
	}

	return &Ledger{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS cost_records (
	rowid           INTEGER PRIMARY KEY AUTOINCREMENT,
	provider        TEXT NOT NULL,
	model           TEXT NOT NULL,
	caller          TEXT NOT NULL DEFAULT '',
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0,
	total_tokens    INTEGER NOT NULL DEFAULT 0,
	input_cost_usd  REAL NOT NULL DEFAULT 0,
	output_cost_usd REAL NOT NULL DEFAULT 0,
	total_cost_usd  REAL NOT NULL DEFAULT 0,
	recorded_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cost_records_model ON cost_records(model);
CREATE INDEX IF NOT EXISTS idx_cost_records_recorded ON cost_records(recorded_at);
`
	_, err := db.Exec(ddl)
	return err
}

// Append writes one cost record.
func (l *Ledger) Append(ctx context.Context, rec Record, caller string) error {
	const q = `
INSERT INTO cost_records
	(provider, model, caller, input_tokens, output_tokens, total_tokens,
	 input_cost_usd, output_cost_usd, total_cost_usd, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := l.db.ExecContext(ctx, q,
		rec.Provider, rec.Model, caller,
		rec.Usage.InputTokens, rec.Usage.OutputTokens, rec.Usage.TotalTokens,
		rec.InputCostUSD, rec.OutputCostUSD, rec.TotalCostUSD,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return veererr.Wrap(err, veererr.CodeCostLedgerAppendFailure, "inserting cost record",
			veererr.FieldProvider(rec.Provider), veererr.FieldModel(rec.Model))
	}
	return nil
}

// ModelTotal is one row of the per-model rollup query.
type ModelTotal struct {
	Model        string  `json:"model"`
	Provider     string  `json:"provider"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// ModelTotals aggregates the ledger by model, most expensive first.
func (l *Ledger) ModelTotals(ctx context.Context) ([]ModelTotal, error) {
	const q = `
SELECT model, provider, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(total_cost_usd)
FROM cost_records
GROUP BY model, provider
ORDER BY SUM(total_cost_usd) DESC`

	rows, err := l.db.QueryContext(ctx, q)
	if err != nil {
		return nil, veererr.Wrap(err, veererr.CodeCostLedgerQueryFailure, "querying model totals")
	}
	defer rows.Close()

	var out []ModelTotal
	for rows.Next() {
		var mt ModelTotal
		if err := rows.Scan(&mt.Model, &mt.Provider, &mt.Requests,
			&mt.InputTokens, &mt.OutputTokens, &mt.TotalCostUSD); err != nil {
			return nil, veererr.Wrap(err, veererr.CodeCostLedgerQueryFailure, "scanning model totals")
		}
		out = append(out, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, veererr.Wrap(err, veererr.CodeCostLedgerQueryFailure, "iterating model totals")
	}
	return out, nil
}

// DailyTotal is one row of the per-day rollup query.
type DailyTotal struct {
	Date         string  `json:"date"`
	Requests     int64   `json:"requests"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// DailyTotals aggregates the ledger by UTC calendar day, newest first.
func (l *Ledger) DailyTotals(ctx context.Context) ([]DailyTotal, error) {
	const q = `
SELECT substr(recorded_at, 1, 10), COUNT(*), SUM(total_cost_usd)
FROM cost_records
GROUP BY substr(recorded_at, 1, 10)
ORDER BY 1 DESC`

	rows, err := l.db.QueryContext(ctx, q)
	if err != nil {
		return nil, veererr.Wrap(err, veererr.CodeCostLedgerQueryFailure, "querying daily totals")
	}
	defer rows.Close()

	var out []DailyTotal
	for rows.Next() {
		var dt DailyTotal
		if err := rows.Scan(&dt.Date, &dt.Requests, &dt.TotalCostUSD); err != nil {
			return nil, veererr.Wrap(err, veererr.CodeCostLedgerQueryFailure, "scanning daily totals")
		}
		out = append(out, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, veererr.Wrap(err, veererr.CodeCostLedgerQueryFailure, "iterating daily totals")
	}
	return out, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
