package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the trace tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		phases_path TEXT NOT NULL DEFAULT '',
		blocks      INTEGER NOT NULL DEFAULT 0,
		workers     INTEGER NOT NULL DEFAULT 0,
		ticks       INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS block_events (
		seq     INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		tick    INTEGER NOT NULL,
		block   INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		frame   INTEGER NOT NULL,
		row     INTEGER NOT NULL,
		jobs    INTEGER NOT NULL DEFAULT 0,
		cycles  INTEGER NOT NULL DEFAULT 0,
		at      TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_block_events_run ON block_events(run_id, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_block_events_run_block ON block_events(run_id, block)`,
	`CREATE INDEX IF NOT EXISTS idx_block_events_run_kind ON block_events(run_id, kind)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "block_events",
		column:   "reason",
		alterSQL: "ALTER TABLE block_events ADD COLUMN reason TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "runs",
		column:   "label",
		alterSQL: "ALTER TABLE runs ADD COLUMN label TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_runs_label ON runs(label)",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}
	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := hasColumn(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

// hasColumn reports whether table has column. The result set is closed
// before returning so a single-connection pool can run the ALTER.
func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
