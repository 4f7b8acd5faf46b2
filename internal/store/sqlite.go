package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/framephase/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, phases_path, blocks, workers, ticks, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.PhasesPath, run.Blocks, run.Workers, int64(run.Ticks),
		run.StartedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, phases_path, blocks, workers, ticks, started_at, finished_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, phases_path, blocks, workers, ticks, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// FinishRun records the final tick count and completion time of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, ticks uint64) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ticks = ?, finished_at = ? WHERE id = ?`,
		int64(ticks), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: not found", id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.Run, error) {
	var run model.Run
	var ticks int64
	var startedAt string
	var finishedAt sql.NullString

	if err := sc.Scan(&run.ID, &run.Label, &run.PhasesPath, &run.Blocks, &run.Workers, &ticks,
		&startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Ticks = uint64(ticks)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
		run.FinishedAt = &t
	}
	return &run, nil
}

// --- Events ---

// InsertEvents appends events to a run in one transaction.
func (s *SQLiteStore) InsertEvents(ctx context.Context, runID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "block_events", "run_id", runID, "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO block_events (run_id, tick, block, kind, frame, row, jobs, cycles, reason, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			runID, int64(ev.Tick), ev.Block, string(ev.Kind), ev.Frame, ev.Row, ev.Jobs,
			int64(ev.Cycles), string(ev.Reason), ev.At.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert event (tick %d, block %d): %w", ev.Tick, ev.Block, err)
		}
	}
	return tx.Commit()
}

// ListEvents returns a run's events in emission order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, filter model.EventFilter, opts model.ListOptions) ([]model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "block_events", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	where := []string{"run_id = ?"}
	args := []any{runID}
	if filter.Block != nil {
		where = append(where, "block = ?")
		args = append(args, *filter.Block)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM block_events WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, tick, block, kind, frame, row, jobs, cycles, reason, at
		 FROM block_events WHERE `+clause+` ORDER BY seq LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var tick, cycles int64
		var kind, reason, at string
		if err := rows.Scan(&ev.RunID, &tick, &ev.Block, &kind, &ev.Frame, &ev.Row, &ev.Jobs,
			&cycles, &reason, &at); err != nil {
			return nil, 0, err
		}
		ev.Tick = uint64(tick)
		ev.Cycles = uint64(cycles)
		ev.Kind = model.EventKind(kind)
		ev.Reason = model.StallReason(reason)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// CountEvents returns the number of events per kind recorded for a run.
func (s *SQLiteStore) CountEvents(ctx context.Context, runID string) (map[model.EventKind]int, error) {
	s.logger.Debug("sql", "op", "count", "table", "block_events", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM block_events WHERE run_id = ? GROUP BY kind`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.EventKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[model.EventKind(kind)] = n
	}
	return counts, rows.Err()
}
