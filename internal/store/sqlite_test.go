package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/me/framephase/pkg/model"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
	st, err := NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRun(id string, started time.Time) *model.Run {
	return &model.Run{
		ID:         id,
		Label:      "bench",
		PhasesPath: "update_phases.yaml",
		Blocks:     3,
		Workers:    4,
		StartedAt:  started,
	}
}

func sampleEvents(n int) []model.Event {
	now := time.Now().UTC().Truncate(time.Millisecond)
	kinds := []model.EventKind{model.EventRowSubmitted, model.EventFrameCompleted, model.EventStalled}
	events := make([]model.Event, n)
	for i := range events {
		events[i] = model.Event{
			Tick:   uint64(i + 1),
			Block:  i % 2,
			Kind:   kinds[i%len(kinds)],
			Frame:  i % 3,
			Row:    i % 4,
			Jobs:   i,
			Cycles: uint64(i / 3),
			At:     now.Add(time.Duration(i) * time.Millisecond),
		}
		if events[i].Kind == model.EventStalled {
			events[i].Reason = model.StallDownstream
		}
	}
	return events
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrate_AddsColumnsToOldSchema(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trace.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	// A database created before reason and label existed.
	for _, stmt := range schema[:2] {
		if _, err := st.db.ExecContext(ctx, stmt); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := hasColumn(ctx, st.db, "block_events", "reason"); ok {
		t.Fatal("fresh schema should not have reason yet")
	}

	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, c := range []struct{ table, column string }{{"block_events", "reason"}, {"runs", "label"}} {
		ok, err := hasColumn(ctx, st.db, c.table, c.column)
		if err != nil || !ok {
			t.Errorf("%s.%s missing after migrate (err %v)", c.table, c.column, err)
		}
	}
}

func TestRun_CRUD(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)

	if err := st.CreateRun(ctx, sampleRun("run_1", started)); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := st.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.Label != "bench" || got.Blocks != 3 || got.Workers != 4 || got.PhasesPath != "update_phases.yaml" {
		t.Errorf("run = %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.FinishedAt != nil {
		t.Error("FinishedAt should be nil before FinishRun")
	}

	if err := st.FinishRun(ctx, "run_1", 1234); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	got, _ = st.GetRun(ctx, "run_1")
	if got.Ticks != 1234 {
		t.Errorf("Ticks = %d, want 1234", got.Ticks)
	}
	if got.FinishedAt == nil {
		t.Error("FinishedAt not set")
	}
}

func TestGetRun_NotFound(t *testing.T) {
	st := testStore(t)
	got, err := st.GetRun(context.Background(), "run_missing")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestFinishRun_NotFound(t *testing.T) {
	st := testStore(t)
	if err := st.FinishRun(context.Background(), "run_missing", 1); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		if err := st.CreateRun(ctx, sampleRun(fmt.Sprintf("run_%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}

	runs, total, err := st.ListRuns(ctx, model.ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(runs) != 2 || runs[0].ID != "run_3" || runs[1].ID != "run_2" {
		ids := make([]string, len(runs))
		for i, r := range runs {
			ids[i] = r.ID
		}
		t.Errorf("page = %v, want [run_3 run_2]", ids)
	}
}

func TestEvents_RoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.CreateRun(ctx, sampleRun("run_1", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}

	want := sampleEvents(9)
	if err := st.InsertEvents(ctx, "run_1", want); err != nil {
		t.Fatalf("InsertEvents: %v", err)
	}

	got, total, err := st.ListEvents(ctx, "run_1", model.EventFilter{}, model.DefaultListOptions())
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != len(want) || len(got) != len(want) {
		t.Fatalf("got %d events (total %d), want %d", len(got), total, len(want))
	}
	for i := range want {
		w := want[i]
		w.RunID = "run_1"
		if !got[i].At.Equal(w.At) {
			t.Errorf("event %d At = %v, want %v", i, got[i].At, w.At)
		}
		got[i].At = w.At
		if got[i] != w {
			t.Errorf("event %d = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestInsertEvents_Empty(t *testing.T) {
	st := testStore(t)
	if err := st.InsertEvents(context.Background(), "run_none", nil); err != nil {
		t.Errorf("InsertEvents(nil) = %v", err)
	}
}

func TestInsertEvents_UnknownRunRejected(t *testing.T) {
	st := testStore(t)
	if err := st.InsertEvents(context.Background(), "run_ghost", sampleEvents(1)); err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestListEvents_Filters(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.CreateRun(ctx, sampleRun("run_1", time.Now().UTC()))
	st.CreateRun(ctx, sampleRun("run_2", time.Now().UTC()))
	if err := st.InsertEvents(ctx, "run_1", sampleEvents(12)); err != nil {
		t.Fatal(err)
	}
	if err := st.InsertEvents(ctx, "run_2", sampleEvents(3)); err != nil {
		t.Fatal(err)
	}

	block1 := 1
	tests := []struct {
		name   string
		filter model.EventFilter
		opts   model.ListOptions
		total  int
		page   int
	}{
		{"all", model.EventFilter{}, model.ListOptions{Limit: 50}, 12, 12},
		{"block", model.EventFilter{Block: &block1}, model.ListOptions{Limit: 50}, 6, 6},
		{"kind", model.EventFilter{Kind: model.EventStalled}, model.ListOptions{Limit: 50}, 4, 4},
		{"block and kind", model.EventFilter{Block: &block1, Kind: model.EventFrameCompleted}, model.ListOptions{Limit: 50}, 2, 2},
		{"paged", model.EventFilter{}, model.ListOptions{Limit: 5, Offset: 10}, 12, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, total, err := st.ListEvents(ctx, "run_1", tt.filter, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.total || len(events) != tt.page {
				t.Errorf("got %d of %d, want %d of %d", len(events), total, tt.page, tt.total)
			}
			for _, ev := range events {
				if ev.RunID != "run_1" {
					t.Errorf("event from run %s leaked", ev.RunID)
				}
			}
		})
	}
}

func TestCountEvents(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	st.CreateRun(ctx, sampleRun("run_1", time.Now().UTC()))
	if err := st.InsertEvents(ctx, "run_1", sampleEvents(7)); err != nil {
		t.Fatal(err)
	}

	counts, err := st.CountEvents(ctx, "run_1")
	if err != nil {
		t.Fatal(err)
	}
	want := map[model.EventKind]int{
		model.EventRowSubmitted:   3,
		model.EventFrameCompleted: 2,
		model.EventStalled:        2,
	}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("%s = %d, want %d", k, counts[k], n)
		}
	}
}
