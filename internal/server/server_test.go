package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/me/framephase/internal/jobpool"
	"github.com/me/framephase/internal/store"
	"github.com/me/framephase/pkg/model"
)

// fakeStatus serves a fixed snapshot.
type fakeStatus struct {
	blocks  []model.BlockState
	ticks   uint64
	running bool
}

func (f *fakeStatus) Snapshot() []model.BlockState { return f.blocks }
func (f *fakeStatus) Ticks() uint64                { return f.ticks }
func (f *fakeStatus) Running() bool                { return f.running }

type fakePool struct{}

func (fakePool) Stats() jobpool.Stats {
	return jobpool.Stats{Workers: 4, Submitted: 10, Completed: 9}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStatus() *fakeStatus {
	return &fakeStatus{
		ticks:   42,
		running: true,
		blocks: []model.BlockState{
			{Index: 0, Status: model.BlockStatusRunning, Frame: 2, CurrRow: 1, Counter: 3, Cycles: 14,
				Rows: []model.RowState{{Systems: []string{"input"}}, {Systems: []string{"physics", "animation"}}}},
			{Index: 1, Status: model.BlockStatusIdle, Frame: 1, CurrRow: -1, Counter: -1, Cycles: 13,
				Rows: []model.RowState{{Systems: []string{"render"}}}},
		},
	}
}

func testServer() *Server {
	return New(testStatus(), testLogger(), WithPool(fakePool{}))
}

// testServerWithStore returns a server backed by an in-memory trace store
// holding one run with six events.
func testServerWithStore(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.CreateRun(ctx, &model.Run{ID: "run_1", Blocks: 2, StartedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	events := []model.Event{
		{Tick: 1, Block: 0, Kind: model.EventRowSubmitted, Row: 0, Jobs: 1, At: now},
		{Tick: 1, Block: 1, Kind: model.EventStalled, Row: -1, Reason: model.StallUpstream, At: now},
		{Tick: 2, Block: 0, Kind: model.EventFrameCompleted, Frame: 1, Row: -1, Cycles: 1, At: now},
		{Tick: 2, Block: 0, Kind: model.EventRowSubmitted, Frame: 1, Row: 0, Jobs: 1, Cycles: 1, At: now},
		{Tick: 2, Block: 1, Kind: model.EventRowSubmitted, Row: 0, Jobs: 2, At: now},
		{Tick: 3, Block: 1, Kind: model.EventFrameCompleted, Frame: 1, Row: -1, Cycles: 1, At: now},
	}
	if err := st.InsertEvents(ctx, "run_1", events); err != nil {
		t.Fatal(err)
	}
	return New(testStatus(), testLogger(), WithStore(st), WithRunID("run_1"))
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv *Server, path string, wantCode int) envelope {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantCode {
		t.Fatalf("GET %s: status=%d, want %d, body=%s", path, w.Code, wantCode, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("GET %s: invalid JSON: %v", path, err)
	}
	return env
}

func doGet(t *testing.T, srv *Server, path string) envelope {
	t.Helper()
	return do(t, srv, path, http.StatusOK)
}

func TestDiscovery(t *testing.T) {
	env := doGet(t, testServer(), "/api/v1/")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Name != "framephase API" {
		t.Errorf("name = %q, want framephase API", data.Name)
	}
	if len(data.Endpoints) != 6 {
		t.Errorf("endpoints count = %d, want 6", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	env := doGet(t, testServer(), "/api/v1/health")

	var data healthResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Status != "healthy" || data.Version != Version {
		t.Errorf("health = %+v", data)
	}
	if data.GoVersion == "" {
		t.Error("go_version is empty")
	}
	if data.Scheduler != "running" || data.Ticks != 42 || data.Blocks != 2 {
		t.Errorf("scheduler = %q ticks = %d blocks = %d", data.Scheduler, data.Ticks, data.Blocks)
	}
	if data.Store != "disabled" {
		t.Errorf("store = %q, want disabled", data.Store)
	}
	if data.Pool == nil || data.Pool.Workers != 4 || data.Pool.Completed != 9 {
		t.Errorf("pool = %+v", data.Pool)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req_client")
	w := httptest.NewRecorder()
	testServer().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req_client" {
		t.Errorf("X-Request-ID = %q, want req_client", got)
	}
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.RequestID != "req_client" {
		t.Errorf("request_id = %q, want req_client", env.RequestID)
	}
}

func TestListBlocks(t *testing.T) {
	env := doGet(t, testServer(), "/api/v1/blocks")

	var blocks []model.BlockState
	if err := json.Unmarshal(env.Data, &blocks); err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if blocks[0].Status != model.BlockStatusRunning || blocks[0].Counter != 3 {
		t.Errorf("block 0 = %+v", blocks[0])
	}
	if got := blocks[0].Rows[1].Systems; len(got) != 2 || got[1] != "animation" {
		t.Errorf("block 0 row 1 = %v", got)
	}
}

func TestListBlocks_EmptyIsArray(t *testing.T) {
	srv := New(&fakeStatus{}, testLogger())
	env := doGet(t, srv, "/api/v1/blocks")
	if string(env.Data) != "[]" {
		t.Errorf("data = %s, want []", env.Data)
	}
}

func TestGetBlock(t *testing.T) {
	srv := testServer()

	env := doGet(t, srv, "/api/v1/blocks/1")
	var b model.BlockState
	json.Unmarshal(env.Data, &b)
	if b.Index != 1 || b.Status != model.BlockStatusIdle || b.CurrRow != -1 {
		t.Errorf("block = %+v", b)
	}

	tests := []struct {
		path string
		code int
		err  model.ErrorCode
	}{
		{"/api/v1/blocks/2", http.StatusNotFound, model.ErrNotFound},
		{"/api/v1/blocks/-1", http.StatusNotFound, model.ErrNotFound},
		{"/api/v1/blocks/abc", http.StatusBadRequest, model.ErrValidation},
	}
	for _, tt := range tests {
		env := do(t, srv, tt.path, tt.code)
		if env.Status != "error" || env.Error == nil || env.Error.Code != tt.err {
			t.Errorf("%s: envelope = %+v, want %s", tt.path, env, tt.err)
		}
	}
}

func TestRuns_WithoutStore(t *testing.T) {
	srv := testServer()
	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/run_1", "/api/v1/runs/run_1/events"} {
		env := do(t, srv, path, http.StatusServiceUnavailable)
		if env.Error == nil || env.Error.Code != model.ErrUnavailable {
			t.Errorf("%s: error = %+v, want UNAVAILABLE", path, env.Error)
		}
	}
}

func TestListRuns(t *testing.T) {
	env := doGet(t, testServerWithStore(t), "/api/v1/runs")

	var runs []model.Run
	if err := json.Unmarshal(env.Data, &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run_1" {
		t.Errorf("runs = %+v", runs)
	}
	if env.Pagination == nil || env.Pagination.Total != 1 || env.Pagination.HasMore {
		t.Errorf("pagination = %+v", env.Pagination)
	}
}

func TestListRuns_BadQuery(t *testing.T) {
	env := do(t, testServerWithStore(t), "/api/v1/runs?limit=ten", http.StatusBadRequest)
	if env.Error == nil || len(env.Error.Details) != 1 || env.Error.Details[0].Field != "limit" {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestGetRun(t *testing.T) {
	srv := testServerWithStore(t)
	env := doGet(t, srv, "/api/v1/runs/run_1")

	var data struct {
		ID     string         `json:"id"`
		Blocks int            `json:"blocks"`
		Events map[string]int `json:"events"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.ID != "run_1" || data.Blocks != 2 {
		t.Errorf("run = %+v", data)
	}
	if data.Events["row_submitted"] != 3 || data.Events["frame_completed"] != 2 || data.Events["stalled"] != 1 {
		t.Errorf("events = %v", data.Events)
	}

	env = do(t, srv, "/api/v1/runs/run_nope", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestListEvents(t *testing.T) {
	srv := testServerWithStore(t)

	tests := []struct {
		name    string
		query   string
		want    int
		total   int
		hasMore bool
	}{
		{"all", "", 6, 6, false},
		{"block", "?block=1", 3, 3, false},
		{"kind", "?kind=frame_completed", 2, 2, false},
		{"block and kind", "?block=0&kind=row_submitted", 2, 2, false},
		{"paged", "?limit=4", 4, 6, true},
		{"second page", "?limit=4&offset=4", 2, 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := doGet(t, srv, "/api/v1/runs/run_1/events"+tt.query)
			var events []model.Event
			if err := json.Unmarshal(env.Data, &events); err != nil {
				t.Fatal(err)
			}
			if len(events) != tt.want {
				t.Errorf("events = %d, want %d", len(events), tt.want)
			}
			if env.Pagination.Total != tt.total || env.Pagination.HasMore != tt.hasMore {
				t.Errorf("pagination = %+v", env.Pagination)
			}
		})
	}
}

func TestListEvents_BadQuery(t *testing.T) {
	srv := testServerWithStore(t)
	env := do(t, srv, "/api/v1/runs/run_1/events?block=x&kind=exploded", http.StatusBadRequest)
	if env.Error == nil || len(env.Error.Details) != 2 {
		t.Errorf("error = %+v, want two field errors", env.Error)
	}

	do(t, srv, "/api/v1/runs/run_nope/events", http.StatusNotFound)
}

func TestNotFoundRoute(t *testing.T) {
	env := do(t, testServer(), "/api/v1/nope", http.StatusNotFound)
	if env.Error == nil || env.Error.Code != model.ErrNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}
