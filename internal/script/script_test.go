package script

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/me/framephase/internal/jobpool"
)

func TestNew_RequiresUpdate(t *testing.T) {
	_, err := New("empty", "var x = 1;")
	if !errors.Is(err, ErrNoUpdate) {
		t.Fatalf("err = %v, want ErrNoUpdate", err)
	}
}

func TestNew_SyntaxError(t *testing.T) {
	_, err := New("broken", "function update( {")
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !strings.Contains(err.Error(), "compile script broken") {
		t.Errorf("err = %q, want compile context", err)
	}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		{"no init", "function update(ctx) {}", false},
		{"init true", "function init() { return true; } function update(ctx) {}", false},
		{"init undefined", "function init() {} function update(ctx) {}", false},
		{"init false", "function init() { return false; } function update(ctx) {}", true},
		{"init throws", "function init() { throw new Error('nope'); } function update(ctx) {}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.name, tt.src)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			err = s.Init()
			if (err != nil) != tt.wantErr {
				t.Errorf("Init() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdate_SeesThreadAndCalls(t *testing.T) {
	src := `
var lastThread = -1;
var total = 0;
function update(ctx) { lastThread = ctx.thread; total += ctx.calls; }
`
	s, err := New("counter", src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	s.Update(jobpool.ThreadContext{ThreadID: 3})
	s.Update(jobpool.ThreadContext{ThreadID: 2})

	if s.Calls() != 2 {
		t.Errorf("Calls = %d, want 2", s.Calls())
	}
	if got := s.Get("lastThread"); got != int64(2) {
		t.Errorf("lastThread = %v (%T), want 2", got, got)
	}
	if got := s.Get("total"); got != int64(3) {
		t.Errorf("total = %v (%T), want 3", got, got)
	}
}

func TestUpdate_ExceptionLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	s, err := New("thrower", "function update(ctx) { throw new Error('bad frame'); }")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Update(jobpool.ThreadContext{ThreadID: 1, Logger: logger})

	if s.Errors() != 1 {
		t.Errorf("Errors = %d, want 1", s.Errors())
	}
	if !strings.Contains(buf.String(), "script update failed") {
		t.Errorf("expected warning in log, got: %s", buf.String())
	}
}
