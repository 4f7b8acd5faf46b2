package store

import (
	"context"

	"github.com/me/framephase/pkg/model"
)

// Store persists scheduler runs and their frame trace events.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	FinishRun(ctx context.Context, id string, ticks uint64) error

	// Events
	InsertEvents(ctx context.Context, runID string, events []model.Event) error
	ListEvents(ctx context.Context, runID string, filter model.EventFilter, opts model.ListOptions) ([]model.Event, int, error)
	CountEvents(ctx context.Context, runID string) (map[model.EventKind]int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
