package scheduler

import "context"

// Scheduler drives frame updates until stopped.
type Scheduler interface {
	// Start begins the tick loop. Blocks until ctx is cancelled, Stop is
	// called, or the tick limit is reached.
	Start(ctx context.Context) error

	// Stop asks the loop to exit and waits for the current tick to finish.
	Stop() error

	// Tick runs a single frame update. Used for testing.
	Tick(ctx context.Context) error
}
