// Package trace buffers scheduler events and writes them to the trace store.
package trace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/framephase/internal/store"
	"github.com/me/framephase/pkg/model"
)

// DefaultLimit caps the number of buffered events between flushes.
const DefaultLimit = 100_000

// Collector is a phases.Observer that buffers events for one run.
// Observe and Flush may be called from different goroutines.
type Collector struct {
	runID  string
	store  store.Store
	logger *slog.Logger
	limit  int

	mu      sync.Mutex
	buf     []model.Event
	dropped uint64
	written uint64
}

// NewCollector creates a collector writing events for runID into st.
// limit <= 0 selects DefaultLimit.
func NewCollector(st store.Store, runID string, limit int, logger *slog.Logger) *Collector {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Collector{
		runID:  runID,
		store:  st,
		logger: logger.With("component", "trace", "run_id", runID),
		limit:  limit,
	}
}

// RunID returns the run the collector writes to.
func (c *Collector) RunID() string { return c.runID }

// Observe buffers ev. Events past the buffer limit are dropped and counted.
func (c *Collector) Observe(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) >= c.limit {
		c.dropped++
		return
	}
	ev.RunID = c.runID
	c.buf = append(c.buf, ev)
}

// Pending returns the number of buffered events.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Stats returns how many events were written and dropped so far.
func (c *Collector) Stats() (written, dropped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written, c.dropped
}

// Flush writes buffered events to the store. On failure the batch is put
// back in front of any events observed meanwhile.
func (c *Collector) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.buf
	c.buf = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := c.store.InsertEvents(ctx, c.runID, batch); err != nil {
		c.mu.Lock()
		c.buf = append(batch, c.buf...)
		c.mu.Unlock()
		return fmt.Errorf("flush %d events: %w", len(batch), err)
	}

	c.mu.Lock()
	c.written += uint64(len(batch))
	c.mu.Unlock()
	c.logger.Debug("trace flushed", "events", len(batch))
	return nil
}
