package system

import (
	"sync/atomic"
	"time"

	"github.com/me/framephase/internal/jobpool"
)

// Noop does nothing.
type Noop struct{}

func (*Noop) Init() error { return nil }

func (*Noop) Update(jobpool.ThreadContext) {}

// Sleep blocks its thread for Duration each update, standing in for
// I/O-bound work.
type Sleep struct {
	Duration time.Duration
}

func (s *Sleep) Init() error { return nil }

func (s *Sleep) Update(jobpool.ThreadContext) {
	time.Sleep(s.Duration)
}

// Spin burns CPU for Iterations rounds each update.
type Spin struct {
	Iterations int

	sink atomic.Uint64
}

func (s *Spin) Init() error { return nil }

func (s *Spin) Update(jobpool.ThreadContext) {
	x := uint64(2166136261)
	for i := 0; i < s.Iterations; i++ {
		x ^= uint64(i)
		x *= 16777619
	}
	s.sink.Store(x)
}

// Counter counts its updates.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Init() error { return nil }

func (c *Counter) Update(jobpool.ThreadContext) {
	c.n.Add(1)
}

// Count returns the number of updates so far.
func (c *Counter) Count() int64 {
	return c.n.Load()
}
