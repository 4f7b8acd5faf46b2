package jobpool

import "sync/atomic"

// Counter tracks the outstanding jobs of one submitted batch.
// The pool decrements it as each job finishes; holders only read it.
type Counter struct {
	n atomic.Int64
}

// NewCounter returns a counter starting at n outstanding jobs.
func NewCounter(n int) *Counter {
	c := &Counter{}
	c.n.Store(int64(n))
	return c
}

// Value returns the number of jobs still outstanding.
// A nil counter reports zero.
func (c *Counter) Value() int {
	if c == nil {
		return 0
	}
	return int(c.n.Load())
}

// Done marks one job of the batch as finished.
func (c *Counter) Done() {
	if c.n.Add(-1) < 0 {
		panic("jobpool: counter decremented below zero")
	}
}
