// Package jobpool runs batches of jobs on a fixed set of worker goroutines.
// Each batch is tracked by a Counter that reaches zero once every job in it
// has finished. Callers waiting on a batch can contribute their own goroutine
// with HelpOnce instead of idling.
package jobpool

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

// ConductorThread is the thread ID used by the goroutine that drives the
// pool from outside (submitting batches and helping).
const ConductorThread = 0

// ThreadContext identifies the goroutine a job runs on.
type ThreadContext struct {
	ThreadID int
	Logger   *slog.Logger
}

// Job is one unit of work in a batch.
type Job struct {
	Name string
	Run  func(tc ThreadContext)
}

// Stats is a point-in-time view of pool activity.
type Stats struct {
	Workers   int    `json:"workers"`
	Queued    int    `json:"queued"`
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Helped    uint64 `json:"helped"`
	Panicked  uint64 `json:"panicked"`
}

type task struct {
	job     Job
	counter *Counter
}

// Pool is a FIFO worker pool.
type Pool struct {
	logger  *slog.Logger
	workers int
	threads []*slog.Logger // per-thread loggers, index = thread ID

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []task
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Uint64
	completed atomic.Uint64
	helped    atomic.Uint64
	panicked  atomic.Uint64
}

// New starts a pool with the given number of workers.
// If workers <= 0, runtime.NumCPU() workers are started.
func New(workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		logger:  logger.With("component", "jobpool"),
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)
	p.threads = make([]*slog.Logger, workers+1)
	for i := range p.threads {
		p.threads[i] = p.logger.With("thread", i)
	}

	p.wg.Add(workers)
	for i := 1; i <= workers; i++ {
		go p.worker(i)
	}
	p.logger.Debug("pool started", "workers", workers)
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit enqueues jobs as one batch and returns its counter.
// An empty batch returns a counter that is already zero.
// After Close, the batch runs inline on the calling goroutine.
func (p *Pool) Submit(jobs []Job) *Counter {
	c := NewCounter(len(jobs))
	if len(jobs) == 0 {
		return c
	}
	p.submitted.Add(uint64(len(jobs)))

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		for _, j := range jobs {
			p.run(task{job: j, counter: c}, ConductorThread)
		}
		return c
	}
	for _, j := range jobs {
		p.queue = append(p.queue, task{job: j, counter: c})
	}
	p.mu.Unlock()

	if len(jobs) == 1 {
		p.cond.Signal()
	} else {
		p.cond.Broadcast()
	}
	return c
}

// HelpOnce runs at most one pending job on the calling goroutine.
// It never blocks waiting for work and reports whether a job was run.
func (p *Pool) HelpOnce(threadID int) bool {
	t, ok := p.pop()
	if !ok {
		return false
	}
	p.helped.Add(1)
	p.run(t, threadID)
	return true
}

// Wait helps the pool until c reaches zero.
func (p *Pool) Wait(c *Counter, threadID int) {
	for c.Value() > 0 {
		if !p.HelpOnce(threadID) {
			runtime.Gosched()
		}
	}
}

// Close stops accepting queued work, lets the workers drain what is
// already queued, and waits for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()

	p.wg.Wait()
	p.logger.Debug("pool stopped", "completed", p.completed.Load())
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := len(p.queue)
	p.mu.Unlock()
	return Stats{
		Workers:   p.workers,
		Queued:    queued,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Helped:    p.helped.Load(),
		Panicked:  p.panicked.Load(),
	}
}

func (p *Pool) pop() (task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return task{}, false
	}
	t := p.queue[0]
	p.queue[0] = task{}
	p.queue = p.queue[1:]
	return t, true
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.queue[0]
		p.queue[0] = task{}
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(t, id)
	}
}

// run executes a job and always marks it done, even if it panics.
func (p *Pool) run(t task, threadID int) {
	logger := p.threadLogger(threadID)
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			logger.Error("job panicked", "job", t.job.Name, "panic", fmt.Sprint(r))
		}
		p.completed.Add(1)
		t.counter.Done()
	}()
	t.job.Run(ThreadContext{ThreadID: threadID, Logger: logger})
}

func (p *Pool) threadLogger(threadID int) *slog.Logger {
	if threadID >= 0 && threadID < len(p.threads) {
		return p.threads[threadID]
	}
	return p.logger.With("thread", threadID)
}
