package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/me/framephase/internal/store"
	"github.com/me/framephase/internal/trace"
	"github.com/me/framephase/pkg/model"
)

// Frames is the frame scheduler driven by the loop. *phases.Phases
// implements it.
type Frames interface {
	Update()
	Drain(ctx context.Context) error
	Clear() error
	Snapshot() []model.BlockState
	Ticks() uint64
}

// Config holds loop configuration.
type Config struct {
	TickInterval time.Duration // 0 runs ticks back to back
	MaxTicks     uint64        // 0 runs until stopped
	FlushEvery   uint64        // ticks between trace flushes; 0 flushes only on shutdown
	DrainTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 16 * time.Millisecond,
		FlushEvery:   60,
		DrainTimeout: 5 * time.Second,
	}
}

// Option configures optional Loop dependencies.
type Option func(*Loop)

// WithTrace records the run's events through c and finishes the run record
// in st on Shutdown.
func WithTrace(c *trace.Collector, st store.Store) Option {
	return func(l *Loop) {
		l.collector = c
		l.store = st
	}
}

// Loop implements the Scheduler interface by calling Frames.Update once per
// tick. Start, Tick and Shutdown must run on the same goroutine; Snapshot,
// Ticks and Running are safe from any goroutine.
type Loop struct {
	frames    Frames
	config    Config
	logger    *slog.Logger
	collector *trace.Collector
	store     store.Store

	snapshot atomic.Pointer[[]model.BlockState]
	ticks    atomic.Uint64
	started  atomic.Bool
	running  atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLoop creates a new scheduler loop.
func NewLoop(frames Frames, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		frames: frames,
		config: cfg,
		logger: logger.With("component", "scheduler"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.publish()
	return l
}

// Start runs ticks until ctx is cancelled, Stop is called, or MaxTicks is
// reached. It returns ctx.Err() on cancellation and nil otherwise.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}
	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		close(l.doneCh)
	}()

	l.logger.Info("scheduler started",
		"tick_interval", l.config.TickInterval, "max_ticks", l.config.MaxTicks)

	var tickC <-chan time.Time
	if l.config.TickInterval > 0 {
		ticker := time.NewTicker(l.config.TickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		if stop, err := l.wait(ctx, tickC); stop {
			return err
		}
		if err := l.Tick(ctx); err != nil {
			l.logger.Error("tick error", "error", err)
		}
		if l.config.MaxTicks > 0 && l.ticks.Load() >= l.config.MaxTicks {
			l.logger.Info("scheduler reached tick limit", "ticks", l.ticks.Load())
			return nil
		}
	}
}

// wait blocks until the next tick is due. It reports stop when the loop
// should exit, with ctx.Err() on cancellation.
func (l *Loop) wait(ctx context.Context, tickC <-chan time.Time) (bool, error) {
	if tickC == nil {
		select {
		case <-ctx.Done():
		case <-l.stopCh:
		default:
			return false, nil
		}
	} else {
		select {
		case <-ctx.Done():
		case <-l.stopCh:
		case <-tickC:
			return false, nil
		}
	}

	if err := ctx.Err(); err != nil {
		l.logger.Info("scheduler stopping (context cancelled)", "ticks", l.ticks.Load())
		return true, err
	}
	l.logger.Info("scheduler stopping", "ticks", l.ticks.Load())
	return true, nil
}

// Stop gracefully shuts down the scheduler and waits for the current tick to finish.
func (l *Loop) Stop() error {
	if !l.started.Load() {
		return nil
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}

// Tick runs one frame update, publishes the block snapshot and flushes the
// trace when due.
func (l *Loop) Tick(ctx context.Context) error {
	l.frames.Update()
	l.publish()

	if l.collector == nil || l.config.FlushEvery == 0 {
		return nil
	}
	if l.ticks.Load()%l.config.FlushEvery == 0 {
		if err := l.collector.Flush(ctx); err != nil {
			return fmt.Errorf("flush trace: %w", err)
		}
	}
	return nil
}

// Shutdown drains outstanding jobs, writes the remaining trace, finishes the
// run record and destroys every system. Call it after Start has returned.
// Systems are left open when jobs are still running after the drain.
func (l *Loop) Shutdown(ctx context.Context) error {
	var errs []error

	drainCtx := ctx
	if l.config.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, l.config.DrainTimeout)
		defer cancel()
	}
	drainErr := l.frames.Drain(drainCtx)
	if drainErr != nil {
		errs = append(errs, fmt.Errorf("drain: %w", drainErr))
	}
	l.publish()

	if l.collector != nil {
		if err := l.collector.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		if l.store != nil {
			if err := l.store.FinishRun(ctx, l.collector.RunID(), l.ticks.Load()); err != nil {
				errs = append(errs, fmt.Errorf("finish run: %w", err))
			}
		}
	}

	if drainErr != nil {
		l.logger.Warn("jobs still running, leaving systems open", "error", drainErr)
	} else if err := l.frames.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("clear systems: %w", err))
	}
	l.logger.Info("scheduler shut down", "ticks", l.ticks.Load())
	return errors.Join(errs...)
}

func (l *Loop) publish() {
	snap := l.frames.Snapshot()
	l.snapshot.Store(&snap)
	l.ticks.Store(l.frames.Ticks())
}

// Snapshot returns the block states published after the last tick.
func (l *Loop) Snapshot() []model.BlockState {
	if p := l.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

// Ticks returns the number of ticks run so far.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Running reports whether Start is executing.
func (l *Loop) Running() bool {
	return l.running.Load()
}
