// Package phases implements the phased frame update scheduler.
//
// A Phases value owns an ordered list of blocks. Each block is an ordered
// list of rows, and each row is a set of systems whose updates are submitted
// to a job pool as one batch. Every call to Update advances each block by at
// most one cycle: rows inside a block run strictly in sequence, while blocks
// run side by side, held within a bounded frame window of their neighbours
// by the pacing check:
//
//   - a block may not start a cycle on the same frame slot as the block
//     before it (it waits for its upstream to move on);
//   - a block may not start a cycle more than one frame slot ahead of the
//     block after it (it waits for its downstream to catch up).
//
// Frame slots count modulo FrameSlots, so at most three frames are in flight
// across the pipeline.
//
// Update must be called from a single goroutine. Worker goroutines only touch
// the pool-owned job counters, so block state needs no locking.
package phases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/me/framephase/internal/config"
	"github.com/me/framephase/internal/jobpool"
	"github.com/me/framephase/internal/system"
	"github.com/me/framephase/pkg/model"
)

// JobPool runs job batches. Submit returns a counter the pool decrements as
// jobs finish; HelpOnce runs at most one pending job on the caller.
type JobPool interface {
	Submit(jobs []jobpool.Job) *jobpool.Counter
	HelpOnce(threadID int) bool
}

// Observer receives scheduling events. It is called on the goroutine that
// calls Update and must not block.
type Observer interface {
	Observe(ev model.Event)
}

// Option configures optional Phases dependencies.
type Option func(*Phases)

// WithObserver sets the observer notified of scheduling events.
func WithObserver(o Observer) Option {
	return func(p *Phases) {
		p.observer = o
	}
}

// Phases is the frame update scheduler.
type Phases struct {
	pool     JobPool
	logger   *slog.Logger
	observer Observer

	blocks      []Block
	ticks       uint64
	initialized bool
}

// New creates an empty scheduler bound to pool. Call Init before Update.
func New(pool JobPool, logger *slog.Logger, opts ...Option) *Phases {
	p := &Phases{
		pool:   pool,
		logger: logger.With("component", "phases"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Init builds the block -> row -> system layout from src, constructing each
// system through reg and calling its Init. Names carrying
// config.OptionalPrefix are skipped with a warning when reg does not know
// them. Any other failure destroys the systems built so far and returns a
// *ConfigError.
func (p *Phases) Init(src config.Source, reg *system.Registry) error {
	if p.initialized {
		return ErrAlreadyInitialized
	}

	layout, err := src.Blocks()
	if err != nil {
		return fmt.Errorf("read phases: %w", err)
	}

	blocks := make([]Block, 0, len(layout))
	for b, rows := range layout {
		block := newBlock()
		for r, names := range rows {
			row, err := p.buildRow(b, r, names, reg)
			if err != nil {
				destroyBlocks(append(blocks, block))
				return err
			}
			block.rows = append(block.rows, row)
		}
		blocks = append(blocks, block)
	}

	p.blocks = p.compact(blocks)
	p.initialized = true

	systems := 0
	for i := range p.blocks {
		for r := range p.blocks[i].rows {
			systems += p.blocks[i].rows[r].Len()
		}
	}
	p.logger.Info("phases initialized", "blocks", len(p.blocks), "systems", systems)
	return nil
}

func (p *Phases) buildRow(b, r int, names []string, reg *system.Registry) (Row, error) {
	var row Row
	fail := func(slot int, name string, err error) (Row, error) {
		row.destroy()
		return Row{}, &ConfigError{Block: b, Row: r, Slot: slot, Name: name, Err: err}
	}

	for s, raw := range names {
		name, optional := strings.CutPrefix(raw, config.OptionalPrefix)

		factory, ok := reg.Lookup(name)
		if !ok {
			if optional {
				p.logger.Warn("optional system not registered, skipping",
					"system", name, "block", b, "row", r)
				continue
			}
			return fail(s, name, ErrUnknownSystem)
		}

		sys, err := factory()
		if err != nil {
			return fail(s, name, fmt.Errorf("%w: %w", ErrSystemConstruct, err))
		}
		if err := sys.Init(); err != nil {
			lone := Row{}
			lone.add(name, sys)
			lone.destroy()
			return fail(s, name, fmt.Errorf("%w: %w", ErrSystemInit, err))
		}
		row.add(name, sys)
	}
	return row, nil
}

// compact returns a new block list without blocks that have no rows.
func (p *Phases) compact(blocks []Block) []Block {
	out := make([]Block, 0, len(blocks))
	for i, b := range blocks {
		if len(b.rows) == 0 {
			p.logger.Warn("dropping block with no rows", "block", i)
			continue
		}
		out = append(out, b)
	}
	return out
}

// Update advances every block by one step, helps the pool with one job,
// and yields the processor.
func (p *Phases) Update() {
	p.ticks++
	// Ascending order matters: block i reads the frame block i-1 already
	// advanced this tick and the frame block i+1 has not advanced yet.
	for i := range p.blocks {
		p.advance(i)
	}
	p.pool.HelpOnce(jobpool.ConductorThread)
	runtime.Gosched()
}

func (p *Phases) advance(i int) {
	b := &p.blocks[i]
	if b.jobs != nil {
		b.counter = b.jobs.Value()
	}
	if b.counter > 0 {
		return
	}

	wrapped := false
	for {
		if b.counter == 0 {
			b.jobs = nil
			b.currRow++
			if b.currRow >= len(b.rows) {
				b.frame = (b.frame + 1) % FrameSlots
				b.cycles++
				b.currRow = -1
				wrapped = true
				p.emit(i, model.EventFrameCompleted, 0, "")
			}
		}

		if b.currRow < 0 {
			if reason, ok := p.paced(i); !ok {
				b.jobs = nil
				b.counter = -1
				if !b.stalled {
					b.stalled = true
					p.emit(i, model.EventStalled, 0, reason)
					p.logger.Debug("block stalled", "block", i, "frame", b.frame, "reason", reason)
				}
				return
			}
			b.stalled = false
			b.currRow = 0
		}

		row := &b.rows[b.currRow]
		b.jobs = p.pool.Submit(row.jobs)
		b.counter = b.jobs.Value()
		p.emit(i, model.EventRowSubmitted, len(row.jobs), "")

		if len(row.jobs) > 0 {
			return
		}
		// An empty row is finished on submission; move straight on, but
		// complete at most one cycle per tick.
		if wrapped && b.currRow == len(b.rows)-1 {
			return
		}
	}
}

// paced reports whether block i may start a new cycle on its current frame.
func (p *Phases) paced(i int) (model.StallReason, bool) {
	frame := p.blocks[i].frame
	if i > 0 && frame == p.blocks[i-1].frame {
		return model.StallUpstream, false
	}
	if i < len(p.blocks)-1 {
		next := p.blocks[i+1].frame
		nextNext := (next + 1) % FrameSlots
		if frame != next && frame != nextNext {
			return model.StallDownstream, false
		}
	}
	return "", true
}

func (p *Phases) emit(i int, kind model.EventKind, jobs int, reason model.StallReason) {
	if p.observer == nil {
		return
	}
	b := &p.blocks[i]
	p.observer.Observe(model.Event{
		Tick:   p.ticks,
		Block:  i,
		Kind:   kind,
		Frame:  b.frame,
		Row:    b.currRow,
		Jobs:   jobs,
		Cycles: b.cycles,
		Reason: reason,
		At:     time.Now().UTC(),
	})
}

// Drain helps the pool until no block has outstanding jobs or ctx is done.
// It is meant for shutdown; Update never blocks.
func (p *Phases) Drain(ctx context.Context) error {
	for p.busy() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.pool.HelpOnce(jobpool.ConductorThread) {
			runtime.Gosched()
		}
	}
	for i := range p.blocks {
		if p.blocks[i].jobs != nil {
			p.blocks[i].counter = 0
		}
	}
	return nil
}

func (p *Phases) busy() bool {
	for i := range p.blocks {
		if p.blocks[i].jobs.Value() > 0 {
			return true
		}
	}
	return false
}

// Clear destroys every system and empties the block list. It must not run
// concurrently with Update, and outstanding jobs should be drained first.
func (p *Phases) Clear() error {
	var errs []error
	for i := range p.blocks {
		for r := range p.blocks[i].rows {
			errs = append(errs, p.blocks[i].rows[r].destroy()...)
		}
	}
	p.blocks = nil
	p.initialized = false
	p.logger.Debug("phases cleared")
	return errors.Join(errs...)
}

// Blocks returns the live block list. Callers must not retain it across
// Update calls; use Snapshot for a stable copy.
func (p *Phases) Blocks() []Block {
	return p.blocks
}

// Snapshot returns a copy of every block's scheduling state.
func (p *Phases) Snapshot() []model.BlockState {
	out := make([]model.BlockState, len(p.blocks))
	for i := range p.blocks {
		out[i] = p.blocks[i].state(i)
	}
	return out
}

// Ticks returns how many times Update has run.
func (p *Phases) Ticks() uint64 {
	return p.ticks
}

func destroyBlocks(blocks []Block) {
	for i := range blocks {
		for r := range blocks[i].rows {
			blocks[i].rows[r].destroy()
		}
	}
}
