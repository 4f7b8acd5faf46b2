package phases

import (
	"github.com/me/framephase/internal/jobpool"
	"github.com/me/framephase/pkg/model"
)

// FrameSlots is the number of in-flight frame slots a block cycles through.
const FrameSlots = 3

// Block is an ordered sequence of rows plus its pacing state. All
// transitions are driven by Phases.Update from a single goroutine.
//
// counter is -1 while idle, 0 once the submitted row has finished, and the
// number of outstanding jobs otherwise.
type Block struct {
	rows []Row

	jobs    *jobpool.Counter // pool-owned counter of the in-flight row
	counter int
	currRow int
	frame   int
	cycles  uint64 // completed cycles; frame == cycles % FrameSlots
	stalled bool
}

func newBlock() Block {
	return Block{counter: -1, currRow: -1}
}

// Rows returns the block's rows in execution order.
func (b *Block) Rows() []Row { return b.rows }

// Counter returns the counter observed at the last tick.
func (b *Block) Counter() int { return b.counter }

// CurrRow returns the index of the row last submitted, or -1 between cycles.
func (b *Block) CurrRow() int { return b.currRow }

// Frame returns the block's frame slot in [0, FrameSlots).
func (b *Block) Frame() int { return b.frame }

// Cycles returns how many full cycles the block has completed.
func (b *Block) Cycles() uint64 { return b.cycles }

// Status classifies the block by its counter.
func (b *Block) Status() model.BlockStatus {
	return model.StatusForCounter(b.counter)
}

func (b *Block) state(index int) model.BlockState {
	rows := make([]model.RowState, len(b.rows))
	for i := range b.rows {
		rows[i] = model.RowState{Systems: append([]string(nil), b.rows[i].names...)}
	}
	return model.BlockState{
		Index:   index,
		Status:  b.Status(),
		Frame:   b.frame,
		CurrRow: b.currRow,
		Counter: b.counter,
		Cycles:  b.cycles,
		Rows:    rows,
	}
}
