package model

// BlockStatus is the scheduling state of a block between ticks.
type BlockStatus string

const (
	// BlockStatusIdle means no row is in flight: the block is waiting to
	// start its first cycle or is held back by the pacing check.
	BlockStatusIdle BlockStatus = "IDLE"
	// BlockStatusBetweenRows means the last submitted row has finished and
	// the next one has not been submitted yet.
	BlockStatusBetweenRows BlockStatus = "BETWEEN_ROWS"
	// BlockStatusRunning means jobs of the current row are outstanding.
	BlockStatusRunning BlockStatus = "RUNNING"
)

// String returns the string representation of the block status.
func (s BlockStatus) String() string {
	return string(s)
}

// StatusForCounter maps a block counter (-1, 0, >0) to its status.
func StatusForCounter(counter int) BlockStatus {
	switch {
	case counter < 0:
		return BlockStatusIdle
	case counter == 0:
		return BlockStatusBetweenRows
	default:
		return BlockStatusRunning
	}
}

// StallReason says which neighbour held a block back.
type StallReason string

const (
	// StallUpstream: the previous block has not yet moved past this block's frame.
	StallUpstream StallReason = "upstream"
	// StallDownstream: this block is too far ahead of the next block.
	StallDownstream StallReason = "downstream"
)

// EventKind identifies a frame trace event.
type EventKind string

const (
	EventRowSubmitted   EventKind = "row_submitted"
	EventFrameCompleted EventKind = "frame_completed"
	EventStalled        EventKind = "stalled"
)

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventRowSubmitted, EventFrameCompleted, EventStalled:
		return true
	}
	return false
}
