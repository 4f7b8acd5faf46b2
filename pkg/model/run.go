package model

import "time"

// Run is one execution of the scheduler, as recorded in the trace store.
type Run struct {
	ID         string     `json:"id"`
	Label      string     `json:"label,omitempty"`
	PhasesPath string     `json:"phases_path"`
	Blocks     int        `json:"blocks"`
	Workers    int        `json:"workers"`
	Ticks      uint64     `json:"ticks"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Event is one frame trace event emitted by the scheduler.
type Event struct {
	RunID  string      `json:"run_id,omitempty"`
	Tick   uint64      `json:"tick"`
	Block  int         `json:"block"`
	Kind   EventKind   `json:"kind"`
	Frame  int         `json:"frame"`
	Row    int         `json:"row"`
	Jobs   int         `json:"jobs"`
	Cycles uint64      `json:"cycles"`
	Reason StallReason `json:"reason,omitempty"`
	At     time.Time   `json:"at"`
}

// EventFilter narrows an event listing.
type EventFilter struct {
	Block *int      // Only events for this block
	Kind  EventKind // Only events of this kind
}
