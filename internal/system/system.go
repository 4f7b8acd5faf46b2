// Package system defines the unit of per-frame work driven by the phase
// scheduler and the registry used to construct systems by name.
package system

import "github.com/me/framephase/internal/jobpool"

// System is a named, initializable, updatable unit of per-frame work.
type System interface {
	// Init prepares the system. A non-nil error aborts scheduler startup.
	Init() error

	// Update runs one frame of work on the given thread.
	Update(tc jobpool.ThreadContext)
}

// Factory constructs a new System instance.
type Factory func() (System, error)
