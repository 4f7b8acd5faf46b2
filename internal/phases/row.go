package phases

import (
	"fmt"
	"io"

	"github.com/me/framephase/internal/jobpool"
	"github.com/me/framephase/internal/system"
)

// Row is a set of systems submitted to the job pool together. Systems in a
// row run concurrently and must not depend on each other.
//
// jobs[i] always wraps systems[i].Update.
type Row struct {
	names   []string
	systems []system.System
	jobs    []jobpool.Job
}

func (r *Row) add(name string, s system.System) {
	r.names = append(r.names, name)
	r.systems = append(r.systems, s)
	r.jobs = append(r.jobs, jobpool.Job{Name: name, Run: s.Update})
}

// Len returns the number of systems in the row.
func (r *Row) Len() int { return len(r.systems) }

// Names returns the system names in row order.
func (r *Row) Names() []string { return r.names }

// Systems returns the row's systems.
func (r *Row) Systems() []system.System { return r.systems }

// Jobs returns the job batch submitted for this row.
func (r *Row) Jobs() []jobpool.Job { return r.jobs }

// destroy closes every system that implements io.Closer and empties the row.
func (r *Row) destroy() []error {
	var errs []error
	for i, s := range r.systems {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close system %s: %w", r.names[i], err))
			}
		}
	}
	r.names, r.systems, r.jobs = nil, nil, nil
	return errs
}
