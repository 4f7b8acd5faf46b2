// Package script provides systems whose init and update logic is written
// in JavaScript and executed with goja.
//
// A script may define two global functions:
//
//	function init()      { return true; }   // optional; falsy result fails init
//	function update(ctx) { ... }            // required; ctx = {thread, calls}
//
// Each System owns its own VM. A system instance is never updated from two
// goroutines at once, so the VM needs no locking.
package script

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
	"github.com/me/framephase/internal/jobpool"
)

// ErrNoUpdate is returned when a script does not define update().
var ErrNoUpdate = errors.New("script does not define update()")

// System runs a JavaScript update function every tick.
type System struct {
	name string

	vm       *goja.Runtime
	initFn   goja.Callable
	updateFn goja.Callable
	calls    int64
	errors   int64
}

// New compiles source into a System. The script is not run until Init.
func New(name, source string) (*System, error) {
	prog, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", name, err)
	}

	vm := goja.New()
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("load script %s: %w", name, err)
	}

	s := &System{name: name, vm: vm}
	if fn, ok := goja.AssertFunction(vm.Get("update")); ok {
		s.updateFn = fn
	} else {
		return nil, fmt.Errorf("script %s: %w", name, ErrNoUpdate)
	}
	if fn, ok := goja.AssertFunction(vm.Get("init")); ok {
		s.initFn = fn
	}
	return s, nil
}

// Name returns the system name the script was registered under.
func (s *System) Name() string { return s.name }

// Calls returns how many times update() has been invoked.
func (s *System) Calls() int64 { return s.calls }

// Errors returns how many update() calls threw.
func (s *System) Errors() int64 { return s.errors }

// Init runs the script's init() if present. A falsy result or a thrown
// exception fails initialization.
func (s *System) Init() error {
	if s.initFn == nil {
		return nil
	}
	v, err := s.initFn(goja.Undefined())
	if err != nil {
		return fmt.Errorf("script %s init: %w", s.name, err)
	}
	if v != nil && !goja.IsUndefined(v) && !v.ToBoolean() {
		return fmt.Errorf("script %s init returned %s", s.name, v.String())
	}
	return nil
}

// Update calls the script's update(ctx). Exceptions are logged on the
// thread logger and do not propagate.
func (s *System) Update(tc jobpool.ThreadContext) {
	s.calls++
	ctx := s.vm.NewObject()
	_ = ctx.Set("thread", tc.ThreadID)
	_ = ctx.Set("calls", s.calls)

	if _, err := s.updateFn(goja.Undefined(), ctx); err != nil {
		s.errors++
		if tc.Logger != nil {
			tc.Logger.Warn("script update failed", "system", s.name, "error", err)
		}
	}
}

// Get returns the current value of a global script variable, exported to Go.
func (s *System) Get(name string) any {
	v := s.vm.Get(name)
	if v == nil {
		return nil
	}
	return v.Export()
}
