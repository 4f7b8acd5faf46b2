package system

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/me/framephase/internal/config"
	"github.com/me/framephase/internal/script"
)

// Built-in system kinds usable from a phases document.
const (
	KindNoop    = "noop"
	KindSleep   = "sleep"
	KindSpin    = "spin"
	KindCounter = "counter"
	KindScript  = "script"
)

// Registry maps system names to factories.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger.With("component", "system-registry"),
	}
}

// Register adds a factory under name, replacing any previous registration.
func (r *Registry) Register(name string, f Factory) {
	if _, ok := r.factories[name]; ok {
		r.logger.Warn("system re-registered", "name", name)
	}
	r.factories[name] = f
	r.logger.Debug("system registered", "name", name)
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterSpec registers name as an instance of a built-in kind.
func (r *Registry) RegisterSpec(name string, spec config.SystemSpec) error {
	switch spec.Kind {
	case KindNoop:
		r.Register(name, func() (System, error) { return &Noop{}, nil })
	case KindSleep:
		if spec.Duration < 0 {
			return fmt.Errorf("system %s: negative duration %s", name, spec.Duration)
		}
		d := spec.Duration
		r.Register(name, func() (System, error) { return &Sleep{Duration: d}, nil })
	case KindSpin:
		if spec.Iterations < 0 {
			return fmt.Errorf("system %s: negative iterations %d", name, spec.Iterations)
		}
		n := spec.Iterations
		r.Register(name, func() (System, error) { return &Spin{Iterations: n}, nil })
	case KindCounter:
		r.Register(name, func() (System, error) { return &Counter{}, nil })
	case KindScript:
		if spec.Script == "" {
			return fmt.Errorf("system %s: script kind requires script source", name)
		}
		// Compile once up front so syntax errors surface at registration.
		if _, err := script.New(name, spec.Script); err != nil {
			return err
		}
		src := spec.Script
		r.Register(name, func() (System, error) { return script.New(name, src) })
	default:
		return fmt.Errorf("system %s: unknown kind %q", name, spec.Kind)
	}
	return nil
}

// RegisterSpecs registers every spec in specs.
func (r *Registry) RegisterSpecs(specs map[string]config.SystemSpec) error {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.RegisterSpec(name, specs[name]); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBuiltins registers each built-in kind under its own name with
// default parameters, so a phases document can reference them directly.
func (r *Registry) RegisterBuiltins() {
	r.Register(KindNoop, func() (System, error) { return &Noop{}, nil })
	r.Register(KindSleep, func() (System, error) { return &Sleep{Duration: time.Millisecond}, nil })
	r.Register(KindSpin, func() (System, error) { return &Spin{Iterations: 10000}, nil })
	r.Register(KindCounter, func() (System, error) { return &Counter{}, nil })
}
