package config

import "time"

// RunConfig holds configuration for a framephase run.
type RunConfig struct {
	PhasesPath   string        // Phases document (YAML)
	Workers      int           // Job pool workers (0 = NumCPU)
	TickInterval time.Duration // Delay between ticks (0 = free-running)
	MaxTicks     uint64        // Stop after this many ticks (0 = until interrupted)
	FlushEvery   uint64        // Flush the frame trace every N ticks
	DBPath       string        // SQLite trace database ("" disables tracing, ":memory:" for testing)
	Addr         string        // Status API listen address ("" disables the API)
	LogLevel     string        // Log level: debug, info, warn, error
	LogFormat    string        // Log format: text, json, auto
}

// DefaultRunConfig returns sensible defaults.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		PhasesPath:   "update_phases.yaml",
		TickInterval: 16 * time.Millisecond,
		FlushEvery:   60,
		LogLevel:     "info",
		LogFormat:    "auto",
	}
}
