package cli

import (
	"fmt"
	"log/slog"

	"github.com/me/framephase/internal/config"
	"github.com/me/framephase/internal/phases"
	"github.com/me/framephase/internal/system"
)

// loadPhases reads a phases document and builds a registry holding the
// built-in kinds plus every system the document declares.
func loadPhases(path string, logger *slog.Logger) (*config.PhasesFile, *system.Registry, error) {
	doc, err := config.LoadPhases(path)
	if err != nil {
		return nil, nil, err
	}
	reg := system.NewRegistry(logger)
	reg.RegisterBuiltins()
	if err := reg.RegisterSpecs(doc.Systems); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, reg, nil
}

// clearPhases destroys every system in ph and logs close failures.
func clearPhases(ph *phases.Phases, logger *slog.Logger) {
	if err := ph.Clear(); err != nil {
		logger.Warn("failed to close systems", "error", err)
	}
}
