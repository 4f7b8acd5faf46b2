package phases

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUnknownSystem      = errors.New("unknown system")
	ErrSystemConstruct    = errors.New("system construction failed")
	ErrSystemInit         = errors.New("system init failed")
	ErrAlreadyInitialized = errors.New("phases already initialized")
)

// ConfigError locates a system that could not be built during Init.
type ConfigError struct {
	Block int
	Row   int
	Slot  int
	Name  string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("block %d row %d system %d (%q): %v", e.Block, e.Row, e.Slot, e.Name, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
