// Package loader handles binary file loading operations.
package loader

import (
	"fmt"

	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/provider/x86elf"
	"github.com/retroenv/retrogolib/log"
)

// Loader handles loading binaries from disk into an analysis provider.
type Loader struct {
	logger *log.Logger
}

// New creates a new binary loader.
func New(logger *log.Logger) *Loader {
	return &Loader{
		logger: logger,
	}
}

// Load opens the input binary of the options and returns the provider that
// analyzes it.
func (l *Loader) Load(opts options.Program) (*x86elf.File, error) {
	file, err := x86elf.Open(l.logger, opts.Input)
	if err != nil {
		return nil, fmt.Errorf("loading binary %s: %w", opts.Input, err)
	}
	return file, nil
}
