// Package disasm implements the control flow graph recovery of a binary.
package disasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/retroenv/retrocfg/internal/defs"
	"github.com/retroenv/retrocfg/internal/externals"
	"github.com/retroenv/retrocfg/internal/jumptable"
	"github.com/retroenv/retrocfg/internal/options"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrocfg/internal/recovery"
	"github.com/retroenv/retrogolib/log"
)

var (
	// ErrEntrypointNotFound is returned when an explicit entry symbol does not exist.
	ErrEntrypointNotFound = errors.New("entrypoint not found")
	// ErrNoEntrypoint is returned when no function can be used to start the recovery.
	ErrNoEntrypoint = errors.New("no valid entrypoint")
)

// Disasm implements the worklist driven recovery of all functions that are
// reachable from the entrypoints.
type Disasm struct {
	logger  *log.Logger
	prov    provider.Provider
	options options.Recovery

	addressSize int

	externals  *externals.Resolver
	jumpTables *jumptable.Resolver

	rc     *recovery.Context
	module *program.Module
}

// New creates a new recovery instance for the binary exposed by the provider.
func New(logger *log.Logger, prov provider.Provider, table *defs.Table, opts options.Recovery) *Disasm {
	return &Disasm{
		logger:      logger,
		prov:        prov,
		options:     opts,
		addressSize: prov.AddressSize(),
		externals:   externals.New(logger, prov, table),
		jumpTables:  jumptable.New(logger, prov),
	}
}

// Process recovers all reachable functions, the sections and the referenced
// external symbols of the binary.
func (dis *Disasm) Process(ctx context.Context) (*program.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("recovering functions: %w", err)
	}
	dis.rc = recovery.New()
	dis.module = program.New(dis.options.Name, dis.addressSize)

	seeds, err := dis.entrypoints()
	if err != nil {
		return nil, err
	}
	if err := dis.recoverEntrypoints(ctx, seeds); err != nil {
		return nil, err
	}

	if err := dis.followExecutionFlow(ctx); err != nil {
		return nil, err
	}

	dis.logger.Debug("Processing sections")
	dis.recoverSections()

	dis.logger.Debug("Recovering externals")
	dis.externals.Drain(dis.rc, dis.module)

	dis.logger.Info("Recovery finished",
		log.Int("functions", len(dis.module.Functions)),
		log.Int("segments", len(dis.module.Segments)),
		log.Int("external_functions", len(dis.module.ExternalFunctions)),
		log.Int("external_variables", len(dis.module.ExternalVariables)))
	return dis.module, nil
}

// recoverEntrypoints recovers the seed functions before any discovered function.
func (dis *Disasm) recoverEntrypoints(ctx context.Context, seeds []uint64) error {
	for _, address := range seeds {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("recovering entrypoints: %w", err)
		}
		if dis.rc.IsRecovered(address) {
			continue
		}
		fn, ok := dis.acceptFunction(address)
		if !ok {
			continue
		}
		dis.rc.MarkRecovered(address)
		dis.recoverFunction(fn, true)
	}

	if len(dis.module.Functions) == 0 {
		return fmt.Errorf("%w: no entrypoint function could be analyzed", ErrNoEntrypoint)
	}
	return nil
}
