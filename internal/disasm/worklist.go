package disasm

import (
	"context"
	"fmt"

	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrogolib/log"
)

// entrypoints returns the addresses of the explicit entry symbols or, if none
// are set, of all exported functions defined by the binary.
func (dis *Disasm) entrypoints() ([]uint64, error) {
	var seeds []uint64
	seen := map[uint64]struct{}{}
	add := func(address uint64) {
		if _, ok := seen[address]; ok {
			return
		}
		seen[address] = struct{}{}
		seeds = append(seeds, address)
	}

	if len(dis.options.EntrySymbols) > 0 {
		for _, name := range dis.options.EntrySymbols {
			sym, ok := dis.prov.SymbolByName(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrEntrypointNotFound, name)
			}
			dis.logger.Debug("Using entrypoint",
				log.String("name", name),
				log.Hex("address", sym.Address))
			add(sym.Address)
		}
		return seeds, nil
	}

	for _, sym := range dis.prov.Symbols() {
		if sym.Kind != provider.FunctionSymbol || sym.IsImported() || !sym.Exported {
			continue
		}
		add(sym.Address)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: binary does not export any function", ErrNoEntrypoint)
	}
	return seeds, nil
}

// followExecutionFlow recovers queued functions until the worklist is empty.
func (dis *Disasm) followExecutionFlow(ctx context.Context) error {
	for address, ok := dis.rc.Next(); ok; address, ok = dis.rc.Next() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("recovering functions: %w", err)
		}

		if dis.rc.IsRecovered(address) || dis.rc.IsRejected(address) {
			continue
		}

		fn, ok := dis.acceptFunction(address)
		if !ok {
			continue
		}
		dis.rc.MarkRecovered(address)
		dis.recoverFunction(fn, false)
	}
	return nil
}

// acceptFunction returns the provider function at the address. Addresses
// without a function or that belong to external symbols are rejected.
func (dis *Disasm) acceptFunction(address uint64) (*provider.Function, bool) {
	if dis.externals.Classify(address) == program.External {
		dis.logger.Debug("Rejecting external address", log.Hex("address", address))
		dis.rc.Reject(address)
		return nil, false
	}

	fn, ok := dis.prov.FunctionAt(address)
	if !ok {
		dis.logger.Warn("No function defined at address, skipping", log.Hex("address", address))
		dis.rc.Reject(address)
		return nil, false
	}
	return fn, true
}

// queue adds the address to the worklist of functions to recover.
func (dis *Disasm) queue(address uint64) {
	if dis.rc.Queue(address) {
		dis.logger.Debug("Queued function", log.Hex("address", address))
	}
}
