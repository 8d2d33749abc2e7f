// Package externals classifies referenced symbols as internal or external and
// builds the external function and variable records of a module.
package externals

import (
	"github.com/retroenv/retrocfg/internal/defs"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrocfg/internal/recovery"
	"github.com/retroenv/retrogolib/log"
)

// Resolver resolves external references against the definition table.
type Resolver struct {
	logger *log.Logger
	prov   provider.Provider
	table  *defs.Table
}

// New returns a new resolver.
func New(logger *log.Logger, prov provider.Provider, table *defs.Table) *Resolver {
	return &Resolver{
		logger: logger,
		prov:   prov,
		table:  table,
	}
}

// Classify returns whether the address belongs to an external symbol.
// The definition table is not consulted.
func (r *Resolver) Classify(address uint64) program.Location {
	sym, ok := r.prov.SymbolAt(address)
	if !ok {
		return program.Internal
	}
	if sym.IsImported() || HasExternalMarker(sym.Name) {
		return program.External
	}
	return program.Internal
}

// Symbol returns the symbol at the address together with its canonical name.
func (r *Resolver) Symbol(address uint64) (provider.Symbol, string, bool) {
	sym, ok := r.prov.SymbolAt(address)
	if !ok {
		return provider.Symbol{}, "", false
	}
	return sym, FixName(sym.Name), true
}

// DoesReturn returns whether the external function returns to its caller.
// Names missing in the definition table are assumed to return.
func (r *Resolver) DoesReturn(name string) bool {
	fun, ok := r.table.Resolve(FixName(name))
	if !ok {
		return true
	}
	return !fun.NoReturn
}

// Reference records the external symbol in the recovery context and returns
// its canonical name.
func (r *Resolver) Reference(ctx *recovery.Context, sym provider.Symbol) string {
	name := FixName(sym.Name)
	ctx.AddExternal(name, sym)
	return name
}

// Drain converts every external name that was referenced during the recovery
// to an external record of the module. Imports that no instruction references
// are not added.
func (r *Resolver) Drain(ctx *recovery.Context, module *program.Module) {
	for _, name := range ctx.ExternalNames() {
		sym, _ := ctx.External(name)

		if size, ok := r.table.ResolveData(name); ok {
			module.ExternalVariables = append(module.ExternalVariables, &program.ExternalVariable{
				Name:    name,
				Address: sym.Address,
				Size:    size,
				IsWeak:  sym.Weak,
			})
			continue
		}

		if sym.Kind == provider.DataSymbol {
			if v := r.externalVariable(name, sym); v != nil {
				module.ExternalVariables = append(module.ExternalVariables, v)
			}
			continue
		}

		module.ExternalFunctions = append(module.ExternalFunctions, r.externalFunction(name, sym))
	}

	module.SortExternals()
}

func (r *Resolver) externalVariable(name string, sym provider.Symbol) *program.ExternalVariable {
	if sym.Size == 0 {
		r.logger.Error("Unknown external variable",
			log.String("name", name),
			log.Hex("address", sym.Address))
		return nil
	}

	r.logger.Warn("External variable not defined, using symbol size",
		log.String("name", name),
		log.Hex("size", sym.Size))
	return &program.ExternalVariable{
		Name:    name,
		Address: sym.Address,
		Size:    int(sym.Size),
		IsWeak:  sym.Weak,
	}
}

func (r *Resolver) externalFunction(name string, sym provider.Symbol) *program.ExternalFunction {
	ext := &program.ExternalFunction{
		Name:              name,
		Address:           sym.Address,
		CallingConvention: program.CallerCleanup,
		HasReturn:         true,
		IsWeak:            sym.Weak,
	}

	fn, hasType := r.prov.FunctionAt(sym.Address)
	hasType = hasType && fn.TypeKnown
	if hasType {
		ext.HasReturn = fn.HasReturnValue
	}

	if fun, ok := r.table.Resolve(name); ok {
		r.logger.Debug("Found defined external function", log.String("name", name))
		ext.ArgumentCount = fun.ArgumentCount
		ext.CallingConvention = convertConvention(fun.CallingConvention)
		ext.NoReturn = fun.NoReturn
		ext.Signature = fun.Signature
		return ext
	}

	r.logger.Warn("Unknown external function, using provider type information",
		log.String("name", name))
	if hasType {
		ext.ArgumentCount = fn.ParameterCount
		ext.CallingConvention = convertConvention(fn.CallingConvention)
		ext.NoReturn = !fn.CanReturn
	}
	return ext
}

func convertConvention(conv defs.CallingConvention) program.CallingConvention {
	switch conv {
	case defs.CalleeCleanup:
		return program.CalleeCleanup
	case defs.FastCall:
		return program.FastCall
	default:
		return program.CallerCleanup
	}
}
