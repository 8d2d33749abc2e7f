package writer

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"
)

// ControlFlowDOT renders the blocks of all functions of the module as DOT graph.
func ControlFlowDOT(module *program.Module, title string) string {
	g := &lattice.CFGGraph{}
	names := functionNames(module)
	for _, fn := range module.Functions {
		g.Funcs = append(g.Funcs, functionCFG(fn, names))
	}
	return render.DOTCFG(g, title)
}

// CallGraphDOT renders the calls between functions of the module as DOT graph.
func CallGraphDOT(module *program.Module, title string) string {
	g := &lattice.Graph{}
	names := functionNames(module)
	for _, fn := range module.Functions {
		caller := names[fn.Address]
		g.Nodes = append(g.Nodes, caller)

		blocks := blockIndex(fn)
		for _, block := range fn.Blocks {
			for _, ins := range block.Instructions {
				for _, callee := range callees(ins, blocks, names) {
					g.Edges = append(g.Edges, lattice.Edge{
						Caller: caller,
						Callee: callee,
					})
				}
			}
		}
	}
	g.Dedup()
	return render.DOT(g, title)
}

// DisplayName returns the demangled name of a symbol.
func DisplayName(name string) string {
	return demangle.Filter(name)
}

func functionCFG(fn *program.Function, names map[uint64]string) *lattice.FuncCFG {
	cfg := &lattice.FuncCFG{Name: names[fn.Address]}
	blocks := blockIndex(fn)

	var index int
	for id, block := range fn.Blocks {
		lb := &lattice.BasicBlock{
			ID:    id,
			Start: index,
			End:   index + len(block.Instructions),
			Term:  len(block.Successors) == 0,
		}

		for _, succ := range block.Successors {
			if succID, ok := blocks[succ]; ok {
				lb.Succs = append(lb.Succs, lattice.Successor{BlockID: succID})
			}
		}

		for offset, ins := range block.Instructions {
			for _, callee := range callees(ins, blocks, names) {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: index + offset,
					Callee: callee,
				})
			}
		}

		index = lb.End
		cfg.Blocks = append(cfg.Blocks, lb)
	}
	return cfg
}

// callees returns the names of all code targets of the instruction that are
// outside of the function.
func callees(ins *program.Instruction, blocks map[uint64]int, names map[uint64]string) []string {
	var result []string
	for _, ref := range ins.References {
		if ref.OperandType != program.ControlFlowOperand || ref.TargetType != program.CodeTarget {
			continue
		}
		if _, local := blocks[ref.Target]; local && ref.Location == program.Internal {
			continue
		}

		switch {
		case ref.Location == program.External && ref.Name != "":
			result = append(result, DisplayName(ref.Name))
		case names[ref.Target] != "":
			result = append(result, names[ref.Target])
		case ref.Name != "":
			result = append(result, DisplayName(ref.Name))
		default:
			result = append(result, fmt.Sprintf("sub_%x", ref.Target))
		}
	}
	return result
}

// functionNames maps all function addresses to their display names.
func functionNames(module *program.Module) map[uint64]string {
	names := make(map[uint64]string, len(module.Functions))
	for _, fn := range module.Functions {
		if fn.Name != "" {
			names[fn.Address] = DisplayName(fn.Name)
		} else {
			names[fn.Address] = fmt.Sprintf("sub_%x", fn.Address)
		}
	}
	return names
}

func blockIndex(fn *program.Function) map[uint64]int {
	blocks := make(map[uint64]int, len(fn.Blocks))
	for i, block := range fn.Blocks {
		blocks[block.Address] = i
	}
	return blocks
}
