package x86elf

import (
	"maps"
	"slices"

	"github.com/retroenv/retrocfg/internal/defs"
	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/jumptable"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrogolib/set"
	"golang.org/x/arch/x86/x86asm"
)

const (
	// maxNestedAnalysis bounds the number of functions that are analyzed
	// recursively to find out whether a callee returns.
	maxNestedAnalysis = 16
	// maxTableIterations bounds the rebuilding of a function after new jump
	// table targets were found.
	maxTableIterations = 8
	// pushCallLength is the size of a push imm32 instruction.
	pushCallLength = 5
)

// discovery holds the state of the recursive descent over one function.
type discovery struct {
	start    uint64
	insts    map[uint64]x86asm.Inst
	leaders  set.Set[uint64]
	tables   map[uint64][]uint64 // resolved indirect jump targets
	noReturn set.Set[uint64]     // calls that do not return
}

// FunctionAt returns the function that starts at the address. Functions are
// analyzed on first access. Only addresses that are known function starts
// from symbols, the entry point or call targets are accepted.
func (f *File) FunctionAt(address uint64) (*provider.Function, bool) {
	if fn, ok := f.functions[address]; ok {
		return fn, true
	}
	if !f.entries.Contains(address) || f.stubs.Contains(address) || f.building.Contains(address) {
		return nil, false
	}
	return f.buildFunction(address), true
}

// FunctionContaining returns the function whose code contains the address.
func (f *File) FunctionContaining(address uint64) (*provider.Function, bool) {
	for _, start := range slices.Sorted(maps.Keys(f.functions)) {
		fn := f.functions[start]
		if blockContaining(fn, address) != nil {
			return fn, true
		}
	}

	sym, start, ok := f.symbols.Floor(address)
	if !ok || sym.Kind != provider.FunctionSymbol || (sym.Size != 0 && address >= start+sym.Size) {
		return nil, false
	}
	fn, ok := f.FunctionAt(start)
	if !ok || blockContaining(fn, address) == nil {
		return nil, false
	}
	return fn, true
}

func (f *File) buildFunction(start uint64) *provider.Function {
	f.building.Add(start)
	defer delete(f.building, start)

	d := &discovery{
		start:    start,
		insts:    make(map[uint64]x86asm.Inst),
		leaders:  set.New[uint64](),
		tables:   make(map[uint64][]uint64),
		noReturn: set.New[uint64](),
	}
	d.leaders.Add(start)

	pending := []uint64{start}
	var fn *provider.Function
	for iteration := 0; ; iteration++ {
		f.explore(d, pending)
		fn = f.assemble(d)

		var changed bool
		pending, changed = f.resolveTables(d, fn)
		if !changed || iteration == maxTableIterations {
			break
		}
	}

	f.logger.Debug("Analyzed function",
		log.Hex("address", start),
		log.String("name", fn.Name),
		log.Int("blocks", len(fn.Blocks)))
	f.functions[start] = fn
	return fn
}

// explore decodes all instructions that are reachable from the pending
// addresses without leaving the function.
func (f *File) explore(d *discovery, pending []uint64) {
	for len(pending) > 0 {
		address := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

	walk:
		for {
			if _, seen := d.insts[address]; seen {
				break
			}
			inst, ok := f.decode(address)
			if !ok {
				break
			}
			d.insts[address] = inst
			next := nextAddress(inst, address)

			switch {
			case inst.Op == x86asm.JMP:
				if target, ok := relativeTarget(inst, address); ok && f.isLocalTarget(d.start, target) {
					d.leaders.Add(target)
					pending = append(pending, target)
				}
				break walk

			case isConditionalJump(inst.Op):
				if target, ok := relativeTarget(inst, address); ok && f.isExecutable(target) {
					d.leaders.Add(target)
					pending = append(pending, target)
				}
				d.leaders.Add(next)

			case isReturn(inst.Op), isTrap(inst):
				break walk

			case inst.Op == x86asm.CALL:
				if target, ok := relativeTarget(inst, address); ok && f.isExecutable(target) && !f.stubs.Contains(target) {
					f.entries.Add(target)
				}
				if f.doesNotReturn(inst, address) {
					d.noReturn.Add(address)
					break walk
				}

			case inst.Op == x86asm.PUSH:
				if following, ok := f.decode(next); ok && isPushCall(inst, next, following) {
					f.entries.Add(next)
				}
			}

			address = next
		}
	}
}

// isPushCall returns whether the push stores the address of the following
// instruction, which is a relative jump, as return address.
func isPushCall(push x86asm.Inst, next uint64, following x86asm.Inst) bool {
	if push.Op != x86asm.PUSH || push.Len != pushCallLength {
		return false
	}
	imm, ok := push.Args[0].(x86asm.Imm)
	if !ok || uint64(imm) != next {
		return false
	}
	_, relative := following.Args[0].(x86asm.Rel)
	return following.Op == x86asm.JMP && relative
}

// isLocalTarget returns whether a jump target belongs to the function that
// starts at the given address.
func (f *File) isLocalTarget(start, target uint64) bool {
	if !f.isExecutable(target) || f.stubs.Contains(target) {
		return false
	}
	return target == start || !f.entries.Contains(target)
}

// doesNotReturn returns whether the call or jump target never returns.
func (f *File) doesNotReturn(inst x86asm.Inst, address uint64) bool {
	var target uint64
	switch arg := inst.Args[0].(type) {
	case x86asm.Rel:
		target, _ = relativeTarget(inst, address)
	case x86asm.Mem:
		slot := lifter{file: f, register: il.Reg}.address(inst, address, arg)
		if !slot.IsConstant() {
			return false
		}
		target = slot.Value
	default:
		return false
	}

	if sym, ok := f.symbols.Get(target); ok && sym.IsImported() {
		return isNoReturnImport(sym.Name)
	}
	if f.building.Contains(target) || len(f.building) >= maxNestedAnalysis {
		return false
	}
	fn, ok := f.FunctionAt(target)
	return ok && !fn.CanReturn
}

// assemble partitions the discovered instructions into basic blocks and
// lifts them.
func (f *File) assemble(d *discovery) *provider.Function {
	fn := &provider.Function{
		Start:             d.start,
		CallingConvention: defs.CallerCleanup,
	}
	if sym, ok := f.symbols.Get(d.start); ok {
		fn.Name = sym.Name
	}

	lift := lifter{
		file:     f,
		register: il.Reg,
		local: func(target uint64) bool {
			_, ok := d.insts[target]
			return ok
		},
	}

	var block *provider.BasicBlock
	for index, address := range slices.Sorted(maps.Keys(d.insts)) {
		inst := d.insts[address]

		if block == nil || block.End != address || d.leaders.Contains(address) {
			if block != nil && block.End == address {
				block.Successors = append(block.Successors, address)
			}
			block = &provider.BasicBlock{Start: address, End: address}
			fn.Blocks = append(fn.Blocks, block)
		}

		block.Instructions = append(block.Instructions, lift.lift(inst, address, index))
		block.End = nextAddress(inst, address)

		successors, terminal, returns := f.successors(d, inst, address)
		if returns {
			fn.CanReturn = true
		}
		if terminal {
			block.Successors = successors
			block = nil
		}
	}

	fn.Medium = f.medium(d, fn, lift.local)
	return fn
}

// successors returns the successors of a block that ends with the
// instruction, whether the instruction ends the block and whether it returns
// from the function.
func (f *File) successors(d *discovery, inst x86asm.Inst, address uint64) ([]uint64, bool, bool) {
	next := nextAddress(inst, address)

	switch {
	case inst.Op == x86asm.JMP:
		target, direct := relativeTarget(inst, address)
		if _, local := d.insts[target]; direct && local {
			return []uint64{target}, true, false
		}
		if targets, ok := d.tables[address]; ok {
			return targets, true, false
		}
		// tail call or unresolved indirect jump
		return nil, true, !f.doesNotReturn(inst, address)

	case isConditionalJump(inst.Op):
		var succs []uint64
		if target, ok := relativeTarget(inst, address); ok {
			if _, local := d.insts[target]; local {
				succs = append(succs, target)
			}
		}
		if _, local := d.insts[next]; local && !slices.Contains(succs, next) {
			succs = append(succs, next)
		}
		return succs, true, false

	case isReturn(inst.Op):
		return nil, true, true

	case isTrap(inst), d.noReturn.Contains(address):
		return nil, true, false

	default:
		return nil, false, false
	}
}

// resolveTables resolves the jump tables of indirect jumps that end a block.
// It returns the addresses of new targets to explore and whether any new
// table was found.
func (f *File) resolveTables(d *discovery, fn *provider.Function) ([]uint64, bool) {
	var (
		pending []uint64
		changed bool
	)

	for _, block := range fn.Blocks {
		last := block.Instructions[len(block.Instructions)-1]
		if _, done := d.tables[last.Address]; done || !jumptable.IsCandidate(last) {
			continue
		}

		table, ok := f.jumpTables.Resolve(fn, last)
		if !ok {
			continue
		}

		var targets []uint64
		for _, target := range table.Targets {
			if f.isExecutable(target) && !slices.Contains(targets, target) {
				targets = append(targets, target)
			}
		}
		d.tables[last.Address] = targets
		changed = true

		for _, target := range targets {
			d.leaders.Add(target)
			if _, seen := d.insts[target]; !seen {
				pending = append(pending, target)
			}
		}
	}
	return pending, changed
}

// medium builds the medium-level view of the function. Constant register
// values are propagated into expressions within each block.
func (f *File) medium(d *discovery, fn *provider.Function, local func(uint64) bool) []il.MediumInstruction {
	var result []il.MediumInstruction

	for _, block := range fn.Blocks {
		constants := make(map[string]*il.Expr)
		lift := lifter{
			file: f,
			register: func(name string) *il.Expr {
				if c, ok := constants[name]; ok {
					return c
				}
				return il.Reg(name)
			},
			local: local,
		}

		for _, ins := range block.Instructions {
			inst := d.insts[ins.Address]
			lil := lift.lift(inst, ins.Address, ins.Index)

			mi := il.MediumInstruction{
				Address: ins.Address,
				Index:   len(result),
				Op:      il.MediumOther,
			}
			switch lil.Kind {
			case il.KindSetReg:
				mi.Op = il.MediumSetVar
				mi.Dest = lil.Dest.Reg
				mi.Src = lil.Src
			case il.KindJump, il.KindJumpTo:
				mi.Src = lil.Dest // destination with propagated constants
			default:
			}

			for _, reg := range f.writtenRegisters(inst) {
				delete(constants, reg)
			}
			if mi.Op == il.MediumSetVar && mi.Src.IsConstant() {
				constants[mi.Dest] = mi.Src
			}
			result = append(result, mi)
		}
	}
	return result
}

// blockContaining returns the block of the function that contains the address.
func blockContaining(fn *provider.Function, address uint64) *provider.BasicBlock {
	for _, block := range fn.Blocks {
		if address >= block.Start && address < block.End {
			return block
		}
	}
	return nil
}
