package x86elf

import (
	"slices"

	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/jumptable"
	"github.com/retroenv/retrocfg/internal/provider"
	"golang.org/x/arch/x86/x86asm"
)

type valueKind int

const (
	valueUnknown valueKind = iota
	valueConstant
	valueAlias // value of another register at the block start
)

type registerState struct {
	kind  valueKind
	value uint64
	alias string
}

// RegisterValueAt returns the possible values of the register before the
// instruction at the address executes. Constants are tracked within the
// containing block, ranges are derived from a bounds check that guards the
// block.
func (f *File) RegisterValueAt(fn *provider.Function, address uint64, reg string) provider.RegisterValue {
	block := blockContaining(fn, address)
	if block == nil {
		return provider.RegisterValue{}
	}

	state := f.blockState(block, address)
	st, ok := state[reg]
	if !ok {
		return f.guardRange(fn, block, reg)
	}

	switch st.kind {
	case valueConstant:
		return provider.RegisterValue{Type: provider.ConstantValue, Value: st.value}
	case valueAlias:
		return f.guardRange(fn, block, st.alias)
	default:
		return provider.RegisterValue{}
	}
}

// blockState returns the state of all registers that the block modifies
// before the address.
func (f *File) blockState(block *provider.BasicBlock, address uint64) map[string]registerState {
	state := make(map[string]registerState)

	for current := block.Start; current < address; {
		inst, ok := f.decode(current)
		if !ok {
			break
		}
		f.updateState(state, inst, current)
		current = nextAddress(inst, current)
	}
	return state
}

func (f *File) updateState(state map[string]registerState, inst x86asm.Inst, address uint64) {
	dest, isReg := inst.Args[0].(x86asm.Reg)
	if !isReg {
		for _, reg := range f.writtenRegisters(inst) {
			state[reg] = registerState{}
		}
		return
	}
	name := f.register(dest)

	switch inst.Op {
	case x86asm.MOV:
		switch src := inst.Args[1].(type) {
		case x86asm.Reg:
			source := f.register(src)
			if source == name {
				return
			}
			if st, ok := state[source]; ok {
				state[name] = st
			} else {
				state[name] = registerState{kind: valueAlias, alias: source}
			}
			return

		case x86asm.Imm:
			value := uint64(int64(src))
			if inst.DataSize == 32 || inst.DataSize == 16 {
				value &= jumptable.AddressMask(inst.DataSize / 8)
			}
			state[name] = registerState{kind: valueConstant, value: value}
			return
		}

	case x86asm.LEA:
		if mem, ok := inst.Args[1].(x86asm.Mem); ok {
			expr := lifter{file: f, register: f.constantRegister(state)}.address(inst, address, mem)
			if expr.IsConstant() {
				state[name] = registerState{kind: valueConstant, value: expr.Value}
				return
			}
		}

	case x86asm.XOR:
		if inst.Args[0] == inst.Args[1] {
			state[name] = registerState{kind: valueConstant}
			return
		}
	}

	for _, reg := range f.writtenRegisters(inst) {
		state[reg] = registerState{}
	}
}

// guardRange returns the index range of the register at the start of the
// block if every path into the block passes a bounds check of the form
// cmp reg, imm followed by an unsigned conditional jump.
func (f *File) guardRange(fn *provider.Function, block *provider.BasicBlock, reg string) provider.RegisterValue {
	var (
		result provider.RegisterValue
		found  bool
	)

	for _, pred := range fn.Blocks {
		if !slices.Contains(pred.Successors, block.Start) {
			continue
		}
		upper, ok := f.guardBound(pred, block.Start, reg)
		if !ok {
			return provider.RegisterValue{}
		}
		if !found || upper > result.End {
			result.End = upper
		}
		found = true
	}

	if !found {
		return provider.RegisterValue{}
	}
	result.Type = provider.RangeValue
	result.Step = 1
	return result
}

// guardBound returns the inclusive upper bound of the register when the
// predecessor block transfers control to the target.
func (f *File) guardBound(pred *provider.BasicBlock, target uint64, reg string) (uint64, bool) {
	n := len(pred.Instructions)
	if n < 2 {
		return 0, false
	}
	jump, ok := f.decode(pred.Instructions[n-1].Address)
	if !ok || !isConditionalJump(jump.Op) {
		return 0, false
	}
	cmp, ok := f.decode(pred.Instructions[n-2].Address)
	if !ok || cmp.Op != x86asm.CMP {
		return 0, false
	}
	dest, ok := cmp.Args[0].(x86asm.Reg)
	if !ok || f.register(dest) != reg {
		return 0, false
	}
	imm, ok := cmp.Args[1].(x86asm.Imm)
	if !ok || imm < 0 {
		return 0, false
	}
	limit := uint64(imm)

	address := pred.Instructions[n-1].Address
	jumpTarget, _ := relativeTarget(jump, address)
	taken := jumpTarget == target
	if taken == (nextAddress(jump, address) == target) {
		return 0, false
	}

	switch {
	case jump.Op == x86asm.JA && !taken, jump.Op == x86asm.JBE && taken:
		return limit, true
	case jump.Op == x86asm.JAE && !taken, jump.Op == x86asm.JB && taken:
		if limit == 0 {
			return 0, false
		}
		return limit - 1, true
	default:
		return 0, false
	}
}

// constantRegister returns a register resolver that substitutes the known
// constant register values.
func (f *File) constantRegister(state map[string]registerState) registerFunc {
	return func(name string) *il.Expr {
		if st, ok := state[name]; ok && st.kind == valueConstant {
			return il.Const(st.value)
		}
		return il.Reg(name)
	}
}
