package x86elf

import (
	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/jumptable"
	"golang.org/x/arch/x86/x86asm"
)

// registerFunc returns the expression that represents a register value.
type registerFunc func(name string) *il.Expr

// lifter converts decoded instructions to the il model.
type lifter struct {
	file     *File
	register registerFunc
	local    func(target uint64) bool // whether a jump target is inside of the function
}

// lift returns the low-level form of the instruction.
func (l lifter) lift(inst x86asm.Inst, address uint64, index int) il.Instruction {
	ins := il.Instruction{
		Address: address,
		Length:  inst.Len,
		Index:   index,
		Kind:    il.KindOther,
	}
	next := nextAddress(inst, address)

	switch {
	case inst.Op == x86asm.JMP:
		if target, ok := relativeTarget(inst, address); ok && l.local(target) {
			ins.Kind = il.KindGoto
			ins.Target = target
			return ins
		}
		ins.Kind = il.KindJump
		ins.Dest = l.operand(inst, address, inst.Args[0])

	case isConditionalJump(inst.Op):
		ins.Kind = il.KindIf
		ins.Condition = il.Other()
		ins.True, _ = relativeTarget(inst, address)
		ins.False = next

	case inst.Op == x86asm.CALL:
		ins.Kind = il.KindCall
		ins.Dest = l.operand(inst, address, inst.Args[0])

	case isReturn(inst.Op):
		ins.Kind = il.KindRet

	case isTrap(inst):
		ins.Kind = il.KindTrap

	case inst.Op == x86asm.PUSH:
		ins.Kind = il.KindPush
		ins.Dest = l.operand(inst, address, inst.Args[0])

	default:
		l.liftData(inst, address, &ins)
	}
	return ins
}

// liftData lifts instructions that do not change the control flow.
func (l lifter) liftData(inst x86asm.Inst, address uint64, ins *il.Instruction) {
	written := l.file.writtenRegisters(inst)
	dest := inst.Args[0]

	switch d := dest.(type) {
	case x86asm.Reg:
		if len(written) == 0 {
			break
		}
		ins.Kind = il.KindSetReg
		ins.Dest = il.Reg(l.file.register(d))
		ins.Src = l.source(inst, address)
		return

	case x86asm.Mem:
		if _, ok := nonWriting[inst.Op]; ok {
			break
		}
		ins.Kind = il.KindStore
		ins.Dest = l.address(inst, address, d)
		if inst.Op == x86asm.MOV {
			ins.Src = l.operand(inst, address, inst.Args[1])
		} else {
			ins.Src = il.Other(l.operands(inst, address, 1)...)
		}
		return
	}

	ins.Operands = l.operands(inst, address, 0)
}

// source returns the value that an instruction assigns to its destination register.
func (l lifter) source(inst x86asm.Inst, address uint64) *il.Expr {
	dest := l.operand(inst, address, inst.Args[0])
	size := inst.DataSize / 8

	switch inst.Op {
	case x86asm.MOV:
		return l.operand(inst, address, inst.Args[1])

	case x86asm.LEA:
		if mem, ok := inst.Args[1].(x86asm.Mem); ok {
			return l.address(inst, address, mem)
		}

	case x86asm.MOVSX, x86asm.MOVSXD:
		return il.SignExtend(l.operand(inst, address, inst.Args[1]), size)

	case x86asm.MOVZX:
		return il.ZeroExtend(l.operand(inst, address, inst.Args[1]), size)

	case x86asm.ADD:
		return il.Add(dest, l.operand(inst, address, inst.Args[1]))

	case x86asm.SUB:
		return il.Sub(dest, l.operand(inst, address, inst.Args[1]))

	case x86asm.SHL:
		return il.Lsl(dest, l.operand(inst, address, inst.Args[1]))

	case x86asm.IMUL:
		if inst.Args[2] != nil {
			return il.Mul(l.operand(inst, address, inst.Args[1]), l.operand(inst, address, inst.Args[2]))
		}
		if inst.Args[1] != nil {
			return il.Mul(dest, l.operand(inst, address, inst.Args[1]))
		}

	case x86asm.XOR:
		if inst.Args[0] == inst.Args[1] {
			return il.Const(0)
		}
	}

	return il.Other(l.operands(inst, address, 1)...)
}

// operands returns the expressions of all arguments starting at the index.
func (l lifter) operands(inst x86asm.Inst, address uint64, start int) []*il.Expr {
	var exprs []*il.Expr
	for _, arg := range inst.Args[start:] {
		if arg == nil {
			break
		}
		exprs = append(exprs, l.operand(inst, address, arg))
	}
	return exprs
}

// operand returns the expression of a single instruction argument.
func (l lifter) operand(inst x86asm.Inst, address uint64, arg x86asm.Arg) *il.Expr {
	switch a := arg.(type) {
	case x86asm.Reg:
		return l.register(l.file.register(a))

	case x86asm.Imm:
		return il.Const(uint64(int64(a)) & jumptable.AddressMask(l.file.addressSize))

	case x86asm.Rel:
		target, _ := relativeTarget(inst, address)
		return il.ConstPtr(target)

	case x86asm.Mem:
		return il.Load(l.address(inst, address, a), inst.MemBytes)

	default:
		return il.Other()
	}
}

// address returns the expression of the effective address of a memory argument.
func (l lifter) address(inst x86asm.Inst, address uint64, mem x86asm.Mem) *il.Expr {
	mask := jumptable.AddressMask(l.file.addressSize)
	if mem.Base == x86asm.RIP || mem.Base == x86asm.EIP {
		return il.ConstPtr((nextAddress(inst, address) + uint64(mem.Disp)) & mask)
	}

	var terms []*il.Expr
	if mem.Base != 0 {
		terms = append(terms, l.register(l.file.register(mem.Base)))
	}
	if mem.Index != 0 {
		index := l.register(l.file.register(mem.Index))
		if mem.Scale > 1 {
			index = il.Mul(index, il.Const(uint64(mem.Scale)))
		}
		terms = append(terms, index)
	}
	if mem.Disp != 0 || len(terms) == 0 {
		disp := uint64(mem.Disp) & mask
		if l.file.IsValidAddress(disp) {
			terms = append(terms, il.ConstPtr(disp))
		} else {
			terms = append(terms, il.Const(disp))
		}
	}

	expr := terms[0]
	for _, term := range terms[1:] {
		expr = il.Add(expr, term)
	}

	if mem.Segment == x86asm.FS || mem.Segment == x86asm.GS {
		return il.Other(expr)
	}
	return expr
}
