package disasm

import (
	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
)

// scanInstruction records all addresses that are used as operands of the
// instruction. The address operand of a store is a memory operand.
func (dis *Disasm) scanInstruction(lil il.Instruction, ins *program.Instruction) {
	for _, e := range lil.Expressions() {
		if lil.Kind == il.KindStore && e == lil.Dest {
			e = il.Load(e, 0)
		}
		dis.scanExpression(e, ins)
	}
}

// scanExpression records constants of the expression that are valid addresses.
func (dis *Disasm) scanExpression(e *il.Expr, ins *program.Instruction) {
	dis.scanOperand(e, program.ImmediateOperand, 0, ins)
}

func (dis *Disasm) scanOperand(e *il.Expr, operandType program.OperandType, depth int, ins *program.Instruction) {
	if e == nil || depth > il.MaxDepth {
		return
	}

	switch e.Op {
	case il.OpLoad:
		src := e.Left()
		if src != nil && (src.IsConstant() || src.Op == il.OpReg) {
			operandType = program.MemoryOperand
		} else {
			operandType = program.MemoryDisplacementOperand
		}

	case il.OpConst, il.OpConstPtr:
		if dis.prov.IsValidAddress(e.Value) {
			dis.addReference(ins, e.Value, operandType)
		}

	default:
	}

	for _, op := range e.Operands {
		dis.scanOperand(op, operandType, depth+1, ins)
	}
}

// addReference adds a cross reference to the target to the instruction.
// Internal function starts are queued for recovery and external symbols are
// recorded for the external definitions of the module.
func (dis *Disasm) addReference(ins *program.Instruction, target uint64,
	operandType program.OperandType) *program.CrossReference {

	ref := &program.CrossReference{
		Target:      target,
		OperandType: operandType,
		TargetType:  program.DataTarget,
		Location:    program.Internal,
	}

	_, isFunction := dis.prov.FunctionAt(target)
	sym, hasSymbol := dis.prov.SymbolAt(target)
	if hasSymbol {
		ref.Name = sym.Name
	}

	switch {
	case hasSymbol && dis.externals.Classify(target) == program.External:
		ref.Location = program.External
		ref.Name = dis.externals.Reference(dis.rc, sym)
		if sym.Kind == provider.FunctionSymbol {
			ref.TargetType = program.CodeTarget
		}

	case isFunction:
		ref.TargetType = program.CodeTarget
		dis.queue(target)
	}

	return ins.AddReference(ref)
}

// readWord decodes a little endian value of up to 8 bytes.
func readWord(data []byte) uint64 {
	var value uint64
	for i := len(data) - 1; i >= 0; i-- {
		value = value<<8 | uint64(data[i])
	}
	return value
}
