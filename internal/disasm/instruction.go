package disasm

import (
	"slices"

	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/program"
	"github.com/retroenv/retrocfg/internal/provider"
	"github.com/retroenv/retrogolib/log"
)

// recoverFunction converts the provider function into a module function.
func (dis *Disasm) recoverFunction(fn *provider.Function, isEntrypoint bool) {
	dis.logger.Debug("Recovering function",
		log.Hex("address", fn.Start),
		log.String("name", fn.Name))

	function := &program.Function{
		Address:      fn.Start,
		Name:         fn.Name,
		IsEntrypoint: isEntrypoint,
	}
	if function.Name == "" {
		if sym, ok := dis.prov.SymbolAt(fn.Start); ok {
			function.Name = sym.Name
		}
	}

	for _, block := range fn.Blocks {
		function.Blocks = append(function.Blocks, dis.recoverBlock(fn, block))
	}
	dis.module.AddFunction(function)
}

// recoverBlock walks all instructions of the block by their length.
func (dis *Disasm) recoverBlock(fn *provider.Function, block *provider.BasicBlock) *program.Block {
	result := &program.Block{
		Address:    block.Start,
		Successors: slices.Clone(block.Successors),
	}

	lifted := dis.liftedByAddress(block)

	for address := block.Start; address < block.End; {
		length := dis.prov.InstructionLength(address)
		if length <= 0 {
			dis.logger.Warn("No instruction decoded, truncating block",
				log.Hex("block", block.Start),
				log.Hex("address", address))
			break
		}

		data, err := dis.prov.ReadBytes(address, length)
		if err != nil {
			dis.logger.Warn("Reading instruction bytes failed, truncating block",
				log.Hex("address", address),
				log.Err(err))
			break
		}

		ins := &program.Instruction{
			Address: address,
			Bytes:   data,
		}
		result.Instructions = append(result.Instructions, ins)
		address += uint64(length)

		lil, ok := lifted[ins.Address]
		if !ok {
			continue
		}
		if stop := dis.recoverInstruction(fn, lil, ins, liftedAt(fn, address)); stop {
			break
		}
	}

	return result
}

// liftedByAddress maps every address of the block to its first lifted
// instruction. Further entries at the same address are skipped.
func (dis *Disasm) liftedByAddress(block *provider.BasicBlock) map[uint64]il.Instruction {
	lifted := make(map[uint64]il.Instruction, len(block.Instructions))
	for _, ins := range block.Instructions {
		if _, ok := lifted[ins.Address]; ok {
			continue
		}
		lifted[ins.Address] = ins
	}
	return lifted
}

// liftedAt returns the first lifted instruction of the function at the address.
func liftedAt(fn *provider.Function, address uint64) *il.Instruction {
	for _, block := range fn.Blocks {
		if address < block.Start || address >= block.End {
			continue
		}
		for i := range block.Instructions {
			if block.Instructions[i].Address == address {
				return &block.Instructions[i]
			}
		}
	}
	return nil
}

// recoverInstruction adds references and flags to the instruction based on its
// lifted form. It returns whether the emission of the block has to stop.
func (dis *Disasm) recoverInstruction(fn *provider.Function, lil il.Instruction, ins *program.Instruction,
	next *il.Instruction) bool {

	switch class := classify(lil, ins.Length(), next).(type) {
	case branchClass:
		return dis.recoverBranch(fn, lil, class, ins)

	case conditionalBranchClass:
		dis.scanExpression(class.condition, ins)
		dis.addReference(ins, class.trueTarget, program.ControlFlowOperand)
		dis.addReference(ins, class.falseTarget, program.ControlFlowOperand)

	case callClass:
		return dis.recoverCall(fn, lil, class, ins)

	case indirectJumpClass:
		return dis.recoverIndirectJump(fn, lil, ins)

	case pushClass:
		ins.LocalNoReturn = true
		dis.addReference(ins, class.target, program.ControlFlowOperand)
		dis.queue(class.target)

	case returnClass:
		dis.scanInstruction(lil, ins)

	case trapClass:
		ins.LocalNoReturn = true

	case otherClass:
		dis.scanInstruction(lil, ins)

	default:
		dis.logger.Error("Unsupported instruction class", log.Hex("address", lil.Address))
	}
	return false
}

// recoverBranch handles an unconditional jump to a single target.
func (dis *Disasm) recoverBranch(fn *provider.Function, lil il.Instruction, class branchClass,
	ins *program.Instruction) bool {

	target, ok := dis.resolveTarget(fn, lil.Address, class.dest)
	if !ok {
		dis.logger.Debug("Unresolved branch target", log.Hex("address", lil.Address))
		return false
	}

	if dis.externals.Classify(target) == program.External {
		return dis.recoverExternalTarget(ins, target)
	}

	dis.addReference(ins, target, program.ControlFlowOperand)
	if !class.local && target != fn.Start && dis.isNoReturnFunction(target) {
		ins.LocalNoReturn = true
	}
	return false
}

// recoverCall handles direct, register and import slot calls.
func (dis *Disasm) recoverCall(fn *provider.Function, lil il.Instruction, class callClass,
	ins *program.Instruction) bool {

	target, ok := dis.resolveTarget(fn, lil.Address, class.dest)
	if !ok {
		dis.logger.Debug("Unresolved call target", log.Hex("address", lil.Address))
		return false
	}

	if dis.externals.Classify(target) == program.External {
		return dis.recoverExternalTarget(ins, target)
	}

	dis.addReference(ins, target, program.ControlFlowOperand)
	dis.queue(target)
	if dis.isNoReturnFunction(target) {
		ins.LocalNoReturn = true
	}
	return false
}

// recoverExternalTarget records a call or jump to an external function. It
// returns whether the target does not return.
func (dis *Disasm) recoverExternalTarget(ins *program.Instruction, target uint64) bool {
	ref := dis.addReference(ins, target, program.ControlFlowOperand)
	ins.ExternalCallName = ref.Name

	if dis.externals.DoesReturn(ref.Name) {
		return false
	}
	dis.logger.Debug("Call to external no-return function",
		log.Hex("address", ins.Address),
		log.String("name", ref.Name))
	ins.LocalNoReturn = true
	return true
}

// recoverIndirectJump resolves the jump table of an indirect jump.
func (dis *Disasm) recoverIndirectJump(fn *provider.Function, lil il.Instruction, ins *program.Instruction) bool {
	table, ok := dis.jumpTables.Resolve(fn, lil)
	if !ok {
		// a register that holds a known constant is a plain branch
		if _, resolved := dis.resolveTarget(fn, lil.Address, lil.Dest); resolved {
			return dis.recoverBranch(fn, lil, branchClass{dest: lil.Dest}, ins)
		}
		dis.logger.Debug("Unresolved indirect jump", log.Hex("address", lil.Address))
		return false
	}

	ins.JumpTable = table
	for _, target := range table.Targets {
		ref := dis.addReference(ins, target, program.ControlFlowOperand)
		ref.TargetType = program.CodeTarget
	}
	return false
}

// resolveTarget returns the destination address of a branch or call.
func (dis *Disasm) resolveTarget(fn *provider.Function, address uint64, dest *il.Expr) (uint64, bool) {
	if dest == nil {
		return 0, false
	}

	switch dest.Op {
	case il.OpConst, il.OpConstPtr:
		return dest.Value, true

	case il.OpReg:
		value := dis.prov.RegisterValueAt(fn, address, dest.Reg)
		if value.Type == provider.ConstantValue {
			return value.Value, true
		}

	case il.OpLoad:
		slot := dest.Left()
		if !slot.IsConstant() {
			return 0, false
		}
		if dis.externals.Classify(slot.Value) == program.External {
			return slot.Value, true
		}
		return dis.readPointer(slot.Value)

	default:
	}
	return 0, false
}

// readPointer reads a pointer sized value and returns it if it is a valid address.
func (dis *Disasm) readPointer(address uint64) (uint64, bool) {
	data, err := dis.prov.ReadBytes(address, dis.addressSize)
	if err != nil {
		return 0, false
	}
	value := readWord(data)
	return value, dis.prov.IsValidAddress(value)
}

// isNoReturnFunction returns whether the provider knows the function at the
// target to never return.
func (dis *Disasm) isNoReturnFunction(target uint64) bool {
	fn, ok := dis.prov.FunctionAt(target)
	if !ok {
		fn, ok = dis.prov.FunctionContaining(target)
	}
	return ok && !fn.CanReturn
}
