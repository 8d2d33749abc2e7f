package disasm

import (
	"github.com/retroenv/retrocfg/internal/il"
	"github.com/retroenv/retrocfg/internal/jumptable"
)

// pushCallLength is the size of a push imm32 instruction.
const pushCallLength = 5

// instructionClass is the closed set of instruction categories that are
// handled differently by the recovery.
type instructionClass interface {
	isInstructionClass()
}

// branchClass is an unconditional jump with a single resolvable destination.
type branchClass struct {
	dest  *il.Expr
	local bool // goto inside of the function
}

// conditionalBranchClass is a branch with a taken and a not taken target.
type conditionalBranchClass struct {
	condition   *il.Expr
	trueTarget  uint64
	falseTarget uint64
}

// callClass is a call or a tail call.
type callClass struct {
	dest *il.Expr
}

// indirectJumpClass is a jump through a computed address, possibly a jump table.
type indirectJumpClass struct{}

// pushClass is a push of the address of the following instruction when that
// instruction is a relative jump, used to call the following address without
// returning.
type pushClass struct {
	target uint64
}

type returnClass struct{}

type trapClass struct{}

type otherClass struct{}

func (branchClass) isInstructionClass()            {}
func (conditionalBranchClass) isInstructionClass() {}
func (callClass) isInstructionClass()              {}
func (indirectJumpClass) isInstructionClass()      {}
func (pushClass) isInstructionClass()              {}
func (returnClass) isInstructionClass()            {}
func (trapClass) isInstructionClass()              {}
func (otherClass) isInstructionClass()             {}

// classify returns the category of the lifted instruction. length is the
// size of the machine instruction in bytes and next the lifted instruction
// that follows it, nil if unknown.
func classify(ins il.Instruction, length int, next *il.Instruction) instructionClass {
	switch ins.Kind {
	case il.KindGoto:
		return branchClass{dest: il.ConstPtr(ins.Target), local: true}

	case il.KindIf:
		return conditionalBranchClass{
			condition:   ins.Condition,
			trueTarget:  ins.True,
			falseTarget: ins.False,
		}

	case il.KindJump, il.KindJumpTo:
		if jumptable.IsCandidate(ins) {
			return indirectJumpClass{}
		}
		if ins.Dest == nil {
			return otherClass{}
		}
		return branchClass{dest: ins.Dest}

	case il.KindCall, il.KindTailCall:
		return callClass{dest: ins.Dest}

	case il.KindPush:
		target := ins.Address + uint64(length)
		if length == pushCallLength && ins.Dest.IsConstant() && ins.Dest.Value == target &&
			isRelativeJump(next) {
			return pushClass{target: target}
		}
		return otherClass{}

	case il.KindRet:
		return returnClass{}

	case il.KindTrap:
		return trapClass{}

	default:
		return otherClass{}
	}
}

// isRelativeJump returns whether the instruction is a jump to a constant address.
func isRelativeJump(ins *il.Instruction) bool {
	if ins == nil {
		return false
	}
	switch ins.Kind {
	case il.KindGoto:
		return true
	case il.KindJump, il.KindJumpTo, il.KindTailCall:
		return ins.Dest.IsConstant()
	default:
		return false
	}
}
