package x86elf

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// maxInstructionLength is the longest possible x86 instruction.
const maxInstructionLength = 15

var registers64 = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var registers32 = [...]string{
	"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
}

// volatile64 and volatile32 are the registers that a call clobbers.
var (
	volatile64 = []string{"rax", "rcx", "rdx", "rsi", "rdi", "r8", "r9", "r10", "r11"}
	volatile32 = []string{"eax", "ecx", "edx"}
)

var conditionalJumps = map[x86asm.Op]struct{}{
	x86asm.JA: {}, x86asm.JAE: {}, x86asm.JB: {}, x86asm.JBE: {},
	x86asm.JE: {}, x86asm.JNE: {}, x86asm.JG: {}, x86asm.JGE: {},
	x86asm.JL: {}, x86asm.JLE: {}, x86asm.JO: {}, x86asm.JNO: {},
	x86asm.JP: {}, x86asm.JNP: {}, x86asm.JS: {}, x86asm.JNS: {},
	x86asm.JCXZ: {}, x86asm.JECXZ: {}, x86asm.JRCXZ: {},
	x86asm.LOOP: {}, x86asm.LOOPE: {}, x86asm.LOOPNE: {},
}

// nonWriting instructions do not modify their first register operand.
var nonWriting = map[x86asm.Op]struct{}{
	x86asm.CMP: {}, x86asm.TEST: {}, x86asm.PUSH: {}, x86asm.NOP: {},
	x86asm.BT: {}, x86asm.JMP: {}, x86asm.CALL: {},
}

// implicitWrites lists registers that are modified without being an operand.
var implicitWrites = map[x86asm.Op][]int{
	x86asm.MUL:  {0, 2},
	x86asm.DIV:  {0, 2},
	x86asm.IDIV: {0, 2},
	x86asm.CDQ:  {2},
	x86asm.CQO:  {2},
	x86asm.CDQE: {0},
	x86asm.CWDE: {0},
}

// decode returns the instruction at the address. Decoded instructions are
// cached.
func (f *File) decode(address uint64) (x86asm.Inst, bool) {
	if inst, ok := f.decoded[address]; ok {
		return inst, inst.Len > 0
	}

	code := f.codeAt(address)
	if len(code) > maxInstructionLength {
		code = code[:maxInstructionLength]
	}

	var inst x86asm.Inst
	if len(code) > 0 && f.isExecutable(address) {
		var err error
		inst, err = x86asm.Decode(code, f.mode)
		if err != nil {
			inst = x86asm.Inst{}
		}
	}
	f.decoded[address] = inst
	return inst, inst.Len > 0
}

// InstructionLength returns the length of the instruction at the address or
// 0 if no instruction can be decoded.
func (f *File) InstructionLength(address uint64) int {
	inst, ok := f.decode(address)
	if !ok {
		return 0
	}
	return inst.Len
}

// register returns the name of the full width register that contains the
// given register, for example rax for al, ax and eax in 64 bit mode.
func (f *File) register(reg x86asm.Reg) string {
	var idx int
	switch {
	case reg >= x86asm.RAX && reg <= x86asm.R15:
		idx = int(reg - x86asm.RAX)
	case reg >= x86asm.EAX && reg <= x86asm.R15L:
		idx = int(reg - x86asm.EAX)
	case reg >= x86asm.AX && reg <= x86asm.R15W:
		idx = int(reg - x86asm.AX)
	case reg >= x86asm.AL && reg <= x86asm.BL:
		idx = int(reg - x86asm.AL)
	case reg >= x86asm.AH && reg <= x86asm.BH:
		idx = int(reg - x86asm.AH)
	case reg >= x86asm.SPB && reg <= x86asm.DIB:
		idx = int(reg-x86asm.SPB) + 4
	case reg >= x86asm.R8B && reg <= x86asm.R15B:
		idx = int(reg-x86asm.R8B) + 8
	default:
		return strings.ToLower(reg.String())
	}
	return f.registerName(idx)
}

func (f *File) registerName(idx int) string {
	if f.mode == 64 {
		return registers64[idx]
	}
	if idx < len(registers32) {
		return registers32[idx]
	}
	return registers64[idx]
}

func (f *File) volatileRegisters() []string {
	if f.mode == 64 {
		return volatile64
	}
	return volatile32
}

// writtenRegisters returns the registers that the instruction modifies.
func (f *File) writtenRegisters(inst x86asm.Inst) []string {
	var regs []string
	for _, idx := range implicitWrites[inst.Op] {
		regs = append(regs, f.registerName(idx))
	}
	if inst.Op == x86asm.CALL {
		return append(regs, f.volatileRegisters()...)
	}
	if inst.Op == x86asm.IMUL && inst.Args[1] == nil {
		regs = append(regs, f.registerName(0), f.registerName(2))
	}

	if _, ok := nonWriting[inst.Op]; ok {
		return regs
	}
	if _, ok := conditionalJumps[inst.Op]; ok {
		return regs
	}
	if reg, ok := inst.Args[0].(x86asm.Reg); ok {
		regs = append(regs, f.register(reg))
	}
	if inst.Op == x86asm.XCHG {
		if reg, ok := inst.Args[1].(x86asm.Reg); ok {
			regs = append(regs, f.register(reg))
		}
	}
	return regs
}

// nextAddress returns the address following the instruction.
func nextAddress(inst x86asm.Inst, address uint64) uint64 {
	return address + uint64(inst.Len)
}

// relativeTarget returns the target of a relative branch or call.
func relativeTarget(inst x86asm.Inst, address uint64) (uint64, bool) {
	rel, ok := inst.Args[0].(x86asm.Rel)
	if !ok {
		return 0, false
	}
	return nextAddress(inst, address) + uint64(int64(rel)), true
}

func isConditionalJump(op x86asm.Op) bool {
	_, ok := conditionalJumps[op]
	return ok
}

func isTrap(inst x86asm.Inst) bool {
	switch inst.Op {
	case x86asm.HLT, x86asm.UD2, x86asm.UD1, x86asm.UD0:
		return true
	case x86asm.INT:
		imm, ok := inst.Args[0].(x86asm.Imm)
		return ok && imm == 3
	default:
		return false
	}
}

func isReturn(op x86asm.Op) bool {
	return op == x86asm.RET || op == x86asm.LRET || op == x86asm.IRET || op == x86asm.IRETD || op == x86asm.IRETQ
}
