package il

// Kind is the operation of a lifted low-level instruction.
type Kind int

// Low-level instruction kinds.
const (
	KindOther Kind = iota
	KindSetReg
	KindStore
	KindPush
	KindIf
	KindGoto
	KindJump
	KindJumpTo
	KindCall
	KindTailCall
	KindRet
	KindTrap
	KindNoRet
)

var kindNames = map[Kind]string{
	KindOther:    "other",
	KindSetReg:   "set_reg",
	KindStore:    "store",
	KindPush:     "push",
	KindIf:       "if",
	KindGoto:     "goto",
	KindJump:     "jump",
	KindJumpTo:   "jump_to",
	KindCall:     "call",
	KindTailCall: "tailcall",
	KindRet:      "ret",
	KindTrap:     "trap",
	KindNoRet:    "noret",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Instruction is the low-level lifted form of one machine instruction.
type Instruction struct {
	Address uint64
	Length  int
	Index   int // position in the function's low-level instruction list
	Kind    Kind

	Dest      *Expr  // jump and call target, pushed value, store address or set register
	Src       *Expr  // value of a register set or store
	Condition *Expr  // condition of an if
	True      uint64 // taken target of an if
	False     uint64 // not taken target of an if
	Target    uint64 // target of a goto

	Operands []*Expr // remaining operands that do not fit the fields above
}

// Expressions returns all non nil operand expressions of the instruction.
func (ins Instruction) Expressions() []*Expr {
	var exprs []*Expr
	for _, e := range []*Expr{ins.Dest, ins.Src, ins.Condition} {
		if e != nil {
			exprs = append(exprs, e)
		}
	}
	for _, e := range ins.Operands {
		if e != nil {
			exprs = append(exprs, e)
		}
	}
	return exprs
}

// MediumOp is the operation of a medium-level instruction.
type MediumOp int

// Medium-level operations.
const (
	MediumOther MediumOp = iota
	MediumSetVar
)

// MediumInstruction is the medium-level form of an instruction where register
// values have been propagated into expressions.
type MediumInstruction struct {
	Address uint64
	Index   int
	Op      MediumOp
	Dest    string // assigned variable for MediumSetVar
	Src     *Expr  // assigned value, or the destination of an indirect jump
}
