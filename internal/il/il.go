// Package il defines the lifted instruction and expression tree model that an
// analysis provider exposes for machine code.
package il

import (
	"fmt"
	"strings"
)

// MaxDepth bounds every recursive descent over an expression tree.
const MaxDepth = 32

// Op is the operation of an expression node.
type Op int

// Expression operations.
const (
	OpOther Op = iota
	OpConst
	OpConstPtr
	OpReg
	OpLoad
	OpAdd
	OpSub
	OpMul
	OpLsl
	OpSignExtend
	OpZeroExtend
)

var opNames = map[Op]string{
	OpOther:      "other",
	OpConst:      "const",
	OpConstPtr:   "const_ptr",
	OpReg:        "reg",
	OpLoad:       "load",
	OpAdd:        "add",
	OpSub:        "sub",
	OpMul:        "mul",
	OpLsl:        "lsl",
	OpSignExtend: "sx",
	OpZeroExtend: "zx",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Expr is a node of an expression tree.
type Expr struct {
	Op       Op
	Value    uint64 // constant value for OpConst and OpConstPtr
	Reg      string // register or variable name for OpReg
	Size     int    // operand size in bytes, 0 if unknown
	Operands []*Expr
}

// Const returns a constant expression.
func Const(value uint64) *Expr {
	return &Expr{Op: OpConst, Value: value}
}

// ConstPtr returns a constant expression that is known to be an address.
func ConstPtr(value uint64) *Expr {
	return &Expr{Op: OpConstPtr, Value: value}
}

// Reg returns a register expression.
func Reg(name string) *Expr {
	return &Expr{Op: OpReg, Reg: name}
}

// Load returns a memory read of size bytes from the address expression.
func Load(address *Expr, size int) *Expr {
	return &Expr{Op: OpLoad, Size: size, Operands: []*Expr{address}}
}

// Add returns left + right.
func Add(left, right *Expr) *Expr {
	return &Expr{Op: OpAdd, Operands: []*Expr{left, right}}
}

// Sub returns left - right.
func Sub(left, right *Expr) *Expr {
	return &Expr{Op: OpSub, Operands: []*Expr{left, right}}
}

// Mul returns left * right.
func Mul(left, right *Expr) *Expr {
	return &Expr{Op: OpMul, Operands: []*Expr{left, right}}
}

// Lsl returns left << right.
func Lsl(left, right *Expr) *Expr {
	return &Expr{Op: OpLsl, Operands: []*Expr{left, right}}
}

// SignExtend returns the sign extension of e to size bytes.
func SignExtend(e *Expr, size int) *Expr {
	return &Expr{Op: OpSignExtend, Size: size, Operands: []*Expr{e}}
}

// ZeroExtend returns the zero extension of e to size bytes.
func ZeroExtend(e *Expr, size int) *Expr {
	return &Expr{Op: OpZeroExtend, Size: size, Operands: []*Expr{e}}
}

// Other returns an opaque operation over the given operands.
func Other(operands ...*Expr) *Expr {
	return &Expr{Op: OpOther, Operands: operands}
}

// IsConstant returns whether the expression is a constant or constant pointer.
func (e *Expr) IsConstant() bool {
	return e != nil && (e.Op == OpConst || e.Op == OpConstPtr)
}

// Left returns the first operand or nil.
func (e *Expr) Left() *Expr {
	if e == nil || len(e.Operands) == 0 {
		return nil
	}
	return e.Operands[0]
}

// Right returns the second operand or nil.
func (e *Expr) Right() *Expr {
	if e == nil || len(e.Operands) < 2 {
		return nil
	}
	return e.Operands[1]
}

func (e *Expr) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Op {
	case OpConst:
		return fmt.Sprintf("0x%x", e.Value)
	case OpConstPtr:
		return fmt.Sprintf("&0x%x", e.Value)
	case OpReg:
		return e.Reg
	case OpLoad:
		return fmt.Sprintf("[%s]", e.Left())
	}

	parts := make([]string, 0, len(e.Operands))
	for _, op := range e.Operands {
		parts = append(parts, op.String())
	}
	return fmt.Sprintf("%s(%s)", e.Op, strings.Join(parts, ", "))
}

// Walk visits the expression tree in pre-order. Children of a node are skipped
// when visit returns false. Nodes deeper than MaxDepth are not visited.
func Walk(e *Expr, visit func(e *Expr, depth int) bool) {
	walk(e, 0, visit)
}

func walk(e *Expr, depth int, visit func(e *Expr, depth int) bool) {
	if e == nil || depth > MaxDepth {
		return
	}
	if !visit(e, depth) {
		return
	}
	for _, op := range e.Operands {
		walk(op, depth+1, visit)
	}
}
