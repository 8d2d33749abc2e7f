package jumptable

import (
	"slices"

	"github.com/retroenv/retrocfg/internal/il"
)

// searchBase returns the additive constant of a displacement address
// expression, for example 0x8040000 for load(eax*4 + 0x8040000).
func searchBase(e *il.Expr, depth int) (uint64, bool) {
	if e == nil || depth > il.MaxDepth {
		return 0, false
	}

	switch e.Op {
	case il.OpLoad, il.OpSignExtend, il.OpZeroExtend:
		return searchBase(e.Left(), depth+1)

	case il.OpAdd:
		if base, ok := searchBase(e.Left(), depth+1); ok {
			return base, true
		}
		return searchBase(e.Right(), depth+1)

	case il.OpConst, il.OpConstPtr:
		return e.Value, true

	default:
		return 0, false
	}
}

// searchMediumConstant searches the operands of additions and subtractions of
// a medium-level load for a constant pointer if ptr is set, or otherwise for
// a plain constant. Subtracted constants are negated.
func searchMediumConstant(e *il.Expr, ptr, negate bool, depth int) (uint64, bool) {
	if e == nil || depth > il.MaxDepth {
		return 0, false
	}

	switch e.Op {
	case il.OpLoad, il.OpSignExtend, il.OpZeroExtend:
		return searchMediumConstant(e.Left(), ptr, negate, depth+1)

	case il.OpAdd, il.OpSub:
		if value, ok := searchMediumConstant(e.Left(), ptr, negate, depth+1); ok {
			return value, true
		}
		return searchMediumConstant(e.Right(), ptr, negate != (e.Op == il.OpSub), depth+1)

	case il.OpConstPtr:
		if !ptr {
			return 0, false
		}
		return signed(e.Value, negate), true

	case il.OpConst:
		if ptr {
			return 0, false
		}
		return signed(e.Value, negate), true

	default:
		return 0, false
	}
}

func signed(value uint64, negate bool) uint64 {
	if negate {
		return -value
	}
	return value
}

// searchIndex returns the register that indexes the table and the scale it
// is multiplied with. A scale of 0 means the scale is unknown.
func searchIndex(e *il.Expr) (string, uint64) {
	var (
		reg   string
		scale uint64
	)

	il.Walk(e, func(node *il.Expr, _ int) bool {
		if reg != "" {
			return false
		}
		switch node.Op {
		case il.OpMul:
			if r, c := regAndConst(node); r != nil && c != nil {
				reg, scale = r.Reg, c.Value
				return false
			}
		case il.OpLsl:
			if r, c := regAndConst(node); r != nil && c != nil && c.Value < 8 {
				reg, scale = r.Reg, 1<<c.Value
				return false
			}
		}
		return true
	})
	if reg != "" {
		return reg, scale
	}

	il.Walk(e, func(node *il.Expr, _ int) bool {
		if reg == "" && node.Op == il.OpReg {
			reg = node.Reg
		}
		return reg == ""
	})
	return reg, 0
}

// regAndConst returns the register and constant operands of a binary
// operation, ignoring extensions of the register.
func regAndConst(e *il.Expr) (*il.Expr, *il.Expr) {
	var reg, c *il.Expr
	for _, op := range e.Operands {
		for op != nil && (op.Op == il.OpSignExtend || op.Op == il.OpZeroExtend) {
			op = op.Left()
		}
		switch {
		case op == nil:
		case op.Op == il.OpReg:
			reg = op
		case op.IsConstant():
			c = op
		}
	}
	return reg, c
}

// unwrapLoad returns the load expression of an assignment source, looking
// through sign and zero extensions.
func unwrapLoad(e *il.Expr) *il.Expr {
	for depth := 0; e != nil && depth <= il.MaxDepth; depth++ {
		switch e.Op {
		case il.OpLoad:
			return e
		case il.OpSignExtend, il.OpZeroExtend:
			e = e.Left()
		default:
			return nil
		}
	}
	return nil
}

// trackedSource returns the register that holds the jump destination before an
// assignment of src to the tracked register. Arithmetic on the tracked register
// keeps it, a plain copy or arithmetic on a single other register moves to that
// register.
func trackedSource(src *il.Expr, tracked string) (string, bool) {
	var regs []string
	il.Walk(src, func(node *il.Expr, _ int) bool {
		if node.Op == il.OpLoad {
			return false
		}
		if node.Op == il.OpReg && !slices.Contains(regs, node.Reg) {
			regs = append(regs, node.Reg)
		}
		return true
	})

	switch {
	case slices.Contains(regs, tracked):
		return tracked, true
	case len(regs) == 1:
		return regs[0], true
	default:
		return "", false
	}
}
