package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Arithmetic opcodes
// ---------------------------------------------------------------------------

// execBinaryArith handles ADD/SUBTRACT/MULTIPLY/DIVIDE/MODULO. Mixed numeric
// operands are promoted to their common type before computing; results carry
// the common type. ADD doubles as string concatenation and MULTIPLY as string
// repetition.
func (vm *VM) execBinaryArith(c *ExecutionContext, op Opcode) error {
	a, b, err := c.pop2(op.String())
	if err != nil {
		return err
	}
	defer a.Release()
	defer b.Release()

	ak, bk := a.Kind(), b.Kind()

	// String forms first: concatenation coerces the other operand.
	if op == OpAdd && (ak == KindString || bk == KindString) {
		c.push(vm.region.String(a.Format() + b.Format()))
		return nil
	}
	if op == OpMultiply && (ak == KindString || bk == KindString) {
		s, n := a, b
		if bk == KindString {
			s, n = b, a
		}
		if !n.Kind().IsInteger() {
			return typeErrorf("cannot repeat %s by %s", s.Type(), n.Type())
		}
		count, err := castNumeric(n.numeric(), KindInt64)
		if err != nil {
			return err
		}
		if count.i < 0 {
			return arithErrorf("negative string repetition count %d", count.i)
		}
		c.push(vm.region.String(strings.Repeat(s.Str(), int(count.i))))
		return nil
	}

	if !ak.IsNumeric() || !bk.IsNumeric() {
		return typeErrorf("%s requires numeric operands, got %s and %s", op, a.Type(), b.Type())
	}

	common, err := CommonType(a.Type(), b.Type())
	if err != nil {
		return err
	}
	x, err := castNumeric(a.numeric(), common.Kind)
	if err != nil {
		return err
	}
	y, err := castNumeric(b.numeric(), common.Kind)
	if err != nil {
		return err
	}

	out, err := arith(op, x, y)
	if err != nil {
		return err
	}
	c.push(vm.region.fromNumeric(out))
	return nil
}

// arith computes one binary operation on two numerics of the same kind, with
// overflow and zero-divisor checks in that kind's domain.
func arith(op Opcode, x, y numeric) (numeric, error) {
	k := x.kind
	out := numeric{kind: k}

	switch {
	case k.IsFloat():
		switch op {
		case OpAdd:
			out.f = x.f + y.f
		case OpSubtract:
			out.f = x.f - y.f
		case OpMultiply:
			out.f = x.f * y.f
		case OpDivide:
			if y.f == 0 {
				return out, arithErrorf("floating-point division by zero")
			}
			out.f = x.f / y.f
		case OpModulo:
			if y.f == 0 {
				return out, arithErrorf("floating-point modulo by zero")
			}
			out.f = math.Mod(x.f, y.f)
		}
		if k == KindFloat32 {
			out.f = float64(float32(out.f))
		}
		return out, nil

	case k.IsSigned():
		lo, hi := intMin[k], intMax[k]
		switch op {
		case OpAdd:
			if (y.i > 0 && x.i > hi-y.i) || (y.i < 0 && x.i < lo-y.i) {
				return out, arithErrorf("integer overflow in %d + %d", x.i, y.i)
			}
			out.i = x.i + y.i
		case OpSubtract:
			if (y.i < 0 && x.i > hi+y.i) || (y.i > 0 && x.i < lo+y.i) {
				return out, arithErrorf("integer overflow in %d - %d", x.i, y.i)
			}
			out.i = x.i - y.i
		case OpMultiply:
			if x.i != 0 && y.i != 0 {
				p := x.i * y.i
				if p/y.i != x.i || (x.i == lo && y.i == -1) || p < lo || p > hi {
					return out, arithErrorf("integer overflow in %d * %d", x.i, y.i)
				}
				out.i = p
			}
		case OpDivide:
			if y.i == 0 {
				return out, arithErrorf("division by zero")
			}
			if x.i == lo && y.i == -1 {
				return out, arithErrorf("integer overflow in %d / %d", x.i, y.i)
			}
			out.i = x.i / y.i
		case OpModulo:
			if y.i == 0 {
				return out, arithErrorf("modulo by zero")
			}
			out.i = x.i % y.i
		}
		return out, nil

	default: // unsigned
		hi := uintMax[k]
		switch op {
		case OpAdd:
			if x.u > hi-y.u {
				return out, arithErrorf("integer overflow in %d + %d", x.u, y.u)
			}
			out.u = x.u + y.u
		case OpSubtract:
			if y.u > x.u {
				return out, arithErrorf("integer overflow in %d - %d", x.u, y.u)
			}
			out.u = x.u - y.u
		case OpMultiply:
			if x.u != 0 && y.u != 0 {
				p := x.u * y.u
				if p/y.u != x.u || p > hi {
					return out, arithErrorf("integer overflow in %d * %d", x.u, y.u)
				}
				out.u = p
			}
		case OpDivide:
			if y.u == 0 {
				return out, arithErrorf("division by zero")
			}
			out.u = x.u / y.u
		case OpModulo:
			if y.u == 0 {
				return out, arithErrorf("modulo by zero")
			}
			out.u = x.u % y.u
		}
		return out, nil
	}
}

// execNegate handles NEGATE. Signed and float operands keep their kind; an
// unsigned operand is first cast to Int64, so magnitudes past MaxInt64 fail.
func (vm *VM) execNegate(c *ExecutionContext) error {
	v, err := c.pop("NEGATE")
	if err != nil {
		return err
	}
	defer v.Release()

	k := v.Kind()
	switch {
	case k.IsFloat():
		n := v.numeric()
		n.f = -n.f
		c.push(vm.region.fromNumeric(n))
		return nil
	case k.IsSigned():
		n := v.numeric()
		if n.i == intMin[k] {
			return arithErrorf("integer overflow negating %d", n.i)
		}
		n.i = -n.i
		c.push(vm.region.fromNumeric(n))
		return nil
	case k.IsInteger():
		n, err := castNumeric(v.numeric(), KindInt64)
		if err != nil {
			return err
		}
		n.i = -n.i
		c.push(vm.region.fromNumeric(n))
		return nil
	}
	return typeErrorf("cannot negate %s", v.Type())
}

// ---------------------------------------------------------------------------
// Comparison opcodes
// ---------------------------------------------------------------------------

// execComparison handles the six comparison opcodes. EQUAL/NOT_EQUAL never
// fail: incompatible types simply compare unequal. The ordering comparisons
// require two numerics or two strings.
func (vm *VM) execComparison(c *ExecutionContext, op Opcode) error {
	a, b, err := c.pop2(op.String())
	if err != nil {
		return err
	}
	defer a.Release()
	defer b.Release()

	switch op {
	case OpEqual:
		c.push(vm.region.Bool(valueEquals(a, b)))
		return nil
	case OpNotEqual:
		c.push(vm.region.Bool(!valueEquals(a, b)))
		return nil
	}

	var cmp int
	switch {
	case a.Kind().IsNumeric() && b.Kind().IsNumeric():
		cmp, err = compareNumeric(a.numeric(), b.numeric())
		if err != nil {
			return err
		}
	case a.Kind() == KindString && b.Kind() == KindString:
		cmp = strings.Compare(a.Str(), b.Str())
	default:
		return typeErrorf("cannot order %s and %s", a.Type(), b.Type())
	}

	var result bool
	switch op {
	case OpLess:
		result = cmp < 0
	case OpLessEqual:
		result = cmp <= 0
	case OpGreater:
		result = cmp > 0
	case OpGreaterEqual:
		result = cmp >= 0
	}
	c.push(vm.region.Bool(result))
	return nil
}

// ---------------------------------------------------------------------------
// Logic opcodes
// ---------------------------------------------------------------------------

// execLogic handles AND/OR/NOT over operand truthiness. Both operands are
// already on the stack; short-circuiting is the code generator's job, done
// with conditional jumps.
func (vm *VM) execLogic(c *ExecutionContext, op Opcode) error {
	if op == OpNot {
		v, err := c.pop("NOT")
		if err != nil {
			return err
		}
		c.push(vm.region.Bool(!v.IsTruthy()))
		v.Release()
		return nil
	}

	a, b, err := c.pop2(op.String())
	if err != nil {
		return err
	}
	defer a.Release()
	defer b.Release()

	if op == OpAnd {
		c.push(vm.region.Bool(a.IsTruthy() && b.IsTruthy()))
	} else {
		c.push(vm.region.Bool(a.IsTruthy() || b.IsTruthy()))
	}
	return nil
}
