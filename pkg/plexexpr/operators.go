package plexexpr

import (
	"fmt"
	"math"

	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// --- Logical --------------------------------------------------------

// NewAnd builds an n-ary AND: any False operand forces False; else any
// Unknown operand forces Unknown; else True (spec §4.1).
func NewAnd(name string, operands ...Expression) *Derived {
	return NewDerived(name, plexval.TypeBoolean, operands, func(args []plexval.Value) (plexval.Value, error) {
		sawUnknown := false
		for _, a := range args {
			b, ok := a.AsBool()
			if !ok {
				sawUnknown = true
				continue
			}
			if !b {
				return plexval.Boolean(false), nil
			}
		}
		if sawUnknown {
			return plexval.Unknown, nil
		}
		return plexval.Boolean(true), nil
	})
}

// NewOr builds an n-ary OR: any True operand forces True; else any
// Unknown operand forces Unknown; else False.
func NewOr(name string, operands ...Expression) *Derived {
	return NewDerived(name, plexval.TypeBoolean, operands, func(args []plexval.Value) (plexval.Value, error) {
		sawUnknown := false
		for _, a := range args {
			b, ok := a.AsBool()
			if !ok {
				sawUnknown = true
				continue
			}
			if b {
				return plexval.Boolean(true), nil
			}
		}
		if sawUnknown {
			return plexval.Unknown, nil
		}
		return plexval.Boolean(false), nil
	})
}

// NewXor builds an n-ary XOR: any Unknown operand forces Unknown; else
// the parity of the number of True operands.
func NewXor(name string, operands ...Expression) *Derived {
	return NewDerived(name, plexval.TypeBoolean, operands, func(args []plexval.Value) (plexval.Value, error) {
		trueCount := 0
		for _, a := range args {
			b, ok := a.AsBool()
			if !ok {
				return plexval.Unknown, nil
			}
			if b {
				trueCount++
			}
		}
		return plexval.Boolean(trueCount%2 == 1), nil
	})
}

// NewNot builds NOT: Unknown propagates, else logical negation.
func NewNot(name string, operand Expression) *Derived {
	return NewDerived(name, plexval.TypeBoolean, []Expression{operand}, func(args []plexval.Value) (plexval.Value, error) {
		b, ok := args[0].AsBool()
		if !ok {
			return plexval.Unknown, nil
		}
		return plexval.Boolean(!b), nil
	})
}

// --- Comparison ------------------------------------------------------

// CompareOp names a comparison operator.
type CompareOp uint8

const (
	CompareEQ CompareOp = iota
	CompareNE
	CompareLT
	CompareLE
	CompareGT
	CompareGE
)

// NewCompare builds a binary comparison. Numeric comparisons coerce
// Integer to Real (spec §3, §4.1). Equality/inequality are defined across
// all value types of matching kind; cross-kind equality is always False
// (via Value.Equal), cross-kind inequality is always True.
func NewCompare(name string, op CompareOp, lhs, rhs Expression) *Derived {
	return NewDerived(name, plexval.TypeBoolean, []Expression{lhs, rhs}, func(args []plexval.Value) (plexval.Value, error) {
		a, b := args[0], args[1]
		if !a.IsKnown() || !b.IsKnown() {
			return plexval.Unknown, nil
		}

		if op == CompareEQ {
			return plexval.Boolean(a.Equal(b)), nil
		}
		if op == CompareNE {
			return plexval.Boolean(!a.Equal(b)), nil
		}

		an, aok := a.AsNumeric()
		bn, bok := b.AsNumeric()
		if !aok || !bok {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Compare", "ordering comparison on non-numeric operand")
		}
		var result bool
		switch op {
		case CompareLT:
			result = an < bn
		case CompareLE:
			result = an <= bn
		case CompareGT:
			result = an > bn
		case CompareGE:
			result = an >= bn
		}
		return plexval.Boolean(result), nil
	})
}

// --- Arithmetic -------------------------------------------------------

// ArithOp names a binary arithmetic operator.
type ArithOp uint8

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
	ArithMod
	ArithMin
	ArithMax
)

// NewArith builds a binary arithmetic expression. Integer op Integer stays
// Integer for +, -, *, min, max; / and mod always produce Real (spec
// §4.1). Integer results are range-checked against ±2^31-1; Real results
// must be finite. Either operand Unknown propagates.
func NewArith(name string, op ArithOp, lhs, rhs Expression) *Derived {
	return NewDerived(name, arithResultType(op, lhs, rhs), []Expression{lhs, rhs}, func(args []plexval.Value) (plexval.Value, error) {
		a, b := args[0], args[1]
		if !a.IsKnown() || !b.IsKnown() {
			return plexval.Unknown, nil
		}

		ai, aIsInt := a.AsInt()
		bi, bIsInt := b.AsInt()
		bothInt := aIsInt && bIsInt && op != ArithDiv && op != ArithMod

		if bothInt {
			var r int64
			switch op {
			case ArithAdd:
				r = ai + bi
			case ArithSub:
				r = ai - bi
			case ArithMul:
				r = ai * bi
			case ArithMin:
				r = ai
				if bi < ai {
					r = bi
				}
			case ArithMax:
				r = ai
				if bi > ai {
					r = bi
				}
			}
			if !plexval.InIntegerRange(r) {
				return plexval.Unknown, plexval.NewExpressionError("plexexpr.Arith", "integer overflow")
			}
			return plexval.Integer(r), nil
		}

		an, aok := a.AsNumeric()
		bn, bok := b.AsNumeric()
		if !aok || !bok {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Arith", "arithmetic on non-numeric operand")
		}
		var r float64
		switch op {
		case ArithAdd:
			r = an + bn
		case ArithSub:
			r = an - bn
		case ArithMul:
			r = an * bn
		case ArithDiv:
			if bn == 0 {
				return plexval.Unknown, plexval.NewExpressionError("plexexpr.Arith", "division by zero")
			}
			r = an / bn
		case ArithMod:
			if bn == 0 {
				return plexval.Unknown, plexval.NewExpressionError("plexexpr.Arith", "modulo by zero")
			}
			r = math.Mod(an, bn)
		case ArithMin:
			r = math.Min(an, bn)
		case ArithMax:
			r = math.Max(an, bn)
		}
		if !plexval.Finite(r) {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Arith", "non-finite real result")
		}
		return plexval.Real(r), nil
	})
}

func arithResultType(op ArithOp, lhs, rhs Expression) plexval.Type {
	if op == ArithDiv || op == ArithMod {
		return plexval.TypeReal
	}
	if lhs.Type() == plexval.TypeInteger && rhs.Type() == plexval.TypeInteger {
		return plexval.TypeInteger
	}
	return plexval.TypeReal
}

// NewAbs builds an absolute-value expression, Integer-in-Integer-out or
// Real-in-Real-out.
func NewAbs(name string, operand Expression) *Derived {
	return NewDerived(name, operand.Type(), []Expression{operand}, func(args []plexval.Value) (plexval.Value, error) {
		a := args[0]
		if !a.IsKnown() {
			return plexval.Unknown, nil
		}
		if i, ok := a.AsInt(); ok {
			r := i
			if r < 0 {
				r = -r
			}
			if !plexval.InIntegerRange(r) {
				return plexval.Unknown, plexval.NewExpressionError("plexexpr.Abs", "integer overflow")
			}
			return plexval.Integer(r), nil
		}
		r, ok := a.AsNumeric()
		if !ok {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Abs", "abs of non-numeric operand")
		}
		return plexval.Real(math.Abs(r)), nil
	})
}

// NewSqrt builds a square-root expression. sqrt of a negative is fatal
// (spec §4.1), never a silent NaN.
func NewSqrt(name string, operand Expression) *Derived {
	return NewDerived(name, plexval.TypeReal, []Expression{operand}, func(args []plexval.Value) (plexval.Value, error) {
		a := args[0]
		if !a.IsKnown() {
			return plexval.Unknown, nil
		}
		r, ok := a.AsNumeric()
		if !ok {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Sqrt", "sqrt of non-numeric operand")
		}
		if r < 0 {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Sqrt", "sqrt of negative operand")
		}
		return plexval.Real(math.Sqrt(r)), nil
	})
}

// --- String ------------------------------------------------------------

// NewConcat builds an n-ary string concatenation: any Unknown operand
// forces Unknown.
func NewConcat(name string, operands ...Expression) *Derived {
	return NewDerived(name, plexval.TypeString, operands, func(args []plexval.Value) (plexval.Value, error) {
		out := ""
		for _, a := range args {
			s, ok := a.AsString()
			if !ok {
				return plexval.Unknown, nil
			}
			out += s
		}
		return plexval.String(out), nil
	})
}

// --- Array ---------------------------------------------------------------

// NewSubscript builds an array element-lookup expression. Out-of-range
// indices are fatal (spec §4.1); an Unknown element value propagates as
// Unknown without faulting.
func NewSubscript(name string, array, index Expression) *Derived {
	resultType := array.Type()
	switch resultType {
	case plexval.TypeBooleanArray:
		resultType = plexval.TypeBoolean
	case plexval.TypeIntegerArray:
		resultType = plexval.TypeInteger
	case plexval.TypeRealArray:
		resultType = plexval.TypeReal
	case plexval.TypeStringArray:
		resultType = plexval.TypeString
	}
	return NewDerived(name, resultType, []Expression{array, index}, func(args []plexval.Value) (plexval.Value, error) {
		arr, idx := args[0], args[1]
		if !arr.IsKnown() || !idx.IsKnown() {
			return plexval.Unknown, nil
		}
		i, ok := idx.AsInt()
		if !ok {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Subscript", "array index must be Integer")
		}
		elem, inRange := arr.ElementAt(int(i))
		if !inRange {
			return plexval.Unknown, plexval.NewExpressionError("plexexpr.Subscript", fmt.Sprintf("array index %d out of range", i))
		}
		return elem, nil
	})
}

// --- Introspection --------------------------------------------------------

// NewIsKnown builds the IsKnown introspection operator. It always returns
// a Boolean — it never produces Unknown, even when its operand's value is
// Unknown (activating IsKnown activates its operand first). (Spec §4.1's
// operator table; semantics confirmed against
// original_source/src/exec/Calculables.cc's IsKnown calculable).
func NewIsKnown(name string, operand Expression) *Derived {
	return NewDerived(name, plexval.TypeBoolean, []Expression{operand}, func(args []plexval.Value) (plexval.Value, error) {
		return plexval.Boolean(args[0].IsKnown()), nil
	})
}
