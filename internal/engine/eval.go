package engine

import (
	"fmt"
	"math"

	"github.com/mkrall/janus/internal/ir"
)

// Evaluator computes the value of a pure expression against a
// read-only environment view.
//
// The evaluator is an injected strategy: the core never depends on a
// specific expression grammar. A host embedding Janus can supply its
// own evaluator for its own expression trees, as long as it stays pure
// (reads only through the EnvReader, no side effects) - the backward
// pass re-evaluates right-hand sides after the forward mutation and
// depends on getting identical values.
type Evaluator interface {
	Eval(e ir.Expr, env EnvReader) (ir.Word, error)
}

// DefaultEvaluator evaluates the sealed ir.Expr tree.
//
// Logical && and || do not short-circuit: both operands are always
// evaluated so the read set of an expression is independent of slot
// values, which keeps dynamic alias checks deterministic.
type DefaultEvaluator struct{}

// Eval implements Evaluator.
func (DefaultEvaluator) Eval(e ir.Expr, env EnvReader) (ir.Word, error) {
	switch x := e.(type) {
	case ir.Lit:
		return x.Value, nil

	case ir.Var:
		return env.Read(x.Name)

	case ir.Unary:
		v, err := DefaultEvaluator{}.Eval(x.Operand, env)
		if err != nil {
			return 0, err
		}
		switch x.Op {
		case ir.UnNot:
			return ir.Bool(!ir.Truthy(v)), nil
		case ir.UnNeg:
			neg, ok := ir.SubWord(0, v)
			if !ok {
				return 0, errExprOverflow
			}
			return neg, nil
		default:
			return 0, fmt.Errorf("unknown unary operator %q", string(x.Op))
		}

	case ir.Binary:
		l, err := DefaultEvaluator{}.Eval(x.Left, env)
		if err != nil {
			return 0, err
		}
		r, err := DefaultEvaluator{}.Eval(x.Right, env)
		if err != nil {
			return 0, err
		}
		return applyBinary(x.Op, l, r)

	default:
		return 0, fmt.Errorf("unknown expression type %T", e)
	}
}

func applyBinary(op ir.BinOp, l, r ir.Word) (ir.Word, error) {
	switch op {
	case ir.BinAdd:
		v, ok := ir.AddWord(l, r)
		if !ok {
			return 0, errExprOverflow
		}
		return v, nil
	case ir.BinSub:
		v, ok := ir.SubWord(l, r)
		if !ok {
			return 0, errExprOverflow
		}
		return v, nil
	case ir.BinMul:
		return mulWord(l, r)
	case ir.BinDiv:
		if r == 0 {
			return 0, errDivisionByZero
		}
		if l == math.MinInt64 && r == -1 {
			return 0, errExprOverflow
		}
		return l / r, nil
	case ir.BinMod:
		if r == 0 {
			return 0, errDivisionByZero
		}
		return l % r, nil
	case ir.BinXor:
		return l ^ r, nil
	case ir.BinAnd:
		return l & r, nil
	case ir.BinOr:
		return l | r, nil
	case ir.BinEq:
		return ir.Bool(l == r), nil
	case ir.BinNe:
		return ir.Bool(l != r), nil
	case ir.BinLt:
		return ir.Bool(l < r), nil
	case ir.BinLe:
		return ir.Bool(l <= r), nil
	case ir.BinGt:
		return ir.Bool(l > r), nil
	case ir.BinGe:
		return ir.Bool(l >= r), nil
	case ir.BinLogAnd:
		return ir.Bool(ir.Truthy(l) && ir.Truthy(r)), nil
	case ir.BinLogOr:
		return ir.Bool(ir.Truthy(l) || ir.Truthy(r)), nil
	default:
		return 0, fmt.Errorf("unknown pure operator %q", string(op))
	}
}

// mulWord multiplies with overflow detection. Multiplication only
// appears in pure expressions (it is not a reversible mutating
// operator), but totality still matters there.
func mulWord(a, b ir.Word) (ir.Word, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	// MinInt64 * -1 wraps back to MinInt64 and passes the division
	// check below, so it needs its own guard.
	if (a == math.MinInt64 && b == -1) || (b == math.MinInt64 && a == -1) {
		return 0, errExprOverflow
	}
	p := a * b
	if p/b != a {
		return 0, errExprOverflow
	}
	return p, nil
}
