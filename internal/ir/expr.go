package ir

import (
	"fmt"
	"strings"
)

// Expr is a sealed interface over read-only expression trees.
// Only Lit, Var, Binary, and Unary implement it.
//
// Expressions are pure by construction: no variant can mutate a slot or
// call a procedure. The evaluator is therefore free to run an Expr any
// number of times in either direction - the backward pass depends on
// re-evaluating an Assign's right-hand side after the forward mutation
// and getting the identical value.
type Expr interface {
	expr() // Sealed - only these types implement it.
}

// Lit is a literal Word.
type Lit struct {
	Value Word `json:"value"`
}

func (Lit) expr() {}

// Var reads the slot bound to a variable name in the current
// environment. A Var never owns data; it only names a slot.
type Var struct {
	Name string `json:"name"`
}

func (Var) expr() {}

// BinOp is a pure binary combinator. Distinct from Op: these never
// mutate, so the set is wider and carries no inverse table.
type BinOp string

const (
	BinAdd BinOp = "+"
	BinSub BinOp = "-"
	BinMul BinOp = "*"
	BinDiv BinOp = "/"
	BinMod BinOp = "%"
	BinXor BinOp = "^"
	BinAnd BinOp = "&"
	BinOr  BinOp = "|"

	BinEq BinOp = "=="
	BinNe BinOp = "!="
	BinLt BinOp = "<"
	BinLe BinOp = "<="
	BinGt BinOp = ">"
	BinGe BinOp = ">="

	BinLogAnd BinOp = "&&"
	BinLogOr  BinOp = "||"
)

// ValidBinOps defines the allowed pure binary operators.
var ValidBinOps = map[BinOp]bool{
	BinAdd: true, BinSub: true, BinMul: true, BinDiv: true, BinMod: true,
	BinXor: true, BinAnd: true, BinOr: true,
	BinEq: true, BinNe: true, BinLt: true, BinLe: true, BinGt: true, BinGe: true,
	BinLogAnd: true, BinLogOr: true,
}

// Binary applies a pure operator to two sub-expressions.
type Binary struct {
	Op    BinOp `json:"op"`
	Left  Expr  `json:"left"`
	Right Expr  `json:"right"`
}

func (Binary) expr() {}

// UnOp is a pure unary combinator.
type UnOp string

const (
	UnNot UnOp = "!"
	UnNeg UnOp = "-"
)

// ValidUnOps defines the allowed pure unary operators.
var ValidUnOps = map[UnOp]bool{
	UnNot: true,
	UnNeg: true,
}

// Unary applies a pure unary operator to a sub-expression.
type Unary struct {
	Op      UnOp `json:"op"`
	Operand Expr `json:"operand"`
}

func (Unary) expr() {}

// WalkVars calls fn for every Var in the expression tree, in
// left-to-right order.
func WalkVars(e Expr, fn func(name string)) {
	switch x := e.(type) {
	case Lit:
	case Var:
		fn(x.Name)
	case Binary:
		WalkVars(x.Left, fn)
		WalkVars(x.Right, fn)
	case Unary:
		WalkVars(x.Operand, fn)
	}
}

// ContainsVar reports whether name occurs as a Var anywhere in e.
// The static validator uses this to enforce that an Assign target never
// occurs inside its own right-hand side.
func ContainsVar(e Expr, name string) bool {
	found := false
	WalkVars(e, func(n string) {
		if n == name {
			found = true
		}
	})
	return found
}

// FormatExpr renders an expression for diagnostics. Fully
// parenthesised; not meant to round-trip through the compiler.
func FormatExpr(e Expr) string {
	switch x := e.(type) {
	case Lit:
		return fmt.Sprintf("%d", x.Value)
	case Var:
		return x.Name
	case Binary:
		return fmt.Sprintf("(%s %s %s)", FormatExpr(x.Left), x.Op, FormatExpr(x.Right))
	case Unary:
		return fmt.Sprintf("%s%s", x.Op, FormatExpr(x.Operand))
	default:
		return fmt.Sprintf("<%T>", e)
	}
}

// FormatVarList renders a comma-separated variable list for diagnostics.
func FormatVarList(names []string) string {
	return strings.Join(names, ", ")
}
