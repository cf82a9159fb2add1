package ir

import "fmt"

// Op is a reversible mutating operator. This is a closed set: the
// statement engine inverts an Assign by swapping the operator per the
// inverse table, so every Op must have a total inverse.
//
// Inverse table (part of the external contract):
//
//	Add <-> Sub
//	Sub <-> Add
//	Xor <-> Xor (self-inverse)
type Op string

const (
	OpAdd Op = "+="
	OpSub Op = "-="
	OpXor Op = "^="
)

// ValidOps defines the allowed mutating operators.
var ValidOps = map[Op]bool{
	OpAdd: true,
	OpSub: true,
	OpXor: true,
}

// Inverse returns the operator that undoes op.
// Panics on an operator outside the closed set; the static validator
// rejects those before any execution.
func (op Op) Inverse() Op {
	switch op {
	case OpAdd:
		return OpSub
	case OpSub:
		return OpAdd
	case OpXor:
		return OpXor
	default:
		panic(fmt.Sprintf("ir: no inverse for operator %q", string(op)))
	}
}

// Apply computes target op value. The second return reports whether the
// result stayed in the Word range; Xor is always total.
func (op Op) Apply(target, value Word) (Word, bool) {
	switch op {
	case OpAdd:
		return AddWord(target, value)
	case OpSub:
		return SubWord(target, value)
	case OpXor:
		return target ^ value, true
	default:
		panic(fmt.Sprintf("ir: cannot apply operator %q", string(op)))
	}
}

func (op Op) String() string {
	return string(op)
}
