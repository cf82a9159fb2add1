// Package testutil provides shared program fixtures for tests.
//
// The builders return fresh AST values on every call so a test that
// mutates its copy cannot leak into another.
package testutil

import "github.com/mkrall/janus/internal/ir"

// FibProcedure returns the reversible Fibonacci procedure.
//
// Forward from {0, 0, n} it computes two consecutive Fibonacci numbers
// and consumes the counter; backward it reconstructs the counter.
// Exercises every recursion-relevant construct: conditional, call,
// assign, and swap.
func FibProcedure() *ir.Procedure {
	return &ir.Procedure{
		Name:   "fib",
		Params: []string{"x1", "x2", "n"},
		Body: []ir.Statement{
			ir.If{
				Guard: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "n"}, Right: ir.Lit{Value: 0}},
				Then: []ir.Statement{
					ir.Assign{Target: "x1", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}},
					ir.Assign{Target: "x2", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}},
				},
				Else: []ir.Statement{
					ir.Assign{Target: "n", Op: ir.OpSub, Rhs: ir.Lit{Value: 1}},
					ir.Call{Callee: "fib", Args: []string{"x1", "x2", "n"}},
					ir.Assign{Target: "x1", Op: ir.OpAdd, Rhs: ir.Var{Name: "x2"}},
					ir.Swap{A: "x1", B: "x2"},
				},
				Assert: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x1"}, Right: ir.Var{Name: "x2"}},
			},
		},
	}
}

// CountProcedure returns a loop that walks x from 0 up to n.
func CountProcedure() *ir.Procedure {
	return &ir.Procedure{
		Name:   "count",
		Params: []string{"x", "n"},
		Body: []ir.Statement{
			ir.Loop{
				From: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 0}},
				Body: []ir.Statement{
					ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}},
				},
				Until: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Var{Name: "n"}},
			},
		},
	}
}

// DoubleProcedure returns a procedure that doubles x through a scoped
// temporary, exercising local and delocal.
func DoubleProcedure() *ir.Procedure {
	return &ir.Procedure{
		Name:   "double",
		Params: []string{"x"},
		Body: []ir.Statement{
			ir.Local{Name: "t", Init: ir.Var{Name: "x"}},
			ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Var{Name: "t"}},
			// The delocal value never mentions t: backward it is the
			// allocation expression, evaluated before t is bound.
			ir.Delocal{Name: "t", Value: ir.Binary{
				Op: ir.BinDiv, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 2},
			}},
		},
	}
}

// MaskProcedure returns a single xor assignment, the smallest
// self-inverse procedure.
func MaskProcedure() *ir.Procedure {
	return &ir.Procedure{
		Name:   "mask",
		Params: []string{"x", "k"},
		Body: []ir.Statement{
			ir.Assign{Target: "x", Op: ir.OpXor, Rhs: ir.Var{Name: "k"}},
		},
	}
}
