package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrall/janus/internal/ir"
)

func newTestExecutor(env *Env, procs map[string]*ir.Procedure) *executor {
	if procs == nil {
		procs = map[string]*ir.Procedure{}
	}
	return &executor{
		procs: procs,
		eval:  DefaultEvaluator{},
		env:   env,
		clock: NewClock(),
	}
}

func TestAssignAppliesInverseOperatorBackward(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(10)
	frame.Bind("x", x)

	ex := newTestExecutor(env, nil)
	st := ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: 3}}

	require.NoError(t, ex.execStmt("p", st, frame, ir.Forward, "body[0]"))
	assert.Equal(t, ir.Word(13), env.Read(x))

	require.NoError(t, ex.execStmt("p", st, frame, ir.Backward, "body[0]"))
	assert.Equal(t, ir.Word(10), env.Read(x))
}

func TestAssignAliasViolationBySlotIdentity(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	s := env.Alloc(3)
	// Two distinct names, one slot. The static pass cannot see this;
	// the executor must.
	frame.Bind("a", s)
	frame.Bind("b", s)

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", ir.Assign{Target: "a", Op: ir.OpAdd, Rhs: ir.Var{Name: "b"}}, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsAliasViolation(err))
	// The environment must not have been written.
	assert.Equal(t, ir.Word(3), env.Read(s))
}

func TestAssignDistinctSlotsSameValueIsLegal(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	a := env.Alloc(3)
	b := env.Alloc(3)
	frame.Bind("a", a)
	frame.Bind("b", b)

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", ir.Assign{Target: "a", Op: ir.OpAdd, Rhs: ir.Var{Name: "b"}}, frame, ir.Forward, "body[0]")
	require.NoError(t, err)
	assert.Equal(t, ir.Word(6), env.Read(a))
}

func TestAssignOverflowIsAnError(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(1)
	frame.Bind("x", x)

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: math.MaxInt64}}, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsOverflow(err))
}

func TestAssignDivisionByZeroInRhs(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(1)
	frame.Bind("x", x)

	ex := newTestExecutor(env, nil)
	st := ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Binary{
		Op: ir.BinDiv, Left: ir.Lit{Value: 1}, Right: ir.Lit{Value: 0},
	}}
	err := ex.execStmt("p", st, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeDivisionByZero, re.Code)
}

func TestSwapExchangesAndIsSelfInverse(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	a := env.Alloc(1)
	b := env.Alloc(2)
	frame.Bind("a", a)
	frame.Bind("b", b)

	ex := newTestExecutor(env, nil)
	st := ir.Swap{A: "a", B: "b"}

	require.NoError(t, ex.execStmt("p", st, frame, ir.Forward, "body[0]"))
	assert.Equal(t, ir.Word(2), env.Read(a))
	assert.Equal(t, ir.Word(1), env.Read(b))

	require.NoError(t, ex.execStmt("p", st, frame, ir.Backward, "body[0]"))
	assert.Equal(t, ir.Word(1), env.Read(a))
	assert.Equal(t, ir.Word(2), env.Read(b))
}

func TestSwapSharedSlotIsAliasViolation(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	s := env.Alloc(7)
	frame.Bind("a", s)
	frame.Bind("b", s)

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", ir.Swap{A: "a", B: "b"}, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsAliasViolation(err))
}

func TestCallSharedArgumentSlotIsAliasViolation(t *testing.T) {
	inner := &ir.Procedure{
		Name:   "inner",
		Params: []string{"p", "q"},
		Body: []ir.Statement{
			ir.Assign{Target: "p", Op: ir.OpAdd, Rhs: ir.Var{Name: "q"}},
		},
	}

	env := NewEnv()
	frame := NewFrame(env)
	s := env.Alloc(5)
	frame.Bind("a", s)
	frame.Bind("b", s)

	ex := newTestExecutor(env, map[string]*ir.Procedure{"inner": inner})
	err := ex.execStmt("p", ir.Call{Callee: "inner", Args: []string{"a", "b"}}, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsAliasViolation(err))
}

func TestIfAssertionMismatchForward(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(1)
	frame.Bind("x", x)

	// Guard is true, then-branch leaves x=2, but the assertion demands
	// x == 5. The branch ran; the assertion disagrees.
	st := ir.If{
		Guard: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 1}},
		Then: []ir.Statement{
			ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}},
		},
		Assert: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 5}},
	}

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", st, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsAssertionMismatch(err))
}

func TestIfBackwardSelectsBranchByAssertion(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(2)
	frame.Bind("x", x)

	// Forward from x=1: guard true, x becomes 2, assert x==2 holds.
	// Backward from x=2 the assertion selects the then-branch, the
	// branch inverts to x -= 1, and the guard x==1 confirms.
	st := ir.If{
		Guard: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 1}},
		Then: []ir.Statement{
			ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}},
		},
		Assert: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 2}},
	}

	ex := newTestExecutor(env, nil)
	require.NoError(t, ex.execStmt("p", st, frame, ir.Backward, "body[0]"))
	assert.Equal(t, ir.Word(1), env.Read(x))
}

func TestLoopEntryAssertionMustHold(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(3)
	frame.Bind("x", x)

	st := ir.Loop{
		From: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 0}},
		Body: []ir.Statement{
			ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}},
		},
		Until: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 5}},
	}

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", st, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsAssertionMismatch(err))
}

func TestLoopEntryAssertionMustStayFalseMidLoop(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(0)
	frame.Bind("x", x)

	// x ^= 1 flips between 0 and 1; after the second iteration x is 0
	// again and the entry predicate becomes true mid-loop, which would
	// make the backward replay ambiguous.
	st := ir.Loop{
		From: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 0}},
		Body: []ir.Statement{
			ir.Assign{Target: "x", Op: ir.OpXor, Rhs: ir.Lit{Value: 1}},
		},
		Until: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 9}},
	}

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", st, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsAssertionMismatch(err))
}

func TestLocalDelocalRoundTrip(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(4)
	frame.Bind("x", x)

	body := []ir.Statement{
		ir.Local{Name: "t", Init: ir.Var{Name: "x"}},
		ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Var{Name: "t"}},
		// After x += t, x is doubled, so t holds x / 2. The value must
		// not mention t itself: backward this delocal re-allocates t
		// from the expression before t is bound.
		ir.Delocal{Name: "t", Value: ir.Binary{
			Op: ir.BinDiv, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 2},
		}},
	}

	ex := newTestExecutor(env, nil)
	require.NoError(t, ex.runBody("p", body, frame, ir.Forward, "body"))
	assert.Equal(t, ir.Word(8), env.Read(x))
	_, bound := frame.Resolve("t")
	assert.False(t, bound, "t must be out of scope after delocal")

	require.NoError(t, ex.runBody("p", body, frame, ir.Backward, "body"))
	assert.Equal(t, ir.Word(4), env.Read(x))
	_, bound = frame.Resolve("t")
	assert.False(t, bound, "t must be out of scope after backward local")
}

func TestDelocalValueMismatch(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(4)
	frame.Bind("x", x)

	body := []ir.Statement{
		ir.Local{Name: "t", Init: ir.Lit{Value: 1}},
		ir.Delocal{Name: "t", Value: ir.Lit{Value: 2}},
	}

	ex := newTestExecutor(env, nil)
	err := ex.runBody("p", body, frame, ir.Forward, "body")
	require.Error(t, err)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeDelocalMismatch, re.Code)
	assert.Equal(t, "body[1]", re.StmtPath)
}

func TestStepQuotaAborts(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(0)
	frame.Bind("x", x)

	st := ir.Loop{
		From: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: 0}},
		Body: []ir.Statement{
			ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}},
		},
		// Never fires; only the quota stops this loop.
		Until: ir.Binary{Op: ir.BinEq, Left: ir.Var{Name: "x"}, Right: ir.Lit{Value: -1}},
	}

	ex := newTestExecutor(env, nil)
	ex.maxSteps = 100
	err := ex.execStmt("p", st, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeStepQuotaExceeded, re.Code)
}

func TestUnboundVariableCarriesName(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(0)
	frame.Bind("x", x)

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Var{Name: "ghost"}}, frame, ir.Forward, "body[0]")
	require.Error(t, err)
	assert.True(t, IsUnboundVariable(err))
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "ghost", re.Details["name"])
}

func TestStmtPathThreadsThroughNesting(t *testing.T) {
	env := NewEnv()
	frame := NewFrame(env)
	x := env.Alloc(1)
	frame.Bind("x", x)

	st := ir.If{
		Guard: ir.Lit{Value: 1},
		Then: []ir.Statement{
			ir.Assign{Target: "x", Op: ir.OpAdd, Rhs: ir.Lit{Value: math.MaxInt64}},
		},
		Assert: ir.Lit{Value: 1},
	}

	ex := newTestExecutor(env, nil)
	err := ex.execStmt("p", st, frame, ir.Forward, "body[2]")
	require.Error(t, err)
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "body[2].then[0]", re.StmtPath)
}
