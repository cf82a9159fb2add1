package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrall/janus/internal/ir"
)

const fibSource = `
procedure: {
	fib: {
		params: ["x1", "x2", "n"]
		body: [
			{"if": {
				guard: {bin: {op: "==", left: {"var": "n"}, right: {lit: 0}}}
				then: [
					{assign: {target: "x1", op: "+=", rhs: {lit: 1}}},
					{assign: {target: "x2", op: "+=", rhs: {lit: 1}}},
				]
				"else": [
					{assign: {target: "n", op: "-=", rhs: {lit: 1}}},
					{call: {callee: "fib", args: ["x1", "x2", "n"]}},
					{assign: {target: "x1", op: "+=", rhs: {"var": "x2"}}},
					{swap: {a: "x1", b: "x2"}},
				]
				assert: {bin: {op: "==", left: {"var": "x1"}, right: {"var": "x2"}}}
			}},
		]
	}
}
`

func TestCompileSourceFib(t *testing.T) {
	procs, err := CompileSource(fibSource)
	require.NoError(t, err)
	require.Len(t, procs, 1)

	p := procs[0]
	assert.Equal(t, "fib", p.Name)
	assert.Equal(t, []string{"x1", "x2", "n"}, p.Params)
	require.Len(t, p.Body, 1)

	cond, ok := p.Body[0].(ir.If)
	require.True(t, ok, "top statement must be an if, got %T", p.Body[0])
	assert.Equal(t, ir.Binary{
		Op:    ir.BinEq,
		Left:  ir.Var{Name: "n"},
		Right: ir.Lit{Value: 0},
	}, cond.Guard)
	require.Len(t, cond.Then, 2)
	require.Len(t, cond.Else, 4)

	assert.Equal(t, ir.Assign{Target: "x1", Op: ir.OpAdd, Rhs: ir.Lit{Value: 1}}, cond.Then[0])
	assert.Equal(t, ir.Call{Callee: "fib", Args: []string{"x1", "x2", "n"}}, cond.Else[1])
	assert.Equal(t, ir.Swap{A: "x1", B: "x2"}, cond.Else[3])
}

func TestCompiledFibMatchesHandBuiltIdentity(t *testing.T) {
	procs, err := CompileSource(fibSource)
	require.NoError(t, err)

	byHand := &ir.Procedure{
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

	compiledID, err := ir.IdentityOf(procs[0])
	require.NoError(t, err)
	handID, err := ir.IdentityOf(byHand)
	require.NoError(t, err)
	assert.Equal(t, handID, compiledID, "compiled tree must be structurally identical")
}

func TestCompileLoopAndLocals(t *testing.T) {
	procs, err := CompileSource(`
procedure: {
	dbl: {
		params: ["x"]
		body: [
			{local: {name: "t", init: {"var": "x"}}},
			{assign: {target: "x", op: "+=", rhs: {"var": "t"}}},
			{delocal: {name: "t", value: {bin: {op: "/", left: {"var": "x"}, right: {lit: 2}}}}},
		]
	}
	count: {
		params: ["x", "n"]
		body: [
			{loop: {
				from:  {bin: {op: "==", left: {"var": "x"}, right: {lit: 0}}}
				body:  [{assign: {target: "x", op: "+=", rhs: {lit: 1}}}]
				until: {bin: {op: "==", left: {"var": "x"}, right: {"var": "n"}}}
			}},
		]
	}
}
`)
	require.NoError(t, err)
	require.Len(t, procs, 2)
	// Sorted by name.
	assert.Equal(t, "count", procs[0].Name)
	assert.Equal(t, "dbl", procs[1].Name)

	loop, ok := procs[0].Body[0].(ir.Loop)
	require.True(t, ok)
	require.Len(t, loop.Body, 1)

	local, ok := procs[1].Body[0].(ir.Local)
	require.True(t, ok)
	assert.Equal(t, "t", local.Name)
	deloc, ok := procs[1].Body[2].(ir.Delocal)
	require.True(t, ok)
	assert.Equal(t, ir.Binary{
		Op:    ir.BinDiv,
		Left:  ir.Var{Name: "x"},
		Right: ir.Lit{Value: 2},
	}, deloc.Value)
}

func TestCompileUnaryExpression(t *testing.T) {
	procs, err := CompileSource(`
procedure: {
	p: {
		params: ["x"]
		body: [
			{"if": {
				guard:  {un: {op: "!", operand: {"var": "x"}}}
				then:   [{assign: {target: "x", op: "+=", rhs: {lit: 1}}}]
				assert: {bin: {op: "==", left: {"var": "x"}, right: {lit: 1}}}
			}},
		]
	}
}
`)
	require.NoError(t, err)
	cond := procs[0].Body[0].(ir.If)
	assert.Equal(t, ir.Unary{Op: ir.UnNot, Operand: ir.Var{Name: "x"}}, cond.Guard)
	assert.Nil(t, cond.Else)
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "no procedure struct",
			src:  `other: {}`,
			want: "document has no procedure struct",
		},
		{
			name: "missing params",
			src:  `procedure: p: {body: []}`,
			want: "params are required",
		},
		{
			name: "missing body",
			src:  `procedure: p: {params: ["x"]}`,
			want: "body is required",
		},
		{
			name: "untagged statement",
			src:  `procedure: p: {params: ["x"], body: [{bogus: {}}]}`,
			want: "statement must be tagged",
		},
		{
			name: "untagged expression",
			src:  `procedure: p: {params: ["x"], body: [{assign: {target: "x", op: "+=", rhs: {bogus: 1}}}]}`,
			want: "expression must be tagged",
		},
		{
			name: "float literal",
			src:  `procedure: p: {params: ["x"], body: [{assign: {target: "x", op: "+=", rhs: {lit: 1.5}}}]}`,
			want: "floats are not values",
		},
		{
			name: "missing assign target",
			src:  `procedure: p: {params: ["x"], body: [{assign: {op: "+=", rhs: {lit: 1}}}]}`,
			want: "target is required",
		},
		{
			name: "empty procedure struct",
			src:  `procedure: {}`,
			want: "at least one procedure is required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CompileSource(tc.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestCompileErrorCarriesPosition(t *testing.T) {
	_, err := CompileSource(`
procedure: {
	p: {
		params: ["x"]
		body: [{bogus: {}}]
	}
}
`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.True(t, ce.Pos.IsValid(), "compile errors should point into the source")
}

func TestCompileAcceptsIllegalOperatorForValidatorToReject(t *testing.T) {
	// The compiler is syntax-only: a document with a non-reversible
	// operator compiles, and the validator rejects it with its own
	// code at registration.
	procs, err := CompileSource(`
procedure: p: {params: ["x"], body: [{assign: {target: "x", op: "*=", rhs: {lit: 2}}}]}
`)
	require.NoError(t, err)
	st := procs[0].Body[0].(ir.Assign)
	assert.Equal(t, ir.Op("*="), st.Op)
}
