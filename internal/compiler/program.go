// Package compiler turns CUE program documents into IR procedures.
//
// A program document is a CUE struct with one field per procedure:
//
//	procedure: {
//		fib: {
//			params: ["x1", "x2", "n"]
//			body: [...]
//		}
//	}
//
// Statements and expressions are tagged structs whose keys mirror the
// canonical encoding: assign, if, loop, swap, call, local, delocal for
// statements; lit, var, bin, un for expressions. The compiler only
// builds the tree; legality is the validator's job and runs at
// registration.
package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/mkrall/janus/internal/ir"
)

// CompileSource compiles CUE source text into procedures, sorted by
// name. Uses the CUE SDK's Go API directly (not a CLI subprocess).
func CompileSource(src string) ([]*ir.Procedure, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileProgram(v)
}

// CompileProgram extracts every procedure under the top-level
// "procedure" struct of an already-built CUE value.
func CompileProgram(v cue.Value) ([]*ir.Procedure, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	procsVal := v.LookupPath(cue.ParsePath("procedure"))
	if !procsVal.Exists() {
		return nil, &CompileError{
			Field:   "procedure",
			Message: "document has no procedure struct",
			Pos:     v.Pos(),
		}
	}

	iter, err := procsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var procs []*ir.Procedure
	for iter.Next() {
		p, err := CompileProcedure(iter.Value(), iter.Selector().Unquoted())
		if err != nil {
			return nil, err
		}
		procs = append(procs, p)
	}
	if len(procs) == 0 {
		return nil, &CompileError{
			Field:   "procedure",
			Message: "at least one procedure is required",
			Pos:     procsVal.Pos(),
		}
	}

	// Field order in CUE is source order; sort so callers get a stable
	// view regardless of how the document was written.
	sort.Slice(procs, func(i, j int) bool { return procs[i].Name < procs[j].Name })
	return procs, nil
}

// CompileProcedure parses a single procedure struct.
func CompileProcedure(v cue.Value, name string) (*ir.Procedure, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	p := &ir.Procedure{Name: name}

	paramsVal := v.LookupPath(cue.ParsePath("params"))
	if !paramsVal.Exists() {
		return nil, &CompileError{
			Field:   name + ".params",
			Message: "params are required",
			Pos:     v.Pos(),
		}
	}
	paramIter, err := paramsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for paramIter.Next() {
		param, err := paramIter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.Params = append(p.Params, param)
	}

	bodyVal := v.LookupPath(cue.ParsePath("body"))
	if !bodyVal.Exists() {
		return nil, &CompileError{
			Field:   name + ".body",
			Message: "body is required",
			Pos:     v.Pos(),
		}
	}
	p.Body, err = parseBlock(bodyVal, name+".body")
	if err != nil {
		return nil, err
	}

	return p, nil
}

func parseBlock(v cue.Value, field string) ([]ir.Statement, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var stmts []ir.Statement
	for i := 0; iter.Next(); i++ {
		s, err := parseStmt(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func parseStmt(v cue.Value, field string) (ir.Statement, error) {
	if st := v.LookupPath(cue.ParsePath("assign")); st.Exists() {
		return parseAssign(st, field+".assign")
	}
	// "if" is a CUE keyword, so the lookup needs an explicit string
	// selector and documents must quote the field.
	if st := v.LookupPath(cue.MakePath(cue.Str("if"))); st.Exists() {
		return parseIf(st, field+".if")
	}
	if st := v.LookupPath(cue.ParsePath("loop")); st.Exists() {
		return parseLoop(st, field+".loop")
	}
	if st := v.LookupPath(cue.ParsePath("swap")); st.Exists() {
		return parseSwap(st, field+".swap")
	}
	if st := v.LookupPath(cue.ParsePath("call")); st.Exists() {
		return parseCall(st, field+".call")
	}
	if st := v.LookupPath(cue.ParsePath("local")); st.Exists() {
		return parseBinding(st, field+".local", true)
	}
	if st := v.LookupPath(cue.ParsePath("delocal")); st.Exists() {
		return parseBinding(st, field+".delocal", false)
	}
	return nil, &CompileError{
		Field:   field,
		Message: "statement must be tagged assign, if, loop, swap, call, local, or delocal",
		Pos:     v.Pos(),
	}
}

func parseAssign(v cue.Value, field string) (ir.Statement, error) {
	target, err := requireString(v, "target", field)
	if err != nil {
		return nil, err
	}
	opStr, err := requireString(v, "op", field)
	if err != nil {
		return nil, err
	}
	rhs, err := parseExprField(v, "rhs", field)
	if err != nil {
		return nil, err
	}
	// Operator legality is the validator's call; the compiler accepts
	// whatever string the document carries so the error comes out with
	// the right code.
	return ir.Assign{Target: target, Op: ir.Op(opStr), Rhs: rhs}, nil
}

func parseIf(v cue.Value, field string) (ir.Statement, error) {
	guard, err := parseExprField(v, "guard", field)
	if err != nil {
		return nil, err
	}
	assertExpr, err := parseExprField(v, "assert", field)
	if err != nil {
		return nil, err
	}

	thenVal := v.LookupPath(cue.ParsePath("then"))
	if !thenVal.Exists() {
		return nil, &CompileError{
			Field:   field + ".then",
			Message: "then block is required",
			Pos:     v.Pos(),
		}
	}
	thenBlock, err := parseBlock(thenVal, field+".then")
	if err != nil {
		return nil, err
	}

	var elseBlock []ir.Statement
	if elseVal := v.LookupPath(cue.MakePath(cue.Str("else"))); elseVal.Exists() {
		elseBlock, err = parseBlock(elseVal, field+".else")
		if err != nil {
			return nil, err
		}
	}

	return ir.If{Guard: guard, Then: thenBlock, Else: elseBlock, Assert: assertExpr}, nil
}

func parseLoop(v cue.Value, field string) (ir.Statement, error) {
	from, err := parseExprField(v, "from", field)
	if err != nil {
		return nil, err
	}
	until, err := parseExprField(v, "until", field)
	if err != nil {
		return nil, err
	}
	bodyVal := v.LookupPath(cue.ParsePath("body"))
	if !bodyVal.Exists() {
		return nil, &CompileError{
			Field:   field + ".body",
			Message: "loop body is required",
			Pos:     v.Pos(),
		}
	}
	body, err := parseBlock(bodyVal, field+".body")
	if err != nil {
		return nil, err
	}
	return ir.Loop{From: from, Body: body, Until: until}, nil
}

func parseSwap(v cue.Value, field string) (ir.Statement, error) {
	a, err := requireString(v, "a", field)
	if err != nil {
		return nil, err
	}
	b, err := requireString(v, "b", field)
	if err != nil {
		return nil, err
	}
	return ir.Swap{A: a, B: b}, nil
}

func parseCall(v cue.Value, field string) (ir.Statement, error) {
	callee, err := requireString(v, "callee", field)
	if err != nil {
		return nil, err
	}
	argsVal := v.LookupPath(cue.ParsePath("args"))
	if !argsVal.Exists() {
		return nil, &CompileError{
			Field:   field + ".args",
			Message: "call args are required",
			Pos:     v.Pos(),
		}
	}
	iter, err := argsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var args []string
	for iter.Next() {
		arg, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		args = append(args, arg)
	}
	return ir.Call{Callee: callee, Args: args}, nil
}

func parseBinding(v cue.Value, field string, isLocal bool) (ir.Statement, error) {
	name, err := requireString(v, "name", field)
	if err != nil {
		return nil, err
	}
	valueField := "value"
	if isLocal {
		valueField = "init"
	}
	expr, err := parseExprField(v, valueField, field)
	if err != nil {
		return nil, err
	}
	if isLocal {
		return ir.Local{Name: name, Init: expr}, nil
	}
	return ir.Delocal{Name: name, Value: expr}, nil
}

func parseExprField(v cue.Value, name, field string) (ir.Expr, error) {
	ev := v.LookupPath(cue.ParsePath(name))
	if !ev.Exists() {
		return nil, &CompileError{
			Field:   field + "." + name,
			Message: name + " expression is required",
			Pos:     v.Pos(),
		}
	}
	return parseExpr(ev, field+"."+name)
}

func parseExpr(v cue.Value, field string) (ir.Expr, error) {
	if lit := v.LookupPath(cue.ParsePath("lit")); lit.Exists() {
		n, err := lit.Int64()
		if err != nil {
			return nil, &CompileError{
				Field:   field + ".lit",
				Message: "literal must be a 64-bit integer; floats are not values in this language",
				Pos:     lit.Pos(),
			}
		}
		return ir.Lit{Value: ir.Word(n)}, nil
	}

	if vr := v.LookupPath(cue.ParsePath("var")); vr.Exists() {
		name, err := vr.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Var{Name: name}, nil
	}

	if bin := v.LookupPath(cue.ParsePath("bin")); bin.Exists() {
		opStr, err := requireString(bin, "op", field+".bin")
		if err != nil {
			return nil, err
		}
		left, err := parseExprField(bin, "left", field+".bin")
		if err != nil {
			return nil, err
		}
		right, err := parseExprField(bin, "right", field+".bin")
		if err != nil {
			return nil, err
		}
		return ir.Binary{Op: ir.BinOp(opStr), Left: left, Right: right}, nil
	}

	if un := v.LookupPath(cue.ParsePath("un")); un.Exists() {
		opStr, err := requireString(un, "op", field+".un")
		if err != nil {
			return nil, err
		}
		operand, err := parseExprField(un, "operand", field+".un")
		if err != nil {
			return nil, err
		}
		return ir.Unary{Op: ir.UnOp(opStr), Operand: operand}, nil
	}

	return nil, &CompileError{
		Field:   field,
		Message: "expression must be tagged lit, var, bin, or un",
		Pos:     v.Pos(),
	}
}

func requireString(v cue.Value, name, field string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(name))
	if !sv.Exists() {
		return "", &CompileError{
			Field:   field + "." + name,
			Message: name + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
