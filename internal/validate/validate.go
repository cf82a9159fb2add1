// Package validate implements the static legality pass over reversible
// procedures.
//
// The pass runs once, at registration time, before any execution. It
// enforces the rules that keep a procedure invertible:
//
//   - Every mutating operator is in the closed whitelist.
//   - An assignment target never occurs inside its own right-hand side.
//   - Every call resolves to a registered reversible procedure with
//     matching arity; no call may target an unknown routine.
//   - Every local is consumed by a delocal in the same block, and no
//     binding shadows one already in scope.
//
// Dynamic aliasing cannot be decided statically (two distinct names may
// denote the same slot only at a specific call site); the engine checks
// it on every mutating step.
package validate

import (
	"fmt"

	"github.com/mkrall/janus/internal/ir"
)

// Validation error codes (V100-V199).
const (
	// CodeIllegalOperator: a mutating or pure operator outside the
	// closed set.
	CodeIllegalOperator = "V100"

	// CodeSelfAliasedAssignment: assignment target occurs in its own
	// right-hand side.
	CodeSelfAliasedAssignment = "V101"

	// CodeNonReversibleCall: call target is not a registered reversible
	// procedure.
	CodeNonReversibleCall = "V102"

	// CodeArityMismatch: call argument count does not match the callee's
	// parameter count.
	CodeArityMismatch = "V103"

	// CodeUnconsumedLocal: a local is not consumed by a delocal in the
	// same block (or a delocal consumes a name with no live local).
	CodeUnconsumedLocal = "V104"

	// CodeShadowedBinding: a local or parameter shadows a binding
	// already in scope. Shadowing would make alias checks ambiguous.
	CodeShadowedBinding = "V105"

	// CodeUnknownVariable: a statement references a variable not in
	// scope at that point.
	CodeUnknownVariable = "V106"

	// CodeDuplicateProcedure: re-registration under an existing name.
	CodeDuplicateProcedure = "V107"

	// CodeEmptyProcedure: a procedure with no name or no parameters.
	CodeEmptyProcedure = "V108"

	// CodeAliasedCallArgument: the same name is passed to a callee more
	// than once. Arguments are exclusive slot references, so the
	// aliasing is certain before any call site exists.
	CodeAliasedCallArgument = "V109"
)

// Error is a registration-time validation failure. Fatal to the
// registration only; nothing has executed when it is raised.
type Error struct {
	Code      string `json:"code"`
	Procedure string `json:"procedure"`
	StmtPath  string `json:"stmt_path,omitempty"`
	Message   string `json:"message"`
}

// Error implements the error interface.
func (e Error) Error() string {
	if e.StmtPath != "" {
		return fmt.Sprintf("[%s] %s at %s: %s", e.Code, e.Procedure, e.StmtPath, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Procedure, e.Message)
}

// Resolver supplies the validator with the set of reversible
// procedures visible at registration time. The registry implements it;
// a procedure under registration can see itself for self-recursion.
type Resolver interface {
	// ResolveProcedure returns the parameter count of a registered
	// reversible procedure, or ok=false if no such procedure exists.
	ResolveProcedure(name string) (arity int, ok bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) (int, bool)

func (f ResolverFunc) ResolveProcedure(name string) (int, bool) {
	return f(name)
}

// Procedure runs the full static pass and returns all errors found
// (not fail-fast), in statement order.
func Procedure(p *ir.Procedure, res Resolver) []Error {
	v := &checker{proc: p, res: res}

	if p.Name == "" {
		v.add("", CodeEmptyProcedure, "procedure name is required")
	}
	if len(p.Params) == 0 {
		v.add("", CodeEmptyProcedure, "at least one parameter is required")
	}

	scope := newScope()
	for i, param := range p.Params {
		if scope.has(param) {
			v.add(fmt.Sprintf("params[%d]", i), CodeShadowedBinding,
				"duplicate parameter name %q", param)
			continue
		}
		scope.bind(param)
	}

	v.checkBlock(p.Body, scope, "body")
	return v.errs
}

// checker accumulates validation errors during traversal.
type checker struct {
	proc *ir.Procedure
	res  Resolver
	errs []Error
}

func (v *checker) add(path, code, format string, args ...any) {
	v.errs = append(v.errs, Error{
		Code:      code,
		Procedure: v.proc.Name,
		StmtPath:  path,
		Message:   fmt.Sprintf(format, args...),
	})
}

// scope tracks the bindings visible at a point in the walk. Locals are
// block-scoped: each block records its own locals so the balance check
// stays local to the block, matching the runtime's deallocation rule.
type scope struct {
	names map[string]bool
}

func newScope() *scope {
	return &scope{names: make(map[string]bool)}
}

func (s *scope) has(name string) bool { return s.names[name] }
func (s *scope) bind(name string)     { s.names[name] = true }
func (s *scope) unbind(name string)   { delete(s.names, name) }

// checkBlock validates one statement block. Locals opened in the block
// must be consumed by a delocal before the block ends.
func (v *checker) checkBlock(stmts []ir.Statement, sc *scope, path string) {
	blockLocals := make(map[string]string) // name -> stmt path of the local
	var localOrder []string                // declaration order, for deterministic reporting

	for i, s := range stmts {
		p := fmt.Sprintf("%s[%d]", path, i)
		switch st := s.(type) {
		case ir.Assign:
			v.checkAssign(st, sc, p)

		case ir.If:
			v.checkExpr(st.Guard, sc, p+".guard")
			v.checkBlock(st.Then, sc, p+".then")
			v.checkBlock(st.Else, sc, p+".else")
			v.checkExpr(st.Assert, sc, p+".assert")

		case ir.Loop:
			v.checkExpr(st.From, sc, p+".from")
			v.checkBlock(st.Body, sc, p+".body")
			v.checkExpr(st.Until, sc, p+".until")

		case ir.Swap:
			v.checkVarRef(st.A, sc, p)
			v.checkVarRef(st.B, sc, p)

		case ir.Call:
			v.checkCall(st, sc, p)

		case ir.Local:
			if sc.has(st.Name) {
				v.add(p, CodeShadowedBinding,
					"local %q shadows a binding already in scope", st.Name)
				continue
			}
			v.checkExpr(st.Init, sc, p+".init")
			sc.bind(st.Name)
			blockLocals[st.Name] = p
			localOrder = append(localOrder, st.Name)

		case ir.Delocal:
			if _, open := blockLocals[st.Name]; !open {
				v.add(p, CodeUnconsumedLocal,
					"delocal of %q without a matching local in this block", st.Name)
				continue
			}
			// The delocal value may read the local itself; check the
			// expression before the name goes out of scope.
			v.checkExpr(st.Value, sc, p+".value")
			sc.unbind(st.Name)
			delete(blockLocals, st.Name)

		default:
			v.add(p, CodeIllegalOperator, "unknown statement type %T", s)
		}
	}

	for _, name := range localOrder {
		if localPath, open := blockLocals[name]; open {
			v.add(localPath, CodeUnconsumedLocal,
				"local %q is never consumed by a delocal in its block", name)
		}
	}
}

func (v *checker) checkAssign(st ir.Assign, sc *scope, path string) {
	if !ir.ValidOps[st.Op] {
		v.add(path, CodeIllegalOperator,
			"operator %q is not reversible; allowed: +=, -=, ^=", string(st.Op))
	}
	v.checkVarRef(st.Target, sc, path)
	v.checkExpr(st.Rhs, sc, path+".rhs")
	if ir.ContainsVar(st.Rhs, st.Target) {
		v.add(path, CodeSelfAliasedAssignment,
			"target %q occurs in its own right-hand side", st.Target)
	}
}

func (v *checker) checkCall(st ir.Call, sc *scope, path string) {
	arity, ok := v.res.ResolveProcedure(st.Callee)
	if !ok {
		v.add(path, CodeNonReversibleCall,
			"call target %q is not a registered reversible procedure", st.Callee)
		return
	}
	if len(st.Args) != arity {
		v.add(path, CodeArityMismatch,
			"call to %q passes %d argument(s), callee takes %d", st.Callee, len(st.Args), arity)
	}
	seen := make(map[string]bool, len(st.Args))
	for _, arg := range st.Args {
		v.checkVarRef(arg, sc, path)
		if seen[arg] {
			// Passing the same name twice is aliasing by construction;
			// no call site could make the slots distinct.
			v.add(path, CodeAliasedCallArgument,
				"argument %q is passed to %q more than once", arg, st.Callee)
		}
		seen[arg] = true
	}
}

func (v *checker) checkVarRef(name string, sc *scope, path string) {
	if !sc.has(name) {
		v.add(path, CodeUnknownVariable, "variable %q is not in scope", name)
	}
}

// checkExpr validates an expression tree: every operator in the pure
// set, every variable in scope. Expressions cannot mutate by
// construction (the Expr interface is sealed), so there is no mutation
// check to make here.
func (v *checker) checkExpr(e ir.Expr, sc *scope, path string) {
	switch x := e.(type) {
	case ir.Lit:
	case ir.Var:
		v.checkVarRef(x.Name, sc, path)
	case ir.Binary:
		if !ir.ValidBinOps[x.Op] {
			v.add(path, CodeIllegalOperator, "unknown pure operator %q", string(x.Op))
		}
		v.checkExpr(x.Left, sc, path)
		v.checkExpr(x.Right, sc, path)
	case ir.Unary:
		if !ir.ValidUnOps[x.Op] {
			v.add(path, CodeIllegalOperator, "unknown unary operator %q", string(x.Op))
		}
		v.checkExpr(x.Operand, sc, path)
	case nil:
		v.add(path, CodeIllegalOperator, "missing expression")
	default:
		v.add(path, CodeIllegalOperator, "unknown expression type %T", e)
	}
}
