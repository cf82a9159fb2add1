package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mkrall/janus/internal/ir"
)

// executor runs one invocation. It owns the environment for the
// invocation's lifetime and carries the pieces every statement needs:
// the evaluator, the procedure table for call dispatch, the logical
// clock, and the optional tracer.
type executor struct {
	procs    map[string]*ir.Procedure
	eval     Evaluator
	env      *Env
	clock    *Clock
	tracer   Tracer
	maxSteps int64
	steps    int64
}

// runBody executes a procedure body in the given direction. Forward
// walks statements in order; backward walks them in reverse, inverting
// each one. The two walks compose to the identity, which is the whole
// point.
func (ex *executor) runBody(proc string, body []ir.Statement, frame *Frame, dir ir.Direction, path string) error {
	if dir == ir.Forward {
		for i, s := range body {
			if err := ex.execStmt(proc, s, frame, dir, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	for i := len(body) - 1; i >= 0; i-- {
		if err := ex.execStmt(proc, body[i], frame, dir, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// execStmt executes a single statement in the given direction.
func (ex *executor) execStmt(proc string, s ir.Statement, frame *Frame, dir ir.Direction, path string) error {
	ex.steps++
	if ex.maxSteps > 0 && ex.steps > ex.maxSteps {
		return &RuntimeError{
			Code:      ErrCodeStepQuotaExceeded,
			Message:   fmt.Sprintf("invocation exceeded %d steps", ex.maxSteps),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
		}
	}

	var err error
	switch st := s.(type) {
	case ir.Assign:
		err = ex.execAssign(proc, st, frame, dir, path)
	case ir.If:
		err = ex.execIf(proc, st, frame, dir, path)
	case ir.Loop:
		err = ex.execLoop(proc, st, frame, dir, path)
	case ir.Swap:
		err = ex.execSwap(proc, st, frame, dir, path)
	case ir.Call:
		err = ex.execCall(proc, st, frame, dir, path)
	case ir.Local:
		err = ex.execLocal(proc, st, frame, dir, path)
	case ir.Delocal:
		err = ex.execDelocal(proc, st, frame, dir, path)
	default:
		// Statement is sealed; an unknown type is an engine bug.
		panic(fmt.Sprintf("engine: unknown statement type %T", s))
	}
	if err != nil {
		return err
	}

	if ex.tracer != nil {
		ex.tracer.Step(StepEvent{
			Seq:       ex.clock.Next(),
			Procedure: proc,
			StmtPath:  path,
			Kind:      stmtKind(s),
			Direction: directionLabel(dir),
			Detail:    stmtDetail(s),
		})
	}
	return nil
}

// execAssign is the one place slot values change arithmetically.
// Backward execution applies the inverse operator; everything else is
// identical, including the alias check: the right-hand side is
// re-evaluated in the mutated environment and must not touch the
// target's slot.
func (ex *executor) execAssign(proc string, st ir.Assign, frame *Frame, dir ir.Direction, path string) error {
	target, ok := frame.Resolve(st.Target)
	if !ok {
		return ex.unbound(proc, st.Target, path, dir)
	}

	rec := newReadRecorder(frame)
	rhs, err := ex.eval.Eval(st.Rhs, rec)
	if err != nil {
		return ex.wrapEvalError(err, proc, path, dir)
	}
	if rec.sawSlot(target) {
		return &RuntimeError{
			Code:      ErrCodeAliasViolation,
			Message:   fmt.Sprintf("target %q and its right-hand side share a slot", st.Target),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
			Details:   map[string]string{"target": st.Target},
		}
	}

	op := st.Op
	if dir == ir.Backward {
		op = op.Inverse()
	}
	next, ok := op.Apply(ex.env.Read(target), rhs)
	if !ok {
		return &RuntimeError{
			Code:      ErrCodeArithmeticOverflow,
			Message:   fmt.Sprintf("%s %s %s overflows", st.Target, op, ir.FormatExpr(st.Rhs)),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
		}
	}
	ex.env.Write(target, next)
	return nil
}

// execIf runs the reversible conditional.
//
// Forward: the guard selects the branch, the branch runs, and the
// assertion must agree with the branch taken. Backward: the assertion
// selects the branch, the branch runs inverted, and the guard must
// agree. Checking both predicates in both directions is what makes the
// construct its own inverse.
func (ex *executor) execIf(proc string, st ir.If, frame *Frame, dir ir.Direction, path string) error {
	entry, exit := st.Guard, st.Assert
	entryName, exitName := "guard", "assert"
	if dir == ir.Backward {
		entry, exit = st.Assert, st.Guard
		entryName, exitName = "assert", "guard"
	}

	cond, err := ex.evalPredicate(entry, frame, proc, path+"."+entryName, dir)
	if err != nil {
		return err
	}

	branch, branchPath := st.Then, path+".then"
	if !cond {
		branch, branchPath = st.Else, path+".else"
	}
	if err := ex.runBody(proc, branch, frame, dir, branchPath); err != nil {
		return err
	}

	after, err := ex.evalPredicate(exit, frame, proc, path+"."+exitName, dir)
	if err != nil {
		return err
	}
	if after != cond {
		return &RuntimeError{
			Code: ErrCodeAssertionMismatch,
			Message: fmt.Sprintf("%s %s is %t but the %t branch ran",
				exitName, ir.FormatExpr(exit), after, cond),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
			Details: map[string]string{
				"expected": fmt.Sprintf("%t", cond),
				"actual":   fmt.Sprintf("%t", after),
			},
		}
	}
	return nil
}

// execLoop runs the reversible loop. The entry predicate must hold
// exactly once, on the first test; the exit predicate ends the loop.
// Backward execution swaps the two predicates and inverts the body.
func (ex *executor) execLoop(proc string, st ir.Loop, frame *Frame, dir ir.Direction, path string) error {
	entry, exit := st.From, st.Until
	entryPath, exitPath := path+".from", path+".until"
	if dir == ir.Backward {
		entry, exit = st.Until, st.From
		entryPath, exitPath = path+".until", path+".from"
	}

	first, err := ex.evalPredicate(entry, frame, proc, entryPath, dir)
	if err != nil {
		return err
	}
	if !first {
		return &RuntimeError{
			Code:      ErrCodeAssertionMismatch,
			Message:   fmt.Sprintf("loop entry assertion %s is false", ir.FormatExpr(entry)),
			Procedure: proc,
			StmtPath:  entryPath,
			Direction: dir.String(),
		}
	}

	for {
		if err := ex.runBody(proc, st.Body, frame, dir, path+".body"); err != nil {
			return err
		}
		done, err := ex.evalPredicate(exit, frame, proc, exitPath, dir)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		// The entry predicate must be false on every test after the
		// first; were it true again the backward pass could not tell
		// which iteration it is entering.
		again, err := ex.evalPredicate(entry, frame, proc, entryPath, dir)
		if err != nil {
			return err
		}
		if again {
			return &RuntimeError{
				Code:      ErrCodeAssertionMismatch,
				Message:   fmt.Sprintf("loop entry assertion %s became true again mid-loop", ir.FormatExpr(entry)),
				Procedure: proc,
				StmtPath:  entryPath,
				Direction: dir.String(),
			}
		}
	}
}

// execSwap exchanges two slots. Self-inverse, so direction is ignored.
// The slots must be distinct: swapping a slot with itself is a no-op
// forward but the static rules promise exclusivity, so it is rejected
// as aliasing.
func (ex *executor) execSwap(proc string, st ir.Swap, frame *Frame, dir ir.Direction, path string) error {
	a, ok := frame.Resolve(st.A)
	if !ok {
		return ex.unbound(proc, st.A, path, dir)
	}
	b, ok := frame.Resolve(st.B)
	if !ok {
		return ex.unbound(proc, st.B, path, dir)
	}
	if a == b {
		return &RuntimeError{
			Code:      ErrCodeAliasViolation,
			Message:   fmt.Sprintf("swap operands %q and %q share a slot", st.A, st.B),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
		}
	}
	va, vb := ex.env.Read(a), ex.env.Read(b)
	ex.env.Write(a, vb)
	ex.env.Write(b, va)
	return nil
}

// execCall dispatches to another registered procedure in the same
// direction. Arguments are passed as exclusive slot references: the
// callee's frame binds its parameters directly to the caller's slots,
// so mutations are visible to the caller with no copying. Passing the
// same slot twice would break exclusivity and is rejected here, per
// call site, because two distinct names may alias only dynamically.
func (ex *executor) execCall(proc string, st ir.Call, frame *Frame, dir ir.Direction, path string) error {
	callee, ok := ex.procs[st.Callee]
	if !ok {
		return &RuntimeError{
			Code:      ErrCodeUnknownProcedure,
			Message:   fmt.Sprintf("call target %q is not registered", st.Callee),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
		}
	}
	if len(st.Args) != len(callee.Params) {
		return &RuntimeError{
			Code: ErrCodeArityMismatch,
			Message: fmt.Sprintf("call to %q passes %d argument(s), callee takes %d",
				st.Callee, len(st.Args), len(callee.Params)),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
		}
	}

	slots := make([]Slot, len(st.Args))
	seen := make(map[Slot]string, len(st.Args))
	for i, arg := range st.Args {
		s, ok := frame.Resolve(arg)
		if !ok {
			return ex.unbound(proc, arg, path, dir)
		}
		if prev, dup := seen[s]; dup {
			return &RuntimeError{
				Code:      ErrCodeAliasViolation,
				Message:   fmt.Sprintf("arguments %q and %q resolve to the same slot", prev, arg),
				Procedure: proc,
				StmtPath:  path,
				Direction: dir.String(),
				Details:   map[string]string{"callee": st.Callee},
			}
		}
		seen[s] = arg
		slots[i] = s
	}

	child := NewFrame(ex.env)
	for i, param := range callee.Params {
		child.Bind(param, slots[i])
	}
	return ex.runBody(callee.Name, callee.Body, child, dir, "body")
}

// execLocal introduces a temporary. Backward, a local plays the
// delocal role: the slot must hold the init value, then it is freed.
func (ex *executor) execLocal(proc string, st ir.Local, frame *Frame, dir ir.Direction, path string) error {
	if dir == ir.Forward {
		return ex.allocBinding(proc, st.Name, st.Init, frame, dir, path)
	}
	return ex.releaseBinding(proc, st.Name, st.Init, frame, dir, path)
}

// execDelocal consumes a temporary. Backward, a delocal plays the
// local role: the slot is re-allocated from the delocal value.
func (ex *executor) execDelocal(proc string, st ir.Delocal, frame *Frame, dir ir.Direction, path string) error {
	if dir == ir.Forward {
		return ex.releaseBinding(proc, st.Name, st.Value, frame, dir, path)
	}
	return ex.allocBinding(proc, st.Name, st.Value, frame, dir, path)
}

func (ex *executor) allocBinding(proc, name string, init ir.Expr, frame *Frame, dir ir.Direction, path string) error {
	rec := newReadRecorder(frame)
	v, err := ex.eval.Eval(init, rec)
	if err != nil {
		return ex.wrapEvalError(err, proc, path, dir)
	}
	frame.Bind(name, ex.env.Alloc(v))
	return nil
}

// releaseBinding checks that the slot holds exactly the stated value,
// then frees it. The check is what keeps deallocation from destroying
// information: the value is recomputable from the expression, so
// nothing is lost.
func (ex *executor) releaseBinding(proc, name string, value ir.Expr, frame *Frame, dir ir.Direction, path string) error {
	slot, ok := frame.Resolve(name)
	if !ok {
		return ex.unbound(proc, name, path, dir)
	}
	rec := newReadRecorder(frame)
	want, err := ex.eval.Eval(value, rec)
	if err != nil {
		return ex.wrapEvalError(err, proc, path, dir)
	}
	got := ex.env.Read(slot)
	if got != want {
		return &RuntimeError{
			Code:      ErrCodeDelocalMismatch,
			Message:   fmt.Sprintf("delocal of %q expects %d, slot holds %d", name, want, got),
			Procedure: proc,
			StmtPath:  path,
			Direction: dir.String(),
			Details: map[string]string{
				"name":     name,
				"expected": fmt.Sprintf("%d", want),
				"actual":   fmt.Sprintf("%d", got),
			},
		}
	}
	frame.Unbind(name)
	ex.env.Free(slot)
	return nil
}

// evalPredicate evaluates a guard or assertion to a boolean.
func (ex *executor) evalPredicate(e ir.Expr, frame *Frame, proc, path string, dir ir.Direction) (bool, error) {
	rec := newReadRecorder(frame)
	v, err := ex.eval.Eval(e, rec)
	if err != nil {
		return false, ex.wrapEvalError(err, proc, path, dir)
	}
	return ir.Truthy(v), nil
}

// wrapEvalError converts evaluator failures into runtime errors
// carrying the statement context.
func (ex *executor) wrapEvalError(err error, proc, path string, dir ir.Direction) error {
	var re *RuntimeError
	if errors.As(err, &re) {
		return err
	}

	var unbound *UnboundVariableError
	if errors.As(err, &unbound) {
		return ex.unbound(proc, unbound.Name, path, dir)
	}

	code := ErrCodeEvalError
	switch {
	case errors.Is(err, errDivisionByZero):
		code = ErrCodeDivisionByZero
	case errors.Is(err, errExprOverflow):
		code = ErrCodeArithmeticOverflow
	}
	return &RuntimeError{
		Code:      code,
		Message:   err.Error(),
		Procedure: proc,
		StmtPath:  path,
		Direction: dir.String(),
	}
}

func (ex *executor) unbound(proc, name, path string, dir ir.Direction) error {
	return &RuntimeError{
		Code:      ErrCodeUnboundVariable,
		Message:   fmt.Sprintf("variable %q is not bound", name),
		Procedure: proc,
		StmtPath:  path,
		Direction: dir.String(),
		Details:   map[string]string{"name": name},
	}
}

func stmtKind(s ir.Statement) string {
	switch s.(type) {
	case ir.Assign:
		return "assign"
	case ir.If:
		return "if"
	case ir.Loop:
		return "loop"
	case ir.Swap:
		return "swap"
	case ir.Call:
		return "call"
	case ir.Local:
		return "local"
	case ir.Delocal:
		return "delocal"
	default:
		return "unknown"
	}
}

func stmtDetail(s ir.Statement) string {
	switch st := s.(type) {
	case ir.Assign:
		return fmt.Sprintf("%s %s %s", st.Target, st.Op, ir.FormatExpr(st.Rhs))
	case ir.If:
		return fmt.Sprintf("if %s assert %s", ir.FormatExpr(st.Guard), ir.FormatExpr(st.Assert))
	case ir.Loop:
		return fmt.Sprintf("from %s until %s", ir.FormatExpr(st.From), ir.FormatExpr(st.Until))
	case ir.Swap:
		return fmt.Sprintf("%s <=> %s", st.A, st.B)
	case ir.Call:
		return fmt.Sprintf("call %s(%s)", st.Callee, strings.Join(st.Args, ", "))
	case ir.Local:
		return fmt.Sprintf("local %s = %s", st.Name, ir.FormatExpr(st.Init))
	case ir.Delocal:
		return fmt.Sprintf("delocal %s = %s", st.Name, ir.FormatExpr(st.Value))
	default:
		return ""
	}
}
