package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during an invocation.
//
// Runtime errors include:
//   - Alias violation: two live references resolved to the same slot
//   - Assertion mismatch: a conditional's assertion disagrees with the
//     branch taken, or a loop invariant fails
//   - Unbound variable: a reference did not resolve in the environment
//   - Arithmetic overflow: Add/Sub left the Word range
//
// Every RuntimeError is fatal to its invocation: the environment is
// left in an unspecified mutated state and must not be resumed or
// inverted. RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Procedure names the procedure whose body was executing.
	Procedure string

	// StmtPath locates the offending statement in the body, e.g.
	// "body[1].else[2]".
	StmtPath string

	// Direction is the direction the invocation was running in.
	Direction string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeAliasViolation indicates two references to one slot in a
	// single mutating step.
	ErrCodeAliasViolation RuntimeErrorCode = "ALIAS_VIOLATION"

	// ErrCodeAssertionMismatch indicates a conditional assertion or a
	// loop invariant disagreed with the branch taken.
	ErrCodeAssertionMismatch RuntimeErrorCode = "ASSERTION_MISMATCH"

	// ErrCodeUnboundVariable indicates a reference that did not resolve.
	ErrCodeUnboundVariable RuntimeErrorCode = "UNBOUND_VARIABLE"

	// ErrCodeArithmeticOverflow indicates Add/Sub left the Word range.
	ErrCodeArithmeticOverflow RuntimeErrorCode = "ARITHMETIC_OVERFLOW"

	// ErrCodeDivisionByZero indicates a pure expression divided by zero.
	ErrCodeDivisionByZero RuntimeErrorCode = "DIVISION_BY_ZERO"

	// ErrCodeDelocalMismatch indicates a delocal value disagreed with
	// the slot being deallocated.
	ErrCodeDelocalMismatch RuntimeErrorCode = "DELOCAL_MISMATCH"

	// ErrCodeUnknownProcedure indicates a dispatch target that is not
	// registered.
	ErrCodeUnknownProcedure RuntimeErrorCode = "UNKNOWN_PROCEDURE"

	// ErrCodeArityMismatch indicates an argument count that does not
	// match the procedure's parameters.
	ErrCodeArityMismatch RuntimeErrorCode = "ARITY_MISMATCH"

	// ErrCodeStepQuotaExceeded indicates the invocation exceeded the
	// configured step budget.
	ErrCodeStepQuotaExceeded RuntimeErrorCode = "STEP_QUOTA_EXCEEDED"

	// ErrCodeEvalError indicates an expression evaluator failure that
	// maps to no arithmetic category. Only injected evaluators produce
	// it; the built-in evaluator fails with one of the codes above.
	ErrCodeEvalError RuntimeErrorCode = "EVAL_ERROR"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Procedure != "" && e.StmtPath != "" {
		return fmt.Sprintf("%s: %s (proc=%s, stmt=%s, dir=%s)", e.Code, e.Message, e.Procedure, e.StmtPath, e.Direction)
	}
	if e.Procedure != "" {
		return fmt.Sprintf("%s: %s (proc=%s)", e.Code, e.Message, e.Procedure)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsAliasViolation returns true if the error is an alias violation.
// Uses errors.As to handle wrapped errors.
func IsAliasViolation(err error) bool {
	return hasCode(err, ErrCodeAliasViolation)
}

// IsAssertionMismatch returns true if the error is an assertion mismatch.
func IsAssertionMismatch(err error) bool {
	return hasCode(err, ErrCodeAssertionMismatch)
}

// IsOverflow returns true if the error is an arithmetic overflow.
func IsOverflow(err error) bool {
	return hasCode(err, ErrCodeArithmeticOverflow)
}

// IsUnboundVariable returns true if the error is an unbound variable.
func IsUnboundVariable(err error) bool {
	return hasCode(err, ErrCodeUnboundVariable)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// Sentinel errors raised by the expression evaluator. The executor
// wraps them into a RuntimeError carrying the statement context.
var (
	errDivisionByZero = errors.New("division by zero")
	errExprOverflow   = errors.New("arithmetic overflow in expression")
)

// UnboundVariableError is raised by an environment reader when a name
// does not resolve. Carries the name so the executor can report it.
type UnboundVariableError struct {
	Name string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("unbound variable %q", e.Name)
}
