// Package engine executes reversible procedures in both directions.
//
// The engine is the heart of Janus: it owns the per-invocation
// environment (an arena of slots), evaluates pure expressions, runs
// statements forward or backward, and dispatches calls between
// registered procedures.
//
// ARCHITECTURE:
//
// Single-threaded, synchronous invocations:
// One invocation runs to completion (or to its first error) before
// control returns to the caller. There is no suspension point, no
// scheduler, and no background task. Concurrent invocations are safe
// because each owns its environment exclusively; the Registry itself
// is guarded for concurrent registration and lookup.
//
// Invocation flow:
//  1. Registry.RunForward / RunBackward looks up the procedure.
//  2. Arguments are bound into a fresh environment, one slot each.
//  3. The executor walks the body (in order forward, reversed and
//     inverted backward), consulting the expression evaluator for reads
//     and the environment for writes.
//  4. Final slot values are read back out and returned.
//
// LEGALITY:
//
// The static validator has already run at registration, so the
// executor only performs the checks that cannot be decided statically:
// slot-identity aliasing on every mutating step, assertion agreement
// on every conditional and loop, overflow on every checked operation,
// and delocal value agreement. Any violation aborts the invocation
// immediately; the environment is then officially undefined and the
// invocation must not be resumed or inverted.
//
// The round-trip invariant - running a procedure forward then backward
// from the same initial environment reproduces that environment
// exactly - holds for every invocation that completes without error.
package engine
