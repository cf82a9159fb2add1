// Package ir provides the intermediate representation for Janus
// reversible procedures.
//
// This package contains type definitions and pure functions only. All
// other internal packages import ir; ir imports nothing internal. This
// ensures the IR remains the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - The numeric domain is Word (int64). No floats anywhere - checked
//     integer arithmetic is what makes forward/backward agree exactly.
//   - Statement and Expr are sealed interfaces. Only the variants
//     defined here exist; the legality validator and the statement
//     engine both rely on the closed set.
//   - Mutating operators form a closed three-way enum (Add, Sub, Xor)
//     with a total, hard-coded inverse table. Invertibility stays a
//     checkable property because the set cannot grow at runtime.
//   - Procedures are immutable once constructed. Identity is the
//     content-addressed ProcedureID over the canonical encoding.
package ir
