package engine

import (
	"sync/atomic"

	"github.com/mkrall/janus/internal/ir"
)

// Clock is a monotonic logical clock stamping trace events.
//
// Seq numbers make a trace totally ordered without wall-clock
// timestamps, so replaying the same invocation produces an identical
// trace byte for byte.
//
// Thread-safety: safe for concurrent use (atomic operations), although
// a single invocation is strictly single-threaded.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// StepEvent describes one executed statement. Emitted to the Tracer,
// if one is attached, after the statement completes successfully.
type StepEvent struct {
	// Seq is the logical clock stamp; strictly increasing within an
	// invocation.
	Seq int64 `json:"seq"`

	// Procedure names the procedure whose statement executed.
	Procedure string `json:"procedure"`

	// StmtPath locates the statement in its procedure's body.
	StmtPath string `json:"stmt_path"`

	// Kind is the statement variant: assign, if, loop, swap, call,
	// local, delocal.
	Kind string `json:"kind"`

	// Direction is the direction the statement ran in.
	Direction string `json:"direction"`

	// Detail is a human-readable rendering, e.g. "x1 += x2".
	Detail string `json:"detail"`
}

// Tracer receives step events during an invocation. Implementations
// must not mutate the environment; they observe only.
//
// The store package implements Tracer to persist run traces; the
// harness implements it to build golden trace snapshots.
type Tracer interface {
	Step(ev StepEvent)
}

// TracerFunc adapts a function to the Tracer interface.
type TracerFunc func(ev StepEvent)

func (f TracerFunc) Step(ev StepEvent) { f(ev) }

// directionLabel maps a direction to its trace label.
func directionLabel(d ir.Direction) string {
	return d.String()
}
