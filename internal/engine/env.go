package engine

import (
	"fmt"
	"sort"

	"github.com/mkrall/janus/internal/ir"
)

// Slot is a handle into an invocation's arena. Aliasing checks are
// handle-equality checks: two references alias exactly when they
// resolve to the same Slot. No pointer comparison anywhere.
type Slot int

// Env is the per-invocation arena of storage slots. It is exclusively
// owned by one invocation and destroyed when the invocation returns;
// nothing here needs locking.
type Env struct {
	slots []ir.Word
	live  []bool
}

// NewEnv creates an empty environment.
func NewEnv() *Env {
	return &Env{}
}

// Alloc creates a fresh slot holding v and returns its handle.
func (e *Env) Alloc(v ir.Word) Slot {
	e.slots = append(e.slots, v)
	e.live = append(e.live, true)
	return Slot(len(e.slots) - 1)
}

// Free marks a slot dead. Reads and writes through a dead slot panic:
// the static validator makes stale handles unreachable, so hitting one
// is an engine bug, not a user error.
func (e *Env) Free(s Slot) {
	e.live[s] = false
}

// Read returns the value held by a slot.
func (e *Env) Read(s Slot) ir.Word {
	if !e.live[s] {
		panic(fmt.Sprintf("engine: read of freed slot %d", s))
	}
	return e.slots[s]
}

// Write stores v into a slot. This is the only state mutation in the
// system; reversibility is a property of whole statements, never of a
// single write.
func (e *Env) Write(s Slot, v ir.Word) {
	if !e.live[s] {
		panic(fmt.Sprintf("engine: write to freed slot %d", s))
	}
	e.slots[s] = v
}

// Frame maps the names visible inside one procedure invocation to
// slots. A call creates a child frame binding callee parameters to the
// caller's argument slots; locals bind fresh slots into the current
// frame and unbind on delocal.
type Frame struct {
	env  *Env
	vars map[string]Slot
}

// NewFrame creates a frame over an environment with no bindings.
func NewFrame(env *Env) *Frame {
	return &Frame{env: env, vars: make(map[string]Slot)}
}

// Bind associates a name with a slot in this frame.
func (f *Frame) Bind(name string, s Slot) {
	f.vars[name] = s
}

// Unbind removes a name from this frame.
func (f *Frame) Unbind(name string) {
	delete(f.vars, name)
}

// Resolve returns the slot bound to name, if any.
func (f *Frame) Resolve(name string) (Slot, bool) {
	s, ok := f.vars[name]
	return s, ok
}

// Names returns the bound names in sorted order. Used for diagnostics.
func (f *Frame) Names() []string {
	names := make([]string, 0, len(f.vars))
	for n := range f.vars {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EnvReader is the read-only view of an environment handed to the
// expression evaluator. The evaluator must not mutate; this interface
// is how that is enforced structurally.
type EnvReader interface {
	// Read returns the value bound to name, or *UnboundVariableError.
	Read(name string) (ir.Word, error)
}

// readRecorder is the EnvReader used while evaluating a mutating
// statement's expressions. It records every slot read so the executor
// can compare the read set against the mutation target - the dynamic
// half of the no-aliasing rule.
type readRecorder struct {
	frame *Frame
	reads map[Slot]struct{}
}

func newReadRecorder(f *Frame) *readRecorder {
	return &readRecorder{frame: f, reads: make(map[Slot]struct{})}
}

func (r *readRecorder) Read(name string) (ir.Word, error) {
	s, ok := r.frame.Resolve(name)
	if !ok {
		return 0, &UnboundVariableError{Name: name}
	}
	r.reads[s] = struct{}{}
	return r.frame.env.Read(s), nil
}

// sawSlot reports whether s was read during evaluation.
func (r *readRecorder) sawSlot(s Slot) bool {
	_, ok := r.reads[s]
	return ok
}
