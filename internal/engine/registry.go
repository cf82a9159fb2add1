package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/mkrall/janus/internal/ir"
	"github.com/mkrall/janus/internal/validate"
)

// Registry holds the set of registered reversible procedures and runs
// invocations against them.
//
// Registration is the trust boundary: a procedure passes the full
// static legality pass before it is admitted, and once admitted it is
// immutable and content-addressed. Every invocation after that only
// needs the dynamic checks.
//
// Thread-safety: safe for concurrent use. Registration takes the write
// lock; invocations take a read lock only long enough to snapshot the
// procedure table, then run on their own private environment.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]*ir.Procedure
	ids   map[string]ir.ProcedureID

	eval     Evaluator
	maxSteps int64
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithEvaluator installs a custom expression evaluator. The default
// evaluates the built-in expression tree; hosts embedding their own
// expression grammar supply their own.
func WithEvaluator(e Evaluator) Option {
	return func(r *Registry) { r.eval = e }
}

// WithMaxSteps caps the number of statements a single invocation may
// execute. Zero means no cap. The cap is the termination backstop for
// loops whose exit predicate never fires.
func WithMaxSteps(n int64) Option {
	return func(r *Registry) { r.maxSteps = n }
}

// WithLogger installs a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// DefaultMaxSteps is the per-invocation statement cap applied when no
// option overrides it.
const DefaultMaxSteps = 1 << 20

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		procs:    make(map[string]*ir.Procedure),
		ids:      make(map[string]ir.ProcedureID),
		eval:     DefaultEvaluator{},
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidationFailure aggregates the static errors found while
// registering one procedure. Registration is all-or-nothing: one
// failure and the procedure is not admitted.
type ValidationFailure struct {
	Procedure string
	Errors    []validate.Error
}

// Error implements the error interface.
func (f *ValidationFailure) Error() string {
	msgs := make([]string, len(f.Errors))
	for i, e := range f.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("procedure %q failed validation: %s", f.Procedure, strings.Join(msgs, "; "))
}

// Register admits a procedure after running the static legality pass
// and returns its content-addressed identity. The procedure under
// registration is visible to its own call sites, so self-recursion
// validates; mutual recursion requires registering the callee first.
func (r *Registry) Register(p *ir.Procedure) (ir.ProcedureID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.procs[p.Name]; exists {
		return "", &ValidationFailure{
			Procedure: p.Name,
			Errors: []validate.Error{{
				Code:      validate.CodeDuplicateProcedure,
				Procedure: p.Name,
				Message:   fmt.Sprintf("procedure %q is already registered", p.Name),
			}},
		}
	}

	res := validate.ResolverFunc(func(name string) (int, bool) {
		if name == p.Name {
			return len(p.Params), true
		}
		if q, ok := r.procs[name]; ok {
			return len(q.Params), true
		}
		return 0, false
	})
	if errs := validate.Procedure(p, res); len(errs) > 0 {
		return "", &ValidationFailure{Procedure: p.Name, Errors: errs}
	}

	id, err := ir.IdentityOf(p)
	if err != nil {
		return "", fmt.Errorf("computing identity of %q: %w", p.Name, err)
	}

	r.procs[p.Name] = p
	r.ids[p.Name] = id
	r.logger.Debug("procedure registered",
		"procedure", p.Name,
		"id", string(id),
		"params", len(p.Params),
	)
	return id, nil
}

// RegisterAll admits a batch of procedures atomically: call sites may
// reference any procedure in the batch regardless of order, so
// mutually recursive procedures register together. Either every
// procedure is admitted or none is.
func (r *Registry) RegisterAll(procs []*ir.Procedure) (map[string]ir.ProcedureID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	arities := make(map[string]int, len(procs))
	for _, p := range procs {
		if _, exists := r.procs[p.Name]; exists {
			return nil, &ValidationFailure{
				Procedure: p.Name,
				Errors: []validate.Error{{
					Code:      validate.CodeDuplicateProcedure,
					Procedure: p.Name,
					Message:   fmt.Sprintf("procedure %q is already registered", p.Name),
				}},
			}
		}
		if _, dup := arities[p.Name]; dup {
			return nil, &ValidationFailure{
				Procedure: p.Name,
				Errors: []validate.Error{{
					Code:      validate.CodeDuplicateProcedure,
					Procedure: p.Name,
					Message:   fmt.Sprintf("procedure %q appears twice in the batch", p.Name),
				}},
			}
		}
		arities[p.Name] = len(p.Params)
	}

	res := validate.ResolverFunc(func(name string) (int, bool) {
		if arity, ok := arities[name]; ok {
			return arity, true
		}
		if q, ok := r.procs[name]; ok {
			return len(q.Params), true
		}
		return 0, false
	})

	ids := make(map[string]ir.ProcedureID, len(procs))
	for _, p := range procs {
		if errs := validate.Procedure(p, res); len(errs) > 0 {
			return nil, &ValidationFailure{Procedure: p.Name, Errors: errs}
		}
		id, err := ir.IdentityOf(p)
		if err != nil {
			return nil, fmt.Errorf("computing identity of %q: %w", p.Name, err)
		}
		ids[p.Name] = id
	}

	for _, p := range procs {
		r.procs[p.Name] = p
		r.ids[p.Name] = ids[p.Name]
		r.logger.Debug("procedure registered",
			"procedure", p.Name,
			"id", string(ids[p.Name]),
			"params", len(p.Params),
		)
	}
	return ids, nil
}

// MustRegister registers a procedure and panics on failure. For test
// fixtures and static program tables.
func (r *Registry) MustRegister(p *ir.Procedure) ir.ProcedureID {
	id, err := r.Register(p)
	if err != nil {
		panic(err)
	}
	return id
}

// Lookup returns a registered procedure and its identity.
func (r *Registry) Lookup(name string) (*ir.Procedure, ir.ProcedureID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[name]
	if !ok {
		return nil, "", false
	}
	return p, r.ids[name], true
}

// Names returns the registered procedure names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.procs))
	for n := range r.procs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResolveProcedure implements validate.Resolver over the registered
// set.
func (r *Registry) ResolveProcedure(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[name]
	if !ok {
		return 0, false
	}
	return len(p.Params), true
}

// RunOption configures a single invocation.
type RunOption func(*runConfig)

type runConfig struct {
	tracer   Tracer
	maxSteps int64
}

// WithTracer attaches a tracer to one invocation. The tracer receives
// a StepEvent per executed statement, in execution order.
func WithTracer(t Tracer) RunOption {
	return func(c *runConfig) { c.tracer = t }
}

// WithStepLimit overrides the registry's step cap for one invocation.
func WithStepLimit(n int64) RunOption {
	return func(c *runConfig) { c.maxSteps = n }
}

// RunForward invokes a procedure forward. Args are the initial values
// of the parameters in declaration order; the returned slice holds the
// final values in the same order.
func (r *Registry) RunForward(ctx context.Context, name string, args []ir.Word, opts ...RunOption) ([]ir.Word, error) {
	return r.run(ctx, name, ir.Forward, args, opts...)
}

// RunBackward invokes a procedure backward: given the outputs of a
// forward run it reconstructs the inputs exactly.
func (r *Registry) RunBackward(ctx context.Context, name string, args []ir.Word, opts ...RunOption) ([]ir.Word, error) {
	return r.run(ctx, name, ir.Backward, args, opts...)
}

// Run invokes a procedure in an explicit direction.
func (r *Registry) Run(ctx context.Context, name string, dir ir.Direction, args []ir.Word, opts ...RunOption) ([]ir.Word, error) {
	return r.run(ctx, name, dir, args, opts...)
}

func (r *Registry) run(ctx context.Context, name string, dir ir.Direction, args []ir.Word, opts ...RunOption) ([]ir.Word, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	proc, ok := r.procs[name]
	// The executor dispatches calls lock-free, so it gets its own copy
	// of the table: registrations landing mid-invocation must not touch
	// the map it reads.
	procs := maps.Clone(r.procs)
	r.mu.RUnlock()

	if !ok {
		return nil, &RuntimeError{
			Code:      ErrCodeUnknownProcedure,
			Message:   fmt.Sprintf("procedure %q is not registered", name),
			Procedure: name,
			Direction: dir.String(),
		}
	}
	if len(args) != len(proc.Params) {
		return nil, &RuntimeError{
			Code: ErrCodeArityMismatch,
			Message: fmt.Sprintf("procedure %q takes %d parameter(s), got %d argument(s)",
				name, len(proc.Params), len(args)),
			Procedure: name,
			Direction: dir.String(),
		}
	}

	cfg := runConfig{maxSteps: r.maxSteps}
	for _, opt := range opts {
		opt(&cfg)
	}

	env := NewEnv()
	frame := NewFrame(env)
	slots := make([]Slot, len(args))
	for i, v := range args {
		slots[i] = env.Alloc(v)
		frame.Bind(proc.Params[i], slots[i])
	}

	ex := &executor{
		procs:    procs,
		eval:     r.eval,
		env:      env,
		clock:    NewClock(),
		tracer:   cfg.tracer,
		maxSteps: cfg.maxSteps,
	}

	if err := ex.runBody(proc.Name, proc.Body, frame, dir, "body"); err != nil {
		r.logger.Error("invocation failed",
			"procedure", name,
			"direction", dir.String(),
			"steps", ex.steps,
			"error", err,
		)
		return nil, err
	}

	out := make([]ir.Word, len(slots))
	for i, s := range slots {
		out[i] = env.Read(s)
	}
	r.logger.Debug("invocation complete",
		"procedure", name,
		"direction", dir.String(),
		"steps", ex.steps,
	)
	return out, nil
}
