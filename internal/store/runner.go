package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
)

// Runner executes procedures through a registry and persists every
// run, successful or not, with its statement trace.
type Runner struct {
	reg    *engine.Registry
	store  *Store
	tokens TokenSource
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithTokenSource replaces the UUID token source. Tests use a fixed
// source so run tokens are stable.
func WithTokenSource(ts TokenSource) RunnerOption {
	return func(r *Runner) { r.tokens = ts }
}

// WithLogger installs a structured logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner over a registry and a store.
func NewRunner(reg *engine.Registry, st *Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		reg:    reg,
		store:  st,
		tokens: UUIDTokenSource{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs a procedure in the given direction and persists the
// run. The returned Run carries the results on success and the engine
// error message on failure; the execution error itself is returned
// alongside so callers can branch on its code.
func (r *Runner) Execute(ctx context.Context, name string, dir ir.Direction, args []ir.Word) (Run, error) {
	_, procID, found := r.reg.Lookup(name)
	if !found {
		return Run{}, fmt.Errorf("execute: procedure %q is not registered", name)
	}

	var trace []engine.StepEvent
	tracer := engine.TracerFunc(func(ev engine.StepEvent) {
		trace = append(trace, ev)
	})

	results, runErr := r.reg.Run(ctx, name, dir, args, engine.WithTracer(tracer))

	run := Run{
		Token:         r.tokens.NewToken(),
		Procedure:     name,
		ProcedureID:   procID,
		Direction:     dir,
		Args:          args,
		Results:       results,
		Status:        StatusOK,
		Steps:         int64(len(trace)),
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	if runErr != nil {
		run.Status = StatusError
		run.Error = runErr.Error()
		run.Results = nil
		// Steps traced before the failure are real executions; they
		// stay in the record for diagnosis.
	}

	if err := r.store.WriteRun(ctx, run, trace); err != nil {
		return Run{}, fmt.Errorf("execute: %w", err)
	}

	r.logger.Info("run recorded",
		"token", run.Token,
		"procedure", name,
		"direction", dir.String(),
		"status", run.Status,
		"steps", run.Steps,
	)
	return run, runErr
}
