package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/mkrall/janus/internal/engine"
)

// ReplayReport is the outcome of re-executing a stored run.
type ReplayReport struct {
	// Token identifies the replayed run.
	Token string `json:"token"`

	// Deterministic is true when re-running the stored invocation
	// reproduced the stored results and the stored step trace exactly.
	Deterministic bool `json:"deterministic"`

	// RoundTrip is true when running the inverse direction on the
	// stored results reproduced the stored arguments exactly.
	RoundTrip bool `json:"round_trip"`

	// Mismatch describes the first divergence found, empty when both
	// checks pass.
	Mismatch string `json:"mismatch,omitempty"`
}

// OK reports whether both replay checks passed.
func (r ReplayReport) OK() bool {
	return r.Deterministic && r.RoundTrip
}

// Replay re-executes a stored successful run against the current
// registry and verifies two properties: determinism (same results,
// same trace) and the round trip (the inverse direction applied to the
// results reproduces the arguments).
//
// Replay refuses to run when the registered procedure's identity
// differs from the one recorded - a drifted procedure would make any
// comparison meaningless.
func (r *Runner) Replay(ctx context.Context, token string) (ReplayReport, error) {
	run, err := r.store.GetRun(ctx, token)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}
	if run.Status != StatusOK {
		return ReplayReport{}, fmt.Errorf("replay: run %q ended in error and cannot be replayed", token)
	}

	_, procID, found := r.reg.Lookup(run.Procedure)
	if !found {
		return ReplayReport{}, fmt.Errorf("replay: procedure %q is no longer registered", run.Procedure)
	}
	if procID != run.ProcedureID {
		return ReplayReport{}, fmt.Errorf("replay: procedure %q has identity %s, run was recorded against %s",
			run.Procedure, procID, run.ProcedureID)
	}

	storedSteps, err := r.store.ReadSteps(ctx, token)
	if err != nil {
		return ReplayReport{}, fmt.Errorf("replay: %w", err)
	}

	report := ReplayReport{Token: token}

	var replayTrace []engine.StepEvent
	tracer := engine.TracerFunc(func(ev engine.StepEvent) {
		replayTrace = append(replayTrace, ev)
	})
	results, err := r.reg.Run(ctx, run.Procedure, run.Direction, run.Args, engine.WithTracer(tracer))
	if err != nil {
		report.Mismatch = fmt.Sprintf("replay execution failed: %v", err)
		return report, nil
	}

	switch {
	case !slices.Equal(results, run.Results):
		report.Mismatch = fmt.Sprintf("results diverged: stored %v, replayed %v", run.Results, results)
	case !tracesEqual(storedSteps, replayTrace):
		report.Mismatch = "step trace diverged"
	default:
		report.Deterministic = true
	}

	inverse, err := r.reg.Run(ctx, run.Procedure, run.Direction.Invert(), run.Results)
	if err != nil {
		if report.Mismatch == "" {
			report.Mismatch = fmt.Sprintf("inverse execution failed: %v", err)
		}
		return report, nil
	}
	if slices.Equal(inverse, run.Args) {
		report.RoundTrip = true
	} else if report.Mismatch == "" {
		report.Mismatch = fmt.Sprintf("round trip diverged: stored args %v, reconstructed %v", run.Args, inverse)
	}

	return report, nil
}

func tracesEqual(a, b []engine.StepEvent) bool {
	return slices.EqualFunc(a, b, func(x, y engine.StepEvent) bool {
		return x.Seq == y.Seq &&
			x.Procedure == y.Procedure &&
			x.StmtPath == y.StmtPath &&
			x.Kind == y.Kind &&
			x.Direction == y.Direction &&
			x.Detail == y.Detail
	})
}
