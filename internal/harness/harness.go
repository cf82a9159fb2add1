// Package harness executes YAML conformance scenarios against the
// engine and compares traces against golden snapshots.
//
// A scenario names CUE program files, an invocation sequence, and
// assertions over the collected statement traces. The harness builds a
// fresh registry per scenario, so scenarios are independent and can run
// in any order.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/mkrall/janus/internal/compiler"
	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Scenario is the scenario name.
	Scenario string

	// Steps holds one result per scenario step, in order.
	Steps []StepResult
}

// StepResult is the outcome of one invocation.
type StepResult struct {
	Run       string
	Direction ir.Direction
	Args      []ir.Word
	Results   []ir.Word
	Err       error
	Trace     []engine.StepEvent
}

// Run executes a scenario and checks every step's expectation and
// every assertion. Expectation and assertion failures are returned as
// errors; the scenario stops at the first failure.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	reg, err := buildRegistry(scenario)
	if err != nil {
		return nil, err
	}

	result := &Result{Scenario: scenario.Name}
	for i, step := range scenario.Steps {
		sr, err := runStep(ctx, reg, i, step)
		if err != nil {
			return nil, err
		}
		result.Steps = append(result.Steps, sr)
	}

	for i, a := range scenario.Assertions {
		if err := checkAssertion(ctx, reg, result, i, a); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// buildRegistry compiles every program file and registers the
// procedures as one batch, so programs may call across files.
func buildRegistry(scenario *Scenario) (*engine.Registry, error) {
	var opts []engine.Option
	if scenario.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(scenario.MaxSteps))
	}
	reg := engine.NewRegistry(opts...)

	var procs []*ir.Procedure
	for _, path := range scenario.Programs {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read program %s: %w", path, err)
		}
		compiled, err := compiler.CompileSource(string(src))
		if err != nil {
			return nil, fmt.Errorf("compile program %s: %w", path, err)
		}
		procs = append(procs, compiled...)
	}

	if _, err := reg.RegisterAll(procs); err != nil {
		return nil, fmt.Errorf("register programs: %w", err)
	}
	return reg, nil
}

func runStep(ctx context.Context, reg *engine.Registry, index int, step Step) (StepResult, error) {
	dir := ir.Forward
	if step.Direction == "backward" {
		dir = ir.Backward
	}

	args := toWords(step.Args)
	sr := StepResult{Run: step.Run, Direction: dir, Args: args}

	tracer := engine.TracerFunc(func(ev engine.StepEvent) {
		sr.Trace = append(sr.Trace, ev)
	})
	sr.Results, sr.Err = reg.Run(ctx, step.Run, dir, args, engine.WithTracer(tracer))

	if step.Expect == nil {
		if sr.Err != nil {
			return sr, fmt.Errorf("steps[%d]: %s %s failed: %w", index, step.Run, dir, sr.Err)
		}
		return sr, nil
	}

	if step.Expect.Error != "" {
		var re *engine.RuntimeError
		if sr.Err == nil {
			return sr, fmt.Errorf("steps[%d]: expected error %s, step succeeded with %v",
				index, step.Expect.Error, sr.Results)
		}
		if !errors.As(sr.Err, &re) || string(re.Code) != step.Expect.Error {
			return sr, fmt.Errorf("steps[%d]: expected error %s, got %v", index, step.Expect.Error, sr.Err)
		}
		return sr, nil
	}

	if sr.Err != nil {
		return sr, fmt.Errorf("steps[%d]: %s %s failed: %w", index, step.Run, dir, sr.Err)
	}
	want := toWords(step.Expect.Results)
	if !slices.Equal(sr.Results, want) {
		return sr, fmt.Errorf("steps[%d]: expected results %v, got %v", index, want, sr.Results)
	}
	return sr, nil
}

func checkAssertion(ctx context.Context, reg *engine.Registry, result *Result, index int, a Assertion) error {
	switch a.Type {
	case AssertRoundTrip:
		return checkRoundTrip(ctx, reg, result, index)

	case AssertTraceCount:
		count := 0
		for _, sr := range result.Steps {
			for _, ev := range sr.Trace {
				if a.Procedure != "" && ev.Procedure != a.Procedure {
					continue
				}
				if a.Kind != "" && ev.Kind != a.Kind {
					continue
				}
				count++
			}
		}
		if count != a.Count {
			return fmt.Errorf("assertions[%d]: trace_count expected %d matching events, found %d",
				index, a.Count, count)
		}
		return nil

	case AssertTraceContains:
		for _, sr := range result.Steps {
			for _, ev := range sr.Trace {
				if ev.Detail == a.Detail {
					return nil
				}
			}
		}
		return fmt.Errorf("assertions[%d]: trace_contains found no event with detail %q", index, a.Detail)

	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
}

// checkRoundTrip re-runs every successful step in the inverse
// direction from its results and requires the original arguments back.
func checkRoundTrip(ctx context.Context, reg *engine.Registry, result *Result, index int) error {
	for i, sr := range result.Steps {
		if sr.Err != nil {
			continue
		}
		back, err := reg.Run(ctx, sr.Run, sr.Direction.Invert(), sr.Results)
		if err != nil {
			return fmt.Errorf("assertions[%d]: round_trip inverse of steps[%d] failed: %w", index, i, err)
		}
		if !slices.Equal(back, sr.Args) {
			return fmt.Errorf("assertions[%d]: round_trip of steps[%d] diverged: started %v, reconstructed %v",
				index, i, sr.Args, back)
		}
	}
	return nil
}

func toWords(vs []int64) []ir.Word {
	ws := make([]ir.Word, len(vs))
	for i, v := range vs {
		ws[i] = ir.Word(v)
	}
	return ws
}
