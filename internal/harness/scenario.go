package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: CUE programs to
// compile and register, a sequence of invocations, and assertions over
// the collected traces.
type Scenario struct {
	// Name uniquely identifies this scenario. Doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Programs lists paths to CUE program files to compile and
	// register. Paths are relative to the scenario file location.
	Programs []string `yaml:"programs"`

	// MaxSteps optionally caps each invocation's statement budget.
	MaxSteps int64 `yaml:"max_steps,omitempty"`

	// Steps is the invocation sequence.
	Steps []Step `yaml:"steps"`

	// Assertions validate the collected traces.
	// Supported types: round_trip, trace_count, trace_contains.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one invocation: a procedure, a direction, and arguments.
type Step struct {
	// Run names the procedure to invoke.
	Run string `yaml:"run"`

	// Direction is "forward" or "backward". Empty means forward.
	Direction string `yaml:"direction,omitempty"`

	// Args are the parameter values in declaration order.
	Args []int64 `yaml:"args"`

	// Expect specifies the expected outcome. If nil the step is only
	// required to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step. Exactly one
// of Results or Error applies.
type ExpectClause struct {
	// Results are the expected output values, position for position.
	Results []int64 `yaml:"results,omitempty"`

	// Error is the expected runtime error code, e.g.
	// "ASSERTION_MISMATCH". The step must fail with that code.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the collected traces after all steps ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "round_trip": every successful step, re-run in the inverse
	//   direction from its results, must reproduce its arguments
	// - "trace_count": a procedure/kind combination appears exactly
	//   Count times across all step traces
	// - "trace_contains": some step trace contains an event with the
	//   given detail
	Type string `yaml:"type"`

	// Procedure filters trace events by procedure (trace_count).
	Procedure string `yaml:"procedure,omitempty"`

	// Kind filters trace events by statement kind (trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Detail is the expected event rendering (trace_contains), e.g.
	// "x1 += x2".
	Detail string `yaml:"detail,omitempty"`
}

// Assertion type constants.
const (
	AssertRoundTrip     = "round_trip"
	AssertTraceCount    = "trace_count"
	AssertTraceContains = "trace_contains"
)

// LoadScenario reads and parses a scenario YAML file, resolving
// program paths relative to the scenario file's directory. Unknown
// YAML fields are rejected so typos fail loudly instead of silently
// validating nothing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for i, p := range scenario.Programs {
		if !filepath.IsAbs(p) {
			scenario.Programs[i] = filepath.Join(base, p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Programs) == 0 {
		return fmt.Errorf("programs list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, p := range s.Programs {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("program file not found: %s", p)
		}
	}

	for i, step := range s.Steps {
		if step.Run == "" {
			return fmt.Errorf("steps[%d]: run is required", i)
		}
		switch step.Direction {
		case "", "forward", "backward":
		default:
			return fmt.Errorf("steps[%d]: direction must be forward or backward, got %q", i, step.Direction)
		}
		if step.Expect != nil {
			if len(step.Expect.Results) > 0 && step.Expect.Error != "" {
				return fmt.Errorf("steps[%d].expect: results and error are mutually exclusive", i)
			}
			if len(step.Expect.Results) == 0 && step.Expect.Error == "" {
				return fmt.Errorf("steps[%d].expect: results or error is required", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertRoundTrip:
	case AssertTraceCount:
		if a.Procedure == "" && a.Kind == "" {
			return fmt.Errorf("assertions[%d]: procedure or kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceContains:
		if a.Detail == "" {
			return fmt.Errorf("assertions[%d]: detail is required for trace_contains", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
