package harness

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
)

// TraceSnapshot captures a scenario execution for golden comparison.
// Serialization is plain indented JSON; every field is deterministic
// (logical seq numbers, no wall clocks, no tokens), so the same
// scenario always produces byte-identical snapshots.
type TraceSnapshot struct {
	Scenario string         `json:"scenario"`
	Steps    []StepSnapshot `json:"steps"`
}

// StepSnapshot is one invocation in a snapshot.
type StepSnapshot struct {
	Run       string             `json:"run"`
	Direction string             `json:"direction"`
	Args      []ir.Word          `json:"args"`
	Results   []ir.Word          `json:"results,omitempty"`
	Error     string             `json:"error,omitempty"`
	Trace     []engine.StepEvent `json:"trace"`
}

// Snapshot converts a result into its golden form.
func Snapshot(result *Result) TraceSnapshot {
	snap := TraceSnapshot{Scenario: result.Scenario}
	for _, sr := range result.Steps {
		ss := StepSnapshot{
			Run:       sr.Run,
			Direction: sr.Direction.String(),
			Args:      sr.Args,
			Results:   sr.Results,
			Trace:     sr.Trace,
		}
		if sr.Err != nil {
			ss.Error = sr.Err.Error()
			ss.Results = nil
		}
		snap.Steps = append(snap.Steps, ss)
	}
	return snap
}

// MarshalSnapshot renders a snapshot to the golden byte form.
func MarshalSnapshot(snap TraceSnapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// AssertGolden compares a scenario result against its golden file in
// testdata/golden/{result.Scenario}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(Snapshot(result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Scenario, data)
	return nil
}
