package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkrall/janus/internal/harness"
)

// ScenarioOutcome reports one scenario for JSON output.
type ScenarioOutcome struct {
	Scenario string `json:"scenario"`
	Path     string `json:"path"`
	Passed   bool   `json:"passed"`
	Error    string `json:"error,omitempty"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <scenario.yaml>...",
		Short: "Run conformance scenarios",
		Long: `Load each YAML scenario, compile and register its programs, execute
its steps, and check every expectation and assertion. Scenarios run
independently; all are run even when one fails.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestCmd(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runTestCmd(opts *RootOptions, cmd *cobra.Command, paths []string) error {
	f := opts.formatter(cmd)

	outcomes := make([]ScenarioOutcome, 0, len(paths))
	failed := 0
	for _, path := range paths {
		outcome := ScenarioOutcome{Path: path, Passed: true}

		scenario, err := harness.LoadScenario(path)
		if err != nil {
			outcome.Passed = false
			outcome.Error = err.Error()
		} else {
			outcome.Scenario = scenario.Name
			f.VerboseLog("running scenario %s (%s)", scenario.Name, path)
			if _, err := harness.Run(cmd.Context(), scenario); err != nil {
				outcome.Passed = false
				outcome.Error = err.Error()
			}
		}

		if !outcome.Passed {
			failed++
		}
		outcomes = append(outcomes, outcome)
	}

	if f.Format == "json" {
		if err := f.JSON(outcomes); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			mark := "ok"
			if !o.Passed {
				mark = "FAIL"
			}
			name := o.Scenario
			if name == "" {
				name = o.Path
			}
			fmt.Fprintf(f.Writer, "%-4s  %s\n", mark, name)
			if o.Error != "" {
				fmt.Fprintf(f.Writer, "      %s\n", o.Error)
			}
		}
		fmt.Fprintf(f.Writer, "%d scenario(s), %d failed\n", len(outcomes), failed)
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", failed))
	}
	return nil
}
