package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkrall/janus/internal/store"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath   string
		maxSteps int64
	)

	cmd := &cobra.Command{
		Use:   "replay <token> <program.cue>...",
		Short: "Re-execute a stored run and verify it",
		Long: `Re-run a recorded invocation against the given programs and verify
two properties: determinism (identical results and statement trace)
and the round trip (the inverse direction applied to the results
reproduces the recorded arguments). Replay refuses to run when the
procedure's content identity differs from the recorded one.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplayCmd(rootOpts, cmd, args[0], args[1:], dbPath, maxSteps)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "janus.db", "SQLite database holding recorded runs")
	cmd.Flags().Int64Var(&maxSteps, "max-steps", 0, "statement budget per invocation (0 = engine default)")

	return cmd
}

func runReplayCmd(opts *RootOptions, cmd *cobra.Command, token string, programs []string, dbPath string, maxSteps int64) error {
	f := opts.formatter(cmd)

	reg, err := buildRegistry(programs, maxSteps)
	if err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	runner := store.NewRunner(reg, st)
	report, err := runner.Replay(cmd.Context(), token)
	if err != nil {
		return WrapExitError(ExitCommandError, "replay", err)
	}

	if f.Format == "json" {
		if err := f.JSON(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "run %s\n", report.Token)
		fmt.Fprintf(f.Writer, "  deterministic: %t\n", report.Deterministic)
		fmt.Fprintf(f.Writer, "  round trip:    %t\n", report.RoundTrip)
		if report.Mismatch != "" {
			fmt.Fprintf(f.Writer, "  mismatch:      %s\n", report.Mismatch)
		}
	}

	if !report.OK() {
		return NewExitError(ExitFailure, fmt.Sprintf("replay of %s failed: %s", token, report.Mismatch))
	}
	return nil
}
