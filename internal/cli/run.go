package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
	"github.com/mkrall/janus/internal/store"
)

// RunResult is the JSON payload for the run command.
type RunResult struct {
	Procedure string    `json:"procedure"`
	Direction string    `json:"direction"`
	Args      []ir.Word `json:"args"`
	Results   []ir.Word `json:"results"`
	Token     string    `json:"token,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		backward bool
		maxSteps int64
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "run <program.cue> <procedure> [arg]...",
		Short: "Execute a procedure forward or backward",
		Long: `Compile a program, register it, and invoke one procedure with the
given integer arguments. With --db the run and its statement trace are
persisted under a fresh run token for later trace and replay.`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunCmd(rootOpts, cmd, args, backward, maxSteps, dbPath)
		},
	}

	cmd.Flags().BoolVar(&backward, "backward", false, "run the inverse direction")
	cmd.Flags().Int64Var(&maxSteps, "max-steps", 0, "statement budget per invocation (0 = engine default)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to record the run in")

	return cmd
}

func runRunCmd(opts *RootOptions, cmd *cobra.Command, cliArgs []string, backward bool, maxSteps int64, dbPath string) error {
	f := opts.formatter(cmd)

	reg, err := buildRegistry(cliArgs[:1], maxSteps)
	if err != nil {
		return err
	}

	procName := cliArgs[1]
	args, err := parseWordArgs(cliArgs[2:])
	if err != nil {
		return WrapExitError(ExitCommandError, "parse arguments", err)
	}

	dir := ir.Forward
	if backward {
		dir = ir.Backward
	}

	var (
		results []ir.Word
		token   string
		runErr  error
	)
	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "open database", err)
		}
		defer st.Close()

		runner := store.NewRunner(reg, st)
		var run store.Run
		run, runErr = runner.Execute(cmd.Context(), procName, dir, args)
		results, token = run.Results, run.Token
		if token != "" {
			f.VerboseLog("run recorded as %s", token)
		}
	} else {
		results, runErr = reg.Run(cmd.Context(), procName, dir, args)
	}

	if runErr != nil {
		var re *engine.RuntimeError
		if errors.As(runErr, &re) {
			if f.Format == "json" {
				if err := f.JSONError(string(re.Code), re.Message, re); err != nil {
					return err
				}
				return NewExitError(ExitFailure, re.Error())
			}
			return WrapExitError(ExitFailure, "run failed", runErr)
		}
		return WrapExitError(ExitCommandError, "run", runErr)
	}

	if f.Format == "json" {
		return f.JSON(RunResult{
			Procedure: procName,
			Direction: dir.String(),
			Args:      args,
			Results:   results,
			Token:     token,
		})
	}
	fmt.Fprintf(f.Writer, "%s %s %v -> %v\n", procName, dir, args, results)
	if token != "" {
		fmt.Fprintf(f.Writer, "token: %s\n", token)
	}
	return nil
}

func parseWordArgs(raw []string) ([]ir.Word, error) {
	args := make([]ir.Word, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %q is not a 64-bit integer", i, s)
		}
		args[i] = ir.Word(v)
	}
	return args, nil
}
