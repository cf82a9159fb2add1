package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
	"github.com/mkrall/janus/internal/validate"
)

// ValidationResult holds validation results for JSON output.
type ValidationResult struct {
	Valid      bool                      `json:"valid"`
	Procedures map[string]ir.ProcedureID `json:"procedures,omitempty"`
	Errors     []validate.Error          `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <program.cue>...",
		Short: "Check programs against the reversibility rules",
		Long: `Compile CUE program files and run the static legality pass: operator
whitelist, self-reference, call targets and arity, local/delocal
balance. Nothing executes.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateCmd(rootOpts, cmd, args)
		},
	}
	return cmd
}

func runValidateCmd(opts *RootOptions, cmd *cobra.Command, paths []string) error {
	f := opts.formatter(cmd)

	procs, err := loadPrograms(paths)
	if err != nil {
		return err
	}
	f.VerboseLog("compiled %d procedure(s) from %d file(s)", len(procs), len(paths))

	reg := engine.NewRegistry()
	ids, err := reg.RegisterAll(procs)
	if err != nil {
		var vf *engine.ValidationFailure
		if !errors.As(err, &vf) {
			return WrapExitError(ExitCommandError, "validation", err)
		}
		if f.Format == "json" {
			if jerr := f.JSONError(vf.Errors[0].Code, vf.Error(), ValidationResult{
				Valid:  false,
				Errors: vf.Errors,
			}); jerr != nil {
				return jerr
			}
		} else {
			fmt.Fprintln(f.Writer, "validation failed")
			for _, e := range vf.Errors {
				fmt.Fprintf(f.Writer, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(vf.Errors)))
	}

	if f.Format == "json" {
		return f.JSON(ValidationResult{Valid: true, Procedures: ids})
	}
	for _, name := range reg.Names() {
		fmt.Fprintf(f.Writer, "%s  %s\n", ids[name], name)
	}
	fmt.Fprintf(f.Writer, "%d procedure(s) valid\n", len(ids))
	return nil
}
