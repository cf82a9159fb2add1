package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/runquery"
	"github.com/mkrall/janus/internal/store"
)

// TraceResult is the JSON payload for the trace command.
type TraceResult struct {
	Run   store.Run          `json:"run"`
	Steps []engine.StepEvent `json:"steps"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		dbPath    string
		list      bool
		procedure string
		status    string
		direction string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "trace [token]",
		Short: "Show a stored run and its statement trace",
		Long: `Print one recorded run with its statement-level trace, or with
--list enumerate recorded runs (newest first).`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := listFilter{procedure: procedure, status: status, direction: direction, limit: limit}
			return runTraceCmd(rootOpts, cmd, args, dbPath, list, filter)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "janus.db", "SQLite database holding recorded runs")
	cmd.Flags().BoolVar(&list, "list", false, "list runs instead of showing one trace")
	cmd.Flags().StringVar(&procedure, "procedure", "", "filter --list by procedure name")
	cmd.Flags().StringVar(&status, "status", "", "filter --list by status (ok|error)")
	cmd.Flags().StringVar(&direction, "direction", "", "filter --list by direction (forward|backward)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")

	return cmd
}

// listFilter holds the --list flag values before they become a run query.
type listFilter struct {
	procedure string
	status    string
	direction string
	limit     int
}

func (lf listFilter) query() runquery.Query {
	var filters []runquery.Filter
	if lf.procedure != "" {
		filters = append(filters, runquery.Eq{Column: runquery.ColProcedure, Value: lf.procedure})
	}
	if lf.status != "" {
		filters = append(filters, runquery.Eq{Column: runquery.ColStatus, Value: lf.status})
	}
	if lf.direction != "" {
		filters = append(filters, runquery.Eq{Column: runquery.ColDirection, Value: lf.direction})
	}

	q := runquery.Query{Limit: lf.limit}
	if len(filters) == 1 {
		q.Filter = filters[0]
	} else if len(filters) > 1 {
		q.Filter = runquery.And{Filters: filters}
	}
	return q
}

func runTraceCmd(opts *RootOptions, cmd *cobra.Command, args []string, dbPath string, list bool, filter listFilter) error {
	f := opts.formatter(cmd)

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	if list {
		runs, err := st.QueryRuns(cmd.Context(), filter.query())
		if err != nil {
			return WrapExitError(ExitCommandError, "list runs", err)
		}
		if f.Format == "json" {
			return f.JSON(runs)
		}
		for _, run := range runs {
			fmt.Fprintf(f.Writer, "%s  %-8s %-9s %-5s %s\n",
				run.Token, run.Procedure, run.Direction, run.Status, run.CreatedAt)
		}
		fmt.Fprintf(f.Writer, "%d run(s)\n", len(runs))
		return nil
	}

	if len(args) != 1 {
		return NewExitError(ExitCommandError, "a run token is required (or use --list)")
	}
	token := args[0]

	run, err := st.GetRun(cmd.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return WrapExitError(ExitCommandError, "trace", err)
		}
		return WrapExitError(ExitCommandError, "trace", err)
	}
	steps, err := st.ReadSteps(cmd.Context(), token)
	if err != nil {
		return WrapExitError(ExitCommandError, "trace", err)
	}

	if f.Format == "json" {
		return f.JSON(TraceResult{Run: run, Steps: steps})
	}

	fmt.Fprintf(f.Writer, "run %s\n", run.Token)
	fmt.Fprintf(f.Writer, "  procedure: %s (%s)\n", run.Procedure, run.ProcedureID)
	fmt.Fprintf(f.Writer, "  direction: %s\n", run.Direction)
	fmt.Fprintf(f.Writer, "  args:      %v\n", run.Args)
	if run.Status == store.StatusOK {
		fmt.Fprintf(f.Writer, "  results:   %v\n", run.Results)
	} else {
		fmt.Fprintf(f.Writer, "  error:     %s\n", run.Error)
	}
	fmt.Fprintf(f.Writer, "  steps:     %d\n", run.Steps)
	for _, ev := range steps {
		fmt.Fprintf(f.Writer, "  %4d  %-22s %-8s %s\n", ev.Seq, ev.StmtPath, ev.Kind, ev.Detail)
	}
	return nil
}
