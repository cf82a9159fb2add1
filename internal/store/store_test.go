package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
	"github.com/mkrall/janus/internal/runquery"
	"github.com/mkrall/janus/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "janus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testRegistry(t *testing.T) *engine.Registry {
	t.Helper()
	reg := engine.NewRegistry()
	reg.MustRegister(testutil.FibProcedure())
	reg.MustRegister(testutil.CountProcedure())
	return reg
}

func TestOpenAppliesPragmasAndSchema(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.verifyPragma("journal_mode", "wal"))
	require.NoError(t, st.verifyPragma("foreign_keys", "1"))

	var version int
	require.NoError(t, st.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "janus.db")

	st1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st1.Close())

	st2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st2.Close())
}

func TestWriteRunRoundTripsThroughGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	run := Run{
		Token:         "run-0001",
		Procedure:     "fib",
		ProcedureID:   "abc123",
		Direction:     ir.Forward,
		Args:          []ir.Word{0, 0, 10},
		Results:       []ir.Word{89, 144, 0},
		Status:        StatusOK,
		Steps:         2,
		EngineVersion: ir.EngineVersion,
		IRVersion:     ir.IRVersion,
	}
	steps := []engine.StepEvent{
		{Seq: 1, Procedure: "fib", StmtPath: "body[0].then[0]", Kind: "assign", Direction: "forward", Detail: "x1 += 1"},
		{Seq: 2, Procedure: "fib", StmtPath: "body[0]", Kind: "if", Direction: "forward", Detail: "if n == 0 assert x1 == x2"},
	}
	require.NoError(t, st.WriteRun(ctx, run, steps))

	got, err := st.GetRun(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, run.Procedure, got.Procedure)
	assert.Equal(t, run.ProcedureID, got.ProcedureID)
	assert.Equal(t, ir.Forward, got.Direction)
	assert.Equal(t, run.Args, got.Args)
	assert.Equal(t, run.Results, got.Results)
	assert.Equal(t, StatusOK, got.Status)
	assert.NotEmpty(t, got.CreatedAt)

	gotSteps, err := st.ReadSteps(ctx, "run-0001")
	require.NoError(t, err)
	assert.Equal(t, steps, gotSteps)
}

func TestWriteRunIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	run := Run{
		Token:     "run-dup",
		Procedure: "fib",
		Direction: ir.Forward,
		Args:      []ir.Word{1},
		Status:    StatusOK,
	}
	require.NoError(t, st.WriteRun(ctx, run, []engine.StepEvent{{Seq: 1, Kind: "assign"}}))

	// Second write with different steps must be a silent no-op.
	require.NoError(t, st.WriteRun(ctx, run, []engine.StepEvent{
		{Seq: 1, Kind: "assign"}, {Seq: 2, Kind: "swap"},
	}))

	steps, err := st.ReadSteps(ctx, "run-dup")
	require.NoError(t, err)
	assert.Len(t, steps, 1, "original trace must stand")
}

func TestGetRunNotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestFailedRunStoresErrorWithoutResults(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	run := Run{
		Token:     "run-err",
		Procedure: "count",
		Direction: ir.Backward,
		Args:      []ir.Word{3, 9},
		Status:    StatusError,
		Error:     "ASSERTION_MISMATCH: loop entry assertion x == n is false",
	}
	require.NoError(t, st.WriteRun(ctx, run, nil))

	got, err := st.GetRun(ctx, "run-err")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Nil(t, got.Results)
	assert.Contains(t, got.Error, "ASSERTION_MISMATCH")
	assert.Equal(t, ir.Backward, got.Direction)
}

func TestListRunsFiltersAndOrders(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, token := range []string{"a", "b", "c"} {
		require.NoError(t, st.WriteRun(ctx, Run{
			Token: token, Procedure: "fib", Direction: ir.Forward,
			Args: []ir.Word{0}, Status: StatusOK,
		}, nil))
	}
	require.NoError(t, st.WriteRun(ctx, Run{
		Token: "d", Procedure: "count", Direction: ir.Forward,
		Args: []ir.Word{0}, Status: StatusOK,
	}, nil))

	fibRuns, err := st.ListRuns(ctx, "fib", 0)
	require.NoError(t, err)
	assert.Len(t, fibRuns, 3)

	all, err := st.ListRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestQueryRunsCombinesFilters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WriteRun(ctx, Run{
		Token: "q1", Procedure: "fib", Direction: ir.Forward,
		Args: []ir.Word{0}, Status: StatusOK,
	}, nil))
	require.NoError(t, st.WriteRun(ctx, Run{
		Token: "q2", Procedure: "fib", Direction: ir.Backward,
		Args: []ir.Word{0}, Status: StatusError, Error: "ASSERTION_MISMATCH",
	}, nil))
	require.NoError(t, st.WriteRun(ctx, Run{
		Token: "q3", Procedure: "count", Direction: ir.Backward,
		Args: []ir.Word{0}, Status: StatusError, Error: "ASSERTION_MISMATCH",
	}, nil))

	failed, err := st.QueryRuns(ctx, runquery.Query{
		Filter: runquery.Eq{Column: runquery.ColStatus, Value: string(StatusError)},
	})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	fibBackward, err := st.QueryRuns(ctx, runquery.Query{
		Filter: runquery.And{Filters: []runquery.Filter{
			runquery.Eq{Column: runquery.ColProcedure, Value: "fib"},
			runquery.Eq{Column: runquery.ColDirection, Value: ir.Backward.String()},
		}},
	})
	require.NoError(t, err)
	require.Len(t, fibBackward, 1)
	assert.Equal(t, "q2", fibBackward[0].Token)

	_, err = st.QueryRuns(ctx, runquery.Query{
		Filter: runquery.Eq{Column: "created_at", Value: "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown run column")
}

func TestRunnerExecutePersistsTrace(t *testing.T) {
	st := openTestStore(t)
	reg := testRegistry(t)
	runner := NewRunner(reg, st, WithTokenSource(&FixedTokenSource{Tokens: []string{"tok-1"}}))

	run, err := runner.Execute(context.Background(), "fib", ir.Forward, []ir.Word{0, 0, 5})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", run.Token)
	assert.Equal(t, []ir.Word{8, 13, 0}, run.Results)
	assert.Equal(t, StatusOK, run.Status)

	steps, err := st.ReadSteps(context.Background(), "tok-1")
	require.NoError(t, err)
	require.NotEmpty(t, steps)
	assert.Equal(t, int64(len(steps)), run.Steps)
	for i, ev := range steps {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestRunnerExecutePersistsFailures(t *testing.T) {
	st := openTestStore(t)
	reg := testRegistry(t)
	runner := NewRunner(reg, st, WithTokenSource(&FixedTokenSource{Tokens: []string{"tok-err"}}))

	_, err := runner.Execute(context.Background(), "count", ir.Backward, []ir.Word{3, 9})
	require.Error(t, err)
	assert.True(t, engine.IsAssertionMismatch(err))

	got, gerr := st.GetRun(context.Background(), "tok-err")
	require.NoError(t, gerr)
	assert.Equal(t, StatusError, got.Status)
	assert.Contains(t, got.Error, "ASSERTION_MISMATCH")
}

func TestReplayVerifiesDeterminismAndRoundTrip(t *testing.T) {
	st := openTestStore(t)
	reg := testRegistry(t)
	runner := NewRunner(reg, st, WithTokenSource(&FixedTokenSource{Tokens: []string{"tok-replay"}}))

	_, err := runner.Execute(context.Background(), "fib", ir.Forward, []ir.Word{0, 0, 6})
	require.NoError(t, err)

	report, err := runner.Replay(context.Background(), "tok-replay")
	require.NoError(t, err)
	assert.True(t, report.Deterministic, "mismatch: %s", report.Mismatch)
	assert.True(t, report.RoundTrip, "mismatch: %s", report.Mismatch)
	assert.True(t, report.OK())
	assert.Empty(t, report.Mismatch)
}

func TestReplayCoversBackwardRunsAndLocals(t *testing.T) {
	st := openTestStore(t)
	reg := engine.NewRegistry()
	reg.MustRegister(testutil.MaskProcedure())
	reg.MustRegister(testutil.DoubleProcedure())
	runner := NewRunner(reg, st, WithTokenSource(&FixedTokenSource{Tokens: []string{"tok-mask", "tok-double"}}))

	// A backward run replays in its recorded direction and inverts
	// forward for the round trip.
	run, err := runner.Execute(context.Background(), "mask", ir.Backward, []ir.Word{6, 10})
	require.NoError(t, err)
	assert.Equal(t, []ir.Word{12, 10}, run.Results)

	report, err := runner.Replay(context.Background(), "tok-mask")
	require.NoError(t, err)
	assert.True(t, report.OK(), "mismatch: %s", report.Mismatch)

	run, err = runner.Execute(context.Background(), "double", ir.Forward, []ir.Word{21})
	require.NoError(t, err)
	assert.Equal(t, []ir.Word{42}, run.Results)

	report, err = runner.Replay(context.Background(), "tok-double")
	require.NoError(t, err)
	assert.True(t, report.OK(), "mismatch: %s", report.Mismatch)
}

func TestReplayRejectsDriftedProcedure(t *testing.T) {
	st := openTestStore(t)
	reg := testRegistry(t)
	runner := NewRunner(reg, st, WithTokenSource(&FixedTokenSource{Tokens: []string{"tok-drift"}}))

	_, err := runner.Execute(context.Background(), "count", ir.Forward, []ir.Word{0, 4})
	require.NoError(t, err)

	// Re-register under a fresh registry with a structurally different
	// body; the identity no longer matches the recorded one.
	drifted := engine.NewRegistry()
	changed := testutil.CountProcedure()
	changed.Body = append(changed.Body, ir.Swap{A: "x", B: "n"})
	drifted.MustRegister(changed)

	runner2 := NewRunner(drifted, st)
	_, err = runner2.Replay(context.Background(), "tok-drift")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity")
}

func TestReplayRefusesFailedRuns(t *testing.T) {
	st := openTestStore(t)
	reg := testRegistry(t)
	runner := NewRunner(reg, st, WithTokenSource(&FixedTokenSource{Tokens: []string{"tok-bad"}}))

	_, err := runner.Execute(context.Background(), "count", ir.Backward, []ir.Word{3, 9})
	require.Error(t, err)

	_, err = runner.Replay(context.Background(), "tok-bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be replayed")
}
