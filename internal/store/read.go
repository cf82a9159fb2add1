package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mkrall/janus/internal/engine"
	"github.com/mkrall/janus/internal/ir"
	"github.com/mkrall/janus/internal/runquery"
)

// ErrRunNotFound is returned when no run exists under a token.
var ErrRunNotFound = errors.New("run not found")

// GetRun loads one run by token.
func (s *Store) GetRun(ctx context.Context, token string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, procedure, procedure_id, direction, args, results,
		       status, error, steps, engine_version, ir_version, created_at
		FROM runs WHERE token = ?
	`, token)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %q: %w", token, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %q: %w", token, err)
	}
	return run, nil
}

// ListRuns returns runs for a procedure, newest first. An empty
// procedure name lists every run.
func (s *Store) ListRuns(ctx context.Context, procedure string, limit int) ([]Run, error) {
	q := runquery.Query{Limit: limit}
	if procedure != "" {
		q.Filter = runquery.Eq{Column: runquery.ColProcedure, Value: procedure}
	}
	return s.QueryRuns(ctx, q)
}

// QueryRuns returns stored runs matching a compiled filter, newest first.
func (s *Store) QueryRuns(ctx context.Context, q runquery.Query) ([]Run, error) {
	clause, args, err := runquery.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	query := `
		SELECT token, procedure, procedure_id, direction, args, results,
		       status, error, steps, engine_version, ir_version, created_at
		FROM runs` + clause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ReadSteps returns the step trace of a run in seq order.
func (s *Store) ReadSteps(ctx context.Context, token string) ([]engine.StepEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, procedure, stmt_path, kind, direction, detail
		FROM steps
		WHERE run_token = ?
		ORDER BY seq ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("read steps: %w", err)
	}
	defer rows.Close()

	steps := []engine.StepEvent{}
	for rows.Next() {
		var ev engine.StepEvent
		if err := rows.Scan(&ev.Seq, &ev.Procedure, &ev.StmtPath, &ev.Kind, &ev.Direction, &ev.Detail); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (Run, error) {
	var (
		run         Run
		procID      string
		direction   string
		argsJSON    string
		resultsJSON sql.NullString
		errMsg      sql.NullString
	)
	if err := r.Scan(
		&run.Token, &run.Procedure, &procID, &direction, &argsJSON, &resultsJSON,
		&run.Status, &errMsg, &run.Steps, &run.EngineVersion, &run.IRVersion, &run.CreatedAt,
	); err != nil {
		return Run{}, err
	}

	run.ProcedureID = ir.ProcedureID(procID)
	switch direction {
	case ir.Forward.String():
		run.Direction = ir.Forward
	case ir.Backward.String():
		run.Direction = ir.Backward
	default:
		return Run{}, fmt.Errorf("run %q has unknown direction %q", run.Token, direction)
	}

	args, err := unmarshalWords(argsJSON)
	if err != nil {
		return Run{}, err
	}
	run.Args = args

	if resultsJSON.Valid {
		results, err := unmarshalWords(resultsJSON.String)
		if err != nil {
			return Run{}, err
		}
		run.Results = results
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return run, nil
}
