package store

import (
	"context"
	"fmt"

	"github.com/mkrall/janus/internal/engine"
)

// WriteRun inserts a run and its step trace in a single transaction.
// Uses ON CONFLICT(token) DO NOTHING for idempotency - writing the
// same run twice is a no-op, and a half-written trace can never be
// observed.
func (s *Store) WriteRun(ctx context.Context, run Run, steps []engine.StepEvent) error {
	argsJSON, err := marshalWords(run.Args)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	var resultsJSON any
	if run.Results != nil {
		rj, err := marshalWords(run.Results)
		if err != nil {
			return fmt.Errorf("write run: %w", err)
		}
		resultsJSON = rj
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(token, procedure, procedure_id, direction, args, results, status, error, steps, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		run.Token,
		run.Procedure,
		string(run.ProcedureID),
		run.Direction.String(),
		argsJSON,
		resultsJSON,
		run.Status,
		nullIfEmpty(run.Error),
		run.Steps,
		run.EngineVersion,
		run.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write run: rows affected: %w", err)
	}
	if affected == 0 {
		// Token already present; the original trace stands.
		return tx.Commit()
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO steps
		(run_token, seq, procedure, stmt_path, kind, direction, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write run: prepare steps: %w", err)
	}
	defer stmt.Close()

	for _, ev := range steps {
		if _, err := stmt.ExecContext(ctx,
			run.Token, ev.Seq, ev.Procedure, ev.StmtPath, ev.Kind, ev.Direction, ev.Detail,
		); err != nil {
			return fmt.Errorf("write run: step %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
