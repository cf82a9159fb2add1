package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mkrall/janus/internal/ir"
)

// Run status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Run is one persisted invocation: which procedure ran, in which
// direction, with what arguments, and what came out.
type Run struct {
	// Token is the UUID identifying this run.
	Token string `json:"token"`

	// Procedure is the registered name.
	Procedure string `json:"procedure"`

	// ProcedureID is the content-addressed identity of the procedure
	// at the time of the run. Replay refuses to run against a
	// procedure whose identity has drifted.
	ProcedureID ir.ProcedureID `json:"procedure_id"`

	// Direction is "forward" or "backward".
	Direction ir.Direction `json:"direction"`

	// Args are the input parameter values in declaration order.
	Args []ir.Word `json:"args"`

	// Results are the output parameter values; nil if the run failed.
	Results []ir.Word `json:"results,omitempty"`

	// Status is "ok" or "error".
	Status string `json:"status"`

	// Error is the engine error message for failed runs.
	Error string `json:"error,omitempty"`

	// Steps is the number of statements executed.
	Steps int64 `json:"steps"`

	// EngineVersion and IRVersion pin the software that produced the
	// trace.
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`

	// CreatedAt is the insertion timestamp, UTC RFC 3339.
	CreatedAt string `json:"created_at"`
}

// TokenSource mints run tokens. The default mints random UUIDs; tests
// install a fixed source for deterministic fixtures.
type TokenSource interface {
	NewToken() string
}

// UUIDTokenSource mints version-7 UUIDs, so tokens sort by creation
// time. Falls back to version 4 if the entropy source fails.
type UUIDTokenSource struct{}

func (UUIDTokenSource) NewToken() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// FixedTokenSource mints tokens from a fixed list, cycling a counter
// suffix when the list runs out. For tests and golden fixtures.
type FixedTokenSource struct {
	Tokens []string
	next   int
}

func (f *FixedTokenSource) NewToken() string {
	if f.next < len(f.Tokens) {
		t := f.Tokens[f.next]
		f.next++
		return t
	}
	f.next++
	return fmt.Sprintf("fixed-%06d", f.next)
}

// marshalWords serializes a word vector to a JSON array. int64 arrays
// marshal deterministically, so no canonicalization pass is needed.
func marshalWords(ws []ir.Word) (string, error) {
	if ws == nil {
		ws = []ir.Word{}
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return "", fmt.Errorf("marshal words: %w", err)
	}
	return string(data), nil
}

func unmarshalWords(s string) ([]ir.Word, error) {
	if s == "" {
		return nil, nil
	}
	var ws []ir.Word
	if err := json.Unmarshal([]byte(s), &ws); err != nil {
		return nil, fmt.Errorf("unmarshal words: %w", err)
	}
	return ws, nil
}
