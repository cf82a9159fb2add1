// Package runquery provides a small typed filter representation over the
// recorded-run store, compiled to parameterized SQL for SQLite.
//
// Callers build filters from typed nodes instead of string fragments, so
// column names are checked against a whitelist before any SQL is emitted
// and values are always bound as parameters, never interpolated. Every
// compiled query carries a deterministic ORDER BY so listings are stable
// across runs of the same database.
package runquery

import "fmt"

// Column names a filterable column of the runs table. Only the columns
// listed below are accepted; Compile rejects anything else.
type Column string

const (
	ColProcedure   Column = "procedure"
	ColProcedureID Column = "procedure_id"
	ColDirection   Column = "direction"
	ColStatus      Column = "status"
)

// Filter is a predicate over stored runs.
//
// This is a sealed interface - only types in this package implement it.
// The marker method keeps the compiler's type switch exhaustive.
type Filter interface {
	filterNode()
}

// Eq matches runs whose column equals the given value. All filterable
// columns are TEXT, so the value is a plain string.
type Eq struct {
	Column Column
	Value  string
}

func (Eq) filterNode() {}

// And matches runs satisfying every child filter. An empty And matches
// everything.
type And struct {
	Filters []Filter
}

func (And) filterNode() {}

// Query selects stored runs matching Filter, newest first. A nil Filter
// matches every run; a Limit of zero or less means no limit.
type Query struct {
	Filter Filter
	Limit  int
}

func validColumn(c Column) bool {
	switch c {
	case ColProcedure, ColProcedureID, ColDirection, ColStatus:
		return true
	}
	return false
}

// Validate checks that a filter only references whitelisted columns.
// Compile calls it; it is exported for callers that want to fail early.
func Validate(f Filter) error {
	switch node := f.(type) {
	case nil:
		return nil
	case Eq:
		if !validColumn(node.Column) {
			return fmt.Errorf("unknown run column %q", node.Column)
		}
		return nil
	case And:
		for _, child := range node.Filters {
			if err := Validate(child); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported filter type %T", f)
	}
}
