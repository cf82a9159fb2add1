package runquery

import (
	"fmt"
	"strings"
)

// Compile converts a Query to the clause that follows "FROM runs" in a
// SELECT statement. The caller owns the column list; this package owns
// filtering, ordering and limiting. Returns (clause, params, error).
//
// Every compiled clause ends with the same ORDER BY so listings are
// deterministic regardless of insertion order. Values are always bound
// through placeholders.
func Compile(q Query) (string, []any, error) {
	var (
		sb     strings.Builder
		params []any
	)

	if q.Filter != nil {
		if err := Validate(q.Filter); err != nil {
			return "", nil, err
		}
		where, whereParams := compileFilter(q.Filter)
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
		params = append(params, whereParams...)
	}

	sb.WriteString(" ORDER BY created_at DESC, token DESC")

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}

	return sb.String(), params, nil
}

// compileFilter assumes f already passed Validate.
func compileFilter(f Filter) (string, []any) {
	switch node := f.(type) {
	case Eq:
		return string(node.Column) + " = ?", []any{node.Value}
	case And:
		if len(node.Filters) == 0 {
			return "1 = 1", nil
		}
		var (
			parts  []string
			params []any
		)
		for _, child := range node.Filters {
			sql, childParams := compileFilter(child)
			parts = append(parts, sql)
			params = append(params, childParams...)
		}
		return strings.Join(parts, " AND "), params
	default:
		panic(fmt.Sprintf("runquery: unvalidated filter type %T", f))
	}
}
