package source

import (
	"fmt"
	"strings"
)

// buildExtractQuery renders an ExtractSpec to SQL. Cursor paging always
// orders by the cursor columns. Offset paging carries no ORDER BY: it is
// only used by the Full strategy, which truncates first and never resumes,
// so re-reads cannot duplicate rows.
//
// For cursor paging the exclusive lower bound (a, b, c) > (x, y, z) is
// expanded lexicographically:
//
//	a > x OR (a = x AND b > y) OR (a = x AND b = y AND c > z)
//
// Boundary values arrive in their textual checkpoint form and are cast back
// to the column's native type inside the query, so ordering semantics stay
// those of the source engine.
func buildExtractQuery(d *dialect, spec ExtractSpec) (string, []any, error) {
	if len(spec.Columns) == 0 {
		return "", nil, fmt.Errorf("extract spec for %s has no columns", spec.Table)
	}

	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = quoteIdent(c)
	}

	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(quoteQualified(spec.Schema, spec.Table))

	if len(spec.OrderBy) > 0 {
		if len(spec.After) > 0 {
			pred, predArgs, err := buildTuplePredicate(d, spec, len(args))
			if err != nil {
				return "", nil, err
			}
			sb.WriteString(" WHERE ")
			sb.WriteString(pred)
			args = append(args, predArgs...)
		}
		order := make([]string, len(spec.OrderBy))
		for i, c := range spec.OrderBy {
			order[i] = quoteIdent(c)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(order, ", "))
		fmt.Fprintf(&sb, " FETCH NEXT %d ROWS ONLY", spec.Limit)
	} else {
		// Offset paging. OFFSET/FETCH is understood by both supported
		// engines.
		fmt.Fprintf(&sb, " OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", spec.Offset, spec.Limit)
	}

	return sb.String(), args, nil
}

// buildTuplePredicate expands the lexicographic "greater than tuple"
// comparison over the cursor columns.
func buildTuplePredicate(d *dialect, spec ExtractSpec, argOffset int) (string, []any, error) {
	if len(spec.After) != len(spec.OrderBy) {
		return "", nil, fmt.Errorf("cursor arity mismatch: %d bound values for %d cursor columns",
			len(spec.After), len(spec.OrderBy))
	}
	if len(spec.OrderByTypes) != len(spec.OrderBy) {
		return "", nil, fmt.Errorf("cursor type arity mismatch: %d types for %d cursor columns",
			len(spec.OrderByTypes), len(spec.OrderBy))
	}

	var disjuncts []string
	var args []any
	argN := argOffset

	for i := range spec.OrderBy {
		var conjuncts []string
		for j := 0; j <= i; j++ {
			op := "="
			if j == i {
				op = ">"
			}
			argN++
			conjuncts = append(conjuncts, fmt.Sprintf("%s %s CAST(%s AS %s)",
				quoteIdent(spec.OrderBy[j]), op, d.placeholder(argN), d.castType(spec.OrderByTypes[j])))
			args = append(args, spec.After[j])
		}
		disjuncts = append(disjuncts, "("+strings.Join(conjuncts, " AND ")+")")
	}

	return "(" + strings.Join(disjuncts, " OR ") + ")", args, nil
}
