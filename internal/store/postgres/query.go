package postgres

import (
	"fmt"
	"strings"
)

// whereBuilder accumulates AND-ed conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

// add appends a condition. Each "?" in cond is replaced by the next $n.
func (w *whereBuilder) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

// where renders the WHERE clause, or "" when there are no conditions.
func (w *whereBuilder) where() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// page renders LIMIT and OFFSET clauses for positive values.
func (w *whereBuilder) page(limit, offset int) string {
	var b strings.Builder
	if limit > 0 {
		w.args = append(w.args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(w.args))
	}
	if offset > 0 {
		w.args = append(w.args, offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(w.args))
	}
	return b.String()
}
