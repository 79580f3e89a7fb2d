package sqlexpr

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ColumnNames returns the deduplicated column names referenced anywhere in the
// expression, in first-appearance order. Qualified references ("t"."col")
// contribute their column part only.
func ColumnNames(node *pg_query.Node) []string {
	seen := make(map[string]bool)
	var names []string

	Walk(node, func(n *pg_query.Node) bool {
		ref := n.GetColumnRef()
		if ref == nil {
			return true
		}
		if len(ref.Fields) == 0 {
			return true
		}
		last := ref.Fields[len(ref.Fields)-1]
		s := last.GetString_()
		if s == nil {
			// trailing A_Star ("t".*) names no single column
			return true
		}
		if !seen[s.Sval] {
			seen[s.Sval] = true
			names = append(names, s.Sval)
		}
		return true
	})

	return names
}

// WithinColumns reports whether every column name used anywhere in the
// expression matches one of the given column names. A single unresolved
// reference invalidates the whole expression.
func WithinColumns(node *pg_query.Node, columns []string) bool {
	allowed := make(map[string]bool, len(columns))
	for _, c := range columns {
		allowed[c] = true
	}
	for _, name := range ColumnNames(node) {
		if !allowed[name] {
			return false
		}
	}
	return true
}
