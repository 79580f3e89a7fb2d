package params

import (
	"querydeck/internal/sqlexpr"
)

// RestrictToColumns re-validates already-inflated values against the current
// column set. Singular expression values referencing a missing column are
// dropped; plural values keep only their valid elements, returning the
// original slice untouched when nothing was filtered so that upstream
// change detection by identity still works.
func RestrictToColumns(values Values, defs []Definition, columns []string) Values {
	out := make(Values, len(values))
	for i := range defs {
		def := &defs[i]
		value, ok := values[def.Name]
		if !ok {
			continue
		}
		if !def.Kind.IsExpressionKind() {
			out[def.Name] = value
			continue
		}
		if restricted, keep := restrictValue(value, def.Kind, columns); keep {
			out[def.Name] = restricted
		}
	}
	return out
}

func restrictValue(value any, kind Kind, columns []string) (any, bool) {
	switch kind {
	case KindColumn, KindAggregate:
		cv, ok := value.(*ColumnValue)
		if !ok || !ExpressionWithinColumns(cv, columns) {
			return nil, false
		}
		return cv, true

	case KindColumns, KindAggregates:
		items, ok := value.([]*ColumnValue)
		if !ok {
			return nil, false
		}
		kept := filterColumnValues(items, columns)
		return kept, true

	case KindSplitCombine:
		sc, ok := value.(*SplitCombine)
		if !ok || !ExpressionWithinColumns(sc.Column, columns) {
			return nil, false
		}
		return sc, true

	case KindSplitCombines:
		items, ok := value.([]*SplitCombine)
		if !ok {
			return nil, false
		}
		dropped := false
		for _, sc := range items {
			if !ExpressionWithinColumns(sc.Column, columns) {
				dropped = true
				break
			}
		}
		if !dropped {
			return items, true
		}
		kept := make([]*SplitCombine, 0, len(items))
		for _, sc := range items {
			if ExpressionWithinColumns(sc.Column, columns) {
				kept = append(kept, sc)
			}
		}
		return kept, true
	}
	return value, true
}

// filterColumnValues returns items whose expressions resolve entirely within
// columns. The input slice is returned as-is when nothing is dropped.
func filterColumnValues(items []*ColumnValue, columns []string) []*ColumnValue {
	dropped := false
	for _, cv := range items {
		if !ExpressionWithinColumns(cv, columns) {
			dropped = true
			break
		}
	}
	if !dropped {
		return items
	}
	kept := make([]*ColumnValue, 0, len(items))
	for _, cv := range items {
		if ExpressionWithinColumns(cv, columns) {
			kept = append(kept, cv)
		}
	}
	return kept
}

// ExpressionWithinColumns reports whether every column name used anywhere in
// the value's expression matches one of the given primary column names.
func ExpressionWithinColumns(cv *ColumnValue, columns []string) bool {
	if cv == nil || cv.Expr == nil {
		return false
	}
	return sqlexpr.WithinColumns(cv.Expr, columns)
}
