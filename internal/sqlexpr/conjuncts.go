package sqlexpr

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Conjuncts splits a WHERE expression into its top-level AND parts. Nested
// AND chains are flattened; anything else (OR, NOT, comparisons) is a single
// conjunct.
func Conjuncts(node *pg_query.Node) []*pg_query.Node {
	if node == nil {
		return nil
	}
	be := node.GetBoolExpr()
	if be == nil || be.Boolop != pg_query.BoolExprType_AND_EXPR {
		return []*pg_query.Node{node}
	}
	var parts []*pg_query.Node
	for _, arg := range be.Args {
		parts = append(parts, Conjuncts(arg)...)
	}
	return parts
}

// And joins expressions into a single conjunction. One expression is returned
// as-is; none yields nil.
func And(exprs ...*pg_query.Node) *pg_query.Node {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return &pg_query.Node{
		Node: &pg_query.Node_BoolExpr{
			BoolExpr: &pg_query.BoolExpr{
				Boolop: pg_query.BoolExprType_AND_EXPR,
				Args:   exprs,
			},
		},
	}
}

// Or joins expressions into a single disjunction. One expression is returned
// as-is; none yields nil.
func Or(exprs ...*pg_query.Node) *pg_query.Node {
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return &pg_query.Node{
		Node: &pg_query.Node_BoolExpr{
			BoolExpr: &pg_query.BoolExpr{
				Boolop: pg_query.BoolExprType_OR_EXPR,
				Args:   exprs,
			},
		},
	}
}

// True returns the boolean literal TRUE.
func True() *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{
				Val: &pg_query.A_Const_Boolval{
					Boolval: &pg_query.Boolean{Boolval: true},
				},
			},
		},
	}
}

// Null returns the SQL NULL literal.
func Null() *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_AConst{
			AConst: &pg_query.A_Const{Isnull: true},
		},
	}
}

// RestrictWhereToColumns drops every top-level AND-conjunct of a WHERE
// expression that references a column outside the given set, and re-conjoins
// the rest. It returns the identical node when nothing is dropped, so callers
// can detect change by pointer comparison, and TRUE when every conjunct is
// dropped.
func RestrictWhereToColumns(where *pg_query.Node, columns []string) *pg_query.Node {
	if where == nil {
		return nil
	}
	parts := Conjuncts(where)
	kept := make([]*pg_query.Node, 0, len(parts))
	for _, p := range parts {
		if WithinColumns(p, columns) {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(parts) {
		return where
	}
	if len(kept) == 0 {
		return True()
	}
	return And(kept...)
}
