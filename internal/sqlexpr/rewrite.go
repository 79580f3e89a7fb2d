package sqlexpr

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
)

// RewriteFunc inspects a node and optionally returns a replacement.
// Returning replace=true substitutes the node; the replacement subtree is not
// visited again, so a replacement reintroducing a matching node cannot loop.
type RewriteFunc func(node *pg_query.Node) (replacement *pg_query.Node, replace bool, err error)

// Rewrite walks an expression or statement tree top-down, visiting every node
// exactly once, and applies fn at each node. The input is cloned before the
// walk; the original tree is never mutated.
func Rewrite(node *pg_query.Node, fn RewriteFunc) (*pg_query.Node, error) {
	if node == nil {
		return nil, nil
	}
	clone := proto.Clone(node).(*pg_query.Node)
	return rewriteNode(clone, fn)
}

func rewriteNode(node *pg_query.Node, fn RewriteFunc) (*pg_query.Node, error) {
	if node == nil {
		return nil, nil
	}

	replacement, replace, err := fn(node)
	if err != nil {
		return nil, err
	}
	if replace {
		return replacement, nil
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_AExpr:
		if n.AExpr.Lexpr, err = rewriteNode(n.AExpr.Lexpr, fn); err != nil {
			return nil, err
		}
		if n.AExpr.Rexpr, err = rewriteNode(n.AExpr.Rexpr, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_BoolExpr:
		if err = rewriteList(n.BoolExpr.Args, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_FuncCall:
		if err = rewriteList(n.FuncCall.Args, fn); err != nil {
			return nil, err
		}
		if n.FuncCall.AggFilter, err = rewriteNode(n.FuncCall.AggFilter, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_TypeCast:
		if n.TypeCast.Arg, err = rewriteNode(n.TypeCast.Arg, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_ResTarget:
		if n.ResTarget.Val, err = rewriteNode(n.ResTarget.Val, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_CaseExpr:
		if n.CaseExpr.Arg, err = rewriteNode(n.CaseExpr.Arg, fn); err != nil {
			return nil, err
		}
		if err = rewriteList(n.CaseExpr.Args, fn); err != nil {
			return nil, err
		}
		if n.CaseExpr.Defresult, err = rewriteNode(n.CaseExpr.Defresult, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_CaseWhen:
		if n.CaseWhen.Expr, err = rewriteNode(n.CaseWhen.Expr, fn); err != nil {
			return nil, err
		}
		if n.CaseWhen.Result, err = rewriteNode(n.CaseWhen.Result, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_CoalesceExpr:
		if err = rewriteList(n.CoalesceExpr.Args, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_MinMaxExpr:
		if err = rewriteList(n.MinMaxExpr.Args, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_NullTest:
		if n.NullTest.Arg, err = rewriteNode(n.NullTest.Arg, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_BooleanTest:
		if n.BooleanTest.Arg, err = rewriteNode(n.BooleanTest.Arg, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_AArrayExpr:
		if err = rewriteList(n.AArrayExpr.Elements, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_AIndirection:
		if n.AIndirection.Arg, err = rewriteNode(n.AIndirection.Arg, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_RowExpr:
		if err = rewriteList(n.RowExpr.Args, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_List:
		if err = rewriteList(n.List.Items, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_SubLink:
		if n.SubLink.Testexpr, err = rewriteNode(n.SubLink.Testexpr, fn); err != nil {
			return nil, err
		}
		if n.SubLink.Subselect, err = rewriteNode(n.SubLink.Subselect, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_SortBy:
		if n.SortBy.Node, err = rewriteNode(n.SortBy.Node, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_SelectStmt:
		if err = rewriteSelect(n.SelectStmt, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_RangeSubselect:
		if n.RangeSubselect.Subquery, err = rewriteNode(n.RangeSubselect.Subquery, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_JoinExpr:
		if n.JoinExpr.Larg, err = rewriteNode(n.JoinExpr.Larg, fn); err != nil {
			return nil, err
		}
		if n.JoinExpr.Rarg, err = rewriteNode(n.JoinExpr.Rarg, fn); err != nil {
			return nil, err
		}
		if n.JoinExpr.Quals, err = rewriteNode(n.JoinExpr.Quals, fn); err != nil {
			return nil, err
		}
	case *pg_query.Node_CommonTableExpr:
		if n.CommonTableExpr.Ctequery, err = rewriteNode(n.CommonTableExpr.Ctequery, fn); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// rewriteSelect descends into every expression-bearing clause of a SELECT,
// including both sides of a set operation.
func rewriteSelect(sel *pg_query.SelectStmt, fn RewriteFunc) error {
	var err error
	if err = rewriteList(sel.TargetList, fn); err != nil {
		return err
	}
	if err = rewriteList(sel.FromClause, fn); err != nil {
		return err
	}
	if sel.WhereClause, err = rewriteNode(sel.WhereClause, fn); err != nil {
		return err
	}
	if err = rewriteList(sel.GroupClause, fn); err != nil {
		return err
	}
	if sel.HavingClause, err = rewriteNode(sel.HavingClause, fn); err != nil {
		return err
	}
	if err = rewriteList(sel.SortClause, fn); err != nil {
		return err
	}
	if sel.WithClause != nil {
		if err = rewriteList(sel.WithClause.Ctes, fn); err != nil {
			return err
		}
	}
	if sel.Larg != nil {
		if err = rewriteSelect(sel.Larg, fn); err != nil {
			return err
		}
	}
	if sel.Rarg != nil {
		if err = rewriteSelect(sel.Rarg, fn); err != nil {
			return err
		}
	}
	return nil
}

func rewriteList(nodes []*pg_query.Node, fn RewriteFunc) error {
	for i, n := range nodes {
		out, err := rewriteNode(n, fn)
		if err != nil {
			return err
		}
		nodes[i] = out
	}
	return nil
}

// Walk visits every node of an expression tree without rewriting. The visit
// function returns false to stop descending into the current subtree.
func Walk(node *pg_query.Node, visit func(*pg_query.Node) bool) {
	if node == nil {
		return
	}
	if !visit(node) {
		return
	}
	// Reuse the rewrite traversal with an identity function; the visit side
	// effects happen in fn before descent.
	_, _ = rewriteNode(node, func(n *pg_query.Node) (*pg_query.Node, bool, error) {
		if n != node {
			if !visit(n) {
				return n, true, nil
			}
		}
		return nil, false, nil
	})
}
