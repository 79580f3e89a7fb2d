// Package sqlexpr provides parsing, inspection, and rewriting helpers for SQL
// scalar expressions and projection entries.
//
// Expressions are represented as PostgreSQL parse tree nodes (pg_query_go).
// All transformations produce new nodes; callers never see their input mutated.
package sqlexpr

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseExpr parses a single SQL scalar expression into a parse tree node.
// The text must be a bare expression ("a + 1", "SUM(x)"), not a statement.
func ParseExpr(text string) (*pg_query.Node, error) {
	target, err := ParseTarget(text)
	if err != nil {
		return nil, err
	}
	rt := target.GetResTarget()
	if rt.Name != "" {
		return nil, fmt.Errorf("parse expression %q: unexpected alias %q", text, rt.Name)
	}
	return rt.Val, nil
}

// ParseTarget parses a SQL projection entry (an expression with an optional
// output alias) and returns the ResTarget node.
func ParseTarget(text string) (*pg_query.Node, error) {
	result, err := pg_query.Parse("SELECT " + text)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", text, err)
	}
	if len(result.Stmts) != 1 {
		return nil, fmt.Errorf("parse expression %q: expected a single expression", text)
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return nil, fmt.Errorf("parse expression %q: not an expression", text)
	}
	if len(sel.FromClause) > 0 || sel.WhereClause != nil {
		return nil, fmt.Errorf("parse expression %q: statement clauses are not allowed", text)
	}
	if len(sel.TargetList) != 1 {
		return nil, fmt.Errorf("parse expression %q: expected a single expression, got %d", text, len(sel.TargetList))
	}
	target := sel.TargetList[0]
	if target.GetResTarget() == nil || target.GetResTarget().Val == nil {
		return nil, fmt.Errorf("parse expression %q: empty expression", text)
	}
	return target, nil
}

// DeparseExpr renders an expression node back to SQL text.
func DeparseExpr(node *pg_query.Node) (string, error) {
	return deparseTargets([]*pg_query.Node{wrapTarget(node)})
}

// DeparseTarget renders a ResTarget node (expression plus optional alias)
// back to SQL text.
func DeparseTarget(target *pg_query.Node) (string, error) {
	return deparseTargets([]*pg_query.Node{target})
}

// deparseTargets deparses projection entries by wrapping them in a bare SELECT
// and stripping the keyword from the output.
func deparseTargets(targets []*pg_query.Node) (string, error) {
	result := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{
				Node: &pg_query.Node_SelectStmt{
					SelectStmt: &pg_query.SelectStmt{
						TargetList:  targets,
						LimitOption: pg_query.LimitOption_LIMIT_OPTION_DEFAULT,
						Op:          pg_query.SetOperation_SETOP_NONE,
					},
				},
			},
		}},
	}
	out, err := pg_query.Deparse(result)
	if err != nil {
		return "", fmt.Errorf("deparse expression: %w", err)
	}
	return strings.TrimPrefix(out, "SELECT "), nil
}

func wrapTarget(node *pg_query.Node) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_ResTarget{
			ResTarget: &pg_query.ResTarget{Val: node},
		},
	}
}

// NaturalName returns the output name PostgreSQL would assign to an unaliased
// expression: the column name for references, the function name for calls.
// Returns "" when the expression has no natural name.
func NaturalName(node *pg_query.Node) string {
	if node == nil {
		return ""
	}
	switch n := node.Node.(type) {
	case *pg_query.Node_ColumnRef:
		fields := n.ColumnRef.Fields
		if len(fields) == 0 {
			return ""
		}
		last := fields[len(fields)-1]
		if s := last.GetString_(); s != nil {
			return s.Sval
		}
		return ""
	case *pg_query.Node_TypeCast:
		return NaturalName(n.TypeCast.Arg)
	case *pg_query.Node_FuncCall:
		names := n.FuncCall.Funcname
		if len(names) == 0 {
			return ""
		}
		if s := names[len(names)-1].GetString_(); s != nil {
			return s.Sval
		}
		return ""
	case *pg_query.Node_CoalesceExpr:
		return "coalesce"
	case *pg_query.Node_CaseExpr:
		return "case"
	case *pg_query.Node_SqlvalueFunction:
		return strings.ToLower(strings.TrimPrefix(
			n.SqlvalueFunction.Op.String(), "SVFOP_"))
	default:
		return ""
	}
}

// FuncName returns the unqualified lower-case function name of a call node,
// or "" if the node is not a function call.
func FuncName(node *pg_query.Node) string {
	fc := node.GetFuncCall()
	if fc == nil || len(fc.Funcname) == 0 {
		return ""
	}
	last := fc.Funcname[len(fc.Funcname)-1].GetString_()
	if last == nil {
		return ""
	}
	return strings.ToLower(last.Sval)
}

// QuoteIdentifier unconditionally quotes a SQL identifier using double quotes.
// Internal double quotes are escaped by doubling them ("" → ").
func QuoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// QuoteLiteral renders a string as a single-quoted SQL literal.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
