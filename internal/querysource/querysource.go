// Package querysource models an exploration tile's base query together with
// its introspected result columns.
//
// A Source never computes its own column set: columns come from a preview
// execution against the engine, so they always reflect what the database will
// actually return.
package querysource

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"

	"querydeck/internal/sqlexpr"
)

// Column is one introspected output column of a source query.
type Column struct {
	Name       string `json:"name"`
	SQLType    string `json:"sqlType,omitempty"`
	MultiValue bool   `json:"multiValue,omitempty"`
}

// Source wraps a parsed SELECT statement and its introspected columns.
type Source struct {
	query   *pg_query.SelectStmt
	columns []Column
}

// New parses sql into a Source. The statement must be a single SELECT;
// columns are the result of introspecting that statement.
func New(sql string, columns []Column) (*Source, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse source query: %w", err)
	}
	if len(result.Stmts) != 1 {
		return nil, fmt.Errorf("source query must be a single statement, got %d", len(result.Stmts))
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil {
		return nil, fmt.Errorf("source query must be a SELECT statement")
	}
	if countStars(sel) > 1 {
		return nil, fmt.Errorf("source query has more than one wildcard projection")
	}
	return &Source{query: sel, columns: columns}, nil
}

// Columns returns the introspected column set.
func (s *Source) Columns() []Column { return s.columns }

// ColumnNames returns the introspected column names in order.
func (s *Source) ColumnNames() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// SQL renders the source query back to text.
func (s *Source) SQL() (string, error) {
	result := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: s.query}},
		}},
	}
	out, err := pg_query.Deparse(result)
	if err != nil {
		return "", fmt.Errorf("deparse source query: %w", err)
	}
	return out, nil
}

// IsSimpleSelect reports whether the query has no GROUP BY, no set operation,
// and exactly one FROM item.
func (s *Source) IsSimpleSelect() bool {
	return len(s.query.GroupClause) == 0 &&
		s.query.Op == pg_query.SetOperation_SETOP_NONE &&
		len(s.query.FromClause) == 1
}

// MaterializeStar expands a single wildcard projection into explicit column
// references, one per introspected column not already covered by a named
// projection, inserted at the wildcard's position. A query without a wildcard
// is returned unchanged (same receiver). More than one wildcard is rejected:
// the expansion target would be ambiguous.
func (s *Source) MaterializeStar() (*Source, error) {
	stars := countStars(s.query)
	if stars == 0 {
		return s, nil
	}
	if stars > 1 {
		return nil, fmt.Errorf("cannot expand: more than one wildcard projection")
	}

	covered := make(map[string]bool)
	for _, target := range s.query.TargetList {
		if isStarTarget(target) {
			continue
		}
		if name := targetOutputName(target); name != "" {
			covered[name] = true
		}
	}

	clone := proto.Clone(s.query).(*pg_query.SelectStmt)
	var expanded []*pg_query.Node
	for _, target := range clone.TargetList {
		if !isStarTarget(target) {
			expanded = append(expanded, target)
			continue
		}
		for _, col := range s.columns {
			if covered[col.Name] {
				continue
			}
			expanded = append(expanded, columnTarget(col.Name))
		}
	}
	clone.TargetList = expanded

	return &Source{query: clone, columns: s.columns}, nil
}

// DeleteColumn materializes any wildcard, then returns a new Source without
// the projection whose output name matches. Deleting a name that is not
// projected is an explicit no-op returning the same Source.
func (s *Source) DeleteColumn(outputName string) (*Source, error) {
	materialized, err := s.MaterializeStar()
	if err != nil {
		return nil, err
	}

	found := false
	for _, target := range materialized.query.TargetList {
		if targetOutputName(target) == outputName {
			found = true
			break
		}
	}
	if !found {
		return materialized, nil
	}

	clone := proto.Clone(materialized.query).(*pg_query.SelectStmt)
	kept := clone.TargetList[:0]
	for _, target := range clone.TargetList {
		if targetOutputName(target) != outputName {
			kept = append(kept, target)
		}
	}
	clone.TargetList = kept

	columns := make([]Column, 0, len(materialized.columns))
	for _, c := range materialized.columns {
		if c.Name != outputName {
			columns = append(columns, c)
		}
	}

	return &Source{query: clone, columns: columns}, nil
}

// OutputNames returns the output name of every projection, using the explicit
// alias when present and the expression's natural name otherwise. A wildcard
// contributes no name.
func (s *Source) OutputNames() []string {
	var names []string
	for _, target := range s.query.TargetList {
		if isStarTarget(target) {
			continue
		}
		if name := targetOutputName(target); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func targetOutputName(target *pg_query.Node) string {
	rt := target.GetResTarget()
	if rt == nil {
		return ""
	}
	if rt.Name != "" {
		return rt.Name
	}
	return sqlexpr.NaturalName(rt.Val)
}

// isStarTarget reports whether a projection entry is a wildcard, either bare
// (*) or qualified (t.*).
func isStarTarget(target *pg_query.Node) bool {
	rt := target.GetResTarget()
	if rt == nil || rt.Val == nil {
		return false
	}
	ref := rt.Val.GetColumnRef()
	if ref == nil || len(ref.Fields) == 0 {
		return false
	}
	last := ref.Fields[len(ref.Fields)-1]
	return last.GetAStar() != nil
}

func countStars(sel *pg_query.SelectStmt) int {
	count := 0
	for _, target := range sel.TargetList {
		if isStarTarget(target) {
			count++
		}
	}
	return count
}

func columnTarget(name string) *pg_query.Node {
	return &pg_query.Node{
		Node: &pg_query.Node_ResTarget{
			ResTarget: &pg_query.ResTarget{
				Val: &pg_query.Node{
					Node: &pg_query.Node_ColumnRef{
						ColumnRef: &pg_query.ColumnRef{
							Fields: []*pg_query.Node{{
								Node: &pg_query.Node_String_{String_: &pg_query.String{Sval: name}},
							}},
						},
					},
				},
			},
		},
	}
}
