package sqlexpr

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// StateFunc is the pseudo-function that reads another tile's published state:
// TILE_STATE('tile', 'key') or TILE_STATE('tile', 'key', default).
const StateFunc = "tile_state"

// TileState holds the published state of every tile, keyed by tile name and
// then by state key. Values are SQL expression fragments.
type TileState map[string]map[string]string

// Lookup returns the published value for a tile/key pair.
func (s TileState) Lookup(tile, key string) (string, bool) {
	states, ok := s[tile]
	if !ok {
		return "", false
	}
	v, ok := states[key]
	return v, ok
}

// InlineTileState rewrites an expression by replacing every TILE_STATE call
// with the referenced tile's published value, re-parsed as an expression.
// When no value is published the call's default argument is used, or NULL if
// none was supplied. The tile and key arguments must be plain string
// literals; anything else is an error. Each node is visited exactly once and
// substituted subtrees are never re-visited, so a published value that itself
// contains a TILE_STATE call cannot cause an infinite substitution loop.
func InlineTileState(expr *pg_query.Node, state TileState) (*pg_query.Node, error) {
	return Rewrite(expr, func(n *pg_query.Node) (*pg_query.Node, bool, error) {
		if FuncName(n) != StateFunc {
			return nil, false, nil
		}
		fc := n.GetFuncCall()
		if len(fc.Args) < 2 || len(fc.Args) > 3 {
			return nil, false, fmt.Errorf("%s expects 2 or 3 arguments, got %d", StateFunc, len(fc.Args))
		}

		tile, ok := stringConst(fc.Args[0])
		if !ok {
			return nil, false, fmt.Errorf("%s: tile id must be a string literal", StateFunc)
		}
		key, ok := stringConst(fc.Args[1])
		if !ok {
			return nil, false, fmt.Errorf("%s: state key must be a string literal", StateFunc)
		}

		if value, found := state.Lookup(tile, key); found {
			parsed, err := ParseExpr(value)
			if err != nil {
				return nil, false, fmt.Errorf("%s(%q, %q): published value %q: %w", StateFunc, tile, key, value, err)
			}
			return parsed, true, nil
		}
		if len(fc.Args) == 3 {
			return fc.Args[2], true, nil
		}
		return Null(), true, nil
	})
}

// InlineStatementState applies InlineTileState across a whole SQL statement,
// rewriting every clause that can hold expressions, and returns the rewritten
// SQL text.
func InlineStatementState(sql string, state TileState) (string, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return "", fmt.Errorf("parse SQL: %w", err)
	}
	for _, stmt := range result.Stmts {
		rewritten, err := Rewrite(stmt.Stmt, func(n *pg_query.Node) (*pg_query.Node, bool, error) {
			if FuncName(n) != StateFunc {
				return nil, false, nil
			}
			out, err := InlineTileState(n, state)
			if err != nil {
				return nil, false, err
			}
			return out, true, nil
		})
		if err != nil {
			return "", err
		}
		stmt.Stmt = rewritten
	}
	out, err := pg_query.Deparse(result)
	if err != nil {
		return "", fmt.Errorf("deparse SQL: %w", err)
	}
	return out, nil
}

// stringConst extracts a plain string literal from a node.
func stringConst(node *pg_query.Node) (string, bool) {
	c := node.GetAConst()
	if c == nil || c.Isnull {
		return "", false
	}
	sval, ok := c.Val.(*pg_query.A_Const_Sval)
	if !ok {
		return "", false
	}
	return sval.Sval.Sval, true
}
