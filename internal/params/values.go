package params

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"querydeck/internal/sqlexpr"
)

// ColumnValue is a named, typed column or aggregate reference carried inside
// a parameter value. Name is the unique display key within a source.
type ColumnValue struct {
	Expr       *pg_query.Node
	Expression string
	Name       string
	SQLType    string
	MultiValue bool
}

// SplitCombine bundles a grouping expression with its combine settings
// (ordering and row limit for the produced groups).
type SplitCombine struct {
	Column     *ColumnValue
	Descending bool
	Limit      *int
}

// inflateColumnValue re-parses a stored column/aggregate value. Accepted raw
// shapes: a bare expression string, or an object with an "expression" field
// plus optional name/sqlType/multiValue.
func inflateColumnValue(raw any) (*ColumnValue, error) {
	switch v := raw.(type) {
	case string:
		return newColumnValue(v, "", "", false)
	case map[string]any:
		expr, _ := v["expression"].(string)
		name, _ := v["name"].(string)
		sqlType, _ := v["sqlType"].(string)
		multi := coerceBool(v["multiValue"])
		return newColumnValue(expr, name, sqlType, multi)
	default:
		return nil, fmt.Errorf("unsupported column value shape %T", raw)
	}
}

func newColumnValue(expression, name, sqlType string, multiValue bool) (*ColumnValue, error) {
	node, err := sqlexpr.ParseExpr(expression)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = sqlexpr.NaturalName(node)
	}
	return &ColumnValue{
		Expr:       node,
		Expression: expression,
		Name:       name,
		SQLType:    sqlType,
		MultiValue: multiValue,
	}, nil
}

func inflateSplitCombine(raw any) (*SplitCombine, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		// a bare string is a split on that expression with default combine
		if s, isString := raw.(string); isString {
			col, err := newColumnValue(s, "", "", false)
			if err != nil {
				return nil, err
			}
			return &SplitCombine{Column: col}, nil
		}
		return nil, fmt.Errorf("unsupported splitCombine shape %T", raw)
	}

	col, err := inflateColumnValue(obj)
	if err != nil {
		return nil, err
	}
	sc := &SplitCombine{
		Column:     col,
		Descending: coerceBool(obj["descending"]),
	}
	if rawLimit, ok := obj["limit"]; ok {
		n := int(coerceNumber(rawLimit))
		if n > 0 {
			sc.Limit = &n
		}
	}
	return sc, nil
}

// Raw converts inflated values back into their raw storage shapes so
// they can be persisted as JSON.
func (values Values) Raw() map[string]any {
	out := make(map[string]any, len(values))
	for name, value := range values {
		out[name] = rawValue(value)
	}
	return out
}

func rawValue(value any) any {
	switch v := value.(type) {
	case *ColumnValue:
		return v.MarshalRaw()
	case []*ColumnValue:
		items := make([]any, len(v))
		for i, cv := range v {
			items[i] = cv.MarshalRaw()
		}
		return items
	case *SplitCombine:
		return v.MarshalRaw()
	case []*SplitCombine:
		items := make([]any, len(v))
		for i, sc := range v {
			items[i] = sc.MarshalRaw()
		}
		return items
	default:
		return v
	}
}

// MarshalRaw converts a SplitCombine back into its raw storage shape.
func (sc *SplitCombine) MarshalRaw() map[string]any {
	out := sc.Column.MarshalRaw()
	if sc.Descending {
		out["descending"] = true
	}
	if sc.Limit != nil {
		out["limit"] = float64(*sc.Limit)
	}
	return out
}

// MarshalRaw converts a ColumnValue back into its raw storage shape.
func (v *ColumnValue) MarshalRaw() map[string]any {
	out := map[string]any{"expression": v.Expression}
	if v.Name != "" {
		out["name"] = v.Name
	}
	if v.SQLType != "" {
		out["sqlType"] = v.SQLType
	}
	if v.MultiValue {
		out["multiValue"] = true
	}
	return out
}
