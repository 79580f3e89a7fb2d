package sqlexpr

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// MultiValueFunc is the coercion function that forces an expression into a
// multi-value (array) result.
const MultiValueFunc = "mv_to_array"

// CastBreakdown is a projection entry split into its editable parts: the base
// formula text, an optional cast type, the multi-value coercion flag, and the
// output name. It is the unit an expression-editing dialog works on.
type CastBreakdown struct {
	Formula         string `json:"formula"`
	CastType        string `json:"castType,omitempty"`
	ForceMultiValue bool   `json:"forceMultiValue,omitempty"`
	OutputName      string `json:"outputName,omitempty"`
}

// Equals compares two breakdowns field by field. Formulas are compared as
// text, not structurally, so two formulas that parse identically but differ
// in spacing are treated as different.
func (b CastBreakdown) Equals(other CastBreakdown) bool {
	return b.Formula == other.Formula &&
		b.CastType == other.CastType &&
		b.ForceMultiValue == other.ForceMultiValue &&
		b.OutputName == other.OutputName
}

// Decompose splits a projection entry node (ResTarget) into a CastBreakdown.
// An explicit alias becomes the output name; one level of CAST or
// multi-value coercion is unwrapped into its own field.
func Decompose(target *pg_query.Node) (CastBreakdown, error) {
	rt := target.GetResTarget()
	if rt == nil || rt.Val == nil {
		return CastBreakdown{}, fmt.Errorf("decompose: not a projection entry")
	}

	breakdown := CastBreakdown{OutputName: rt.Name}
	expr := rt.Val

	if tc := expr.GetTypeCast(); tc != nil {
		formula, err := DeparseExpr(tc.Arg)
		if err != nil {
			return CastBreakdown{}, err
		}
		breakdown.Formula = formula
		breakdown.CastType = SQLTypeName(tc.TypeName)
		return breakdown, nil
	}

	if FuncName(expr) == MultiValueFunc {
		fc := expr.GetFuncCall()
		if len(fc.Args) != 1 {
			return CastBreakdown{}, fmt.Errorf("decompose: %s takes one argument, got %d", MultiValueFunc, len(fc.Args))
		}
		formula, err := DeparseExpr(fc.Args[0])
		if err != nil {
			return CastBreakdown{}, err
		}
		breakdown.Formula = formula
		breakdown.ForceMultiValue = true
		return breakdown, nil
	}

	formula, err := DeparseExpr(expr)
	if err != nil {
		return CastBreakdown{}, err
	}
	breakdown.Formula = formula
	return breakdown, nil
}

// DecomposeText parses a projection entry from SQL text and decomposes it.
func DecomposeText(text string) (CastBreakdown, error) {
	target, err := ParseTarget(text)
	if err != nil {
		return CastBreakdown{}, err
	}
	return Decompose(target)
}

// Recompose rebuilds a projection entry node from a breakdown: the formula is
// re-parsed, the cast or multi-value coercion re-applied, and the alias
// restored when it differs from the formula's natural output name. It fails
// when no output name is resolvable from either side; guessing one would
// silently corrupt the generated query.
func Recompose(breakdown CastBreakdown) (*pg_query.Node, error) {
	text := strings.TrimSpace(breakdown.Formula)
	if text == "" {
		return nil, fmt.Errorf("recompose: empty formula")
	}
	switch {
	case breakdown.CastType != "":
		text = "CAST(" + text + " AS " + breakdown.CastType + ")"
	case breakdown.ForceMultiValue:
		text = MultiValueFunc + "(" + text + ")"
	}

	expr, err := ParseExpr(text)
	if err != nil {
		return nil, err
	}

	natural := NaturalName(expr)
	if natural == "" && breakdown.OutputName == "" {
		return nil, fmt.Errorf("recompose: expression %q has no natural output name and none was supplied", breakdown.Formula)
	}

	rt := &pg_query.ResTarget{Val: expr}
	if breakdown.OutputName != "" && breakdown.OutputName != natural {
		rt.Name = breakdown.OutputName
	}
	return &pg_query.Node{Node: &pg_query.Node_ResTarget{ResTarget: rt}}, nil
}

// RecomposeText rebuilds a breakdown and renders it back to SQL text.
func RecomposeText(breakdown CastBreakdown) (string, error) {
	target, err := Recompose(breakdown)
	if err != nil {
		return "", err
	}
	return DeparseTarget(target)
}
