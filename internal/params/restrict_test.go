package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustColumnValue(t *testing.T, expr string) *ColumnValue {
	t.Helper()
	cv, err := newColumnValue(expr, "", "", false)
	require.NoError(t, err)
	return cv
}

func TestRestrictToColumns_DropsSingularWithMissingColumn(t *testing.T) {
	defs := []Definition{{Name: "metric", Kind: KindAggregate}}
	values := Values{"metric": mustColumnValue(t, "SUM(revenue)")}

	out := RestrictToColumns(values, defs, []string{"other"})
	_, ok := out["metric"]
	assert.False(t, ok)
}

func TestRestrictToColumns_KeepsValidSingular(t *testing.T) {
	defs := []Definition{{Name: "metric", Kind: KindAggregate}}
	cv := mustColumnValue(t, "SUM(revenue)")
	values := Values{"metric": cv}

	out := RestrictToColumns(values, defs, []string{"revenue"})
	assert.Same(t, cv, out["metric"])
}

func TestRestrictToColumns_PluralFiltersOffenders(t *testing.T) {
	defs := []Definition{{Name: "cols", Kind: KindColumns}}
	values := Values{"cols": []*ColumnValue{
		mustColumnValue(t, "a"),
		mustColumnValue(t, "gone"),
		mustColumnValue(t, "b"),
	}}

	out := RestrictToColumns(values, defs, []string{"a", "b"})
	items, ok := out["cols"].([]*ColumnValue)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "b", items[1].Name)
}

func TestRestrictToColumns_PluralIdentityPreserving(t *testing.T) {
	defs := []Definition{{Name: "cols", Kind: KindColumns}}
	items := []*ColumnValue{mustColumnValue(t, "a"), mustColumnValue(t, "b")}
	values := Values{"cols": items}

	out := RestrictToColumns(values, defs, []string{"a", "b"})
	got, ok := out["cols"].([]*ColumnValue)
	require.True(t, ok)
	// no element dropped: the very same slice comes back, so upstream can
	// detect "no change" cheaply
	assert.True(t, &items[0] == &got[0])
	assert.Len(t, got, 2)
}

func TestRestrictToColumns_NonExpressionKindsUntouched(t *testing.T) {
	defs := []Definition{
		{Name: "title", Kind: KindString},
		{Name: "limit", Kind: KindNumber},
	}
	values := Values{"title": "hello", "limit": 10.0}

	out := RestrictToColumns(values, defs, nil)
	assert.Equal(t, "hello", out["title"])
	assert.Equal(t, 10.0, out["limit"])
}

func TestRestrictToColumns_SplitCombines(t *testing.T) {
	defs := []Definition{{Name: "splits", Kind: KindSplitCombines}}
	values := Values{"splits": []*SplitCombine{
		{Column: mustColumnValue(t, "country")},
		{Column: mustColumnValue(t, "removed_col")},
	}}

	out := RestrictToColumns(values, defs, []string{"country"})
	items, ok := out["splits"].([]*SplitCombine)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "country", items[0].Column.Name)
}

func TestExpressionWithinColumns_MixedReference(t *testing.T) {
	cv := mustColumnValue(t, "present + missing")
	// one unresolved reference invalidates the whole expression
	assert.False(t, ExpressionWithinColumns(cv, []string{"present"}))
	assert.True(t, ExpressionWithinColumns(cv, []string{"present", "missing"}))
}

func TestExpressionWithinColumns_Nil(t *testing.T) {
	assert.False(t, ExpressionWithinColumns(nil, []string{"a"}))
}
