package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

func TestInflateAll_MissingStaysAbsent(t *testing.T) {
	defs := []Definition{
		{Name: "limit", Kind: KindNumber, Default: 25.0},
	}
	values := InflateAll(map[string]any{}, defs)
	_, ok := values["limit"]
	assert.False(t, ok, "defaults are applied at consumption time, not inflation")
}

func TestInflateAll_Boolean(t *testing.T) {
	defs := []Definition{{Name: "flag", Kind: KindBoolean}}

	for raw, want := range map[any]bool{
		true: true, false: false, "true": true, "no": false, 1.0: true, 0.0: false,
	} {
		values := InflateAll(map[string]any{"flag": raw}, defs)
		assert.Equal(t, want, values["flag"], "raw %v", raw)
	}
}

func TestInflateAll_NumberClampAndNaN(t *testing.T) {
	defs := []Definition{{Name: "n", Kind: KindNumber, Min: f64(0), Max: f64(100)}}

	assert.Equal(t, 100.0, InflateAll(map[string]any{"n": 250.0}, defs)["n"])
	assert.Equal(t, 0.0, InflateAll(map[string]any{"n": -3.0}, defs)["n"])
	assert.Equal(t, 42.0, InflateAll(map[string]any{"n": "42"}, defs)["n"])
	assert.Equal(t, 0.0, InflateAll(map[string]any{"n": "junk"}, defs)["n"])
}

func TestInflateAll_OptionMembership(t *testing.T) {
	defs := []Definition{{Name: "mode", Kind: KindOption, Options: []string{"table", "chart"}}}

	values := InflateAll(map[string]any{"mode": "chart"}, defs)
	assert.Equal(t, "chart", values["mode"])

	values = InflateAll(map[string]any{"mode": "bogus"}, defs)
	_, ok := values["mode"]
	assert.False(t, ok)
}

func TestInflateAll_OptionsFiltered(t *testing.T) {
	defs := []Definition{{Name: "views", Kind: KindOptions, Options: []string{"a", "b"}}}

	values := InflateAll(map[string]any{"views": []any{"a", "zzz", "b"}}, defs)
	assert.Equal(t, []string{"a", "b"}, values["views"])
}

func TestInflateAll_OptionsNeverOutsideDeclaredSet(t *testing.T) {
	defs := []Definition{{Name: "views", Kind: KindOptions, Options: []string{"a"}}}
	values := InflateAll(map[string]any{"views": []any{"x", "y", 3.0}}, defs)

	got, _ := values["views"].([]string)
	for _, v := range got {
		assert.Contains(t, defs[0].Options, v)
	}
}

func TestInflateAll_ColumnFromObject(t *testing.T) {
	defs := []Definition{{Name: "col", Kind: KindColumn}}
	raw := map[string]any{"col": map[string]any{
		"expression": "price * quantity",
		"name":       "total",
		"sqlType":    "DOUBLE",
	}}

	values := InflateAll(raw, defs)
	cv, ok := values["col"].(*ColumnValue)
	require.True(t, ok)
	assert.Equal(t, "total", cv.Name)
	assert.Equal(t, "DOUBLE", cv.SQLType)
	require.NotNil(t, cv.Expr)
}

func TestInflateAll_ColumnFromString(t *testing.T) {
	defs := []Definition{{Name: "col", Kind: KindColumn}}
	values := InflateAll(map[string]any{"col": "revenue"}, defs)

	cv, ok := values["col"].(*ColumnValue)
	require.True(t, ok)
	assert.Equal(t, "revenue", cv.Name, "name derived from the expression")
}

func TestInflateAll_UnparsableColumnDropped(t *testing.T) {
	defs := []Definition{{Name: "col", Kind: KindColumn}}
	values := InflateAll(map[string]any{"col": "NOT ( VALID"}, defs)
	_, ok := values["col"]
	assert.False(t, ok)
}

func TestInflateAll_ColumnsFilterUnparsable(t *testing.T) {
	defs := []Definition{{Name: "cols", Kind: KindColumns}}
	values := InflateAll(map[string]any{"cols": []any{"a", "NOT ( VALID", "b"}}, defs)

	items, ok := values["cols"].([]*ColumnValue)
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "b", items[1].Name)
}

func TestInflateAll_SplitCombine(t *testing.T) {
	defs := []Definition{{Name: "split", Kind: KindSplitCombine}}
	raw := map[string]any{"split": map[string]any{
		"expression": "country",
		"descending": true,
		"limit":      5.0,
	}}

	values := InflateAll(raw, defs)
	sc, ok := values["split"].(*SplitCombine)
	require.True(t, ok)
	assert.Equal(t, "country", sc.Column.Name)
	assert.True(t, sc.Descending)
	require.NotNil(t, sc.Limit)
	assert.Equal(t, 5, *sc.Limit)
}

func TestInflateAll_PassThroughKinds(t *testing.T) {
	defs := []Definition{
		{Name: "title", Kind: KindString},
		{Name: "blob", Kind: KindCustom},
	}
	raw := map[string]any{"title": "My tile", "blob": map[string]any{"k": "v"}}
	values := InflateAll(raw, defs)
	assert.Equal(t, "My tile", values["title"])
	assert.Equal(t, raw["blob"], values["blob"])
}

func TestDefinition_IsVisible(t *testing.T) {
	def := Definition{
		Name: "pivotValues",
		Kind: KindOptions,
		Visible: func(v Values) bool {
			on, _ := v["pivotEnabled"].(bool)
			return on
		},
	}
	assert.False(t, def.IsVisible(Values{}))
	assert.True(t, def.IsVisible(Values{"pivotEnabled": true}))

	always := Definition{Name: "x", Kind: KindString}
	assert.True(t, always.IsVisible(nil))
}
