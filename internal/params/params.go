// Package params validates tile parameter values against their declared
// definitions.
//
// Raw values arrive as decoded JSON from the tile store and are untyped;
// inflation is the schema-validation layer that turns them into typed
// in-memory values. Restriction re-validates already-inflated values after
// the owning query's column set changes, pruning anything that references a
// column that no longer exists. Pruning is silent: schema drift is an
// expected event as users edit queries, not an error.
package params

import (
	"math"
	"strconv"
)

// Kind identifies a parameter's declared type.
type Kind string

// The closed set of parameter kinds.
const (
	KindString        Kind = "string"
	KindBoolean       Kind = "boolean"
	KindNumber        Kind = "number"
	KindOption        Kind = "option"
	KindOptions       Kind = "options"
	KindColumn        Kind = "column"
	KindColumns       Kind = "columns"
	KindAggregate     Kind = "aggregate"
	KindAggregates    Kind = "aggregates"
	KindSplitCombine  Kind = "splitCombine"
	KindSplitCombines Kind = "splitCombines"
	KindCustom        Kind = "custom"
	KindQuery         Kind = "query"
)

// Values holds the current typed parameter values, keyed by parameter name.
// A missing key means the parameter has no value; defaults are applied by
// consumers, not stored here.
type Values map[string]any

// Definition declares one parameter: its kind, optional default, declared
// option set, numeric bounds, and an optional visibility predicate.
type Definition struct {
	Name    string
	Kind    Kind
	Default any

	// Options is the legal value set for option/options parameters.
	Options []string

	// Min/Max clamp number parameters when set.
	Min *float64
	Max *float64

	// Visible decides whether the parameter is shown given the current
	// values. It must be a pure synchronous function; it is evaluated on
	// every render cycle. Nil means always visible.
	Visible func(Values) bool
}

// IsVisible evaluates the visibility predicate against the current values.
func (d *Definition) IsVisible(values Values) bool {
	if d.Visible == nil {
		return true
	}
	return d.Visible(values)
}

// IsExpressionKind reports whether the kind carries a parsed SQL expression.
func (k Kind) IsExpressionKind() bool {
	switch k {
	case KindColumn, KindColumns, KindAggregate, KindAggregates,
		KindSplitCombine, KindSplitCombines:
		return true
	}
	return false
}

// IsPlural reports whether the kind holds a list of values.
func (k Kind) IsPlural() bool {
	switch k {
	case KindOptions, KindColumns, KindAggregates, KindSplitCombines:
		return true
	}
	return false
}

// InflateAll inflates every declared parameter's raw stored value
// independently. Parameters absent from raw stay absent in the result; no
// default substitution happens here.
func InflateAll(raw map[string]any, defs []Definition) Values {
	values := make(Values, len(defs))
	for i := range defs {
		def := &defs[i]
		rawValue, ok := raw[def.Name]
		if !ok || rawValue == nil {
			continue
		}
		if inflated, ok := inflate(rawValue, def); ok {
			values[def.Name] = inflated
		}
	}
	return values
}

// inflate coerces one raw value per its definition's kind. The second return
// is false when the value is invalid and must be dropped entirely.
func inflate(raw any, def *Definition) (any, bool) {
	switch def.Kind {
	case KindBoolean:
		return coerceBool(raw), true

	case KindNumber:
		n := coerceNumber(raw)
		if math.IsNaN(n) {
			n = 0
		}
		if def.Min != nil && n < *def.Min {
			n = *def.Min
		}
		if def.Max != nil && n > *def.Max {
			n = *def.Max
		}
		return n, true

	case KindOption:
		s, ok := raw.(string)
		if !ok || !contains(def.Options, s) {
			return nil, false
		}
		return s, true

	case KindOptions:
		items, ok := raw.([]any)
		if !ok {
			return nil, false
		}
		var kept []string
		for _, item := range items {
			if s, ok := item.(string); ok && contains(def.Options, s) {
				kept = append(kept, s)
			}
		}
		return kept, true

	case KindColumn, KindAggregate:
		v, err := inflateColumnValue(raw)
		if err != nil {
			return nil, false
		}
		return v, true

	case KindColumns, KindAggregates:
		items, ok := raw.([]any)
		if !ok {
			return nil, false
		}
		var kept []*ColumnValue
		for _, item := range items {
			if v, err := inflateColumnValue(item); err == nil {
				kept = append(kept, v)
			}
		}
		return kept, true

	case KindSplitCombine:
		v, err := inflateSplitCombine(raw)
		if err != nil {
			return nil, false
		}
		return v, true

	case KindSplitCombines:
		items, ok := raw.([]any)
		if !ok {
			return nil, false
		}
		var kept []*SplitCombine
		for _, item := range items {
			if v, err := inflateSplitCombine(item); err == nil {
				kept = append(kept, v)
			}
		}
		return kept, true

	default:
		// string, custom, query pass through unchanged
		return raw, true
	}
}

func coerceBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

func coerceNumber(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN()
		}
		return n
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
