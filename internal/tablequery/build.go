package tablequery

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"querydeck/internal/domain"
	"querydeck/internal/sqlexpr"
)

// aggregateFuncs are the aggregate function names that accept a FILTER
// clause. Pivot and filtered-compare conditions attach to these.
var aggregateFuncs = map[string]bool{
	"count":                 true,
	"sum":                   true,
	"avg":                   true,
	"min":                   true,
	"max":                   true,
	"median":                true,
	"mode":                  true,
	"quantile":              true,
	"quantile_cont":         true,
	"quantile_disc":         true,
	"stddev":                true,
	"stddev_pop":            true,
	"stddev_samp":           true,
	"variance":              true,
	"var_pop":               true,
	"var_samp":              true,
	"array_agg":             true,
	"list":                  true,
	"string_agg":            true,
	"bool_and":              true,
	"bool_or":               true,
	"bit_and":               true,
	"bit_or":                true,
	"first":                 true,
	"last":                  true,
	"arg_min":               true,
	"arg_max":               true,
	"approx_count_distinct": true,
	"approx_quantile":       true,
	"percentile_cont":       true,
	"percentile_disc":       true,
}

// Result is the output of Build: executable SQL plus display hints for
// each projected column, in projection order.
type Result struct {
	SQL   string       `json:"sql"`
	Hints []ColumnHint `json:"hints"`
}

type resolvedSplit struct {
	name        string
	expr        *pg_query.Node
	granularity Granularity
	timeBound   bool
}

// Build assembles the SQL for a declarative table query. All input
// problems are reported as validation errors; an error from the final
// reparse of the assembled text indicates a builder bug and is wrapped
// distinctly.
func Build(spec Spec) (*Result, error) {
	source, err := normalizeSource(spec.Source)
	if err != nil {
		return nil, err
	}
	if len(spec.Metrics) == 0 {
		return nil, domain.ErrValidation("table query requires at least one metric")
	}
	if spec.Limit < 0 {
		return nil, domain.ErrValidation("limit must not be negative")
	}
	if spec.Pivot != nil && len(spec.Compares) > 0 {
		return nil, domain.ErrValidation("pivot and period comparison cannot be combined")
	}
	if spec.Pivot != nil && len(spec.Pivot.Values) == 0 {
		return nil, domain.ErrValidation("pivot requires at least one value")
	}

	var where *pg_query.Node
	if spec.Where != "" {
		where, err = sqlexpr.ParseExpr(spec.Where)
		if err != nil {
			return nil, domain.ErrValidation("invalid where clause: %v", err)
		}
	}

	if len(spec.Compares) > 0 {
		if spec.TimeColumn == "" {
			return nil, domain.ErrValidation("period comparison requires a time column")
		}
		if where == nil {
			return nil, domain.ErrValidation("period comparison requires a where clause bounding the time column")
		}
		if !containsColumn(sqlexpr.ColumnNames(where), spec.TimeColumn) {
			return nil, domain.ErrValidation("where clause does not reference time column %q", spec.TimeColumn)
		}
		for _, c := range spec.Compares {
			if err := validateInterval(c.Interval); err != nil {
				return nil, err
			}
		}
	}

	splits, err := resolveSplits(spec)
	if err != nil {
		return nil, err
	}

	strategy, err := resolveStrategy(spec, splits)
	if err != nil {
		return nil, err
	}

	var (
		sql   string
		hints []ColumnHint
	)
	switch strategy {
	case StrategyJoin:
		sql, hints, err = buildJoin(spec, source, where, splits)
	default:
		sql, hints, err = buildFiltered(spec, source, where, splits)
	}
	if err != nil {
		return nil, err
	}

	tail, err := buildTail(spec, hints)
	if err != nil {
		return nil, err
	}
	sql += tail

	if _, err := pg_query.Parse(sql); err != nil {
		return nil, fmt.Errorf("built query failed to reparse: %w", err)
	}
	return &Result{SQL: sql, Hints: hints}, nil
}

// normalizeSource checks that the source is a single SELECT statement and
// strips the trailing semicolon so it can be embedded as a subquery.
func normalizeSource(source string) (string, error) {
	trimmed := strings.TrimSpace(source)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return "", domain.ErrValidation("source query is empty")
	}
	parsed, err := pg_query.Parse(trimmed)
	if err != nil {
		return "", domain.ErrValidation("invalid source query: %v", err)
	}
	if len(parsed.Stmts) != 1 {
		return "", domain.ErrValidation("source must be a single statement")
	}
	if parsed.Stmts[0].Stmt.GetSelectStmt() == nil {
		return "", domain.ErrValidation("source must be a SELECT statement")
	}
	return trimmed, nil
}

func resolveSplits(spec Spec) ([]resolvedSplit, error) {
	splits := make([]resolvedSplit, 0, len(spec.Splits))
	for i, s := range spec.Splits {
		if s.Expression == "" {
			return nil, domain.ErrValidation("split %d has no expression", i)
		}
		expr, err := sqlexpr.ParseExpr(s.Expression)
		if err != nil {
			return nil, domain.ErrValidation("invalid split expression %q: %v", s.Expression, err)
		}
		if s.Granularity != "" && !validGranularities[s.Granularity] {
			return nil, domain.ErrValidation("unsupported granularity %q", s.Granularity)
		}
		name := s.Name
		if name == "" {
			name = sqlexpr.NaturalName(expr)
		}
		if name == "" {
			return nil, domain.ErrValidation("split %q needs an explicit name", s.Expression)
		}
		timeBound := spec.TimeColumn != "" && containsColumn(sqlexpr.ColumnNames(expr), spec.TimeColumn)
		splits = append(splits, resolvedSplit{
			name:        name,
			expr:        expr,
			granularity: s.Granularity,
			timeBound:   timeBound,
		})
	}
	seen := make(map[string]bool, len(splits))
	for _, s := range splits {
		if seen[s.name] {
			return nil, domain.ErrValidation("duplicate split name %q", s.name)
		}
		seen[s.name] = true
	}
	return splits, nil
}

func resolveStrategy(spec Spec, splits []resolvedSplit) (Strategy, error) {
	timeBucketed := false
	for _, s := range splits {
		if s.timeBound {
			timeBucketed = true
		}
	}
	switch spec.Strategy {
	case "", StrategyAuto:
		if len(spec.Compares) == 0 {
			return StrategyFiltered, nil
		}
		if timeBucketed || len(spec.Compares) > 1 {
			return StrategyJoin, nil
		}
		return StrategyFiltered, nil
	case StrategyFiltered:
		if timeBucketed && len(spec.Compares) > 0 {
			return "", domain.ErrValidation("filtered strategy cannot align time-bucketed splits across periods")
		}
		return StrategyFiltered, nil
	case StrategyJoin:
		return StrategyJoin, nil
	default:
		return "", domain.ErrValidation("unknown strategy %q", spec.Strategy)
	}
}

// splitSelectSQL renders one split as a projection target, applying time
// bucketing and an optional time shift for comparison subqueries.
func splitSelectSQL(spec Spec, s resolvedSplit, shift string) (string, error) {
	expr := s.expr
	var err error
	if shift != "" && s.timeBound {
		expr, err = shiftTime(expr, spec.TimeColumn, shift)
		if err != nil {
			return "", err
		}
	}
	text, err := sqlexpr.DeparseExpr(expr)
	if err != nil {
		return "", fmt.Errorf("deparse split %q: %w", s.name, err)
	}
	if s.granularity != "" {
		text = fmt.Sprintf("DATE_TRUNC(%s, %s)", sqlexpr.QuoteLiteral(string(s.granularity)), text)
	}
	return text + " AS " + sqlexpr.QuoteIdentifier(s.name), nil
}

// shiftTime replaces unqualified references to the time column with the
// reference advanced by the given interval, so the shifted period's rows
// land in the current period's window and buckets.
func shiftTime(expr *pg_query.Node, timeColumn, interval string) (*pg_query.Node, error) {
	shifted, err := sqlexpr.ParseExpr(fmt.Sprintf("%s + INTERVAL %s",
		sqlexpr.QuoteIdentifier(timeColumn), sqlexpr.QuoteLiteral(interval)))
	if err != nil {
		return nil, domain.ErrValidation("invalid compare interval %q: %v", interval, err)
	}
	return sqlexpr.Rewrite(expr, func(node *pg_query.Node) (*pg_query.Node, bool, error) {
		ref := node.GetColumnRef()
		if ref == nil || len(ref.Fields) != 1 {
			return nil, false, nil
		}
		if ref.Fields[0].GetString_().GetSval() != timeColumn {
			return nil, false, nil
		}
		return shifted, true, nil
	})
}

func validateInterval(interval string) error {
	if strings.TrimSpace(interval) == "" {
		return domain.ErrValidation("compare interval is empty")
	}
	_, err := sqlexpr.ParseExpr("INTERVAL " + sqlexpr.QuoteLiteral(interval))
	if err != nil {
		return domain.ErrValidation("invalid compare interval %q: %v", interval, err)
	}
	return nil
}

// metricSelectSQL renders one metric as a projection target. When filter
// is non-nil it is attached to every aggregate call in the expression as
// a FILTER clause.
func metricSelectSQL(m Metric, outputName string, filter *pg_query.Node) (string, error) {
	if m.Expression == "" {
		return "", domain.ErrValidation("metric %q has no expression", m.Name)
	}
	if m.Name == "" {
		return "", domain.ErrValidation("metric with expression %q has no name", m.Expression)
	}
	expr, err := sqlexpr.ParseExpr(m.Expression)
	if err != nil {
		return "", domain.ErrValidation("invalid metric expression %q: %v", m.Expression, err)
	}
	if filter != nil {
		expr, err = attachAggFilter(expr, filter)
		if err != nil {
			return "", domain.ErrValidation("metric %q: %v", m.Name, err)
		}
	}
	text, err := sqlexpr.DeparseExpr(expr)
	if err != nil {
		return "", fmt.Errorf("deparse metric %q: %w", m.Name, err)
	}
	return text + " AS " + sqlexpr.QuoteIdentifier(outputName), nil
}

// attachAggFilter adds cond as a FILTER clause on every aggregate call in
// expr, combining with any existing filter via AND.
func attachAggFilter(expr, cond *pg_query.Node) (*pg_query.Node, error) {
	attached := false
	out, err := sqlexpr.Rewrite(expr, func(node *pg_query.Node) (*pg_query.Node, bool, error) {
		fc := node.GetFuncCall()
		if fc == nil || !aggregateFuncs[sqlexpr.FuncName(node)] {
			return nil, false, nil
		}
		if fc.AggFilter != nil {
			fc.AggFilter = sqlexpr.And(fc.AggFilter, cond)
		} else {
			fc.AggFilter = cond
		}
		attached = true
		return node, true, nil
	})
	if err != nil {
		return nil, err
	}
	if !attached {
		return nil, fmt.Errorf("expression has no aggregate function to filter")
	}
	return out, nil
}

// buildFiltered assembles a single-scan query. Comparison metrics are
// computed with per-aggregate FILTER clauses over a time-shifted copy of
// the where clause, and the outer WHERE is widened to admit every
// compared period's rows.
func buildFiltered(spec Spec, source string, where *pg_query.Node, splits []resolvedSplit) (string, []ColumnHint, error) {
	var (
		targets []string
		hints   []ColumnHint
	)
	for _, s := range splits {
		t, err := splitSelectSQL(spec, s, "")
		if err != nil {
			return "", nil, err
		}
		targets = append(targets, t)
		hints = append(hints, ColumnHint{Name: s.name, Role: RoleSplit, Granularity: string(s.granularity)})
	}

	outerWhere := where
	var baseFilter *pg_query.Node
	shiftedWheres := make([]*pg_query.Node, 0, len(spec.Compares))
	if len(spec.Compares) > 0 {
		parts := []*pg_query.Node{where}
		for _, c := range spec.Compares {
			shifted, err := shiftTime(where, spec.TimeColumn, c.Interval)
			if err != nil {
				return "", nil, err
			}
			shiftedWheres = append(shiftedWheres, shifted)
			parts = append(parts, shifted)
		}
		outerWhere = sqlexpr.Or(parts...)
		baseFilter = where
	}

	if spec.Pivot != nil {
		for _, value := range spec.Pivot.Values {
			cond, err := sqlexpr.ParseExpr(fmt.Sprintf("%s = %s",
				sqlexpr.QuoteIdentifier(spec.Pivot.Column), sqlexpr.QuoteLiteral(value)))
			if err != nil {
				return "", nil, domain.ErrValidation("invalid pivot value %q: %v", value, err)
			}
			for _, m := range spec.Metrics {
				name := value + " " + m.Name
				t, err := metricSelectSQL(m, name, cond)
				if err != nil {
					return "", nil, err
				}
				targets = append(targets, t)
				hints = append(hints, ColumnHint{Name: name, Role: RolePivot, Metric: m.Name, PivotValue: value})
			}
		}
	} else {
		for _, m := range spec.Metrics {
			t, err := metricSelectSQL(m, m.Name, baseFilter)
			if err != nil {
				return "", nil, err
			}
			targets = append(targets, t)
			hints = append(hints, ColumnHint{Name: m.Name, Role: RoleMetric, Metric: m.Name})
			for i, c := range spec.Compares {
				label := compareLabel(c)
				name := m.Name + " " + label
				t, err := metricSelectSQL(m, name, shiftedWheres[i])
				if err != nil {
					return "", nil, err
				}
				targets = append(targets, t)
				hints = append(hints, ColumnHint{Name: name, Role: RoleCompare, Metric: m.Name, ComparePeriod: label})
			}
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(targets, ", "))
	b.WriteString(" FROM (")
	b.WriteString(source)
	b.WriteString(") AS \"src\"")
	if outerWhere != nil {
		text, err := sqlexpr.DeparseExpr(outerWhere)
		if err != nil {
			return "", nil, fmt.Errorf("deparse where clause: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(text)
	}
	writeGroupBy(&b, len(splits))
	return b.String(), hints, nil
}

// buildJoin assembles the current period and each compared period as
// separate grouped subqueries joined on the split columns. Compared
// subqueries shift both their where clause and their time-bucketed splits
// forward so rows align with the current period's buckets.
func buildJoin(spec Spec, source string, where *pg_query.Node, splits []resolvedSplit) (string, []ColumnHint, error) {
	if spec.Pivot != nil {
		return "", nil, domain.ErrValidation("pivot is not supported with the join strategy")
	}

	base, err := buildPeriodSubquery(spec, source, where, splits, "", "")
	if err != nil {
		return "", nil, err
	}

	var (
		outer []string
		hints []ColumnHint
	)
	for _, s := range splits {
		outer = append(outer, `"t0".`+sqlexpr.QuoteIdentifier(s.name))
		hints = append(hints, ColumnHint{Name: s.name, Role: RoleSplit, Granularity: string(s.granularity)})
	}
	for _, m := range spec.Metrics {
		outer = append(outer, `"t0".`+sqlexpr.QuoteIdentifier(m.Name))
		hints = append(hints, ColumnHint{Name: m.Name, Role: RoleMetric, Metric: m.Name})
		for i, c := range spec.Compares {
			label := compareLabel(c)
			name := m.Name + " " + label
			alias := fmt.Sprintf(`"t%d"`, i+1)
			outer = append(outer, alias+"."+sqlexpr.QuoteIdentifier(name))
			hints = append(hints, ColumnHint{Name: name, Role: RoleCompare, Metric: m.Name, ComparePeriod: label})
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(outer, ", "))
	b.WriteString(" FROM (")
	b.WriteString(base)
	b.WriteString(`) AS "t0"`)

	var usingCols []string
	for _, s := range splits {
		usingCols = append(usingCols, sqlexpr.QuoteIdentifier(s.name))
	}
	for i, c := range spec.Compares {
		sub, err := buildPeriodSubquery(spec, source, where, splits, c.Interval, compareLabel(c))
		if err != nil {
			return "", nil, err
		}
		alias := fmt.Sprintf(`"t%d"`, i+1)
		if len(usingCols) == 0 {
			b.WriteString(" CROSS JOIN (")
			b.WriteString(sub)
			b.WriteString(") AS " + alias)
		} else {
			b.WriteString(" LEFT JOIN (")
			b.WriteString(sub)
			b.WriteString(") AS " + alias + " USING (" + strings.Join(usingCols, ", ") + ")")
		}
	}
	return b.String(), hints, nil
}

// buildPeriodSubquery renders one grouped period. A non-empty shift
// renders a compared period: the where clause and time-bucketed splits
// are advanced by the interval and metric outputs carry the period label.
func buildPeriodSubquery(spec Spec, source string, where *pg_query.Node, splits []resolvedSplit, shift, label string) (string, error) {
	var targets []string
	for _, s := range splits {
		t, err := splitSelectSQL(spec, s, shift)
		if err != nil {
			return "", err
		}
		targets = append(targets, t)
	}
	for _, m := range spec.Metrics {
		name := m.Name
		if label != "" {
			name = m.Name + " " + label
		}
		t, err := metricSelectSQL(m, name, nil)
		if err != nil {
			return "", err
		}
		targets = append(targets, t)
	}

	periodWhere := where
	if shift != "" && where != nil {
		var err error
		periodWhere, err = shiftTime(where, spec.TimeColumn, shift)
		if err != nil {
			return "", err
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(targets, ", "))
	b.WriteString(" FROM (")
	b.WriteString(source)
	b.WriteString(") AS \"src\"")
	if periodWhere != nil {
		text, err := sqlexpr.DeparseExpr(periodWhere)
		if err != nil {
			return "", fmt.Errorf("deparse where clause: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(text)
	}
	writeGroupBy(&b, len(splits))
	return b.String(), nil
}

// buildTail validates and renders ORDER BY and LIMIT over the final
// projection.
func buildTail(spec Spec, hints []ColumnHint) (string, error) {
	var b strings.Builder
	if len(spec.Order) > 0 {
		names := make(map[string]bool, len(hints))
		for _, h := range hints {
			names[h.Name] = true
		}
		var parts []string
		for _, o := range spec.Order {
			if !names[o.Column] {
				return "", domain.ErrValidation("order column %q is not in the query output", o.Column)
			}
			part := sqlexpr.QuoteIdentifier(o.Column)
			if o.Descending {
				part += " DESC"
			}
			parts = append(parts, part)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if spec.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", spec.Limit)
	}
	return b.String(), nil
}

func writeGroupBy(b *strings.Builder, splitCount int) {
	if splitCount == 0 {
		return
	}
	ordinals := make([]string, splitCount)
	for i := range ordinals {
		ordinals[i] = fmt.Sprintf("%d", i+1)
	}
	b.WriteString(" GROUP BY ")
	b.WriteString(strings.Join(ordinals, ", "))
}

func compareLabel(c ComparePeriod) string {
	if c.Label != "" {
		return c.Label
	}
	return c.Interval
}

func containsColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}
