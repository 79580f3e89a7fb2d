// Package tablequery assembles composite analytical SQL queries: grouping,
// time bucketing, pivoting, and period-over-period comparison over a base
// source query.
package tablequery

// Granularity is a time bucketing unit passed to DATE_TRUNC.
type Granularity string

// Supported time bucketing granularities.
const (
	GranularitySecond  Granularity = "second"
	GranularityMinute  Granularity = "minute"
	GranularityHour    Granularity = "hour"
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityYear    Granularity = "year"
)

var validGranularities = map[Granularity]bool{
	GranularitySecond:  true,
	GranularityMinute:  true,
	GranularityHour:    true,
	GranularityDay:     true,
	GranularityWeek:    true,
	GranularityMonth:   true,
	GranularityQuarter: true,
	GranularityYear:    true,
}

// Split is one grouping dimension: an expression over source columns, with an
// optional time bucketing granularity applied on top.
type Split struct {
	Name        string      `json:"name,omitempty"`
	Expression  string      `json:"expression"`
	Granularity Granularity `json:"granularity,omitempty"`
}

// Pivot spreads each metric across the enumerated values of one column.
type Pivot struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

// Metric is a named aggregate expression.
type Metric struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// ComparePeriod is one relative period to compare the current window against.
// Interval is a SQL interval phrase such as "1 day" or "4 weeks".
type ComparePeriod struct {
	Label    string `json:"label"`
	Interval string `json:"interval"`
}

// Strategy selects how period comparisons are computed.
type Strategy string

// Comparison strategies. Auto resolves deterministically: filtered for at
// most one compare period, join otherwise, and always join when a split
// buckets the time column (a single-scan filtered comparison cannot align
// shifted time buckets).
const (
	StrategyAuto     Strategy = "auto"
	StrategyFiltered Strategy = "filtered"
	StrategyJoin     Strategy = "join"
)

// Order is one ORDER BY entry over the final projection.
type Order struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending,omitempty"`
}

// Spec is the declarative input of a table query build.
type Spec struct {
	Source     string          `json:"source"`
	TimeColumn string          `json:"timeColumn,omitempty"`
	Where      string          `json:"where,omitempty"`
	Splits     []Split         `json:"splits,omitempty"`
	Pivot      *Pivot          `json:"pivot,omitempty"`
	Metrics    []Metric        `json:"metrics"`
	Compares   []ComparePeriod `json:"compares,omitempty"`
	Strategy   Strategy        `json:"strategy,omitempty"`
	Order      []Order         `json:"order,omitempty"`
	Limit      int             `json:"limit,omitempty"`
}

// Column roles reported in hints.
const (
	RoleSplit   = "split"
	RoleMetric  = "metric"
	RolePivot   = "pivot"
	RoleCompare = "compare"
)

// ColumnHint describes one output column of the built query for display.
type ColumnHint struct {
	Name          string `json:"name"`
	Role          string `json:"role"`
	Metric        string `json:"metric,omitempty"`
	PivotValue    string `json:"pivotValue,omitempty"`
	ComparePeriod string `json:"comparePeriod,omitempty"`
	Granularity   string `json:"granularity,omitempty"`
}
