package sqlexpr

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// catalogTypeNames maps the parser's internal pg_catalog type names back to
// the SQL spellings users write in CAST expressions.
var catalogTypeNames = map[string]string{
	"bool":        "BOOLEAN",
	"int2":        "SMALLINT",
	"int4":        "INTEGER",
	"int8":        "BIGINT",
	"float4":      "REAL",
	"float8":      "DOUBLE PRECISION",
	"numeric":     "NUMERIC",
	"bpchar":      "CHAR",
	"varchar":     "VARCHAR",
	"text":        "TEXT",
	"date":        "DATE",
	"time":        "TIME",
	"timetz":      "TIME WITH TIME ZONE",
	"timestamp":   "TIMESTAMP",
	"timestamptz": "TIMESTAMP WITH TIME ZONE",
	"interval":    "INTERVAL",
	"uuid":        "UUID",
	"bytea":       "BLOB",
	"json":        "JSON",
}

// SQLTypeName renders a parsed TypeName as the SQL type spelling. Types the
// parser does not normalize keep their own name, upper-cased.
func SQLTypeName(tn *pg_query.TypeName) string {
	if tn == nil || len(tn.Names) == 0 {
		return ""
	}
	last := tn.Names[len(tn.Names)-1].GetString_()
	if last == nil {
		return ""
	}
	if sql, ok := catalogTypeNames[last.Sval]; ok {
		return sql
	}
	return strings.ToUpper(last.Sval)
}
