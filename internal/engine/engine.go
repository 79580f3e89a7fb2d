// Package engine executes analytical queries against DuckDB and exposes
// column introspection over arbitrary source queries.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"querydeck/internal/querysource"
)

// Result holds the structured output of a SQL query.
type Result struct {
	Columns  []string        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	RowCount int             `json:"rowCount"`
}

// Engine wraps a DuckDB connection.
type Engine struct {
	db *sql.DB
}

// New creates an Engine over an open DuckDB connection.
func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Open opens a DuckDB database at the given path. An empty path opens an
// in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return db, nil
}

// DB exposes the underlying connection for callers that manage their own
// statements, such as fixtures in tests.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Query executes sqlQuery and returns structured results.
func (e *Engine) Query(ctx context.Context, sqlQuery string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	return scanRows(rows)
}

// IntrospectColumns reports the output columns of a source query without
// materializing any rows, by wrapping it in a zero-row subquery probe.
func (e *Engine) IntrospectColumns(ctx context.Context, sourceSQL string) ([]querysource.Column, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sourceSQL), ";"))
	probe := fmt.Sprintf("SELECT * FROM (%s) AS probe LIMIT 0", trimmed)
	rows, err := e.db.QueryContext(ctx, probe)
	if err != nil {
		return nil, fmt.Errorf("introspect query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	columns := make([]querysource.Column, 0, len(types))
	for _, t := range types {
		dbType := t.DatabaseTypeName()
		columns = append(columns, querysource.Column{
			Name:       t.Name(),
			SQLType:    dbType,
			MultiValue: isListType(dbType),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return columns, nil
}

func isListType(dbType string) bool {
	upper := strings.ToUpper(dbType)
	return strings.Contains(upper, "[]") || strings.Contains(upper, "LIST")
}

func scanRows(rows *sql.Rows) (*Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var resultRows [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// Convert byte slices to strings for JSON serialization
		row := make([]interface{}, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Columns:  cols,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}
