package engine

import (
	"context"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE events (ts TIMESTAMP, region VARCHAR, amount DOUBLE, tags VARCHAR[])`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO events VALUES
		('2024-06-01 10:00:00', 'EU', 10.5, ['a', 'b']),
		('2024-06-01 11:00:00', 'US', 20.0, ['c']),
		('2024-06-02 09:00:00', 'EU', 5.0, [])`)
	require.NoError(t, err)
	return New(db)
}

func TestEngineQuery(t *testing.T) {
	eng := newTestEngine(t)

	res, err := eng.Query(context.Background(), "SELECT region, COUNT(*) AS n FROM events GROUP BY 1 ORDER BY 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "n"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "EU", res.Rows[0][0])
}

func TestEngineQueryError(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.Query(context.Background(), "SELECT nope FROM events")
	require.Error(t, err)
}

func TestIntrospectColumns(t *testing.T) {
	eng := newTestEngine(t)

	cols, err := eng.IntrospectColumns(context.Background(), "SELECT ts, region, amount, tags FROM events;")
	require.NoError(t, err)
	require.Len(t, cols, 4)

	assert.Equal(t, "ts", cols[0].Name)
	assert.Equal(t, "region", cols[1].Name)
	assert.False(t, cols[1].MultiValue)
	assert.Equal(t, "tags", cols[3].Name)
	assert.True(t, cols[3].MultiValue)
}

func TestIntrospectColumnsScansNoRows(t *testing.T) {
	eng := newTestEngine(t)

	cols, err := eng.IntrospectColumns(context.Background(), "SELECT region FROM events WHERE amount > 0")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "region", cols[0].Name)
}

func TestIntrospectColumnsInvalidSource(t *testing.T) {
	eng := newTestEngine(t)

	_, err := eng.IntrospectColumns(context.Background(), "SELECT FROM FROM")
	require.Error(t, err)
}
