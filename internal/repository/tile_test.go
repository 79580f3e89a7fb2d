package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querydeck/internal/domain"
)

func TestTileCreateAndGet(t *testing.T) {
	conn := newTestDB(t)
	repo := NewTileRepo(conn, conn)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.CreateTileRequest{
		Name:      "revenue",
		SourceSQL: "SELECT * FROM sales",
		Parameters: map[string]any{
			"metric": "sum(amount)",
			"limit":  float64(100),
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "revenue", got.Name)
	assert.Equal(t, "SELECT * FROM sales", got.SourceSQL)
	assert.Equal(t, "sum(amount)", got.Parameters["metric"])
	assert.Equal(t, float64(100), got.Parameters["limit"])

	byName, err := repo.GetByName(ctx, "revenue")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestTileCreateValidation(t *testing.T) {
	conn := newTestDB(t)
	repo := NewTileRepo(conn, conn)
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.CreateTileRequest{SourceSQL: "SELECT 1"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = repo.Create(ctx, domain.CreateTileRequest{Name: "t"})
	require.ErrorAs(t, err, &verr)
}

func TestTileDuplicateNameConflicts(t *testing.T) {
	conn := newTestDB(t)
	repo := NewTileRepo(conn, conn)
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.CreateTileRequest{Name: "dup", SourceSQL: "SELECT 1"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.CreateTileRequest{Name: "dup", SourceSQL: "SELECT 2"})
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestTileGetMissing(t *testing.T) {
	conn := newTestDB(t)
	repo := NewTileRepo(conn, conn)

	_, err := repo.GetByID(context.Background(), "nope")
	var nerr *domain.NotFoundError
	require.ErrorAs(t, err, &nerr)
}

func TestTileUpdate(t *testing.T) {
	conn := newTestDB(t)
	repo := NewTileRepo(conn, conn)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.CreateTileRequest{Name: "before", SourceSQL: "SELECT 1"})
	require.NoError(t, err)

	name := "after"
	updated, err := repo.Update(ctx, created.ID, domain.UpdateTileRequest{
		Name:       &name,
		Parameters: map[string]any{"limit": float64(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.Name)
	assert.Equal(t, "SELECT 1", updated.SourceSQL, "unset fields stay unchanged")

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, float64(5), got.Parameters["limit"])
}

func TestTileSetParameters(t *testing.T) {
	conn := newTestDB(t)
	repo := NewTileRepo(conn, conn)
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.CreateTileRequest{Name: "t", SourceSQL: "SELECT 1"})
	require.NoError(t, err)

	require.NoError(t, repo.SetParameters(ctx, created.ID, map[string]any{"region": "EU"}))
	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "EU", got.Parameters["region"])

	var nerr *domain.NotFoundError
	require.ErrorAs(t, repo.SetParameters(ctx, "missing", nil), &nerr)
}

func TestTileListAndDelete(t *testing.T) {
	conn := newTestDB(t)
	repo := NewTileRepo(conn, conn)
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.CreateTileRequest{Name: "b", SourceSQL: "SELECT 1"})
	require.NoError(t, err)
	a, err := repo.Create(ctx, domain.CreateTileRequest{Name: "a", SourceSQL: "SELECT 1"})
	require.NoError(t, err)

	tiles, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tiles, 2)
	assert.Equal(t, "a", tiles[0].Name)
	assert.Equal(t, "b", tiles[1].Name)

	require.NoError(t, repo.Delete(ctx, a.ID))
	tiles, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, tiles, 1)

	var nerr *domain.NotFoundError
	require.ErrorAs(t, repo.Delete(ctx, a.ID), &nerr)
}
