package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"querydeck/internal/domain"
)

// TileRepo persists tiles in the SQLite metastore. Writes go through the
// single-connection write pool; reads use the read pool.
type TileRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewTileRepo creates a TileRepo over a write/read pool pair.
func NewTileRepo(writeDB, readDB *sql.DB) *TileRepo {
	return &TileRepo{writeDB: writeDB, readDB: readDB}
}

const tileColumns = "id, name, description, source_sql, parameters, created_at, updated_at"

// Create inserts a new tile and returns it.
func (r *TileRepo) Create(ctx context.Context, req domain.CreateTileRequest) (*domain.Tile, error) {
	if req.Name == "" {
		return nil, domain.ErrValidation("tile name is required")
	}
	if req.SourceSQL == "" {
		return nil, domain.ErrValidation("tile source query is required")
	}
	params, err := marshalParameters(req.Parameters)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tile := &domain.Tile{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		SourceSQL:   req.SourceSQL,
		Parameters:  req.Parameters,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.writeDB.ExecContext(ctx,
		`INSERT INTO tiles (id, name, description, source_sql, parameters, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tile.ID, tile.Name, tile.Description, tile.SourceSQL, params, tile.CreatedAt, tile.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	return tile, nil
}

// GetByID returns the tile with the given id.
func (r *TileRepo) GetByID(ctx context.Context, id string) (*domain.Tile, error) {
	row := r.readDB.QueryRowContext(ctx,
		"SELECT "+tileColumns+" FROM tiles WHERE id = ?", id)
	return scanTile(row)
}

// GetByName returns the tile with the given name.
func (r *TileRepo) GetByName(ctx context.Context, name string) (*domain.Tile, error) {
	row := r.readDB.QueryRowContext(ctx,
		"SELECT "+tileColumns+" FROM tiles WHERE name = ?", name)
	return scanTile(row)
}

// List returns all tiles ordered by name.
func (r *TileRepo) List(ctx context.Context) ([]domain.Tile, error) {
	rows, err := r.readDB.QueryContext(ctx,
		"SELECT "+tileColumns+" FROM tiles ORDER BY name")
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var tiles []domain.Tile
	for rows.Next() {
		tile, err := scanTile(rows)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, *tile)
	}
	return tiles, rows.Err()
}

// Update applies a partial update and returns the updated tile.
func (r *TileRepo) Update(ctx context.Context, id string, req domain.UpdateTileRequest) (*domain.Tile, error) {
	tile, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		if *req.Name == "" {
			return nil, domain.ErrValidation("tile name must not be empty")
		}
		tile.Name = *req.Name
	}
	if req.Description != nil {
		tile.Description = *req.Description
	}
	if req.SourceSQL != nil {
		if *req.SourceSQL == "" {
			return nil, domain.ErrValidation("tile source query must not be empty")
		}
		tile.SourceSQL = *req.SourceSQL
	}
	if req.Parameters != nil {
		tile.Parameters = req.Parameters
	}
	tile.UpdatedAt = time.Now().UTC()

	params, err := marshalParameters(tile.Parameters)
	if err != nil {
		return nil, err
	}
	_, err = r.writeDB.ExecContext(ctx,
		`UPDATE tiles SET name = ?, description = ?, source_sql = ?, parameters = ?, updated_at = ?
		 WHERE id = ?`,
		tile.Name, tile.Description, tile.SourceSQL, params, tile.UpdatedAt, id)
	if err != nil {
		return nil, mapDBError(err)
	}
	return tile, nil
}

// SetParameters replaces the stored parameter values of a tile.
func (r *TileRepo) SetParameters(ctx context.Context, id string, parameters map[string]any) error {
	params, err := marshalParameters(parameters)
	if err != nil {
		return err
	}
	res, err := r.writeDB.ExecContext(ctx,
		"UPDATE tiles SET parameters = ?, updated_at = ? WHERE id = ?",
		params, time.Now().UTC(), id)
	if err != nil {
		return mapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("tile %s not found", id)
	}
	return nil
}

// Delete removes a tile and, through the schema's cascade, its state.
func (r *TileRepo) Delete(ctx context.Context, id string) error {
	res, err := r.writeDB.ExecContext(ctx, "DELETE FROM tiles WHERE id = ?", id)
	if err != nil {
		return mapDBError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound("tile %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTile(row rowScanner) (*domain.Tile, error) {
	var (
		tile   domain.Tile
		params string
	)
	err := row.Scan(&tile.ID, &tile.Name, &tile.Description, &tile.SourceSQL,
		&params, &tile.CreatedAt, &tile.UpdatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	if params != "" && params != "{}" {
		if err := json.Unmarshal([]byte(params), &tile.Parameters); err != nil {
			return nil, fmt.Errorf("decode tile parameters: %w", err)
		}
	}
	return &tile, nil
}

func marshalParameters(parameters map[string]any) (string, error) {
	if len(parameters) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(parameters)
	if err != nil {
		return "", fmt.Errorf("encode tile parameters: %w", err)
	}
	return string(raw), nil
}
