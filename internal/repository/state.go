package repository

import (
	"context"
	"database/sql"
	"time"

	"querydeck/internal/sqlexpr"
)

// StateRepo persists published tile state values. The full state is
// loaded into the in-memory registry at startup and kept in sync on
// every publish.
type StateRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewStateRepo creates a StateRepo over a write/read pool pair.
func NewStateRepo(writeDB, readDB *sql.DB) *StateRepo {
	return &StateRepo{writeDB: writeDB, readDB: readDB}
}

// Upsert publishes a state value for a tile, replacing any previous
// value under the same key.
func (r *StateRepo) Upsert(ctx context.Context, tileID, key, value string) error {
	_, err := r.writeDB.ExecContext(ctx,
		`INSERT INTO tile_state (tile_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tile_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		tileID, key, value, time.Now().UTC())
	return mapDBError(err)
}

// Delete unpublishes one state value. Deleting an absent key is not an
// error.
func (r *StateRepo) Delete(ctx context.Context, tileID, key string) error {
	_, err := r.writeDB.ExecContext(ctx,
		"DELETE FROM tile_state WHERE tile_id = ? AND key = ?", tileID, key)
	return mapDBError(err)
}

// LoadAll returns the complete published state across all tiles, keyed
// by tile name since that is how queries reference state.
func (r *StateRepo) LoadAll(ctx context.Context) (sqlexpr.TileState, error) {
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT t.name, s.key, s.value FROM tile_state s JOIN tiles t ON t.id = s.tile_id`)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	state := make(sqlexpr.TileState)
	for rows.Next() {
		var tileName, key, value string
		if err := rows.Scan(&tileName, &key, &value); err != nil {
			return nil, err
		}
		if state[tileName] == nil {
			state[tileName] = make(map[string]string)
		}
		state[tileName][key] = value
	}
	return state, rows.Err()
}

// LoadTile returns the published state of one tile.
func (r *StateRepo) LoadTile(ctx context.Context, tileID string) (map[string]string, error) {
	rows, err := r.readDB.QueryContext(ctx,
		"SELECT key, value FROM tile_state WHERE tile_id = ?", tileID)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	state := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		state[key] = value
	}
	return state, rows.Err()
}
