// Package explore wires query construction, tile persistence, published
// state, and DuckDB execution into the operations the API exposes.
package explore

import (
	"context"
	"sync"

	"querydeck/internal/domain"
	"querydeck/internal/sqlexpr"
)

// StateStore is the persistence behind the registry.
type StateStore interface {
	Upsert(ctx context.Context, tileID, key, value string) error
	Delete(ctx context.Context, tileID, key string) error
	LoadAll(ctx context.Context) (sqlexpr.TileState, error)
}

// StateRegistry holds the published state of every tile in memory,
// keyed by tile name, and writes through to the store on every change.
type StateRegistry struct {
	store StateStore

	mu    sync.RWMutex
	state sqlexpr.TileState
}

// NewStateRegistry creates an empty registry over the given store.
func NewStateRegistry(store StateStore) *StateRegistry {
	return &StateRegistry{store: store, state: make(sqlexpr.TileState)}
}

// Load replaces the in-memory state with everything the store holds.
func (r *StateRegistry) Load(ctx context.Context) error {
	state, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	return nil
}

// Publish validates that value is a parseable SQL expression, persists
// it, and makes it visible to subsequent inlining.
func (r *StateRegistry) Publish(ctx context.Context, tile *domain.Tile, key, value string) error {
	if key == "" {
		return domain.ErrValidation("state key is required")
	}
	if _, err := sqlexpr.ParseExpr(value); err != nil {
		return domain.ErrValidation("state value %q is not a valid expression: %v", value, err)
	}
	if err := r.store.Upsert(ctx, tile.ID, key, value); err != nil {
		return err
	}
	r.mu.Lock()
	if r.state[tile.Name] == nil {
		r.state[tile.Name] = make(map[string]string)
	}
	r.state[tile.Name][key] = value
	r.mu.Unlock()
	return nil
}

// Unpublish removes one state value. Unpublishing an absent key is not
// an error.
func (r *StateRegistry) Unpublish(ctx context.Context, tile *domain.Tile, key string) error {
	if err := r.store.Delete(ctx, tile.ID, key); err != nil {
		return err
	}
	r.mu.Lock()
	if keys := r.state[tile.Name]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(r.state, tile.Name)
		}
	}
	r.mu.Unlock()
	return nil
}

// Evict drops a tile's published state from memory. Stored rows are
// removed by the tile delete cascade, so there is no store call here.
func (r *StateRegistry) Evict(tileName string) {
	r.mu.Lock()
	delete(r.state, tileName)
	r.mu.Unlock()
}

// Rekey moves a tile's published state under a new name after a rename,
// so state references resolve against the name tiles currently have.
func (r *StateRegistry) Rekey(oldName, newName string) {
	if oldName == newName {
		return
	}
	r.mu.Lock()
	if keys, ok := r.state[oldName]; ok {
		delete(r.state, oldName)
		r.state[newName] = keys
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current state safe to use after the
// registry changes.
func (r *StateRegistry) Snapshot() sqlexpr.TileState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make(sqlexpr.TileState, len(r.state))
	for tile, keys := range r.state {
		copied := make(map[string]string, len(keys))
		for k, v := range keys {
			copied[k] = v
		}
		snapshot[tile] = copied
	}
	return snapshot
}

// TileState returns the published state of one tile by name.
func (r *StateRegistry) TileState(tileName string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := r.state[tileName]
	copied := make(map[string]string, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	return copied
}
