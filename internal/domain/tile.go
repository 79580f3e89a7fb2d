package domain

import "time"

// Tile is a saved exploration: a base SQL query plus the parameter
// values the user has chosen for it. Parameters are stored as raw
// JSON-compatible values and inflated on load.
type Tile struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	SourceSQL   string         `json:"sourceSql"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// CreateTileRequest carries the caller-supplied fields for a new tile.
type CreateTileRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	SourceSQL   string         `json:"sourceSql"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// UpdateTileRequest carries a partial update. Nil fields are left as-is.
type UpdateTileRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	SourceSQL   *string        `json:"sourceSql,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
