package explore

import (
	"context"
	"log/slog"
	"time"

	"querydeck/internal/domain"
	"querydeck/internal/engine"
	"querydeck/internal/params"
	"querydeck/internal/querysource"
	"querydeck/internal/sqlexpr"
	"querydeck/internal/tablequery"
)

// QueryEngine is the execution surface the service needs.
type QueryEngine interface {
	Query(ctx context.Context, sqlQuery string) (*engine.Result, error)
	IntrospectColumns(ctx context.Context, sourceSQL string) ([]querysource.Column, error)
}

// TileStore is the persistence surface for tiles.
type TileStore interface {
	Create(ctx context.Context, req domain.CreateTileRequest) (*domain.Tile, error)
	GetByID(ctx context.Context, id string) (*domain.Tile, error)
	GetByName(ctx context.Context, name string) (*domain.Tile, error)
	List(ctx context.Context) ([]domain.Tile, error)
	Update(ctx context.Context, id string, req domain.UpdateTileRequest) (*domain.Tile, error)
	SetParameters(ctx context.Context, id string, parameters map[string]any) error
	Delete(ctx context.Context, id string) error
}

// MaxTimer answers the latest-timestamp question for a source.
type MaxTimer interface {
	MaxTime(ctx context.Context, sourceSQL, timeColumn string) (time.Time, error)
}

// Service implements the exploration operations behind the API.
type Service struct {
	engine       QueryEngine
	maxTime      MaxTimer
	tiles        TileStore
	states       *StateRegistry
	defaultLimit int
	logger       *slog.Logger
}

// NewService wires the exploration service. defaultLimit is the row
// limit applied to table queries that set none; 0 leaves them unbounded.
func NewService(eng QueryEngine, maxTime MaxTimer, tiles TileStore, states *StateRegistry, defaultLimit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:       eng,
		maxTime:      maxTime,
		tiles:        tiles,
		states:       states,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// SourceInfo describes a source query after state inlining.
type SourceInfo struct {
	SQL     string               `json:"sql"`
	Columns []querysource.Column `json:"columns"`
	Simple  bool                 `json:"simple"`
}

// TableResult is a built table query together with its execution output.
type TableResult struct {
	SQL      string                 `json:"sql"`
	Hints    []tablequery.ColumnHint `json:"hints"`
	Columns  []string               `json:"columns"`
	Rows     [][]interface{}        `json:"rows"`
	RowCount int                    `json:"rowCount"`
}

// InspectSource inlines published state into a source query, validates
// it, and reports its output columns without scanning any rows.
func (s *Service) InspectSource(ctx context.Context, sourceSQL string) (*SourceInfo, error) {
	inlined, err := s.inlineSource(sourceSQL)
	if err != nil {
		return nil, err
	}
	columns, err := s.engine.IntrospectColumns(ctx, inlined)
	if err != nil {
		return nil, domain.ErrValidation("source query failed introspection: %v", err)
	}
	src, err := querysource.New(inlined, columns)
	if err != nil {
		return nil, err
	}
	return &SourceInfo{SQL: inlined, Columns: columns, Simple: src.IsSimpleSelect()}, nil
}

// BuildTable inlines published state into the spec's source and where
// clause, applies the default row limit when none is set, then
// assembles the table query.
func (s *Service) BuildTable(ctx context.Context, spec tablequery.Spec) (*tablequery.Result, error) {
	if spec.Limit == 0 {
		spec.Limit = s.defaultLimit
	}
	inlined, err := s.inlineSpec(spec)
	if err != nil {
		return nil, err
	}
	return tablequery.Build(inlined)
}

// RunTable builds and executes a table query.
func (s *Service) RunTable(ctx context.Context, spec tablequery.Spec) (*TableResult, error) {
	built, err := s.BuildTable(ctx, spec)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.engine.Query(ctx, built.SQL)
	if err != nil {
		s.logger.Warn("table query failed", "error", err)
		return nil, err
	}
	s.logger.Debug("table query executed",
		"rows", res.RowCount,
		"duration_ms", time.Since(start).Milliseconds())

	return &TableResult{
		SQL:      built.SQL,
		Hints:    built.Hints,
		Columns:  res.Columns,
		Rows:     res.Rows,
		RowCount: res.RowCount,
	}, nil
}

// MaxTime reports the latest value of the time column in a source, with
// published state inlined first so the cache keys on the effective query.
func (s *Service) MaxTime(ctx context.Context, sourceSQL, timeColumn string) (time.Time, error) {
	if timeColumn == "" {
		return time.Time{}, domain.ErrValidation("time column is required")
	}
	inlined, err := s.inlineSource(sourceSQL)
	if err != nil {
		return time.Time{}, err
	}
	return s.maxTime.MaxTime(ctx, inlined, timeColumn)
}

// CreateTile validates the tile's source query and persists the tile.
func (s *Service) CreateTile(ctx context.Context, req domain.CreateTileRequest) (*domain.Tile, error) {
	if _, err := s.InspectSource(ctx, req.SourceSQL); err != nil {
		return nil, err
	}
	return s.tiles.Create(ctx, req)
}

// GetTile returns a tile by id.
func (s *Service) GetTile(ctx context.Context, id string) (*domain.Tile, error) {
	return s.tiles.GetByID(ctx, id)
}

// ListTiles returns all tiles.
func (s *Service) ListTiles(ctx context.Context) ([]domain.Tile, error) {
	return s.tiles.List(ctx)
}

// UpdateTile applies a partial update, validating a replacement source.
// A rename moves the tile's published state under the new name.
func (s *Service) UpdateTile(ctx context.Context, id string, req domain.UpdateTileRequest) (*domain.Tile, error) {
	if req.SourceSQL != nil {
		if _, err := s.InspectSource(ctx, *req.SourceSQL); err != nil {
			return nil, err
		}
	}
	current, err := s.tiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.tiles.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if updated.Name != current.Name {
		s.states.Rekey(current.Name, updated.Name)
	}
	return updated, nil
}

// DeleteTile removes a tile and its published state. The registry entry
// is evicted as well; the store rows go with the tile's delete cascade.
func (s *Service) DeleteTile(ctx context.Context, id string) error {
	tile, err := s.tiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tiles.Delete(ctx, id); err != nil {
		return err
	}
	s.states.Evict(tile.Name)
	return nil
}

// SyncTileParameters reloads a tile's stored parameter values through
// the given definitions against the source's current columns: values
// are inflated, references to departed columns are dropped, and the
// surviving values are persisted back.
func (s *Service) SyncTileParameters(ctx context.Context, id string, defs []params.Definition) (*domain.Tile, error) {
	tile, err := s.tiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	info, err := s.InspectSource(ctx, tile.SourceSQL)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(info.Columns))
	for i, c := range info.Columns {
		names[i] = c.Name
	}

	inflated := params.InflateAll(tile.Parameters, defs)
	restricted := params.RestrictToColumns(inflated, defs, names)
	raw := restricted.Raw()

	if err := s.tiles.SetParameters(ctx, id, raw); err != nil {
		return nil, err
	}
	tile.Parameters = raw
	return tile, nil
}

// PublishTileState publishes a state value under the tile's name.
func (s *Service) PublishTileState(ctx context.Context, id, key, value string) error {
	tile, err := s.tiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.states.Publish(ctx, tile, key, value)
}

// UnpublishTileState removes a published state value.
func (s *Service) UnpublishTileState(ctx context.Context, id, key string) error {
	tile, err := s.tiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.states.Unpublish(ctx, tile, key)
}

// TileStateFor returns the published state of one tile by name.
func (s *Service) TileStateFor(name string) map[string]string {
	return s.states.TileState(name)
}

func (s *Service) inlineSource(sourceSQL string) (string, error) {
	if sourceSQL == "" {
		return "", domain.ErrValidation("source query is required")
	}
	inlined, err := sqlexpr.InlineStatementState(sourceSQL, s.states.Snapshot())
	if err != nil {
		return "", domain.ErrValidation("invalid source query: %v", err)
	}
	return inlined, nil
}

// inlineSpec resolves state references in the spec's source and where
// clause before the builder sees them.
func (s *Service) inlineSpec(spec tablequery.Spec) (tablequery.Spec, error) {
	state := s.states.Snapshot()

	inlined, err := s.inlineSource(spec.Source)
	if err != nil {
		return spec, err
	}
	spec.Source = inlined

	if spec.Where != "" {
		expr, err := sqlexpr.ParseExpr(spec.Where)
		if err != nil {
			return spec, domain.ErrValidation("invalid where clause: %v", err)
		}
		expr, err = sqlexpr.InlineTileState(expr, state)
		if err != nil {
			return spec, domain.ErrValidation("invalid where clause: %v", err)
		}
		text, err := sqlexpr.DeparseExpr(expr)
		if err != nil {
			return spec, err
		}
		spec.Where = text
	}
	return spec, nil
}
