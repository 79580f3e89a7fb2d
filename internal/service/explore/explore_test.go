package explore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querydeck/internal/domain"
	"querydeck/internal/engine"
	"querydeck/internal/params"
	"querydeck/internal/querysource"
	"querydeck/internal/sqlexpr"
	"querydeck/internal/tablequery"
)

type fakeEngine struct {
	columns   []querysource.Column
	result    *engine.Result
	lastQuery string
	introErr  error
}

func (f *fakeEngine) Query(_ context.Context, sqlQuery string) (*engine.Result, error) {
	f.lastQuery = sqlQuery
	if f.result != nil {
		return f.result, nil
	}
	return &engine.Result{Columns: []string{"n"}, Rows: [][]interface{}{{int64(1)}}, RowCount: 1}, nil
}

func (f *fakeEngine) IntrospectColumns(_ context.Context, _ string) ([]querysource.Column, error) {
	if f.introErr != nil {
		return nil, f.introErr
	}
	return f.columns, nil
}

type fakeMaxTimer struct{ value time.Time }

func (f *fakeMaxTimer) MaxTime(_ context.Context, _, _ string) (time.Time, error) {
	return f.value, nil
}

type memTiles struct {
	tiles map[string]*domain.Tile
}

func newMemTiles() *memTiles { return &memTiles{tiles: make(map[string]*domain.Tile)} }

func (m *memTiles) Create(_ context.Context, req domain.CreateTileRequest) (*domain.Tile, error) {
	tile := &domain.Tile{
		ID:         "tile-" + req.Name,
		Name:       req.Name,
		SourceSQL:  req.SourceSQL,
		Parameters: req.Parameters,
	}
	m.tiles[tile.ID] = tile
	return tile, nil
}

func (m *memTiles) GetByID(_ context.Context, id string) (*domain.Tile, error) {
	tile, ok := m.tiles[id]
	if !ok {
		return nil, domain.ErrNotFound("tile %s not found", id)
	}
	copied := *tile
	return &copied, nil
}

func (m *memTiles) GetByName(_ context.Context, name string) (*domain.Tile, error) {
	for _, tile := range m.tiles {
		if tile.Name == name {
			copied := *tile
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound("tile %s not found", name)
}

func (m *memTiles) List(_ context.Context) ([]domain.Tile, error) {
	var out []domain.Tile
	for _, tile := range m.tiles {
		out = append(out, *tile)
	}
	return out, nil
}

func (m *memTiles) Update(ctx context.Context, id string, req domain.UpdateTileRequest) (*domain.Tile, error) {
	tile, ok := m.tiles[id]
	if !ok {
		return nil, domain.ErrNotFound("tile %s not found", id)
	}
	if req.Name != nil {
		tile.Name = *req.Name
	}
	if req.SourceSQL != nil {
		tile.SourceSQL = *req.SourceSQL
	}
	if req.Parameters != nil {
		tile.Parameters = req.Parameters
	}
	copied := *tile
	return &copied, nil
}

func (m *memTiles) SetParameters(_ context.Context, id string, parameters map[string]any) error {
	tile, ok := m.tiles[id]
	if !ok {
		return domain.ErrNotFound("tile %s not found", id)
	}
	tile.Parameters = parameters
	return nil
}

func (m *memTiles) Delete(_ context.Context, id string) error {
	if _, ok := m.tiles[id]; !ok {
		return domain.ErrNotFound("tile %s not found", id)
	}
	delete(m.tiles, id)
	return nil
}

type memStates struct {
	state sqlexpr.TileState
}

func (m *memStates) Upsert(_ context.Context, tileID, key, value string) error {
	if m.state == nil {
		m.state = make(sqlexpr.TileState)
	}
	if m.state[tileID] == nil {
		m.state[tileID] = make(map[string]string)
	}
	m.state[tileID][key] = value
	return nil
}

func (m *memStates) Delete(_ context.Context, tileID, key string) error {
	if keys := m.state[tileID]; keys != nil {
		delete(keys, key)
	}
	return nil
}

func (m *memStates) LoadAll(_ context.Context) (sqlexpr.TileState, error) {
	return m.state, nil
}

func newTestService(eng *fakeEngine) (*Service, *memTiles, *StateRegistry) {
	tiles := newMemTiles()
	registry := NewStateRegistry(&memStates{})
	svc := NewService(eng, &fakeMaxTimer{}, tiles, registry, 0, nil)
	return svc, tiles, registry
}

func TestInspectSource(t *testing.T) {
	eng := &fakeEngine{columns: []querysource.Column{
		{Name: "ts", SQLType: "TIMESTAMP"},
		{Name: "amount", SQLType: "DOUBLE"},
	}}
	svc, _, _ := newTestService(eng)

	info, err := svc.InspectSource(context.Background(), "SELECT ts, amount FROM sales")
	require.NoError(t, err)
	assert.True(t, info.Simple)
	require.Len(t, info.Columns, 2)
	assert.Equal(t, "amount", info.Columns[1].Name)
}

func TestInspectSourceInlinesState(t *testing.T) {
	eng := &fakeEngine{columns: []querysource.Column{{Name: "amount", SQLType: "DOUBLE"}}}
	svc, tiles, registry := newTestService(eng)

	tile, err := tiles.Create(context.Background(), domain.CreateTileRequest{Name: "thresholds", SourceSQL: "SELECT 1"})
	require.NoError(t, err)
	require.NoError(t, registry.Publish(context.Background(), tile, "min_amount", "100"))

	info, err := svc.InspectSource(context.Background(),
		"SELECT amount FROM sales WHERE amount > TILE_STATE('thresholds', 'min_amount')")
	require.NoError(t, err)
	assert.Contains(t, info.SQL, "100")
	assert.NotContains(t, strings.ToLower(info.SQL), "tile_state")
}

func TestRunTableInlinesAndExecutes(t *testing.T) {
	eng := &fakeEngine{}
	svc, tiles, registry := newTestService(eng)

	tile, err := tiles.Create(context.Background(), domain.CreateTileRequest{Name: "thresholds", SourceSQL: "SELECT 1"})
	require.NoError(t, err)
	require.NoError(t, registry.Publish(context.Background(), tile, "min_amount", "100"))

	res, err := svc.RunTable(context.Background(), tablequery.Spec{
		Source:  "SELECT * FROM sales",
		Where:   "amount > TILE_STATE('thresholds', 'min_amount')",
		Metrics: []tablequery.Metric{{Name: "n", Expression: "count(*)"}},
	})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "100")
	assert.NotContains(t, strings.ToLower(res.SQL), "tile_state")
	assert.Equal(t, res.SQL, eng.lastQuery)
	assert.Equal(t, 1, res.RowCount)
}

func TestBuildTableAppliesDefaultRowLimit(t *testing.T) {
	registry := NewStateRegistry(&memStates{})
	svc := NewService(&fakeEngine{}, &fakeMaxTimer{}, newMemTiles(), registry, 500, nil)

	res, err := svc.BuildTable(context.Background(), tablequery.Spec{
		Source:  "SELECT * FROM sales",
		Metrics: []tablequery.Metric{{Name: "n", Expression: "count(*)"}},
	})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "LIMIT 500")

	res, err = svc.BuildTable(context.Background(), tablequery.Spec{
		Source:  "SELECT * FROM sales",
		Metrics: []tablequery.Metric{{Name: "n", Expression: "count(*)"}},
		Limit:   7,
	})
	require.NoError(t, err)
	assert.Contains(t, res.SQL, "LIMIT 7", "an explicit limit wins over the default")
}

func TestBuildTablePropagatesValidation(t *testing.T) {
	svc, _, _ := newTestService(&fakeEngine{})

	_, err := svc.BuildTable(context.Background(), tablequery.Spec{Source: "SELECT * FROM t"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateTileRejectsBadSource(t *testing.T) {
	svc, _, _ := newTestService(&fakeEngine{})

	_, err := svc.CreateTile(context.Background(), domain.CreateTileRequest{
		Name:      "broken",
		SourceSQL: "SELECT FROM FROM",
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSyncTileParametersDropsDepartedColumns(t *testing.T) {
	eng := &fakeEngine{columns: []querysource.Column{{Name: "amount", SQLType: "DOUBLE"}}}
	svc, tiles, _ := newTestService(eng)

	tile, err := tiles.Create(context.Background(), domain.CreateTileRequest{
		Name:      "t",
		SourceSQL: "SELECT amount FROM sales",
		Parameters: map[string]any{
			"metric": "sum(amount)",
			"split":  "region",
		},
	})
	require.NoError(t, err)

	defs := []params.Definition{
		{Name: "metric", Kind: params.KindAggregate},
		{Name: "split", Kind: params.KindColumn},
	}
	updated, err := svc.SyncTileParameters(context.Background(), tile.ID, defs)
	require.NoError(t, err)

	assert.Contains(t, updated.Parameters, "metric")
	assert.NotContains(t, updated.Parameters, "split", "reference to a departed column is dropped")
}

func TestPublishTileStateRejectsBadExpression(t *testing.T) {
	svc, tiles, _ := newTestService(&fakeEngine{})

	tile, err := tiles.Create(context.Background(), domain.CreateTileRequest{Name: "t", SourceSQL: "SELECT 1"})
	require.NoError(t, err)

	err = svc.PublishTileState(context.Background(), tile.ID, "k", "NOT ( VALID")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDeleteTileEvictsPublishedState(t *testing.T) {
	eng := &fakeEngine{columns: []querysource.Column{{Name: "amount", SQLType: "DOUBLE"}}}
	svc, tiles, registry := newTestService(eng)

	tile, err := tiles.Create(context.Background(), domain.CreateTileRequest{Name: "thresholds", SourceSQL: "SELECT 1"})
	require.NoError(t, err)
	require.NoError(t, registry.Publish(context.Background(), tile, "min_amount", "8"))

	source := "SELECT * FROM sales WHERE amount > TILE_STATE('thresholds', 'min_amount')"
	info, err := svc.InspectSource(context.Background(), source)
	require.NoError(t, err)
	require.Contains(t, info.SQL, "8")

	require.NoError(t, svc.DeleteTile(context.Background(), tile.ID))

	assert.NotContains(t, registry.Snapshot(), "thresholds")
	info, err = svc.InspectSource(context.Background(), source)
	require.NoError(t, err)
	assert.NotContains(t, info.SQL, "8", "deleted tile's state must not inline")
	assert.Contains(t, info.SQL, "NULL")
}

func TestUpdateTileRenameRekeysState(t *testing.T) {
	svc, tiles, registry := newTestService(&fakeEngine{})

	tile, err := tiles.Create(context.Background(), domain.CreateTileRequest{Name: "old", SourceSQL: "SELECT 1"})
	require.NoError(t, err)
	require.NoError(t, svc.PublishTileState(context.Background(), tile.ID, "k", "5"))

	name := "new"
	_, err = svc.UpdateTile(context.Background(), tile.ID, domain.UpdateTileRequest{Name: &name})
	require.NoError(t, err)

	snapshot := registry.Snapshot()
	assert.NotContains(t, snapshot, "old")
	assert.Equal(t, "5", snapshot["new"]["k"])
}

func TestUnpublishRemovesFromSnapshot(t *testing.T) {
	svc, tiles, registry := newTestService(&fakeEngine{})

	tile, err := tiles.Create(context.Background(), domain.CreateTileRequest{Name: "t", SourceSQL: "SELECT 1"})
	require.NoError(t, err)

	require.NoError(t, svc.PublishTileState(context.Background(), tile.ID, "k", "5"))
	assert.Equal(t, "5", registry.Snapshot()["t"]["k"])

	require.NoError(t, svc.UnpublishTileState(context.Background(), tile.ID, "k"))
	assert.Empty(t, registry.Snapshot()["t"])
}
