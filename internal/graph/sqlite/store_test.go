package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateEntityNoUniqueness(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.CreateEntity(ctx, "Person", "Ada", map[string]any{"role": "engineer", "name": "ignored"})
	require.NoError(t, err)
	b, err := s.CreateEntity(ctx, "Person", "Ada", nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "Person", a.Label)
	assert.Equal(t, "Ada", a.Name)
	assert.Equal(t, "engineer", a.Properties["role"])
	assert.NotContains(t, a.Properties, "name")
	assert.NotEmpty(t, a.CreatedAt)
	assert.Empty(t, a.UpdatedAt)
}

func TestCreateEntityRejectsBadLabel(t *testing.T) {
	s := testStore(t)
	_, err := s.CreateEntity(context.Background(), "Bad Label`) DETACH DELETE n //", "x", nil)
	require.Error(t, err)
}

func TestUpdateEntity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e, err := s.CreateEntity(ctx, "Project", "mnemo", map[string]any{"stage": "alpha", "owner": "me"})
	require.NoError(t, err)

	updated, err := s.UpdateEntity(ctx, e.ID, map[string]any{"stage": "beta"})
	require.NoError(t, err)
	assert.Equal(t, "beta", updated.Properties["stage"])
	assert.Equal(t, "me", updated.Properties["owner"])
	assert.NotEmpty(t, updated.UpdatedAt)

	_, err = s.UpdateEntity(ctx, "9999", map[string]any{"x": 1})
	assert.ErrorIs(t, err, apperr.ErrEntityNotFound)
	_, err = s.UpdateEntity(ctx, "not-a-number", nil)
	assert.ErrorIs(t, err, apperr.ErrEntityNotFound)
}

func TestDeleteEntityDetach(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, _ := s.CreateEntity(ctx, "Node", "a", nil)
	_, _ = s.CreateEntity(ctx, "Node", "b", nil)
	_, err := s.CreateRelationship(ctx, graph.RelationshipSpec{
		FromLabel: "Node", FromName: "a", ToLabel: "Node", ToName: "b", Type: "links",
	})
	require.NoError(t, err)

	err = s.DeleteEntity(ctx, a.ID, false)
	require.Error(t, err, "connected entity must not be deleted without detach")
	assert.NotErrorIs(t, err, apperr.ErrEntityNotFound)

	require.NoError(t, s.DeleteEntity(ctx, a.ID, true))
	assert.ErrorIs(t, s.DeleteEntity(ctx, a.ID, true), apperr.ErrEntityNotFound)
}

func TestCreateRelationshipEndpoints(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	spec := graph.RelationshipSpec{
		FromLabel: "Person", FromName: "Ada",
		ToLabel: "Language", ToName: "Go",
		Type:       "uses daily",
		Properties: map[string]any{"since": "2012"},
	}

	_, err := s.CreateRelationship(ctx, spec)
	require.ErrorIs(t, err, apperr.ErrEndpointNotFound)
	res, err := s.Query(ctx, `SELECT count(*) AS n FROM relationships`, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, res.Records[0]["n"])

	_, _ = s.CreateEntity(ctx, "Person", "Ada", nil)
	_, err = s.CreateRelationship(ctx, spec)
	require.ErrorIs(t, err, apperr.ErrEndpointNotFound)

	_, _ = s.CreateEntity(ctx, "Language", "Go", nil)
	rel, err := s.CreateRelationship(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, "USES_DAILY", rel.Type)
	assert.Equal(t, "2012", rel.Properties["since"])

	res, err = s.Query(ctx, `SELECT type FROM relationships`, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "USES_DAILY", res.Records[0]["type"])
}

func TestCreateRelationshipFirstCreatedWins(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	first, _ := s.CreateEntity(ctx, "Tag", "dup", nil)
	_, _ = s.CreateEntity(ctx, "Tag", "dup", nil)
	_, _ = s.CreateEntity(ctx, "Thing", "src", nil)

	rel, err := s.CreateRelationship(ctx, graph.RelationshipSpec{
		FromLabel: "Thing", FromName: "src", ToName: "dup", Type: "HAS",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, rel.To)
}

func TestEnsureEntity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	e, created, err := s.EnsureEntity(ctx, "Tag", "go")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.EnsureEntity(ctx, "Tag", "go")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, e.ID, again.ID)
}

func TestFindEntities(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, n := range []string{"Golang", "Gopher", "Rust"} {
		_, _ = s.CreateEntity(ctx, "Lang", n, nil)
	}
	_, _ = s.CreateEntity(ctx, "Animal", "Gopher", nil)

	all, err := s.FindEntities(ctx, graph.EntityFilter{NameContains: "go"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	langs, err := s.FindEntities(ctx, graph.EntityFilter{Label: "Lang", NameContains: "go"})
	require.NoError(t, err)
	assert.Len(t, langs, 2)

	capped, err := s.FindEntities(ctx, graph.EntityFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, capped, 1)
	assert.Equal(t, "Golang", capped[0].Name)
}

func TestEntityContextDepth(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, n := range []string{"a", "b", "c", "d"} {
		_, _ = s.CreateEntity(ctx, "N", n, nil)
	}
	link := func(from, to string) {
		_, err := s.CreateRelationship(ctx, graph.RelationshipSpec{FromLabel: "N", FromName: from, ToLabel: "N", ToName: to, Type: "NEXT"})
		require.NoError(t, err)
	}
	link("a", "b")
	link("b", "c")
	link("d", "a")

	one, err := s.EntityContext(ctx, "N", "a", 1)
	require.NoError(t, err)
	assert.Equal(t, "a", one.Entity.Name)
	assert.Len(t, one.Relationships, 2)
	assert.ElementsMatch(t, []string{"b", "d"}, names(one.Neighbors))

	two, err := s.EntityContext(ctx, "N", "a", 2)
	require.NoError(t, err)
	assert.Len(t, two.Relationships, 3)
	assert.ElementsMatch(t, []string{"b", "c", "d"}, names(two.Neighbors))

	_, err = s.EntityContext(ctx, "N", "zzz", 1)
	assert.ErrorIs(t, err, apperr.ErrEntityNotFound)
}

func TestEntityContextListsNeighborPerPath(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, n := range []string{"a", "b"} {
		_, err := s.CreateEntity(ctx, "Node", n, nil)
		require.NoError(t, err)
	}
	for _, typ := range []string{"knows", "likes"} {
		_, err := s.CreateRelationship(ctx, graph.RelationshipSpec{FromLabel: "Node", FromName: "a", ToLabel: "Node", ToName: "b", Type: typ})
		require.NoError(t, err)
	}

	one, err := s.EntityContext(ctx, "Node", "a", 1)
	require.NoError(t, err)
	assert.Len(t, one.Relationships, 2)
	assert.Equal(t, []string{"b", "b"}, names(one.Neighbors))

	// a-knows-b-likes-a and a-likes-b-knows-a come back to the start.
	two, err := s.EntityContext(ctx, "Node", "a", 2)
	require.NoError(t, err)
	assert.Len(t, two.Relationships, 2)
	assert.ElementsMatch(t, []string{"a", "a", "b", "b"}, names(two.Neighbors))
}

func TestConceptGraph(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	for _, n := range []string{"go", "concurrency", "channels"} {
		_, _ = s.CreateEntity(ctx, models.LabelConcept, n, nil)
	}
	_, err := s.CreateRelationship(ctx, graph.RelationshipSpec{
		FromLabel: models.LabelConcept, FromName: "go", ToLabel: models.LabelConcept, ToName: "concurrency",
		Type: "relates_to", Properties: map[string]any{"strength": 0.9},
	})
	require.NoError(t, err)
	_, err = s.CreateRelationship(ctx, graph.RelationshipSpec{
		FromLabel: models.LabelConcept, FromName: "concurrency", ToLabel: models.LabelConcept, ToName: "channels",
		Type: "relates_to",
	})
	require.NoError(t, err)

	kg, err := s.ConceptGraph(ctx, "go", 2)
	require.NoError(t, err)
	assert.Equal(t, "go", kg.Center)
	assert.Len(t, kg.Nodes, 3)
	require.Len(t, kg.Edges, 2)
	assert.Equal(t, graph.KnowledgeEdge{From: "go", To: "concurrency", Type: "RELATES_TO", Strength: 0.9}, kg.Edges[0])
	assert.Equal(t, graph.DefaultStrength, kg.Edges[1].Strength)

	_, err = s.ConceptGraph(ctx, "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrEntityNotFound)
}

func TestMemoryQueries(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	mk := func(id, content, typ string, importance float64) {
		_, err := s.CreateEntity(ctx, models.LabelMemory, id, map[string]any{
			"id": id, "content": content, "type": typ, "importance": importance,
		})
		require.NoError(t, err)
	}
	mk("m1", "Go has goroutines", models.MemoryFact, 0.2)
	mk("m2", "GO modules are versioned", models.MemoryFact, 0.9)
	mk("m3", "Shipped release", models.MemoryEvent, 0.5)

	_, _, err := s.EnsureEntity(ctx, models.LabelTag, "golang")
	require.NoError(t, err)
	_, err = s.CreateRelationship(ctx, graph.RelationshipSpec{
		FromLabel: models.LabelMemory, FromName: "m2", ToLabel: models.LabelTag, ToName: "golang", Type: models.RelTaggedWith,
	})
	require.NoError(t, err)

	found, err := s.SearchMemories(ctx, graph.MemoryQuery{Query: "go"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "m2", found[0].ID, "higher importance first")
	assert.Equal(t, []string{"golang"}, found[0].Tags)

	events, err := s.SearchMemories(ctx, graph.MemoryQuery{Query: "", Type: models.MemoryEvent})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "m3", events[0].ID)

	byDate, err := s.MemoriesByDate(ctx, graph.DateQuery{Start: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, byDate, 3)
	none, err := s.MemoriesByDate(ctx, graph.DateQuery{Start: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, none)

	m, err := s.SetMemoryImportance(ctx, "m1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Importance)
	_, err = s.SetMemoryImportance(ctx, "nope", 1)
	assert.ErrorIs(t, err, apperr.ErrEntityNotFound)

	sum, err := s.SummarizeMemories(ctx, graph.SummaryQuery{IncludeTags: true})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	require.Len(t, sum.ByType, 2)
	assert.Equal(t, models.MemoryFact, sum.ByType[0].Type)
	assert.Equal(t, 2, sum.ByType[0].Count)
	assert.InDelta(t, 0.95, sum.ByType[0].AvgImportance, 1e-9)
	assert.Equal(t, []graph.TagSummary{{Tag: "golang", Count: 1}}, sum.ByTag)
}

func TestQueryNamedParams(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	_, _ = s.CreateEntity(ctx, "City", "Oslo", nil)

	res, err := s.Query(ctx, `SELECT name, label FROM entities WHERE name = :name`, map[string]any{"name": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "label"}, res.Columns)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "City", res.Records[0]["label"])
	assert.NotEmpty(t, res.Duration)

	_, err = s.Query(ctx, `SELECT nope FROM`, nil)
	assert.Error(t, err)
}

func names(es []models.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Name
	}
	return out
}
