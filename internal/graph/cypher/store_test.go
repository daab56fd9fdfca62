package cypher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

func TestQuoteAndPattern(t *testing.T) {
	assert.Equal(t, "`Person`", quote("Person"))
	assert.Equal(t, "`a``b`", quote("a`b"))

	p, err := pattern("n", "")
	require.NoError(t, err)
	assert.Equal(t, "(n)", p)

	p, err = pattern("n", "Concept")
	require.NoError(t, err)
	assert.Equal(t, "(n:`Concept`)", p)

	_, err = pattern("n", "Bad`) DETACH DELETE n //")
	assert.Error(t, err)
}

func TestStorable(t *testing.T) {
	out := storable(map[string]any{
		"name":      "dropped",
		"createdAt": "dropped",
		"role":      "engineer",
		"meta":      map[string]any{"k": "v"},
	})
	assert.Equal(t, map[string]any{"role": "engineer", "meta": `{"k":"v"}`}, out)
}

func TestNormalize(t *testing.T) {
	node := dbtype.Node{
		ElementId: "4:x:1",
		Labels:    []string{"Person"},
		Props: map[string]any{
			"name":      "Ada",
			"createdAt": "2024-01-02T00:00:00.000000Z",
			"age":       int64(36),
		},
	}
	e, ok := Normalize(node).(models.Entity)
	require.True(t, ok)
	assert.Equal(t, "4:x:1", e.ID)
	assert.Equal(t, "Person", e.Label)
	assert.Equal(t, "Ada", e.Name)
	assert.Equal(t, "2024-01-02T00:00:00.000000Z", e.CreatedAt)
	assert.Equal(t, map[string]any{"age": int64(36)}, e.Properties)

	rel := dbtype.Relationship{
		ElementId: "5:x:9", StartElementId: "4:x:1", EndElementId: "4:x:2",
		Type: "KNOWS", Props: map[string]any{"strength": 0.8, "createdAt": "t"},
	}
	r, ok := Normalize(rel).(models.Relationship)
	require.True(t, ok)
	assert.Equal(t, models.Relationship{
		ID: "5:x:9", Type: "KNOWS", From: "4:x:1", To: "4:x:2",
		Properties: map[string]any{"strength": 0.8},
	}, r)

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-04", Normalize(dbtype.Date(day)))
	assert.Equal(t, []any{"2024-03-04", int64(1)}, Normalize([]any{dbtype.Date(day), int64(1)}))
	assert.Equal(t, map[string]any{"n": "x"}, Normalize(map[string]any{"n": "x"}))
	assert.Nil(t, Normalize(nil))
}

// Integration tests need a running server. Set NEO4J_URI, NEO4J_USER and
// NEO4J_PASSWORD to enable them.
func testStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	uri := os.Getenv("NEO4J_URI")
	if uri == "" {
		t.Skip("NEO4J_URI not set")
	}
	s, err := New(Config{
		URI:      uri,
		Username: os.Getenv("NEO4J_USER"),
		Password: os.Getenv("NEO4J_PASSWORD"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skipf("neo4j not reachable: %v", err)
	}
	return s
}

func TestIntegrationEntityLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	label := fmt.Sprintf("MnemoTest%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.Query(context.Background(), "MATCH (n:"+quote(label)+") DETACH DELETE n", nil)
	})

	a, err := s.CreateEntity(ctx, label, "a", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "a", a.Name)
	assert.Equal(t, "v", a.Properties["k"])

	spec := graph.RelationshipSpec{FromLabel: label, FromName: "a", ToLabel: label, ToName: "b", Type: "links to"}
	_, err = s.CreateRelationship(ctx, spec)
	require.True(t, errors.Is(err, apperr.ErrEndpointNotFound), "got %v", err)

	_, created, err := s.EnsureEntity(ctx, label, "b")
	require.NoError(t, err)
	assert.True(t, created)

	rel, err := s.CreateRelationship(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, "LINKS_TO", rel.Type)

	ec, err := s.EntityContext(ctx, label, "a", 1)
	require.NoError(t, err)
	assert.Len(t, ec.Relationships, 1)
	require.Len(t, ec.Neighbors, 1)
	assert.Equal(t, "b", ec.Neighbors[0].Name)

	updated, err := s.UpdateEntity(ctx, a.ID, map[string]any{"k": "w"})
	require.NoError(t, err)
	assert.Equal(t, "w", updated.Properties["k"])
	assert.NotEmpty(t, updated.UpdatedAt)

	assert.Error(t, s.DeleteEntity(ctx, a.ID, false))
	require.NoError(t, s.DeleteEntity(ctx, a.ID, true))
	assert.ErrorIs(t, s.DeleteEntity(ctx, a.ID, true), apperr.ErrEntityNotFound)
}

func TestIntegrationEntityContextListsNeighborPerPath(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	label := fmt.Sprintf("MnemoTest%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.Query(context.Background(), "MATCH (n:"+quote(label)+") DETACH DELETE n", nil)
	})

	for _, n := range []string{"a", "b"} {
		_, err := s.CreateEntity(ctx, label, n, nil)
		require.NoError(t, err)
	}
	for _, typ := range []string{"knows", "likes"} {
		_, err := s.CreateRelationship(ctx, graph.RelationshipSpec{FromLabel: label, FromName: "a", ToLabel: label, ToName: "b", Type: typ})
		require.NoError(t, err)
	}

	ec, err := s.EntityContext(ctx, label, "a", 1)
	require.NoError(t, err)
	assert.Len(t, ec.Relationships, 2)
	require.Len(t, ec.Neighbors, 2)
	assert.Equal(t, "b", ec.Neighbors[0].Name)
	assert.Equal(t, "b", ec.Neighbors[1].Name)
}
