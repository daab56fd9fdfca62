package cypher

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

// walk is a traversal result. Relationships and reached nodes are each
// listed once, in discovery order; the start node is not in reached.
// ends holds the last node of every path.
type walk struct {
	start   dbtype.Node
	rels    []dbtype.Relationship
	reached []dbtype.Node
	ends    []dbtype.Node
	byID    map[string]dbtype.Node
}

func (s *Store) traverse(ctx context.Context, label, name string, depth int) (*walk, error) {
	p, err := pattern("s", label)
	if err != nil {
		return nil, err
	}
	// Variable-length bounds cannot be parameters; depth is clamped.
	query := fmt.Sprintf(`
		MATCH %s WHERE s.name = $name
		WITH s ORDER BY s.createdAt, elementId(s) LIMIT 1
		OPTIONAL MATCH p = (s)-[*1..%d]-()
		RETURN s, collect(p) AS paths
	`, p, graph.ClampDepth(depth))

	recs, err := s.run(ctx, neo4j.AccessModeRead, query, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("neo4j: traverse: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("neo4j: %s %q: %w", labelOrAny(label), name, apperr.ErrEntityNotFound)
	}
	start, ok := nodeValue(recs[0], "s")
	if !ok {
		return nil, fmt.Errorf("neo4j: traverse: %w", apperr.ErrUnexpectedResponse)
	}

	w := &walk{start: start, byID: map[string]dbtype.Node{start.ElementId: start}}
	seenRel := map[string]bool{}
	raw, _ := recs[0].Get("paths")
	paths, _ := raw.([]any)
	for _, item := range paths {
		path, ok := item.(dbtype.Path)
		if !ok || len(path.Nodes) == 0 {
			continue
		}
		w.ends = append(w.ends, path.Nodes[len(path.Nodes)-1])
		for _, n := range path.Nodes {
			if _, seen := w.byID[n.ElementId]; !seen {
				w.byID[n.ElementId] = n
				w.reached = append(w.reached, n)
			}
		}
		for _, r := range path.Relationships {
			if !seenRel[r.ElementId] {
				seenRel[r.ElementId] = true
				w.rels = append(w.rels, r)
			}
		}
	}
	return w, nil
}

// EntityContext returns the entity, every relationship within depth hops
// and the end node of every path. Neighbours reached by several paths are
// listed once per path.
func (s *Store) EntityContext(ctx context.Context, label, name string, depth int) (*graph.EntityContext, error) {
	w, err := s.traverse(ctx, label, name, depth)
	if err != nil {
		return nil, err
	}
	out := &graph.EntityContext{
		Entity:        toEntity(w.start),
		Relationships: make([]models.Relationship, 0, len(w.rels)),
		Neighbors:     make([]models.Entity, 0, len(w.ends)),
	}
	for _, r := range w.rels {
		out.Relationships = append(out.Relationships, toRelationship(r))
	}
	for _, n := range w.ends {
		out.Neighbors = append(out.Neighbors, toEntity(n))
	}
	return out, nil
}

// ConceptGraph walks from a Concept and reports nodes unique by name and
// edges carrying their strength.
func (s *Store) ConceptGraph(ctx context.Context, concept string, depth int) (*graph.KnowledgeGraph, error) {
	w, err := s.traverse(ctx, models.LabelConcept, concept, depth)
	if err != nil {
		return nil, err
	}
	center := toEntity(w.start)
	kg := &graph.KnowledgeGraph{
		Center: concept,
		Nodes:  []graph.KnowledgeNode{{Name: center.Name, Label: center.Label}},
		Edges:  []graph.KnowledgeEdge{},
	}
	seen := map[string]bool{center.Name: true}
	for _, n := range w.reached {
		e := toEntity(n)
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		kg.Nodes = append(kg.Nodes, graph.KnowledgeNode{Name: e.Name, Label: e.Label})
	}
	for _, r := range w.rels {
		rel := toRelationship(r)
		kg.Edges = append(kg.Edges, graph.KnowledgeEdge{
			From:     toEntity(w.byID[r.StartElementId]).Name,
			To:       toEntity(w.byID[r.EndElementId]).Name,
			Type:     rel.Type,
			Strength: graph.Strength(rel.Properties),
		})
	}
	return kg, nil
}
