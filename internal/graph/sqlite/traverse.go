package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

// walk is the result of a breadth-first traversal. Relationships and
// reached entities are each listed once, in discovery order. ends holds
// the last node of every path, so a node reached by several paths
// appears once per path.
type walk struct {
	rels    []models.Relationship
	reached []int64
	ends    []int64
}

// traverse follows relationships in both directions up to depth hops.
func (s *Store) traverse(ctx context.Context, start int64, depth int) (*walk, error) {
	visited := map[int64]bool{start: true}
	seenRel := map[string]bool{}
	frontier := []int64{start}
	w := &walk{}

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		rels, err := s.relationshipsTouching(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []int64
		for _, r := range rels {
			if seenRel[r.ID] {
				continue
			}
			seenRel[r.ID] = true
			w.rels = append(w.rels, r)
			for _, end := range []string{r.From, r.To} {
				id, _ := strconv.ParseInt(end, 10, 64)
				if !visited[id] {
					visited[id] = true
					w.reached = append(w.reached, id)
					next = append(next, id)
				}
			}
		}
		frontier = next
	}
	w.ends = pathEnds(start, w.rels, depth)
	return w, nil
}

type hop struct {
	rel  string
	next int64
}

// pathEnds enumerates every path of 1..depth hops from start in either
// direction and returns the node each one ends on. A relationship is used
// at most once per path.
func pathEnds(start int64, rels []models.Relationship, depth int) []int64 {
	adj := map[int64][]hop{}
	for _, r := range rels {
		from, _ := strconv.ParseInt(r.From, 10, 64)
		to, _ := strconv.ParseInt(r.To, 10, 64)
		adj[from] = append(adj[from], hop{rel: r.ID, next: to})
		if from != to {
			adj[to] = append(adj[to], hop{rel: r.ID, next: from})
		}
	}

	var ends []int64
	used := map[string]bool{}
	var visit func(at int64, left int)
	visit = func(at int64, left int) {
		if left == 0 {
			return
		}
		for _, h := range adj[at] {
			if used[h.rel] {
				continue
			}
			used[h.rel] = true
			ends = append(ends, h.next)
			visit(h.next, left-1)
			used[h.rel] = false
		}
	}
	visit(start, depth)
	return ends
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *Store) relationshipsTouching(ctx context.Context, ids []int64) ([]models.Relationship, error) {
	in := placeholders(len(ids))
	args := append(int64Args(ids), int64Args(ids)...)
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, type, source_id, target_id, properties
		FROM relationships
		WHERE source_id IN (`+in+`) OR target_id IN (`+in+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load relationships: %w", err)
	}
	defer rows.Close()

	var out []models.Relationship
	for rows.Next() {
		var (
			id, src, dst int64
			r            models.Relationship
			raw          string
		)
		if err := rows.Scan(&id, &r.Type, &src, &dst, &raw); err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		r.From = strconv.FormatInt(src, 10)
		r.To = strconv.FormatInt(dst, 10)
		r.Properties = map[string]any{}
		if err := json.Unmarshal([]byte(raw), &r.Properties); err != nil {
			return nil, fmt.Errorf("sqlite: decode relationship %d: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) entitiesByID(ctx context.Context, ids []int64) (map[int64]models.Entity, error) {
	out := make(map[int64]models.Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+entityCols+` FROM entities WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		id, _ := strconv.ParseInt(e.ID, 10, 64)
		out[id] = *e
	}
	return out, rows.Err()
}

func (s *Store) start(ctx context.Context, label, name string) (*models.Entity, int64, error) {
	e, err := s.firstByName(ctx, label, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("sqlite: %s %q: %w", labelOrAny(label), name, apperr.ErrEntityNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: match entity: %w", err)
	}
	id, _ := strconv.ParseInt(e.ID, 10, 64)
	return e, id, nil
}

// EntityContext returns the entity, every relationship within depth hops
// and the end node of every path. Neighbours reached by several paths are
// listed once per path.
func (s *Store) EntityContext(ctx context.Context, label, name string, depth int) (*graph.EntityContext, error) {
	e, id, err := s.start(ctx, label, name)
	if err != nil {
		return nil, err
	}
	w, err := s.traverse(ctx, id, graph.ClampDepth(depth))
	if err != nil {
		return nil, err
	}
	byID, err := s.entitiesByID(ctx, w.ends)
	if err != nil {
		return nil, err
	}
	out := &graph.EntityContext{
		Entity:        *e,
		Relationships: w.rels,
		Neighbors:     make([]models.Entity, 0, len(w.ends)),
	}
	if out.Relationships == nil {
		out.Relationships = []models.Relationship{}
	}
	for _, nid := range w.ends {
		out.Neighbors = append(out.Neighbors, byID[nid])
	}
	return out, nil
}

// ConceptGraph walks from a Concept and reports nodes unique by name and
// edges carrying their strength.
func (s *Store) ConceptGraph(ctx context.Context, concept string, depth int) (*graph.KnowledgeGraph, error) {
	center, id, err := s.start(ctx, models.LabelConcept, concept)
	if err != nil {
		return nil, err
	}
	w, err := s.traverse(ctx, id, graph.ClampDepth(depth))
	if err != nil {
		return nil, err
	}
	byID, err := s.entitiesByID(ctx, w.reached)
	if err != nil {
		return nil, err
	}
	byID[id] = *center

	kg := &graph.KnowledgeGraph{
		Center: concept,
		Nodes:  []graph.KnowledgeNode{{Name: center.Name, Label: center.Label}},
		Edges:  []graph.KnowledgeEdge{},
	}
	seen := map[string]bool{center.Name: true}
	for _, nid := range w.reached {
		e := byID[nid]
		if seen[e.Name] {
			continue
		}
		seen[e.Name] = true
		kg.Nodes = append(kg.Nodes, graph.KnowledgeNode{Name: e.Name, Label: e.Label})
	}
	for _, r := range w.rels {
		src, _ := strconv.ParseInt(r.From, 10, 64)
		dst, _ := strconv.ParseInt(r.To, 10, 64)
		kg.Edges = append(kg.Edges, graph.KnowledgeEdge{
			From:     byID[src].Name,
			To:       byID[dst].Name,
			Type:     r.Type,
			Strength: graph.Strength(r.Properties),
		})
	}
	return kg, nil
}
