package cypher

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

// withTags is appended to every memory query that returns m.
const withTags = `
	OPTIONAL MATCH (m)-[:TAGGED_WITH]->(t:Tag)
	WITH m, collect(t.name) AS tags
`

func memories(recs []*neo4j.Record) []models.Memory {
	out := make([]models.Memory, 0, len(recs))
	for _, rec := range recs {
		n, ok := nodeValue(rec, "m")
		if !ok {
			continue
		}
		m := graph.MemoryFromEntity(toEntity(n))
		if tags := stringsValue(rec, "tags"); len(tags) > 0 {
			m.Tags = tags
		}
		out = append(out, m)
	}
	return out
}

// SearchMemories matches a case-insensitive substring of the content,
// most important first.
func (s *Store) SearchMemories(ctx context.Context, q graph.MemoryQuery) ([]models.Memory, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	recs, err := s.run(ctx, neo4j.AccessModeRead, `
		MATCH (m:Memory)
		WHERE toLower(m.content) CONTAINS toLower($query)
		  AND ($type = '' OR m.type = $type)
	`+withTags+`
		RETURN m, tags
		ORDER BY m.importance DESC, m.createdAt DESC
		LIMIT $limit
	`, map[string]any{"query": q.Query, "type": q.Type, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j: search memories: %w", err)
	}
	return memories(recs), nil
}

// MemoriesByDate lists memories created within [Start, End], newest first.
func (s *Store) MemoriesByDate(ctx context.Context, q graph.DateQuery) ([]models.Memory, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	end := ""
	if !q.End.IsZero() {
		end = graph.FormatTime(q.End)
	}
	recs, err := s.run(ctx, neo4j.AccessModeRead, `
		MATCH (m:Memory)
		WHERE m.createdAt >= $start
		  AND ($end = '' OR m.createdAt <= $end)
		  AND ($type = '' OR m.type = $type)
	`+withTags+`
		RETURN m, tags
		ORDER BY m.createdAt DESC
		LIMIT $limit
	`, map[string]any{
		"start": graph.FormatTime(q.Start),
		"end":   end,
		"type":  q.Type,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: memories by date: %w", err)
	}
	return memories(recs), nil
}

// SetMemoryImportance updates the importance of the memory whose id
// property equals id.
func (s *Store) SetMemoryImportance(ctx context.Context, id string, importance float64) (*models.Memory, error) {
	recs, err := s.run(ctx, neo4j.AccessModeWrite, `
		MATCH (m:Memory {id: $id})
		WITH m ORDER BY m.createdAt LIMIT 1
		SET m.importance = $importance, m.updatedAt = $now
		WITH m
	`+withTags+`
		RETURN m, tags
	`, map[string]any{"id": id, "importance": importance, "now": graph.Now()})
	if err != nil {
		return nil, fmt.Errorf("neo4j: set importance: %w", err)
	}
	found := memories(recs)
	if len(found) == 0 {
		return nil, fmt.Errorf("neo4j: memory %s: %w", id, apperr.ErrEntityNotFound)
	}
	return &found[0], nil
}

// SummarizeMemories counts memories per type with their average importance
// and, optionally, per tag.
func (s *Store) SummarizeMemories(ctx context.Context, q graph.SummaryQuery) (*graph.MemorySummary, error) {
	recs, err := s.run(ctx, neo4j.AccessModeRead, `
		MATCH (m:Memory)
		WHERE $type = '' OR m.type = $type
		RETURN coalesce(m.type, '') AS type,
		       count(m) AS count,
		       coalesce(avg(m.importance), 0.0) AS avgImportance
		ORDER BY count DESC, type
	`, map[string]any{"type": q.Type})
	if err != nil {
		return nil, fmt.Errorf("neo4j: summarize memories: %w", err)
	}
	sum := &graph.MemorySummary{ByType: make([]graph.TypeSummary, 0, len(recs))}
	for _, rec := range recs {
		ts := graph.TypeSummary{
			Type:          stringValue(rec, "type"),
			Count:         intValue(rec, "count"),
			AvgImportance: floatValue(rec, "avgImportance"),
		}
		sum.Total += ts.Count
		sum.ByType = append(sum.ByType, ts)
	}
	if !q.IncludeTags {
		return sum, nil
	}

	tagLimit := q.TagLimit
	if tagLimit <= 0 {
		tagLimit = 20
	}
	recs, err = s.run(ctx, neo4j.AccessModeRead, `
		MATCH (m:Memory)-[:TAGGED_WITH]->(t:Tag)
		WHERE $type = '' OR m.type = $type
		RETURN t.name AS tag, count(*) AS count
		ORDER BY count DESC, tag
		LIMIT $limit
	`, map[string]any{"type": q.Type, "limit": tagLimit})
	if err != nil {
		return nil, fmt.Errorf("neo4j: summarize tags: %w", err)
	}
	sum.ByTag = make([]graph.TagSummary, 0, len(recs))
	for _, rec := range recs {
		sum.ByTag = append(sum.ByTag, graph.TagSummary{
			Tag:   stringValue(rec, "tag"),
			Count: intValue(rec, "count"),
		})
	}
	return sum, nil
}
