package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

func (s *Store) queryMemories(ctx context.Context, query string, args ...any) ([]models.Memory, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query memories: %w", err)
	}
	defer rows.Close()

	var (
		out []models.Memory
		ids []int64
	)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		id, _ := strconv.ParseInt(e.ID, 10, 64)
		ids = append(ids, id)
		out = append(out, graph.MemoryFromEntity(*e))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Memory{}, nil
	}

	tags, err := s.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		out[i].Tags = tags[id]
	}
	return out, nil
}

func (s *Store) tagsFor(ctx context.Context, ids []int64) (map[int64][]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT r.source_id, t.name
		FROM relationships r
		JOIN entities t ON t.id = r.target_id
		WHERE r.type = ? AND t.label = ? AND r.source_id IN (`+placeholders(len(ids))+`)
		ORDER BY r.id
	`, append([]any{models.RelTaggedWith, models.LabelTag}, int64Args(ids)...)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load tags: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]string)
	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

// SearchMemories matches a case-insensitive substring of the content,
// most important first.
func (s *Store) SearchMemories(ctx context.Context, q graph.MemoryQuery) ([]models.Memory, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	return s.queryMemories(ctx, `
		SELECT `+entityCols+`
		FROM entities
		WHERE label = ?
		  AND instr(lower(json_extract(properties, '$.content')), lower(?)) > 0
		  AND (? = '' OR json_extract(properties, '$.type') = ?)
		ORDER BY json_extract(properties, '$.importance') DESC, created_at DESC
		LIMIT ?
	`, models.LabelMemory, q.Query, q.Type, q.Type, limit)
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
	return s.queryMemories(ctx, `
		SELECT `+entityCols+`
		FROM entities
		WHERE label = ?
		  AND created_at >= ?
		  AND (? = '' OR created_at <= ?)
		  AND (? = '' OR json_extract(properties, '$.type') = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, models.LabelMemory, graph.FormatTime(q.Start), end, end, q.Type, q.Type, limit)
}

// SetMemoryImportance updates the importance of the memory whose id
// property equals id.
func (s *Store) SetMemoryImportance(ctx context.Context, id string, importance float64) (*models.Memory, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+entityCols+`
		FROM entities
		WHERE label = ? AND json_extract(properties, '$.id') = ?
		ORDER BY created_at, id
		LIMIT 1
	`, models.LabelMemory, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: memory %s: %w", id, apperr.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load memory: %w", err)
	}
	updated, err := s.UpdateEntity(ctx, e.ID, map[string]any{"importance": importance})
	if err != nil {
		return nil, err
	}
	m := graph.MemoryFromEntity(*updated)
	return &m, nil
}

// SummarizeMemories counts memories per type with their average importance
// and, optionally, per tag.
func (s *Store) SummarizeMemories(ctx context.Context, q graph.SummaryQuery) (*graph.MemorySummary, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT coalesce(json_extract(properties, '$.type'), ''),
		       count(*),
		       coalesce(avg(json_extract(properties, '$.importance')), 0)
		FROM entities
		WHERE label = ? AND (? = '' OR json_extract(properties, '$.type') = ?)
		GROUP BY 1
		ORDER BY 2 DESC, 1
	`, models.LabelMemory, q.Type, q.Type)
	if err != nil {
		return nil, fmt.Errorf("sqlite: summarize memories: %w", err)
	}
	defer rows.Close()

	sum := &graph.MemorySummary{ByType: []graph.TypeSummary{}}
	for rows.Next() {
		var ts graph.TypeSummary
		if err := rows.Scan(&ts.Type, &ts.Count, &ts.AvgImportance); err != nil {
			return nil, err
		}
		sum.Total += ts.Count
		sum.ByType = append(sum.ByType, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !q.IncludeTags {
		return sum, nil
	}

	tagLimit := q.TagLimit
	if tagLimit <= 0 {
		tagLimit = 20
	}
	tagRows, err := s.conn.QueryContext(ctx, `
		SELECT t.name, count(*)
		FROM relationships r
		JOIN entities m ON m.id = r.source_id
		JOIN entities t ON t.id = r.target_id
		WHERE r.type = ? AND m.label = ? AND t.label = ?
		  AND (? = '' OR json_extract(m.properties, '$.type') = ?)
		GROUP BY t.name
		ORDER BY 2 DESC, 1
		LIMIT ?
	`, models.RelTaggedWith, models.LabelMemory, models.LabelTag, q.Type, q.Type, tagLimit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: summarize tags: %w", err)
	}
	defer tagRows.Close()

	sum.ByTag = []graph.TagSummary{}
	for tagRows.Next() {
		var ts graph.TagSummary
		if err := tagRows.Scan(&ts.Tag, &ts.Count); err != nil {
			return nil, err
		}
		sum.ByTag = append(sum.ByTag, ts)
	}
	return sum, tagRows.Err()
}
