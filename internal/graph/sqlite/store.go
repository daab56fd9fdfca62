package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

const entityCols = `id, label, name, properties, created_at, updated_at`

// reserved keys live in their own columns.
var reserved = map[string]struct{}{"name": {}, "createdAt": {}, "updatedAt": {}}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*models.Entity, error) {
	var (
		id       int64
		e        models.Entity
		rawProps string
		updated  sql.NullString
	)
	if err := row.Scan(&id, &e.Label, &e.Name, &rawProps, &e.CreatedAt, &updated); err != nil {
		return nil, err
	}
	e.ID = strconv.FormatInt(id, 10)
	e.UpdatedAt = updated.String
	e.Properties = map[string]any{}
	if err := json.Unmarshal([]byte(rawProps), &e.Properties); err != nil {
		return nil, fmt.Errorf("sqlite: decode properties of entity %d: %w", id, err)
	}
	return &e, nil
}

func encodeProps(props map[string]any) (string, error) {
	clean := make(map[string]any, len(props))
	for k, v := range props {
		if _, skip := reserved[k]; skip {
			continue
		}
		clean[k] = v
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode properties: %w", err)
	}
	return string(data), nil
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sqlite: entity %q: %w", id, apperr.ErrEntityNotFound)
	}
	return n, nil
}

// CreateEntity inserts a node. No uniqueness check is made.
func (s *Store) CreateEntity(ctx context.Context, label, name string, props map[string]any) (*models.Entity, error) {
	if err := graph.ValidateLabel(label); err != nil {
		return nil, err
	}
	raw, err := encodeProps(props)
	if err != nil {
		return nil, err
	}
	now := graph.Now()
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO entities (label, name, properties, created_at) VALUES (?, ?, ?, ?)`,
		label, name, raw, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite: create entity: %w", err)
	}
	return s.entityByID(ctx, id)
}

// EnsureEntity returns the earliest entity with label and name or creates one.
func (s *Store) EnsureEntity(ctx context.Context, label, name string) (*models.Entity, bool, error) {
	e, err := s.firstByName(ctx, label, name)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("sqlite: ensure entity: %w", err)
	}
	e, err = s.CreateEntity(ctx, label, name, nil)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// UpdateEntity merges props into an existing entity.
func (s *Store) UpdateEntity(ctx context.Context, id string, props map[string]any) (*models.Entity, error) {
	n, err := parseID(id)
	if err != nil {
		return nil, err
	}
	existing, err := s.entityByID(ctx, n)
	if err != nil {
		return nil, err
	}
	for k, v := range props {
		existing.Properties[k] = v
	}
	raw, err := encodeProps(existing.Properties)
	if err != nil {
		return nil, err
	}
	if _, err := s.conn.ExecContext(ctx,
		`UPDATE entities SET properties = ?, updated_at = ? WHERE id = ?`,
		raw, graph.Now(), n); err != nil {
		return nil, fmt.Errorf("sqlite: update entity: %w", err)
	}
	return s.entityByID(ctx, n)
}

// DeleteEntity removes an entity. Without detach the foreign keys reject
// the delete while relationships remain.
func (s *Store) DeleteEntity(ctx context.Context, id string, detach bool) error {
	n, err := parseID(id)
	if err != nil {
		return err
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if detach {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM relationships WHERE source_id = ? OR target_id = ?`, n, n); err != nil {
			return fmt.Errorf("sqlite: detach entity: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, n)
	if err != nil {
		return fmt.Errorf("sqlite: delete entity: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("sqlite: entity %s: %w", id, apperr.ErrEntityNotFound)
	}
	return tx.Commit()
}

// CreateRelationship links the first matches of both endpoints.
func (s *Store) CreateRelationship(ctx context.Context, spec graph.RelationshipSpec) (*models.Relationship, error) {
	relType, err := graph.RelationshipType(spec.Type)
	if err != nil {
		return nil, err
	}
	from, err := s.endpoint(ctx, spec.FromLabel, spec.FromName)
	if err != nil {
		return nil, err
	}
	to, err := s.endpoint(ctx, spec.ToLabel, spec.ToName)
	if err != nil {
		return nil, err
	}
	raw, err := encodeProps(spec.Properties)
	if err != nil {
		return nil, err
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO relationships (type, source_id, target_id, properties, created_at) VALUES (?, ?, ?, ?, ?)`,
		relType, from.ID, to.ID, raw, graph.Now())
	if err != nil {
		return nil, fmt.Errorf("sqlite: create relationship: %w", err)
	}
	id, _ := res.LastInsertId()
	props := spec.Properties
	if props == nil {
		props = map[string]any{}
	}
	return &models.Relationship{
		ID:         strconv.FormatInt(id, 10),
		Type:       relType,
		From:       from.ID,
		To:         to.ID,
		Properties: props,
	}, nil
}

func (s *Store) endpoint(ctx context.Context, label, name string) (*models.Entity, error) {
	e, err := s.firstByName(ctx, label, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: %s %q: %w", labelOrAny(label), name, apperr.ErrEndpointNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: match endpoint: %w", err)
	}
	return e, nil
}

func labelOrAny(label string) string {
	if label == "" {
		return "entity"
	}
	return label
}

// firstByName returns sql.ErrNoRows when nothing matches.
func (s *Store) firstByName(ctx context.Context, label, name string) (*models.Entity, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT `+entityCols+`
		FROM entities
		WHERE name = ? AND (? = '' OR label = ?)
		ORDER BY created_at, id
		LIMIT 1
	`, name, label, label)
	return scanEntity(row)
}

func (s *Store) entityByID(ctx context.Context, id int64) (*models.Entity, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+entityCols+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: entity %d: %w", id, apperr.ErrEntityNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load entity: %w", err)
	}
	return e, nil
}

// FindEntities matches a case-insensitive substring of the name.
func (s *Store) FindEntities(ctx context.Context, filter graph.EntityFilter) ([]models.Entity, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = graph.DefaultFindLimit
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+entityCols+`
		FROM entities
		WHERE (? = '' OR label = ?)
		  AND instr(lower(name), lower(?)) > 0
		ORDER BY created_at, id
		LIMIT ?
	`, filter.Label, filter.Label, filter.NameContains, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find entities: %w", err)
	}
	defer rows.Close()

	out := []models.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Query runs arbitrary SQL with named parameters (:name, @name or $name).
func (s *Store) Query(ctx context.Context, query string, params map[string]any) (*graph.QueryResult, error) {
	args := make([]any, 0, len(params))
	for k, v := range params {
		args = append(args, sql.Named(k, v))
	}
	start := time.Now()
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlite: query columns: %w", err)
	}
	records := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlite: query scan: %w", err)
		}
		rec := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
			} else {
				rec[c] = values[i]
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	return &graph.QueryResult{
		Columns:  cols,
		Records:  records,
		Count:    len(records),
		Duration: time.Since(start).String(),
	}, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}
