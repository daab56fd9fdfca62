// Package cypher implements graph.Store against a Neo4j server.
package cypher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
)

// Config holds connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store implements graph.Store. Every call opens its own session.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ graph.Store = (*Store)(nil)

// New creates the driver. Connectivity is not checked here; use Ping.
func New(cfg Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j: create driver: %w", err)
	}
	return &Store{driver: driver, database: cfg.Database}, nil
}

// Close closes the driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

// Ping verifies the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j: %w: %v", apperr.ErrServiceUnreachable, err)
	}
	return nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Store) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.session(ctx, mode)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

// quote escapes an identifier for use as a label or relationship type.
func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// pattern renders a node pattern. An empty label matches any node.
func pattern(variable, label string) (string, error) {
	if label == "" {
		return "(" + variable + ")", nil
	}
	if err := graph.ValidateLabel(label); err != nil {
		return "", err
	}
	return "(" + variable + ":" + quote(label) + ")", nil
}

// storable drops reserved keys and flattens nested maps, which Neo4j
// cannot hold as property values, into JSON strings.
func storable(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		switch k {
		case "name", "createdAt", "updatedAt":
			continue
		}
		if m, ok := v.(map[string]any); ok {
			data, err := json.Marshal(m)
			if err == nil {
				v = string(data)
			}
		}
		out[k] = v
	}
	return out
}

func nodeValue(rec *neo4j.Record, key string) (dbtype.Node, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return dbtype.Node{}, false
	}
	n, ok := v.(dbtype.Node)
	return n, ok
}

func entityFrom(rec *neo4j.Record, key string) (*models.Entity, error) {
	n, ok := nodeValue(rec, key)
	if !ok {
		return nil, fmt.Errorf("neo4j: column %q: %w", key, apperr.ErrUnexpectedResponse)
	}
	e := toEntity(n)
	return &e, nil
}

// CreateEntity creates a node. No uniqueness check is made.
func (s *Store) CreateEntity(ctx context.Context, label, name string, props map[string]any) (*models.Entity, error) {
	if err := graph.ValidateLabel(label); err != nil {
		return nil, err
	}
	query := `CREATE (n:` + quote(label) + `) SET n = $props, n.name = $name, n.createdAt = $now RETURN n`
	recs, err := s.run(ctx, neo4j.AccessModeWrite, query, map[string]any{
		"props": storable(props),
		"name":  name,
		"now":   graph.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: create entity: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("neo4j: create entity: %w", apperr.ErrUnexpectedResponse)
	}
	return entityFrom(recs[0], "n")
}

func firstQuery(label string) (string, error) {
	p, err := pattern("n", label)
	if err != nil {
		return "", err
	}
	return `MATCH ` + p + ` WHERE n.name = $name
		RETURN n ORDER BY n.createdAt, elementId(n) LIMIT 1`, nil
}

// EnsureEntity returns the earliest entity with label and name or creates one.
func (s *Store) EnsureEntity(ctx context.Context, label, name string) (*models.Entity, bool, error) {
	query, err := firstQuery(label)
	if err != nil {
		return nil, false, err
	}
	recs, err := s.run(ctx, neo4j.AccessModeRead, query, map[string]any{"name": name})
	if err != nil {
		return nil, false, fmt.Errorf("neo4j: ensure entity: %w", err)
	}
	if len(recs) > 0 {
		e, err := entityFrom(recs[0], "n")
		return e, false, err
	}
	e, err := s.CreateEntity(ctx, label, name, nil)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// UpdateEntity merges props into the node with the given element id.
func (s *Store) UpdateEntity(ctx context.Context, id string, props map[string]any) (*models.Entity, error) {
	recs, err := s.run(ctx, neo4j.AccessModeWrite, `
		MATCH (n) WHERE elementId(n) = $id
		SET n += $props, n.updatedAt = $now
		RETURN n
	`, map[string]any{"id": id, "props": storable(props), "now": graph.Now()})
	if err != nil {
		return nil, fmt.Errorf("neo4j: update entity: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("neo4j: entity %s: %w", id, apperr.ErrEntityNotFound)
	}
	return entityFrom(recs[0], "n")
}

// DeleteEntity deletes a node. Without detach the server refuses to delete
// a node that still has relationships.
func (s *Store) DeleteEntity(ctx context.Context, id string, detach bool) error {
	verb := "DELETE"
	if detach {
		verb = "DETACH DELETE"
	}
	recs, err := s.run(ctx, neo4j.AccessModeWrite,
		`MATCH (n) WHERE elementId(n) = $id `+verb+` n RETURN count(*) AS deleted`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("neo4j: delete entity: %w", err)
	}
	if len(recs) == 0 || intValue(recs[0], "deleted") == 0 {
		return fmt.Errorf("neo4j: entity %s: %w", id, apperr.ErrEntityNotFound)
	}
	return nil
}

// CreateRelationship links the first matches of both endpoints inside one
// write transaction.
func (s *Store) CreateRelationship(ctx context.Context, spec graph.RelationshipSpec) (*models.Relationship, error) {
	relType, err := graph.RelationshipType(spec.Type)
	if err != nil {
		return nil, err
	}
	fromQuery, err := firstQuery(spec.FromLabel)
	if err != nil {
		return nil, err
	}
	toQuery, err := firstQuery(spec.ToLabel)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		from, err := endpoint(ctx, tx, fromQuery, spec.FromLabel, spec.FromName)
		if err != nil {
			return nil, err
		}
		to, err := endpoint(ctx, tx, toQuery, spec.ToLabel, spec.ToName)
		if err != nil {
			return nil, err
		}
		result, err := tx.Run(ctx, `
			MATCH (a), (b) WHERE elementId(a) = $from AND elementId(b) = $to
			CREATE (a)-[r:`+quote(relType)+`]->(b)
			SET r = $props, r.createdAt = $now
			RETURN r
		`, map[string]any{
			"from":  from.ElementId,
			"to":    to.ElementId,
			"props": storable(spec.Properties),
			"now":   graph.Now(),
		})
		if err != nil {
			return nil, err
		}
		rec, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		v, _ := rec.Get("r")
		r, ok := v.(dbtype.Relationship)
		if !ok {
			return nil, apperr.ErrUnexpectedResponse
		}
		rel := toRelationship(r)
		return &rel, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: create relationship: %w", err)
	}
	return out.(*models.Relationship), nil
}

func endpoint(ctx context.Context, tx neo4j.ManagedTransaction, query, label, name string) (dbtype.Node, error) {
	result, err := tx.Run(ctx, query, map[string]any{"name": name})
	if err != nil {
		return dbtype.Node{}, err
	}
	recs, err := result.Collect(ctx)
	if err != nil {
		return dbtype.Node{}, err
	}
	if len(recs) == 0 {
		return dbtype.Node{}, fmt.Errorf("%s %q: %w", labelOrAny(label), name, apperr.ErrEndpointNotFound)
	}
	n, ok := nodeValue(recs[0], "n")
	if !ok {
		return dbtype.Node{}, apperr.ErrUnexpectedResponse
	}
	return n, nil
}

func labelOrAny(label string) string {
	if label == "" {
		return "entity"
	}
	return label
}

// Query runs arbitrary Cypher and normalizes every returned value.
func (s *Store) Query(ctx context.Context, query string, params map[string]any) (*graph.QueryResult, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	start := time.Now()
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j: query: %w", err)
	}
	keys, err := result.Keys()
	if err != nil {
		return nil, fmt.Errorf("neo4j: query keys: %w", err)
	}
	recs, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j: query: %w", err)
	}
	records := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		row := make(map[string]any, len(rec.Keys))
		for i, k := range rec.Keys {
			row[k] = Normalize(rec.Values[i])
		}
		records = append(records, row)
	}
	return &graph.QueryResult{
		Columns:  keys,
		Records:  records,
		Count:    len(records),
		Duration: time.Since(start).String(),
	}, nil
}

// FindEntities matches a case-insensitive substring of the name.
func (s *Store) FindEntities(ctx context.Context, filter graph.EntityFilter) ([]models.Entity, error) {
	p, err := pattern("n", filter.Label)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = graph.DefaultFindLimit
	}
	recs, err := s.run(ctx, neo4j.AccessModeRead, `
		MATCH `+p+`
		WHERE toLower(coalesce(n.name, '')) CONTAINS toLower($contains)
		RETURN n ORDER BY n.createdAt, elementId(n) LIMIT $limit
	`, map[string]any{"contains": filter.NameContains, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j: find entities: %w", err)
	}
	out := make([]models.Entity, 0, len(recs))
	for _, rec := range recs {
		if n, ok := nodeValue(rec, "n"); ok {
			out = append(out, toEntity(n))
		}
	}
	return out, nil
}

func intValue(rec *neo4j.Record, key string) int {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}

func floatValue(rec *neo4j.Record, key string) float64 {
	v, _ := rec.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func stringValue(rec *neo4j.Record, key string) string {
	v, _ := rec.Get(key)
	s, _ := v.(string)
	return s
}

func stringsValue(rec *neo4j.Record, key string) []string {
	v, _ := rec.Get(key)
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
