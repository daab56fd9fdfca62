package cypher

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/starford/mnemo/internal/models"
)

func toEntity(n dbtype.Node) models.Entity {
	e := models.Entity{ID: n.ElementId, Properties: map[string]any{}}
	if len(n.Labels) > 0 {
		e.Label = n.Labels[0]
	}
	for k, v := range n.Props {
		switch k {
		case "name":
			e.Name, _ = v.(string)
		case "createdAt":
			e.CreatedAt, _ = v.(string)
		case "updatedAt":
			e.UpdatedAt, _ = v.(string)
		default:
			e.Properties[k] = Normalize(v)
		}
	}
	return e
}

func toRelationship(r dbtype.Relationship) models.Relationship {
	rel := models.Relationship{
		ID:         r.ElementId,
		Type:       r.Type,
		From:       r.StartElementId,
		To:         r.EndElementId,
		Properties: map[string]any{},
	}
	for k, v := range r.Props {
		if k == "createdAt" {
			continue
		}
		rel.Properties[k] = Normalize(v)
	}
	return rel
}

type timeValue interface {
	Time() time.Time
}

// Normalize converts driver values into plain JSON-friendly values. Nodes
// become entities, relationships become relationships and temporal values
// become strings.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case dbtype.Node:
		return toEntity(x)
	case dbtype.Relationship:
		return toRelationship(x)
	case dbtype.Path:
		nodes := make([]models.Entity, len(x.Nodes))
		for i, n := range x.Nodes {
			nodes[i] = toEntity(n)
		}
		rels := make([]models.Relationship, len(x.Relationships))
		for i, r := range x.Relationships {
			rels[i] = toRelationship(r)
		}
		return map[string]any{"nodes": nodes, "relationships": rels}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Normalize(item)
		}
		return out
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case dbtype.Date:
		return x.Time().Format("2006-01-02")
	case dbtype.LocalTime:
		return x.Time().Format("15:04:05.999999999")
	case dbtype.LocalDateTime:
		return x.Time().Format("2006-01-02T15:04:05.999999999")
	case dbtype.Duration:
		return x.String()
	case dbtype.Point2D:
		return x.String()
	case dbtype.Point3D:
		return x.String()
	case timeValue:
		return x.Time().Format(time.RFC3339Nano)
	default:
		return v
	}
}
