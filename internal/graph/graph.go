// Package graph defines the Graph Adapter contract shared by the Neo4j and
// embedded SQLite backends.
package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/starford/mnemo/internal/models"
)

// Default limits.
const (
	DefaultFindLimit  = 50
	DefaultDepth      = 1
	MaxDepth          = 5
	DefaultStrength   = 0.5
	DefaultImportance = 0.5
)

// Store is implemented by every graph backend. Each call acquires its own
// session and releases it before returning.
type Store interface {
	CreateEntity(ctx context.Context, label, name string, props map[string]any) (*models.Entity, error)
	// EnsureEntity returns the first entity with label and name, creating it
	// when none exists.
	EnsureEntity(ctx context.Context, label, name string) (*models.Entity, bool, error)
	UpdateEntity(ctx context.Context, id string, props map[string]any) (*models.Entity, error)
	DeleteEntity(ctx context.Context, id string, detach bool) error
	CreateRelationship(ctx context.Context, spec RelationshipSpec) (*models.Relationship, error)
	Query(ctx context.Context, query string, params map[string]any) (*QueryResult, error)
	FindEntities(ctx context.Context, filter EntityFilter) ([]models.Entity, error)
	EntityContext(ctx context.Context, label, name string, depth int) (*EntityContext, error)

	SearchMemories(ctx context.Context, q MemoryQuery) ([]models.Memory, error)
	MemoriesByDate(ctx context.Context, q DateQuery) ([]models.Memory, error)
	SetMemoryImportance(ctx context.Context, id string, importance float64) (*models.Memory, error)
	SummarizeMemories(ctx context.Context, q SummaryQuery) (*MemorySummary, error)
	ConceptGraph(ctx context.Context, concept string, depth int) (*KnowledgeGraph, error)

	Ping(ctx context.Context) error
	Close() error
}

// RelationshipSpec identifies both endpoints by label and name. An empty
// label matches any label. When several entities share a name the
// earliest created one is used.
type RelationshipSpec struct {
	FromLabel  string
	FromName   string
	ToLabel    string
	ToName     string
	Type       string
	Properties map[string]any
}

// EntityFilter narrows FindEntities.
type EntityFilter struct {
	Label        string
	NameContains string
	Limit        int
}

// EntityContext is an entity with its neighbourhood.
type EntityContext struct {
	Entity        models.Entity         `json:"entity"`
	Relationships []models.Relationship `json:"relationships"`
	Neighbors     []models.Entity       `json:"neighbors"`
}

// QueryResult is the raw output of an arbitrary query.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Records  []map[string]any `json:"records"`
	Count    int              `json:"count"`
	Duration string           `json:"duration"`
}

// MemoryQuery filters Memory entities by content substring.
type MemoryQuery struct {
	Query string
	Type  string
	Limit int
}

// DateQuery filters Memory entities by creation time. End is optional.
type DateQuery struct {
	Start time.Time
	End   time.Time
	Type  string
	Limit int
}

// SummaryQuery configures SummarizeMemories.
type SummaryQuery struct {
	Type        string
	IncludeTags bool
	TagLimit    int
}

// TypeSummary aggregates memories of one type.
type TypeSummary struct {
	Type          string  `json:"type"`
	Count         int     `json:"count"`
	AvgImportance float64 `json:"avgImportance"`
}

// TagSummary counts memories tagged with one tag.
type TagSummary struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// MemorySummary is the aggregate returned by SummarizeMemories.
type MemorySummary struct {
	Total  int           `json:"total"`
	ByType []TypeSummary `json:"byType"`
	ByTag  []TagSummary  `json:"byTag,omitempty"`
}

// KnowledgeNode is a concept reached while walking the knowledge graph.
type KnowledgeNode struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// KnowledgeEdge connects two knowledge nodes by name.
type KnowledgeEdge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

// KnowledgeGraph is the result of ConceptGraph. Nodes are unique by name.
type KnowledgeGraph struct {
	Center string          `json:"center"`
	Nodes  []KnowledgeNode `json:"nodes"`
	Edges  []KnowledgeEdge `json:"edges"`
}

var identRe = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

// ValidateLabel rejects labels that are not plain identifiers.
func ValidateLabel(label string) error {
	if !identRe.MatchString(label) {
		return fmt.Errorf("graph: invalid label %q", label)
	}
	return nil
}

// RelationshipType uppercases t and turns whitespace and dashes into
// underscores.
func RelationshipType(t string) (string, error) {
	norm := strings.ToUpper(strings.TrimSpace(t))
	norm = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '\t' {
			return '_'
		}
		return r
	}, norm)
	if !identRe.MatchString(norm) {
		return "", fmt.Errorf("graph: invalid relationship type %q", t)
	}
	return norm, nil
}

// ClampDepth bounds traversal depth to [1, MaxDepth].
func ClampDepth(depth int) int {
	if depth < 1 {
		return DefaultDepth
	}
	if depth > MaxDepth {
		return MaxDepth
	}
	return depth
}

// TimeLayout is the fixed-width UTC layout of createdAt/updatedAt, so that
// string order matches time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// Now returns the current time in TimeLayout.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// MemoryFromEntity maps a Memory entity onto the Memory view.
func MemoryFromEntity(e models.Entity) models.Memory {
	m := models.Memory{
		ID:        stringProp(e.Properties, "id"),
		Content:   stringProp(e.Properties, "content"),
		Type:      stringProp(e.Properties, "type"),
		Source:    stringProp(e.Properties, "source"),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if m.ID == "" {
		m.ID = e.Name
	}
	m.Importance = floatProp(e.Properties, "importance", DefaultImportance)
	return m
}

func stringProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func floatProp(props map[string]any, key string, def float64) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

// Strength reads the strength property of a relationship, defaulting to
// DefaultStrength.
func Strength(props map[string]any) float64 {
	return floatProp(props, "strength", DefaultStrength)
}
