package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/notes"
)

// RecallRequest is the input of Recall.
type RecallRequest struct {
	Query        string
	Type         string
	Limit        int
	IncludeNotes bool
}

// RecallItem is one recalled result tagged with the store it came from.
// Exactly one of Memory and Note is set.
type RecallItem struct {
	Source string            `json:"source"`
	Memory *models.Memory    `json:"memory,omitempty"`
	Note   *models.SearchHit `json:"note,omitempty"`
}

// RecallResult lists graph results first, then note hits. Errors holds the
// reason for every source that failed.
type RecallResult struct {
	Query   string            `json:"query"`
	Results []RecallItem      `json:"results"`
	Count   int               `json:"count"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Recall searches memories in the graph by content and, independently, the
// note vault by full text. Results are concatenated without deduplication
// and cut to Limit. Recall fails only when every queried source failed.
func (o *Orchestrator) Recall(ctx context.Context, req RecallRequest) (*RecallResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("memory: query is required: %w", apperr.ErrValidation)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}
	res := &RecallResult{Query: req.Query, Results: []RecallItem{}}
	var errs []error
	fail := func(source string, err error) {
		o.log.Warn("memory recall source failed", slog.String("source", source), slog.Any("error", err))
		if res.Errors == nil {
			res.Errors = map[string]string{}
		}
		res.Errors[source] = err.Error()
		errs = append(errs, err)
	}
	queried := 0

	if o.graph != nil {
		queried++
		mems, err := o.graph.SearchMemories(ctx, graph.MemoryQuery{Query: req.Query, Type: req.Type, Limit: limit})
		if err != nil {
			fail(SourceGraph, err)
		}
		for i := range mems {
			res.Results = append(res.Results, RecallItem{Source: SourceGraph, Memory: &mems[i]})
		}
	}
	if req.IncludeNotes && o.notes != nil {
		queried++
		found, err := o.notes.SearchNotes(ctx, notes.SearchRequest{Query: req.Query, Limit: limit})
		if err != nil {
			fail(SourceNotes, err)
		} else {
			for i := range found.Results {
				res.Results = append(res.Results, RecallItem{Source: SourceNotes, Note: &found.Results[i]})
			}
		}
	}

	if queried > 0 && len(errs) == queried {
		return nil, fmt.Errorf("memory: recall: %w", errors.Join(errs...))
	}
	if len(res.Results) > limit {
		res.Results = res.Results[:limit]
	}
	res.Count = len(res.Results)
	return res, nil
}

// LinkResult is the outcome of Link.
type LinkResult struct {
	Relationship    *models.Relationship `json:"relationship"`
	From            string               `json:"from"`
	To              string               `json:"to"`
	CreatedConcepts []string             `json:"createdConcepts,omitempty"`
}

// Link relates two Concept entities by name. When either concept is
// missing, both are ensured and the link is retried once. Repeated calls
// create parallel relationships.
func (o *Orchestrator) Link(ctx context.Context, from, to, relType string, strength *float64) (*LinkResult, error) {
	if o.graph == nil {
		return nil, fmt.Errorf("memory: link: %w", apperr.ErrBackendDisabled)
	}
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("memory: both concepts are required: %w", apperr.ErrValidation)
	}
	if relType == "" {
		relType = "RELATES_TO"
	}
	spec := graph.RelationshipSpec{
		FromLabel: models.LabelConcept, FromName: from,
		ToLabel: models.LabelConcept, ToName: to,
		Type: relType,
	}
	if strength != nil {
		if *strength < 0 || *strength > 1 {
			return nil, fmt.Errorf("memory: strength %v outside [0, 1]: %w", *strength, apperr.ErrValidation)
		}
		spec.Properties = map[string]any{"strength": *strength}
	}

	res := &LinkResult{From: from, To: to}
	rel, err := o.graph.CreateRelationship(ctx, spec)
	if errors.Is(err, apperr.ErrEndpointNotFound) {
		for _, name := range []string{from, to} {
			_, created, err := o.graph.EnsureEntity(ctx, models.LabelConcept, name)
			if err != nil {
				return nil, fmt.Errorf("memory: ensure concept %s: %w", name, err)
			}
			if created {
				res.CreatedConcepts = append(res.CreatedConcepts, name)
			}
		}
		rel, err = o.graph.CreateRelationship(ctx, spec)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: link %s -> %s: %w", from, to, err)
	}
	res.Relationship = rel
	return res, nil
}

// KnowledgeGraph walks outward from a concept.
func (o *Orchestrator) KnowledgeGraph(ctx context.Context, concept string, depth int) (*graph.KnowledgeGraph, error) {
	if o.graph == nil {
		return nil, fmt.Errorf("memory: knowledge graph: %w", apperr.ErrBackendDisabled)
	}
	return o.graph.ConceptGraph(ctx, concept, depth)
}

// DateResult is the output of ByDate.
type DateResult struct {
	Start    string          `json:"start"`
	End      string          `json:"end,omitempty"`
	Memories []models.Memory `json:"memories"`
	Count    int             `json:"count"`
}

// ParseDate accepts RFC 3339 timestamps and plain dates. A plain end date
// covers the whole day.
func ParseDate(s string, end bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("memory: date %q: want YYYY-MM-DD or RFC 3339: %w", s, apperr.ErrValidation)
	}
	if end {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}

// ByDate lists memories created between start and end (optional).
func (o *Orchestrator) ByDate(ctx context.Context, start, end, memType string, limit int) (*DateResult, error) {
	if o.graph == nil {
		return nil, fmt.Errorf("memory: by date: %w", apperr.ErrBackendDisabled)
	}
	q := graph.DateQuery{Type: memType, Limit: limit}
	var err error
	if q.Start, err = ParseDate(start, false); err != nil {
		return nil, err
	}
	if end != "" {
		if q.End, err = ParseDate(end, true); err != nil {
			return nil, err
		}
	}
	mems, err := o.graph.MemoriesByDate(ctx, q)
	if err != nil {
		return nil, err
	}
	return &DateResult{Start: start, End: end, Memories: mems, Count: len(mems)}, nil
}

// SetImportance changes the importance of a stored memory.
func (o *Orchestrator) SetImportance(ctx context.Context, id string, importance float64) (*models.Memory, error) {
	if o.graph == nil {
		return nil, fmt.Errorf("memory: set importance: %w", apperr.ErrBackendDisabled)
	}
	if importance < 0 || importance > 1 {
		return nil, fmt.Errorf("memory: importance %v outside [0, 1]: %w", importance, apperr.ErrValidation)
	}
	return o.graph.SetMemoryImportance(ctx, id, importance)
}

// Summarize aggregates stored memories by type and, optionally, by tag.
func (o *Orchestrator) Summarize(ctx context.Context, q graph.SummaryQuery) (*graph.MemorySummary, error) {
	if o.graph == nil {
		return nil, fmt.Errorf("memory: summarize: %w", apperr.ErrBackendDisabled)
	}
	return o.graph.SummarizeMemories(ctx, q)
}
