// Package memory combines the graph and note stores into composite memory
// operations. The two stores are written independently; there is no
// transaction spanning them.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/notes"
)

// Store names used in status maps and recall results.
const (
	SourceGraph = "graph"
	SourceNotes = "notes"
)

// StatusOK marks a store that accepted its write.
const StatusOK = "ok"

const (
	defaultRecallLimit = 10
	mirrorDir          = "memories"
)

// NoteStore is the part of the note service the orchestrator needs.
type NoteStore interface {
	CreateNote(ctx context.Context, req notes.CreateRequest) (*notes.WriteResult, error)
	SearchNotes(ctx context.Context, req notes.SearchRequest) (*notes.SearchResult, error)
}

// Orchestrator runs the composite memory operations.
type Orchestrator struct {
	graph graph.Store
	notes NoteStore
	log   *slog.Logger
	now   func() time.Time
	newID func(time.Time) string
}

// New creates an Orchestrator.
func New(g graph.Store, n NoteStore, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{graph: g, notes: n, log: log, now: time.Now, newID: NewID}
}

// NewID returns a locally unique memory id: creation time in milliseconds
// plus a random suffix.
func NewID(t time.Time) string {
	return fmt.Sprintf("mem_%d_%s", t.UnixMilli(), uuid.NewString()[:8])
}

// MirrorPath is the vault path of the note that mirrors a memory.
func MirrorPath(id string, t time.Time) string {
	t = t.UTC()
	return path.Join(mirrorDir, t.Format("2006"), t.Format("01"), t.Format("02"), id+".md")
}

// StoreRequest is the input of Store.
type StoreRequest struct {
	Content    string
	Type       string
	Importance float64
	Source     string
	Tags       []string
	Entities   []string
}

// StoreResult reports where a memory was written. Stored maps each store to
// "ok" or "failed: <reason>".
type StoreResult struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Importance   float64           `json:"importance"`
	Stored       map[string]string `json:"stored"`
	NotePath     string            `json:"notePath,omitempty"`
	Tags         []string          `json:"tags"`
	Entities     []string          `json:"entities"`
	LinkFailures []string          `json:"linkFailures,omitempty"`
}

func failed(err error) string {
	return "failed: " + err.Error()
}

func validType(t string) bool {
	return slices.Contains(models.MemoryTypes, t)
}

// Store writes a Memory entity with its tag and mention links, then mirrors
// it as a note. Link failures are logged and reported but do not fail the
// call; Store fails only when neither store accepted the memory.
func (o *Orchestrator) Store(ctx context.Context, req StoreRequest) (*StoreResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("memory: content is required: %w", apperr.ErrValidation)
	}
	if req.Type == "" {
		req.Type = models.MemoryFact
	}
	if !validType(req.Type) {
		return nil, fmt.Errorf("memory: type %q must be one of %s: %w",
			req.Type, strings.Join(models.MemoryTypes, ", "), apperr.ErrValidation)
	}
	if req.Importance < 0 || req.Importance > 1 {
		return nil, fmt.Errorf("memory: importance %v outside [0, 1]: %w", req.Importance, apperr.ErrValidation)
	}

	now := o.now()
	id := o.newID(now)
	res := &StoreResult{
		ID:         id,
		Type:       req.Type,
		Importance: req.Importance,
		Stored:     map[string]string{},
		Tags:       nonNil(req.Tags),
		Entities:   nonNil(req.Entities),
	}
	log := o.log.With(slog.String("memory_id", id))

	graphErr := o.storeGraph(ctx, id, req, res, log)
	if graphErr != nil {
		log.Warn("memory graph write failed", slog.Any("error", graphErr))
		res.Stored[SourceGraph] = failed(graphErr)
	} else {
		res.Stored[SourceGraph] = StatusOK
	}

	notePath, notesErr := o.storeNote(ctx, id, req, now)
	if notesErr != nil {
		log.Warn("memory note mirror failed", slog.Any("error", notesErr))
		res.Stored[SourceNotes] = failed(notesErr)
	} else {
		res.Stored[SourceNotes] = StatusOK
		res.NotePath = notePath
	}

	if graphErr != nil && notesErr != nil {
		return nil, fmt.Errorf("memory: store %s: %w", id, errors.Join(graphErr, notesErr))
	}
	log.Info("memory stored",
		slog.String("graph", res.Stored[SourceGraph]),
		slog.String("notes", res.Stored[SourceNotes]))
	return res, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (o *Orchestrator) storeGraph(ctx context.Context, id string, req StoreRequest, res *StoreResult, log *slog.Logger) error {
	if o.graph == nil {
		return apperr.ErrBackendDisabled
	}
	props := map[string]any{
		"id":         id,
		"content":    req.Content,
		"type":       req.Type,
		"importance": req.Importance,
	}
	if req.Source != "" {
		props["source"] = req.Source
	}
	if _, err := o.graph.CreateEntity(ctx, models.LabelMemory, id, props); err != nil {
		return err
	}

	for _, tag := range req.Tags {
		if err := o.linkTag(ctx, id, tag); err != nil {
			log.Warn("memory tag link failed", slog.String("tag", tag), slog.Any("error", err))
			res.LinkFailures = append(res.LinkFailures, fmt.Sprintf("tag %s: %v", tag, err))
		}
	}
	for _, name := range req.Entities {
		if err := o.linkMention(ctx, id, name); err != nil {
			log.Warn("memory mention link failed", slog.String("entity", name), slog.Any("error", err))
			res.LinkFailures = append(res.LinkFailures, fmt.Sprintf("entity %s: %v", name, err))
		}
	}
	return nil
}

func (o *Orchestrator) linkTag(ctx context.Context, id, tag string) error {
	if _, _, err := o.graph.EnsureEntity(ctx, models.LabelTag, tag); err != nil {
		return err
	}
	_, err := o.graph.CreateRelationship(ctx, graph.RelationshipSpec{
		FromLabel: models.LabelMemory, FromName: id,
		ToLabel: models.LabelTag, ToName: tag,
		Type: models.RelTaggedWith,
	})
	return err
}

// linkMention links to any entity with the given name, creating a plain
// Entity when none exists.
func (o *Orchestrator) linkMention(ctx context.Context, id, name string) error {
	spec := graph.RelationshipSpec{
		FromLabel: models.LabelMemory, FromName: id,
		ToName: name,
		Type:   models.RelMentions,
	}
	_, err := o.graph.CreateRelationship(ctx, spec)
	if !errors.Is(err, apperr.ErrEndpointNotFound) {
		return err
	}
	if _, _, err := o.graph.EnsureEntity(ctx, models.LabelEntity, name); err != nil {
		return err
	}
	_, err = o.graph.CreateRelationship(ctx, spec)
	return err
}

func (o *Orchestrator) storeNote(ctx context.Context, id string, req StoreRequest, now time.Time) (string, error) {
	if o.notes == nil {
		return "", apperr.ErrBackendDisabled
	}
	fm := map[string]any{
		"memory_id":  id,
		"type":       req.Type,
		"importance": req.Importance,
	}
	if req.Source != "" {
		fm["source"] = req.Source
	}
	res, err := o.notes.CreateNote(ctx, notes.CreateRequest{
		Filename:    MirrorPath(id, now),
		Title:       fmt.Sprintf("Memory: %s", req.Type),
		Content:     req.Content,
		Tags:        req.Tags,
		Template:    notes.TemplateLog,
		Frontmatter: fm,
	})
	if err != nil {
		return "", err
	}
	return res.Path, nil
}
