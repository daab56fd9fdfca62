// Package notes implements note operations over the Markdown vault.
package notes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/parser"
	"github.com/starford/mnemo/internal/storage"
)

const (
	defaultListLimit   = 100
	defaultSearchLimit = 50
	maxSnippets        = 5
	maxSnippetLen      = 200
	defaultSeparator   = "\n\n"
)

// Service coordinates note reads and writes against the vault.
type Service struct {
	store storage.Provider
	now   func() time.Time
}

// NewService creates a new note service.
func NewService(store storage.Provider) *Service {
	return &Service{store: store, now: time.Now}
}

// NormalizePath strips leading separators and appends the .md extension
// when it is missing.
func NormalizePath(filename string) string {
	p := strings.TrimLeft(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"), "/")
	if !strings.HasSuffix(strings.ToLower(p), ".md") {
		p += ".md"
	}
	return p
}

// ReadNote reads a note and, when parseFrontmatter is set, splits the
// front-matter block from the content.
func (s *Service) ReadNote(_ context.Context, filename string, parseFrontmatter bool) (*models.Note, error) {
	p := NormalizePath(filename)
	data, err := s.read(p)
	if err != nil {
		return nil, err
	}
	note := &models.Note{
		Path:     p,
		Content:  string(data),
		Checksum: storage.Checksum(data),
		Size:     len(data),
	}
	res := parser.Parse(data)
	note.Title = res.Title
	if parseFrontmatter {
		note.Content = res.Body
		note.Frontmatter = res.Frontmatter
	}
	return note, nil
}

// WriteRequest describes a write_note call.
type WriteRequest struct {
	Filename    string
	Content     string
	Frontmatter map[string]any
	CreateDirs  bool
}

// WriteResult reports where a note was written.
type WriteResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// WriteNote serialises front-matter above the content and overwrites the
// note unconditionally.
func (s *Service) WriteNote(_ context.Context, req WriteRequest) (*WriteResult, error) {
	p := NormalizePath(req.Filename)
	if !req.CreateDirs {
		if dir := path.Dir(p); dir != "." {
			info, err := s.store.Stat(dir)
			if err != nil || !info.IsDir() {
				return nil, fmt.Errorf("notes: write %s: parent directory %s does not exist", p, dir)
			}
		}
	}
	data := []byte(parser.Render(req.Frontmatter, req.Content))
	if err := s.store.Write(p, data); err != nil {
		return nil, err
	}
	return &WriteResult{Path: p, Bytes: len(data)}, nil
}

// AppendNote appends content to an existing note. It never creates one.
func (s *Service) AppendNote(_ context.Context, filename, content, separator string) (*WriteResult, error) {
	p := NormalizePath(filename)
	if separator == "" {
		separator = defaultSeparator
	}
	n, err := s.store.Append(p, []byte(separator+content))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("notes: %s: %w", p, apperr.ErrNoteNotFound)
		}
		return nil, err
	}
	return &WriteResult{Path: p, Bytes: n}, nil
}

// ListRequest describes a list_notes call.
type ListRequest struct {
	Directory string
	Tag       string
	Recursive bool
	Limit     int
}

// ListResult is the response of ListNotes.
type ListResult struct {
	Notes []models.NoteMetadata `json:"notes"`
	Count int                   `json:"count"`
}

// ListNotes walks the vault. With a tag, every candidate file is opened and
// its front-matter checked; there is no index.
func (s *Service) ListNotes(ctx context.Context, req ListRequest) (*ListResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	dir := strings.Trim(strings.ReplaceAll(req.Directory, "\\", "/"), "/")
	metas, err := s.store.List(ctx, dir, req.Recursive)
	if err != nil {
		return nil, err
	}

	out := make([]models.NoteMetadata, 0, min(len(metas), limit))
	for _, m := range metas {
		if len(out) >= limit {
			break
		}
		if req.Tag != "" {
			data, err := s.store.Read(m.Path)
			if err != nil {
				continue
			}
			if !parser.HasTag(parser.Parse(data).Frontmatter, req.Tag) {
				continue
			}
		}
		out = append(out, m)
	}
	return &ListResult{Notes: out, Count: len(out)}, nil
}

// SearchRequest describes a search_notes call.
type SearchRequest struct {
	Query          string
	CaseSensitive  bool
	IncludeContent bool
	Limit          int
}

// SearchResult is the response of SearchNotes.
type SearchResult struct {
	Query   string             `json:"query"`
	Results []models.SearchHit `json:"results"`
	Count   int                `json:"count"`
}

// SearchNotes scans every note for the literal query text.
func (s *Service) SearchNotes(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("notes: search: %w: query is empty", apperr.ErrValidation)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	expr := regexp.QuoteMeta(req.Query)
	if !req.CaseSensitive {
		expr = "(?i)" + expr
	}
	re := regexp.MustCompile(expr)

	metas, err := s.store.List(ctx, "", true)
	if err != nil {
		return nil, err
	}
	hits := []models.SearchHit{}
	for _, m := range metas {
		if len(hits) >= limit {
			break
		}
		data, err := s.store.Read(m.Path)
		if err != nil {
			continue
		}
		content := string(data)
		matches := re.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			continue
		}
		hit := models.SearchHit{Path: m.Path, Matches: len(matches)}
		if req.IncludeContent {
			hit.Snippets = snippets(content, re)
		}
		hits = append(hits, hit)
	}
	return &SearchResult{Query: req.Query, Results: hits, Count: len(hits)}, nil
}

// snippets returns up to maxSnippets matching lines, each cut to maxSnippetLen runes.
func snippets(content string, re *regexp.Regexp) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if !re.MatchString(line) {
			continue
		}
		line = strings.TrimSpace(line)
		if r := []rune(line); len(r) > maxSnippetLen {
			line = string(r[:maxSnippetLen]) + "..."
		}
		out = append(out, line)
		if len(out) == maxSnippets {
			break
		}
	}
	return out
}

// DeleteResult reports the outcome of DeleteNote.
type DeleteResult struct {
	Path    string `json:"path"`
	Deleted bool   `json:"deleted"`
	Reason  string `json:"reason,omitempty"`
}

// DeleteNote removes a note. Deleting an absent note is not an error.
func (s *Service) DeleteNote(_ context.Context, filename string) (*DeleteResult, error) {
	p := NormalizePath(filename)
	if err := s.store.Delete(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &DeleteResult{Path: p, Deleted: false, Reason: "note does not exist"}, nil
		}
		return nil, err
	}
	return &DeleteResult{Path: p, Deleted: true}, nil
}

func (s *Service) read(p string) ([]byte, error) {
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("notes: %s: %w", p, apperr.ErrNoteNotFound)
		}
		return nil, err
	}
	return data, nil
}
