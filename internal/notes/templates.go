package notes

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Template names accepted by CreateNote.
const (
	TemplateDefault = "default"
	TemplateJournal = "journal"
	TemplateMeeting = "meeting"
	TemplateLog     = "log"
)

// Templates lists every template name.
var Templates = []string{TemplateDefault, TemplateJournal, TemplateMeeting, TemplateLog}

// CreateRequest describes a create_note call.
type CreateRequest struct {
	Filename string
	Title    string
	Content  string
	Tags     []string
	Template string
	// Extra front-matter merged over the computed block.
	Frontmatter map[string]any
}

// CreateNote renders content through a template and writes it with a
// computed front-matter block.
func (s *Service) CreateNote(ctx context.Context, req CreateRequest) (*WriteResult, error) {
	now := s.now()
	p := NormalizePath(req.Filename)

	title := req.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(p), path.Ext(p))
	}
	tmpl := req.Template
	if tmpl == "" {
		tmpl = TemplateDefault
	}
	body, err := applyTemplate(tmpl, title, req.Content, now)
	if err != nil {
		return nil, err
	}

	tags := req.Tags
	if tags == nil {
		tags = []string{}
	}
	fm := map[string]any{
		"title":   title,
		"created": now.UTC().Format(time.RFC3339),
		"tags":    tags,
	}
	if tmpl != TemplateDefault {
		fm["template"] = tmpl
	}
	for k, v := range req.Frontmatter {
		fm[k] = v
	}

	return s.WriteNote(ctx, WriteRequest{
		Filename:    p,
		Content:     body,
		Frontmatter: fm,
		CreateDirs:  true,
	})
}

func applyTemplate(name, title, content string, now time.Time) (string, error) {
	switch name {
	case TemplateDefault:
		return fmt.Sprintf("# %s\n\n%s\n", title, content), nil
	case TemplateJournal:
		return fmt.Sprintf("# %s\n\n*Journal entry for %s*\n\n%s\n", title, now.Format("Monday, January 2, 2006"), content), nil
	case TemplateMeeting:
		return fmt.Sprintf("# Meeting: %s\n\n**Date:** %s\n\n## Notes\n\n%s\n", title, now.Format("2006-01-02 15:04"), content), nil
	case TemplateLog:
		return fmt.Sprintf("# %s\n\n*Logged at %s*\n\n%s\n", title, now.UTC().Format(time.RFC3339), content), nil
	default:
		return "", fmt.Errorf("notes: unknown template %q", name)
	}
}
