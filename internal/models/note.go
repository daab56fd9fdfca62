// Package models defines the domain types shared across adapters.
package models

import "time"

// Note is a Markdown file in the vault, identified by its vault-relative path.
type Note struct {
	Path        string         `json:"path"`
	Title       string         `json:"title,omitempty"`
	Content     string         `json:"content"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	Checksum    string         `json:"checksum"`
	Size        int            `json:"size"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"modified"`
}

// SearchHit is one note matching a literal search.
type SearchHit struct {
	Path     string   `json:"path"`
	Matches  int      `json:"matches"`
	Snippets []string `json:"snippets,omitempty"`
}
