// Package storage defines the vault file-system abstraction.
package storage

import (
	"context"
	"io/fs"

	"github.com/starford/mnemo/internal/models"
)

// Provider is the interface for vault file operations. Paths are
// slash-separated and relative to the vault root.
type Provider interface {
	// List returns metadata for every note under dir, sorted by path.
	// When recursive is false only direct children of dir are returned.
	List(ctx context.Context, dir string, recursive bool) ([]models.NoteMetadata, error)
	Read(path string) ([]byte, error)
	// Write replaces path atomically, creating parent directories.
	Write(path string, content []byte) error
	// Append adds content to the end of an existing file and returns the
	// new size. A missing file matches os.ErrNotExist.
	Append(path string, content []byte) (int, error)
	Delete(path string) error
	Stat(path string) (fs.FileInfo, error)
	Root() string
}
