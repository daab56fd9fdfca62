package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/models"
)

const (
	noteExt    = ".md"
	tempPrefix = ".mnemo-tmp-"
)

// Checksum returns the hex SHA-256 of note content.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FS is a Provider over a directory of Markdown notes. Mutations of the
// same path are serialised so concurrent appends are not lost.
type FS struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFS opens the vault at root, which must be an existing directory.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: vault %s is not a directory", abs)
	}
	return &FS{root: abs, locks: make(map[string]*sync.Mutex)}, nil
}

// Root returns the absolute vault root.
func (f *FS) Root() string { return f.root }

// resolve maps a vault path to an absolute one inside the root.
func (f *FS) resolve(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("storage: %s: %w: absolute path", rel, apperr.ErrValidation)
	}
	abs := filepath.Join(f.root, clean)
	if abs != f.root && !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: %s: %w: outside the vault", rel, apperr.ErrValidation)
	}
	return abs, nil
}

// lock returns the held mutex for abs; the caller unlocks it.
func (f *FS) lock(abs string) *sync.Mutex {
	f.mu.Lock()
	m, ok := f.locks[abs]
	if !ok {
		m = &sync.Mutex{}
		f.locks[abs] = m
	}
	f.mu.Unlock()
	m.Lock()
	return m
}

// List walks dir for notes. Hidden entries such as .obsidian are skipped
// and the walk stops when ctx is done.
func (f *FS) List(ctx context.Context, dir string, recursive bool) ([]models.NoteMetadata, error) {
	base, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	out := []models.NoteMetadata{}
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == base {
			return nil
		}
		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden || !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !strings.HasSuffix(d.Name(), noteExt) {
			return nil
		}
		meta, err := f.describe(p, d)
		if err != nil {
			return err
		}
		out = append(out, meta)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %q: %w", dir, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (f *FS) describe(abs string, d fs.DirEntry) (models.NoteMetadata, error) {
	info, err := d.Info()
	if err != nil {
		return models.NoteMetadata{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return models.NoteMetadata{}, err
	}
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return models.NoteMetadata{}, err
	}
	return models.NoteMetadata{
		Path:      filepath.ToSlash(rel),
		Name:      strings.TrimSuffix(d.Name(), noteExt),
		Size:      info.Size(),
		Checksum:  Checksum(data),
		UpdatedAt: info.ModTime(),
	}, nil
}

// Read returns the raw bytes of a vault file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Write replaces path with content.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	defer f.lock(abs).Unlock()
	return replace(abs, content)
}

// Append adds content to an existing file. The read and the replacement
// happen under the path lock.
func (f *FS) Append(path string, content []byte) (int, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return 0, err
	}
	defer f.lock(abs).Unlock()

	existing, err := os.ReadFile(abs)
	if err != nil {
		return 0, fmt.Errorf("storage: append %s: %w", path, err)
	}
	data := append(existing, content...)
	if err := replace(abs, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// replace writes data to a sibling temp file, syncs it and renames it over
// abs, so readers see either the old or the new content.
func replace(abs string, data []byte) (err error) {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err = os.Rename(tmp.Name(), abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

// Delete removes a file. A missing file matches os.ErrNotExist.
func (f *FS) Delete(path string) error {
	abs, err := f.resolve(path)
	if err != nil {
		return err
	}
	defer f.lock(abs).Unlock()
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// Stat describes a file or directory in the vault.
func (f *FS) Stat(path string) (fs.FileInfo, error) {
	abs, err := f.resolve(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	return info, nil
}
