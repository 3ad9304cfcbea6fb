package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore writes artifacts to BaseDir/<runID>/<filename>. Writes go through
// a temporary file and a rename, so readers never observe partial content and
// repeated saves simply overwrite.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStore creates a store rooted at baseDir. The directory is created on
// first save.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// BaseDir returns the store's root directory.
func (f *FileStore) BaseDir() string { return f.baseDir }

// Save implements core.ArtifactStore.
func (f *FileStore) Save(ctx context.Context, runID, filename, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(runID, filename); err != nil {
		return err
	}

	dir := filepath.Join(f.baseDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(dir, "."+filename+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filename, err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, filename))
}

// Get implements core.ArtifactStore.
func (f *FileStore) Get(_ context.Context, runID, filename string) (string, error) {
	if err := ValidateName(runID, filename); err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(f.baseDir, runID, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// List implements core.ArtifactStore.
func (f *FileStore) List(_ context.Context, runID string) ([]string, error) {
	if err := ValidateName(runID, "list"); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(f.baseDir, runID))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || e.Name()[0] == '.' {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
