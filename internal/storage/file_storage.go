package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStore is a flat directory of write-once files.
type FileStore interface {
	// Save writes r to name and returns the file's path.
	Save(name string, r io.Reader) (string, error)

	// Path is where name lives, whether or not it exists yet.
	Path(name string) string

	// Exists reports whether name is a regular file in the store.
	Exists(name string) bool

	Dir() string
}

// DirectoryStore implements FileStore on a local directory
type DirectoryStore struct {
	dir string
}

// NewDirectoryStore creates dir (and parents) if needed.
func NewDirectoryStore(dir string) (FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory %s: %w", dir, err)
	}
	return &DirectoryStore{dir: dir}, nil
}

func (s *DirectoryStore) Save(name string, r io.Reader) (string, error) {
	path := s.Path(name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	return path, nil
}

func (s *DirectoryStore) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *DirectoryStore) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && info.Mode().IsRegular()
}

func (s *DirectoryStore) Dir() string {
	return s.dir
}
