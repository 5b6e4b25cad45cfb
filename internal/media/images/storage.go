// Package images validates, fingerprints and stores signature images.
package images

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when no file exists for a ref.
var ErrNotFound = errors.New("image not found")

// Storage manages image files under one directory.
// Safe for concurrent use.
type Storage struct {
	basePath string
	mu       sync.RWMutex
}

// NewStorage creates Storage rooted at {basePath}/signatures.
func NewStorage(basePath string) (*Storage, error) {
	return NewStorageWithSubdir(basePath, "signatures")
}

// NewStorageWithSubdir creates Storage rooted at {basePath}/{subdir}.
func NewStorageWithSubdir(basePath, subdir string) (*Storage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}
	if subdir == "" {
		return nil, fmt.Errorf("subdirectory cannot be empty")
	}

	storagePath := filepath.Join(basePath, subdir)
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", subdir, err)
	}

	return &Storage{basePath: storagePath}, nil
}

// Save writes data under ref. A ref is a bare file name such as
// "sigimg-abc.png".
func (s *Storage) Save(ref string, data []byte) error {
	if err := validRef(ref); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("image data cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.Path(ref), data, 0o644); err != nil {
		return fmt.Errorf("failed to write image file: %w", err)
	}
	return nil
}

// Get reads the file stored under ref.
func (s *Storage) Get(ref string) ([]byte, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

// Exists reports whether a file is stored under ref.
func (s *Storage) Exists(ref string) bool {
	if validRef(ref) != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.Path(ref))
	return err == nil
}

// Delete removes the file under ref. Missing files are not an error.
func (s *Storage) Delete(ref string) error {
	if err := validRef(ref); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image file: %w", err)
	}
	return nil
}

// Path returns the filesystem path for ref.
func (s *Storage) Path(ref string) string {
	return filepath.Join(s.basePath, ref)
}

func validRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("ref cannot be empty")
	}
	if ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return fmt.Errorf("invalid image ref %q", ref)
	}
	return nil
}
