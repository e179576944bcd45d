package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidLocation indicates a storage location token that this store
// never issued.
var ErrInvalidLocation = errors.New("blob: invalid storage location")

// Store persists uploaded document bytes on the local filesystem. Locations
// it returns are opaque tokens; callers must not derive or interpret them.
type Store struct {
	root string
}

// NewStore ensures the root directory exists and returns a store rooted there.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("blob: root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("blob: creating root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Save writes the stream to a new blob and returns its location token.
// Each blob is written exactly once and never mutated afterwards.
func (s *Store) Save(reader io.Reader) (string, error) {
	name := uuid.New().String()
	path := filepath.Join(s.root, name)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("blob: creating %s: %w", name, err)
	}

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("blob: writing %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("blob: closing %s: %w", name, err)
	}

	return name, nil
}

// Open returns a reader over the stored bytes at the given location.
func (s *Store) Open(location string) (io.ReadCloser, error) {
	path, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blob: opening %s: %w", location, err)
	}
	return file, nil
}

// Remove deletes the blob at the given location. Removing an absent blob
// is not an error; cleanup paths may run more than once.
func (s *Store) Remove(location string) error {
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: removing %s: %w", location, err)
	}
	return nil
}

func (s *Store) resolve(location string) (string, error) {
	if location == "" || location != filepath.Base(location) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}
	if _, err := uuid.Parse(location); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocation, location)
	}
	return filepath.Join(s.root, location), nil
}
