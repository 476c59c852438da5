package pemstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileStore writes artifacts to the local filesystem, relative to Root
// unless the path is absolute.
type FileStore struct {
	Root string
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store rooted at root. An empty root means the
// working directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// Write creates the parent directories and writes content with mode 0600.
func (s *FileStore) Write(_ context.Context, path, content string) error {
	name := s.resolve(path)

	if err := os.MkdirAll(filepath.Dir(name), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}

	// private keys share this path so everything is owner only
	if err := os.WriteFile(name, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	log.Debug().Str("path", name).Msg("wrote pem file")
	return nil
}

// Read returns the file content, or ErrNotFound when the file is missing.
func (s *FileStore) Read(_ context.Context, path string) (string, error) {
	name := s.resolve(path)

	data, err := os.ReadFile(name) // #nosec G304 - path is operator supplied
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}

	return string(data), nil
}

func (s *FileStore) resolve(path string) string {
	name := filepath.FromSlash(path)
	if filepath.IsAbs(name) || s.Root == "" {
		return name
	}
	return filepath.Join(s.Root, name)
}
