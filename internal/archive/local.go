package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local implements Blobs on the local filesystem.
// Useful for development, single-host deployments and testing.
type Local struct {
	BaseDir string
}

// NewLocal creates a Local store rooted at the given directory.
func NewLocal(baseDir string) *Local {
	return &Local{BaseDir: baseDir}
}

func (s *Local) path(key string) (string, error) {
	p := filepath.Join(s.BaseDir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(s.BaseDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes archive root", key)
	}
	return p, nil
}

func (s *Local) Put(_ context.Context, key, _ string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Local) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}
