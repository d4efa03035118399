package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"storefront/exporter/internal/domain"
)

type fileStore struct {
	fs      afero.Fs
	baseDir string
}

// NewFileStore returns a Store backed by a directory tree, one
// subdirectory per namespace and one file per key.
func NewFileStore(fs afero.Fs, baseDir string) Store {
	return &fileStore{fs: fs, baseDir: baseDir}
}

func (s *fileStore) Load(_ context.Context, namespace, key string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(namespace, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read blob %s/%s: %w", namespace, key, err)
	}
	return data, nil
}

func (s *fileStore) Save(_ context.Context, namespace, key string, data []byte) error {
	dir := filepath.Join(s.baseDir, sanitize(namespace))
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create blob namespace %s: %w", namespace, err)
	}
	if err := afero.WriteFile(s.fs, s.path(namespace, key), data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob %s/%s: %w", namespace, key, err)
	}
	return nil
}

func (s *fileStore) path(namespace, key string) string {
	return filepath.Join(s.baseDir, sanitize(namespace), sanitize(key)+".blob")
}

// sanitize keeps keys usable as file names regardless of what slugs the
// upstream hands back.
func sanitize(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return replacer.Replace(s)
}
