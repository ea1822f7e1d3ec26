// Package file persists the catalog and quiz log on the local filesystem.
package file

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"forum-quiz-service/internal/domain"
)

// CatalogStore keeps the catalog as one JSON document. Saves replace the file
// atomically so a crash never leaves a truncated document behind.
type CatalogStore struct {
	path string
}

func NewCatalogStore(path string) *CatalogStore {
	return &CatalogStore{path: path}
}

// Load returns an empty catalog when the file does not exist.
func (s *CatalogStore) Load(_ context.Context) (domain.CatalogState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewCatalogState(), nil
	}
	if err != nil {
		return domain.CatalogState{}, err
	}
	return domain.DecodeCatalog(data)
}

func (s *CatalogStore) Save(_ context.Context, state domain.CatalogState) error {
	data, err := domain.EncodeCatalog(state)
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return syncDir(dir)
}

// syncDir flushes the rename. Some filesystems refuse fsync on directories.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
