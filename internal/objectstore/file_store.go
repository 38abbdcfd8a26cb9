package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/doc2speech/internal/core"
)

const (
	fileStoreDirPermission  = 0o750
	fileStoreFilePermission = 0o644
)

// ErrInvalidKey is returned for keys that would escape the store directory.
var ErrInvalidKey = errors.New("invalid artifact key")

// FileStore keeps artifacts as files in one directory. It is the store the
// download route serves from when no mirror is configured.
type FileStore struct {
	dir string
}

var _ core.ObjectStore = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	err := os.MkdirAll(dir, fileStoreDirPermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", dir, err)
	}

	return &FileStore{dir: dir}, nil
}

// Path returns the file that holds key.
func (f *FileStore) Path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || filepath.Base(key) != key {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(f.dir, key), nil
}

// Download reads the artifact stored under key.
func (f *FileStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := f.Path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}

		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}

	return data, nil
}

// Upload writes the artifact through a temporary file so that readers never
// see a partial artifact.
func (f *FileStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := f.Path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".upload-*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary artifact: %w", err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	err = errors.Join(writeErr, closeErr)
	if err == nil {
		err = os.Chmod(tmpName, fileStoreFilePermission)
	}

	if err == nil {
		err = os.Rename(tmpName, path)
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to store artifact %s: %w", key, err)
	}

	return nil
}
