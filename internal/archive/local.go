package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBackend stores archive blobs as files under a root directory,
// GrepWise's default archive destination.
type LocalBackend struct {
	Root string
}

// NewLocalBackend returns a LocalBackend rooted at dir, creating it if
// necessary.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &LocalBackend{Root: dir}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Put(ctx context.Context, key string, r io.Reader) error {
	path := filepath.Join(b.Root, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (b *LocalBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(b.Root, key))
}
