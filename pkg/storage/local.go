package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore persists objects on disk in <root>/<bucket>/<key>. It mirrors S3
// replace semantics: the object only appears once fully written.
type LocalStore struct {
	root string
}

// NewLocalStore creates a local store rooted at dir.
func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = filepath.Join(os.TempDir(), "clavis-export-store")
	}
	return &LocalStore{root: root}
}

// PutObject writes r to a temp file and renames it into place.
func (s *LocalStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), fullPath)
}

// GetObject reads an object back.
func (s *LocalStore) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, err
	}
	return data, nil
}

// Close is a no-op.
func (s *LocalStore) Close() error {
	return nil
}

func (s *LocalStore) objectPath(bucket, key string) (string, error) {
	if err := validateTarget(bucket, key); err != nil {
		return "", err
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}

	cleanKey := filepath.Clean("/" + filepath.FromSlash(key))
	fullPath := filepath.Join(s.root, bucket, cleanKey)
	if !strings.HasPrefix(fullPath, filepath.Join(s.root, bucket)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return fullPath, nil
}
