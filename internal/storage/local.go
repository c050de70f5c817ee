package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalStore keeps objects as files under a root directory. Object names
// use forward slashes regardless of platform.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("local store directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(name string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.root, clean), nil
}

// Upload writes r to the named object, replacing any existing content.
func (s *LocalStore) Upload(ctx context.Context, name string, r io.Reader, _ string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), p)
}

// Download reads the named object.
func (s *LocalStore) Download(ctx context.Context, name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
	}
	return data, err
}

// List returns object names under prefix in lexical order.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list local objects: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (s *LocalStore) Close() error {
	return nil
}
