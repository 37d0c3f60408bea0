package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps objects as files below a root directory. Writes go through a
// temporary file that is hard linked into place, which fails when the target
// exists and gives put-if-absent semantics without locking.
type FSStore struct {
	root    string
	baseURL string
}

// NewFSStore creates root if needed. When baseURL is set, locations are
// baseURL + "/" + path; otherwise they are file:// URLs.
func NewFSStore(root, baseURL string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: abs, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FSStore) file(path string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *FSStore) Location(path string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	name, err := s.file(path)
	if err != nil {
		return ""
	}
	return "file://" + filepath.ToSlash(name)
}

func (s *FSStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	name, err := s.file(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *FSStore) Put(ctx context.Context, path string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := s.file(path)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Link(tmpName, name); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("publish blob: %w", err)
	}
	return s.Location(path), nil
}

func (s *FSStore) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var name string
	switch {
	case s.baseURL != "" && strings.HasPrefix(location, s.baseURL+"/"):
		n, err := s.file(strings.TrimPrefix(location, s.baseURL+"/"))
		if err != nil {
			return nil, err
		}
		name = n
	case strings.HasPrefix(location, "file://"):
		name = filepath.FromSlash(strings.TrimPrefix(location, "file://"))
		if !strings.HasPrefix(name, s.root+string(filepath.Separator)) {
			return nil, fmt.Errorf("location %q is outside the store", location)
		}
	default:
		n, err := s.file(location)
		if err != nil {
			return nil, err
		}
		name = n
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}
