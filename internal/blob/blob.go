// Package blob is the object store holding chunk audio, stitched tracks and
// manifests. Paths are content addressed, so writers never coordinate: a put
// on an existing path reports ErrConflict and callers treat that as success.
package blob

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned by Put when the path already holds an object.
	ErrConflict = errors.New("blob already exists")
	// ErrNotFound is returned by Get for unknown locations.
	ErrNotFound = errors.New("blob not found")
)

// Store is the minimal object store contract.
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
	// Put writes data at path only if nothing is stored there yet and returns
	// the public location of the object.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
	// Location maps a path to the location Put would return for it.
	Location(path string) string
}

// PutIfAbsent writes data and folds ErrConflict into success, returning the
// location of whichever writer won.
func PutIfAbsent(ctx context.Context, s Store, path string, data []byte, contentType string) (string, error) {
	loc, err := s.Put(ctx, path, data, contentType)
	if errors.Is(err, ErrConflict) {
		return s.Location(path), nil
	}
	return loc, err
}
