package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSStore keeps objects in a JetStream object store bucket. The bucket has
// no conditional put, so Put checks for the object first; a racing writer
// for the same path stores identical bytes, so last writer wins is harmless.
type NATSStore struct {
	obs    nats.ObjectStore
	bucket string
}

// NewNATSStore binds to bucket, creating it when missing.
func NewNATSStore(js nats.JetStreamContext, bucket string) (*NATSStore, error) {
	obs, err := js.ObjectStore(bucket)
	if errors.Is(err, nats.ErrStreamNotFound) || errors.Is(err, nats.ErrBucketNotFound) {
		obs, err = js.CreateObjectStore(&nats.ObjectStoreConfig{
			Bucket:      bucket,
			Description: "narrator audio and manifests",
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind object store %q: %w", bucket, err)
	}
	return &NATSStore{obs: obs, bucket: bucket}, nil
}

func (s *NATSStore) Location(path string) string {
	return "nats://" + s.bucket + "/" + strings.TrimLeft(path, "/")
}

func (s *NATSStore) name(location string) string {
	return strings.TrimLeft(strings.TrimPrefix(location, "nats://"+s.bucket+"/"), "/")
}

func (s *NATSStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := s.obs.GetInfo(s.name(path))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !info.Deleted, nil
}

func (s *NATSStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	exists, err := s.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrConflict
	}
	meta := &nats.ObjectMeta{
		Name:     s.name(path),
		Metadata: map[string]string{"content-type": contentType},
	}
	if _, err := s.obs.Put(meta, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.Location(path), nil
}

func (s *NATSStore) Get(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.obs.GetBytes(s.name(location))
	if errors.Is(err, nats.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}
