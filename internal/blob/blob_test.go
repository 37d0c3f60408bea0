package blob

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/narrator/internal/bus"
	"github.com/loqalabs/narrator/internal/cache"
	"github.com/loqalabs/narrator/internal/config"
	"github.com/loqalabs/narrator/internal/natsserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newNATSStore(t *testing.T) *NATSStore {
	t.Helper()
	log := discardLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir()}, log)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, "blob-test", log)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	store, err := NewNATSStore(client.JetStream(), "blob-test")
	require.NoError(t, err)
	return store
}

func newFSStore(t *testing.T, baseURL string) *FSStore {
	t.Helper()
	store, err := NewFSStore(t.TempDir(), baseURL)
	require.NoError(t, err)
	return store
}

// exerciseStore checks the contract every backend must honor.
func exerciseStore(t *testing.T, store Store) {
	ctx := context.Background()
	path := "tts/chunks/abc.mp3"

	ok, err := store.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	loc, err := store.Put(ctx, path, []byte("first"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, store.Location(path), loc)

	ok, err = store.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Put(ctx, path, []byte("second"), "audio/mpeg")
	assert.ErrorIs(t, err, ErrConflict)

	data, err := store.Get(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	loc2, err := PutIfAbsent(ctx, store, path, []byte("third"), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, loc, loc2)

	_, err = store.Get(ctx, store.Location("tts/chunks/missing.mp3"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStoreContract(t *testing.T) {
	exerciseStore(t, newFSStore(t, ""))
}

func TestFSStoreBaseURL(t *testing.T) {
	store := newFSStore(t, "https://cdn.example.com/")
	assert.Equal(t, "https://cdn.example.com/tts/doc/k/full.mp3", store.Location("tts/doc/k/full.mp3"))
	exerciseStore(t, store)
}

func TestFSStoreRejectsEscapes(t *testing.T) {
	store := newFSStore(t, "")
	ctx := context.Background()

	loc, err := store.Put(ctx, "../../outside.txt", []byte("x"), "text/plain")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, "file://"+store.root))

	_, err = store.Get(ctx, "file:///etc/passwd")
	assert.Error(t, err)

	_, err = store.Put(ctx, "/", []byte("x"), "text/plain")
	assert.Error(t, err)
}

func TestFSStoreConcurrentPutsHaveOneWinner(t *testing.T) {
	store := newFSStore(t, "")
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Put(ctx, "tts/doc/x/manifest.json", []byte("{}"), "application/json")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 15, conflicts)
}

func TestNATSStoreContract(t *testing.T) {
	store := newNATSStore(t)
	assert.Equal(t, "nats://blob-test/tts/chunks/abc.mp3", store.Location("tts/chunks/abc.mp3"))
	exerciseStore(t, store)
}

type countingStore struct {
	Store
	mu     sync.Mutex
	exists int
}

func (c *countingStore) Exists(ctx context.Context, path string) (bool, error) {
	c.mu.Lock()
	c.exists++
	c.mu.Unlock()
	return c.Store.Exists(ctx, path)
}

func TestExistsCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: newFSStore(t, "")}
	store := WithExistsCache(inner, cache.NewMemory(16, time.Minute))

	ok, err := store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = store.Exists(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, inner.exists, "negative answers must not be cached")

	_, err = store.Put(ctx, "a", []byte("1"), "text/plain")
	require.NoError(t, err)
	ok, err = store.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, inner.exists, "put should prime the cache")

	assert.Same(t, inner, WithExistsCache(inner, nil))
}
