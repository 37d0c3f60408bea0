package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/loqalabs/narrator/internal/blob"
)

// publish persists m at its deterministic path unless a copy is already
// there, then sets ManifestLocation. Failures are logged and absorbed.
func (e *Engine) publish(ctx context.Context, m *Manifest) {
	ctx, span := e.tracer.Start(ctx, "narrator.manifest")
	defer span.End()

	path := ManifestPath(m.ID)
	log := e.logger.With(slog.String("doc_key", m.ID))

	exists, err := e.store.Exists(ctx, path)
	if err != nil {
		log.Warn("manifest exists check failed", slogError(err))
	}
	if exists {
		m.ManifestLocation = e.store.Location(path)
		e.emit(ctx, Event{Kind: EventManifestReused, Index: -1})
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		log.Warn("encode manifest", slogError(err))
		e.emit(ctx, Event{Kind: EventManifestFailed, Index: -1, Detail: err.Error()})
		return
	}
	loc, err := blob.PutIfAbsent(ctx, e.store, path, data, "application/json")
	if err != nil {
		log.Warn("manifest upload failed", slogError(err))
		e.emit(ctx, Event{Kind: EventManifestFailed, Index: -1, Detail: err.Error()})
		return
	}
	m.ManifestLocation = loc
	log.Debug("manifest written", slog.String("location", loc))
	e.emit(ctx, Event{Kind: EventManifestWritten, Index: -1})
}
