package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/codes"

	"github.com/loqalabs/narrator/internal/audio"
	"github.com/loqalabs/narrator/internal/blob"
	"github.com/loqalabs/narrator/internal/tts"
)

// joiner combines ordered parts into one track.
type joiner func(ctx context.Context, parts [][]byte) ([]byte, error)

// stitch returns the location of the combined track, or "" when there is
// none. It never fails the request.
func (e *Engine) stitch(ctx context.Context, p *plan, segments []Segment, buffers [][]byte) string {
	if len(segments) <= 1 {
		return ""
	}
	ctx, span := e.tracer.Start(ctx, "narrator.stitch")
	defer span.End()

	log := e.logger.With(slog.String("doc_key", p.docKey))
	path := FullPath(p.docKey, p.format)

	exists, err := e.store.Exists(ctx, path)
	if err != nil {
		log.Warn("stitched track exists check failed", slogError(err))
	}
	if exists {
		e.metrics.stitched(ctx, "reused")
		e.emit(ctx, Event{Kind: EventStitched, Index: -1, Detail: "reused"})
		return e.store.Location(path)
	}

	join := e.joiner(p)
	if join == nil {
		log.Debug("no stitching strategy", slog.String("format", string(p.format)))
		e.metrics.stitched(ctx, "skipped")
		e.emit(ctx, Event{Kind: EventStitchSkipped, Index: -1, Detail: string(p.format)})
		return ""
	}

	loc, err := e.combine(ctx, join, path, p.format, segments, buffers)
	if err != nil {
		log.Warn("stitching failed", slogError(err))
		span.SetStatus(codes.Error, err.Error())
		e.metrics.stitched(ctx, "failed")
		e.emit(ctx, Event{Kind: EventStitchFailed, Index: -1, Detail: err.Error()})
		return ""
	}
	e.metrics.stitched(ctx, "stitched")
	e.emit(ctx, Event{Kind: EventStitched, Index: -1})
	return loc
}

func (e *Engine) combine(ctx context.Context, join joiner, path string, format tts.Format, segments []Segment, buffers [][]byte) (string, error) {
	parts := make([][]byte, len(segments))
	for i, seg := range segments {
		if buffers[i] != nil {
			parts[i] = buffers[i]
			continue
		}
		data, err := e.store.Get(ctx, seg.AudioLocation)
		if err != nil {
			return "", fmt.Errorf("fetch segment %d: %w", seg.Index, err)
		}
		parts[i] = data
	}

	joined, err := join(ctx, parts)
	if err != nil {
		return "", err
	}
	return blob.PutIfAbsent(ctx, e.store, path, joined, format.ContentType())
}

// joiner picks the strategy for the request: ffmpeg when enabled, otherwise
// a native join for mp3 and wav. ogg has none.
func (e *Engine) joiner(p *plan) joiner {
	if e.cfg.StitchWithFFmpeg {
		in, out := string(p.segmentFormat), string(p.format)
		return func(ctx context.Context, parts [][]byte) ([]byte, error) {
			return audio.FFmpegConcat(ctx, e.cfg.FFmpeg, parts, in, out)
		}
	}
	switch p.format {
	case tts.FormatMP3:
		return func(_ context.Context, parts [][]byte) ([]byte, error) { return audio.Concat(parts) }
	case tts.FormatWAV:
		return func(_ context.Context, parts [][]byte) ([]byte, error) { return audio.JoinWAV(parts) }
	default:
		return nil
	}
}
