package pipeline

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/loqalabs/narrator/internal/blob"
	"github.com/loqalabs/narrator/internal/cachekey"
	"github.com/loqalabs/narrator/internal/ssml"
	"github.com/loqalabs/narrator/internal/tts"
)

var headingMarker = regexp.MustCompile(`(?m)^#{1,6}\s+`)

// synthesizeChunk resolves one chunk to a stored audio location. The
// returned bytes are nil when the audio was already stored.
func (e *Engine) synthesizeChunk(ctx context.Context, p *plan, chunk Chunk) (Segment, []byte, error) {
	ctx, span := e.tracer.Start(ctx, "narrator.chunk")
	defer span.End()
	e.inflight.Add(1)
	defer e.inflight.Add(-1)
	started := time.Now()

	key := cachekey.Chunk(cachekey.Normalize(chunk.Text), e.keyParams(p)).String()
	path := ChunkPath(key, p.segmentFormat)
	span.SetAttributes(
		attribute.Int("narrator.chunk.index", chunk.Index),
		attribute.String("narrator.chunk.key", key),
	)
	log := e.logger.With(slog.Int("chunk", chunk.Index), slog.String("chunk_key", key))

	seg := Segment{
		Index:        chunk.Index,
		Text:         chunk.Text,
		SectionTitle: chunk.SectionTitle,
		HeadingDepth: chunk.HeadingDepth,
		ChunkKey:     key,
		Provider:     p.providerName,
	}
	if p.provider.SupportsMarkup() {
		seg.Markup = e.markup(p, chunk.Text)
	}

	// Only cloud output is reused; the sidecar always re-synthesizes.
	if p.providerName.IsCloud() {
		exists, err := e.store.Exists(ctx, path)
		if err != nil {
			log.Warn("exists check failed", slogError(err), slog.String("doc_key", p.docKey))
		}
		if exists {
			seg.AudioLocation = e.store.Location(path)
			seg.Reused = true
			log.Debug("chunk reused")
			e.metrics.chunkDone(ctx, string(p.providerName), "reused", started)
			e.emit(ctx, Event{Kind: EventChunkReused, Index: chunk.Index, Provider: p.providerName})
			return seg, nil, nil
		}
	}

	data, err := p.provider.Synthesize(ctx, e.input(p, p.provider, p.voiceID, chunk.Text))
	outcome, kind := "synthesized", EventChunkSynthesized
	if err != nil {
		e.metrics.providerFailed(ctx, string(p.providerName), tts.IsRetryable(err))
		if !p.providerName.IsCloud() {
			span.SetStatus(codes.Error, err.Error())
			return Segment{}, nil, err
		}
		fallback, ok := e.providers.Fallback(p.providerName)
		if !ok {
			span.SetStatus(codes.Error, err.Error())
			return Segment{}, nil, err
		}
		log.Warn("primary provider failed, trying fallback",
			slogError(err), slog.String("fallback", string(fallback.Name())))

		voice := tts.DefaultVoice(fallback.Name(), p.req.LanguageCode)
		data, err = e.retry(ctx, p, fallback, voice, chunk.Text, err, chunk.Index)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Segment{}, nil, err
		}
		seg.Provider = fallback.Name()
		if fallback.SupportsMarkup() {
			seg.Markup = e.markup(p, chunk.Text)
		} else {
			seg.Markup = ""
		}
		outcome, kind = "fallback", EventChunkFallback
	}

	loc, err := blob.PutIfAbsent(ctx, e.store, path, data, p.segmentFormat.ContentType())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Segment{}, nil, err
	}
	seg.AudioLocation = loc
	log.Debug("chunk stored", slog.String("provider", string(seg.Provider)), slog.Int("bytes", len(data)))
	e.metrics.chunkDone(ctx, string(p.providerName), outcome, started)
	e.emit(ctx, Event{Kind: kind, Index: chunk.Index, Provider: seg.Provider})
	return seg, data, nil
}

// retry makes the single fallback attempt and folds both failures into one
// error when it fails too.
func (e *Engine) retry(ctx context.Context, p *plan, fallback tts.Provider, voice, text string, primaryErr error, index int) ([]byte, error) {
	data, err := fallback.Synthesize(ctx, e.input(p, fallback, voice, text))
	if err == nil {
		return data, nil
	}
	e.metrics.providerFailed(ctx, string(fallback.Name()), tts.IsRetryable(err))
	return nil, &ProviderExhaustedError{
		Index:       index,
		Primary:     p.providerName,
		Fallback:    fallback.Name(),
		PrimaryErr:  primaryErr,
		FallbackErr: err,
	}
}

// keyParams are the chunk address parameters. The address names the primary
// provider even when the fallback produced the audio, so a later run reuses
// it.
func (e *Engine) keyParams(p *plan) cachekey.Params {
	params := p.params()
	params.Version = e.cfg.EngineVersion
	return params
}

func (e *Engine) input(p *plan, provider tts.Provider, voice, text string) tts.Input {
	in := tts.Input{
		VoiceID:      voice,
		Speed:        p.speed,
		Format:       p.segmentFormat,
		LanguageCode: p.req.LanguageCode,
		SampleRate:   p.req.SampleRate,
	}
	if provider.SupportsMarkup() {
		in.Text = e.markup(p, text)
	} else {
		in.Text = headingMarker.ReplaceAllString(text, "")
	}
	return in
}

func (e *Engine) markup(p *plan, text string) string {
	return ssml.Build(text, ssml.Options{Rate: p.speed, LanguageCode: p.req.LanguageCode})
}
