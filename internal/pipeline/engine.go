// Package pipeline turns a document into narrated audio: it guards the
// budget, synthesizes chunks through the selected provider with one cloud
// fallback, stores every artifact under a content address, stitches the
// chunks into one track and publishes a manifest.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/narrator/internal/audio"
	"github.com/loqalabs/narrator/internal/blob"
	"github.com/loqalabs/narrator/internal/cachekey"
	"github.com/loqalabs/narrator/internal/tts"
)

const instrumentationName = "github.com/loqalabs/narrator/pipeline"

// Config holds the knobs of the engine.
type Config struct {
	Selector            tts.SelectorConfig
	Prices              map[tts.Name]float64
	MaxEstimatedCostUSD float64
	StitchWithFFmpeg    bool
	FFmpeg              audio.FFmpegOptions
	// Concurrency bounds parallel chunk work; 1 processes chunks in order.
	Concurrency   int
	EngineVersion string
}

type Engine struct {
	cfg       Config
	providers *tts.Registry
	store     blob.Store
	segmenter Segmenter
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics
	onEvent   EventFunc
	inflight  atomic.Int64
	closeOnce sync.Once
	closeErr  error
}

type Option func(*Engine)

// gauges reports chunks in flight and configured providers.
func (e *Engine) gauges() (inflight, providers int64) {
	if e.providers != nil {
		providers = int64(len(e.providers.Names()))
	}
	return e.inflight.Load(), providers
}

// WithSegmenter enables requests that carry raw text instead of chunks.
func WithSegmenter(s Segmenter) Option {
	return func(e *Engine) { e.segmenter = s }
}

func WithEventFunc(fn EventFunc) Option {
	return func(e *Engine) { e.onEvent = fn }
}

func NewEngine(cfg Config, providers *tts.Registry, store blob.Store, logger *slog.Logger, opts ...Option) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.EngineVersion == "" {
		cfg.EngineVersion = cachekey.DefaultVersion
	}
	e := &Engine{
		cfg:       cfg,
		providers: providers,
		store:     store,
		logger:    logger.With(slog.String("component", "pipeline")),
		tracer:    otel.Tracer(instrumentationName),
	}
	m, err := newMetrics(otel.Meter(instrumentationName), e.gauges)
	if err != nil {
		e.logger.Warn("metrics disabled", slogError(err))
		m, _ = newMetrics(noop.NewMeterProvider().Meter(instrumentationName), e.gauges)
	}
	e.metrics = m
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Close releases the engine's metric callbacks. The engine must not be used
// afterwards; calling Close again is a no-op.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { e.closeErr = e.metrics.close() })
	return e.closeErr
}

// plan is a validated request with every default resolved.
type plan struct {
	req           Request
	providerName  tts.Name
	provider      tts.Provider
	voiceID       string
	speed         float64
	format        tts.Format
	segmentFormat tts.Format
	chunks        []Chunk
	docKey        string
	estimate      CostEstimate
}

func (p *plan) params() cachekey.Params {
	return cachekey.Params{
		Provider:     string(p.providerName),
		VoiceID:      p.voiceID,
		Speed:        p.speed,
		LanguageCode: p.req.LanguageCode,
		SampleRate:   p.req.SampleRate,
	}
}

func (e *Engine) prepare(req Request) (*plan, error) {
	format, ok := tts.ParseFormat(string(req.Format))
	if !ok {
		return nil, &ValidationError{Reason: fmt.Sprintf("unsupported format %q", req.Format)}
	}
	if strings.TrimSpace(req.SourceID) == "" {
		return nil, &ValidationError{Reason: "source id is required"}
	}

	name := tts.Select(req.Provider, req.LanguageCode, e.cfg.Selector)
	provider, err := e.providers.Get(name)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	p := &plan{
		req:           req,
		providerName:  name,
		provider:      provider,
		voiceID:       req.VoiceID,
		speed:         req.Speed,
		format:        format,
		segmentFormat: format,
	}
	if p.voiceID == "" {
		p.voiceID = tts.DefaultVoice(name, req.LanguageCode)
	}
	if p.speed == 0 {
		p.speed = 1
	}
	if e.cfg.StitchWithFFmpeg {
		p.segmentFormat = tts.FormatWAV
	}

	chunks := req.Chunks
	if len(chunks) == 0 && req.Text != "" {
		if e.segmenter == nil {
			return nil, &ValidationError{Reason: "raw text given but no segmenter is configured"}
		}
		chunks = e.segmenter.Segment(req.Text)
	}
	p.chunks = compact(chunks)
	if len(p.chunks) == 0 {
		return nil, &ValidationError{Reason: "no synthesizable text"}
	}

	p.docKey = cachekey.Document(req.SourceID, string(format), e.keyParams(p)).String()

	price, ok := e.cfg.Prices[name]
	if !ok {
		price = DefaultPrices[name]
	}
	p.estimate = EstimateCost(name, p.chunks, price)
	return p, nil
}

// compact orders chunks by index, drops those without speakable text and
// renumbers the rest 0..N-1.
func compact(in []Chunk) []Chunk {
	sorted := append([]Chunk(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	out := sorted[:0]
	for _, c := range sorted {
		if cachekey.Normalize(c.Text) == "" {
			continue
		}
		c.Index = len(out)
		out = append(out, c)
	}
	return out
}

// Estimate validates req and returns its projected cost without calling any
// provider.
func (e *Engine) Estimate(req Request) (CostEstimate, error) {
	p, err := e.prepare(req)
	if err != nil {
		return CostEstimate{}, err
	}
	return p.estimate, nil
}

// Synthesize runs the whole pipeline. A chunk failure aborts the request and
// no manifest is returned; stitching and manifest persistence are best
// effort.
func (e *Engine) Synthesize(ctx context.Context, req Request) (*Manifest, error) {
	ctx, span := e.tracer.Start(ctx, "narrator.synthesize")
	defer span.End()

	p, err := e.prepare(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("narrator.source_id", req.SourceID),
		attribute.String("narrator.provider", string(p.providerName)),
		attribute.String("narrator.doc_key", p.docKey),
		attribute.Int("narrator.chunks", len(p.chunks)),
	)
	log := e.logger.With(
		slog.String("source_id", req.SourceID),
		slog.String("provider", string(p.providerName)),
		slog.String("doc_key", p.docKey),
	)

	e.metrics.cost.Record(ctx, p.estimate.EstimatedUSD)
	if err := p.estimate.Check(e.cfg.MaxEstimatedCostUSD); err != nil {
		log.Warn("request over budget",
			slog.Int("total_chars", p.estimate.TotalChars),
			slog.Float64("estimated_usd", p.estimate.EstimatedUSD),
			slog.Float64("ceiling_usd", e.cfg.MaxEstimatedCostUSD))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	segments, buffers, err := e.synthesizeChunks(ctx, p)
	if err != nil {
		log.Error("synthesis failed", slogError(err))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	manifest := &Manifest{
		ID:         p.docKey,
		Provider:   p.providerName,
		VoiceID:    p.voiceID,
		Format:     p.format,
		Segments:   segments,
		TotalChars: p.estimate.TotalChars,
		Title:      req.TitleHint,
	}
	manifest.StitchedAudioLocation = e.stitch(ctx, p, segments, buffers)
	e.publish(ctx, manifest)

	log.Info("synthesis complete",
		slog.Int("segments", len(segments)),
		slog.Bool("stitched", manifest.StitchedAudioLocation != ""))
	return manifest, nil
}

// synthesizeChunks resolves every chunk with at most cfg.Concurrency in
// flight. Results land in index-addressed slots, so the output is ordered
// regardless of completion order.
func (e *Engine) synthesizeChunks(ctx context.Context, p *plan) ([]Segment, [][]byte, error) {
	segments := make([]Segment, len(p.chunks))
	buffers := make([][]byte, len(p.chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, chunk := range p.chunks {
		g.Go(func() error {
			seg, data, err := e.synthesizeChunk(gctx, p, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}
			segments[i] = seg
			buffers[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return segments, buffers, nil
}

type eventFuncKey struct{}

// ContextWithEventFunc attaches a per-request event sink. It receives the
// events of that request in addition to the engine-wide EventFunc.
func ContextWithEventFunc(ctx context.Context, fn EventFunc) context.Context {
	return context.WithValue(ctx, eventFuncKey{}, fn)
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
	if fn, ok := ctx.Value(eventFuncKey{}).(EventFunc); ok && fn != nil {
		fn(ev)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
