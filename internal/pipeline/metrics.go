package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	chunks       metric.Int64Counter
	failures     metric.Int64Counter
	stitches     metric.Int64Counter
	cost         metric.Float64Histogram
	chunkLatency metric.Float64Histogram
	gauges       metric.Registration
}

func newMetrics(meter metric.Meter, gauges func() (inflight, providers int64)) (*metrics, error) {
	chunks, err := meter.Int64Counter("narrator.chunks",
		metric.WithDescription("Chunks processed by outcome"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("narrator.provider.failures",
		metric.WithDescription("Failed provider calls"))
	if err != nil {
		return nil, err
	}
	stitches, err := meter.Int64Counter("narrator.stitches",
		metric.WithDescription("Stitch attempts by outcome"))
	if err != nil {
		return nil, err
	}
	cost, err := meter.Float64Histogram("narrator.cost.estimated",
		metric.WithDescription("Estimated request cost"),
		metric.WithUnit("USD"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("narrator.chunk.duration",
		metric.WithDescription("Time to resolve one chunk"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	inflight, err := meter.Int64ObservableGauge("narrator.chunks.inflight",
		metric.WithDescription("Chunks currently being resolved"))
	if err != nil {
		return nil, err
	}
	providers, err := meter.Int64ObservableGauge("narrator.providers.configured",
		metric.WithDescription("Synthesis providers with credentials or a transport"))
	if err != nil {
		return nil, err
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		n, p := gauges()
		obs.ObserveInt64(inflight, n)
		obs.ObserveInt64(providers, p)
		return nil
	}, inflight, providers)
	if err != nil {
		return nil, err
	}
	return &metrics{
		chunks:       chunks,
		failures:     failures,
		stitches:     stitches,
		cost:         cost,
		chunkLatency: latency,
		gauges:       reg,
	}, nil
}

// close detaches the gauge callback so the meter stops observing the engine.
func (m *metrics) close() error {
	if m == nil || m.gauges == nil {
		return nil
	}
	err := m.gauges.Unregister()
	m.gauges = nil
	return err
}

func (m *metrics) chunkDone(ctx context.Context, provider string, outcome string, started time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	)
	m.chunks.Add(ctx, 1, attrs)
	m.chunkLatency.Record(ctx, time.Since(started).Seconds(), attrs)
}

func (m *metrics) providerFailed(ctx context.Context, provider string, retryable bool) {
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("retryable", retryable),
	))
}

func (m *metrics) stitched(ctx context.Context, outcome string) {
	m.stitches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
