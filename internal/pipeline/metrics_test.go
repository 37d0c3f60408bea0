package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/loqalabs/narrator/internal/tts"
)

func TestMetricsCloseStopsGaugeCallback(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	calls := 0
	m, err := newMetrics(mp.Meter(instrumentationName), func() (int64, int64) {
		calls++
		return 2, 3
	})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(2), gaugeValue(t, rm, "narrator.chunks.inflight"))
	assert.Equal(t, int64(3), gaugeValue(t, rm, "narrator.providers.configured"))

	require.NoError(t, m.close())
	require.NoError(t, m.close())

	require.NoError(t, reader.Collect(context.Background(), &rm))
	assert.Equal(t, 1, calls)
}

func TestEngineCloseIsIdempotent(t *testing.T) {
	e := NewEngine(Config{}, tts.NewRegistry(tts.NewMockProvider(tts.OpenAI)), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
}

func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			g, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "%s is not an int64 gauge", name)
			require.Len(t, g.DataPoints, 1)
			return g.DataPoints[0].Value
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}
