package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, NewLogger(InfoLevel, &bytes.Buffer{}))
	assert.NoError(t, err)
	assert.Nil(t, providers)
}

func TestInitOTel_EnabledWithoutCollector(t *testing.T) {
	logger := NewLogger(InfoLevel, &bytes.Buffer{})
	cfg := OTelConfig{
		Enabled:        true,
		Endpoint:       "localhost:4317",
		ServiceName:    "campus-test",
		ServiceVersion: "0.0.0",
		Insecure:       true,
		SampleRatio:    0.5,
	}

	// exporters connect lazily, so creation succeeds without a collector
	providers, err := InitOTel(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = ShutdownOTel(ctx, providers, logger)
}

func TestShutdownOTel_NilProviders(t *testing.T) {
	assert.NoError(t, ShutdownOTel(context.Background(), nil, NewLogger(InfoLevel, &bytes.Buffer{})))
}

func TestUpdateLoggerWithTraceContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("no span leaves logger untouched", func(t *testing.T) {
		assert.Same(t, logger, UpdateLoggerWithTraceContext(context.Background(), logger))
	})

	t.Run("recording span adds ids", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		buf.Reset()
		UpdateLoggerWithTraceContext(ctx, logger).Info("traced")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	})
}
