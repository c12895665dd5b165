package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

// installSpanRecorder swaps in a recording tracer provider for span tests.
func installSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	saveAndRestoreGlobalProviders(t)
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	return recorder
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, config.ModeDaemon, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Nil(t, p.tp, "TracerProvider should be nil when disabled")
	assert.Nil(t, p.mp, "MeterProvider should be nil when disabled")
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentscope-runtime-test",
		SampleRate:   0.5,
	}

	p, err := Init(cfg, config.ModeDaemon, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.NotNil(t, p.tp, "TracerProvider should be set when enabled")
	assert.NotNil(t, p.mp, "MeterProvider should be set when enabled")

	// The globals should now be the SDK types, not noop.
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestInit_EmptyEndpointFallsBack(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:     true,
		ServiceName: "agentscope-runtime-test",
		SampleRate:  1.0,
	}

	p, err := Init(cfg, config.ModeStandalone, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p.tp)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestStartRunRecordsSpan(t *testing.T) {
	recorder := installSpanRecorder(t)

	_, end := StartRun(context.Background(), "echo", "sess_1")
	end(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "agent.run", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("agent.name", "echo"))
	assert.Contains(t, span.Attributes(), attribute.String("session.id", "sess_1"))
}

func TestStartRunRecordsFailure(t *testing.T) {
	recorder := installSpanRecorder(t)

	_, end := StartRun(context.Background(), "echo", "sess_1")
	end(errors.New("model unavailable"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "model unavailable", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 1, "RecordError should attach an exception event")
}

func TestStartTaskRecordsSpan(t *testing.T) {
	recorder := installSpanRecorder(t)

	_, end := StartTask(context.Background(), "summarize", "task_1")
	end(nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "task.execute", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("task.name", "summarize"))
	assert.Contains(t, spans[0].Attributes(), attribute.String("task.id", "task_1"))
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	// A nil *Providers must not panic on Shutdown.
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Noop(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(config.TelemetryConfig{Enabled: false}, config.ModeDaemon, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestProviders_Shutdown_Real(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentscope-runtime-shutdown-test",
		SampleRate:   1.0,
	}

	p, err := Init(cfg, config.ModeDetached, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p.tp)
	require.NotNil(t, p.mp)

	// No collector is listening, so the exporters may report a connection
	// error. Shutdown still has to finish within the deadline and must
	// not panic.
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	assert.NotPanics(t, func() {
		_ = p.Shutdown(ctx)
	})
}

func TestBuildVersion(t *testing.T) {
	v := buildVersion()
	assert.NotEmpty(t, v, "buildVersion should return a non-empty string")
	// Test binaries report "(devel)" from debug.ReadBuildInfo, so the
	// fallback applies.
	assert.Equal(t, "dev", v)
}
