// =============================================================================
// AgentScope Runtime OpenTelemetry Setup
// =============================================================================
// Initializes the OTel SDK for traces and metrics and exposes the span
// helpers the runtime instruments agent runs and queue tasks with. When
// telemetry is disabled no exporters are created and the global providers
// stay noop, so the helpers cost nothing.
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/rayrayraykk/agentscope-runtime/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// instrumentationName scopes every span the runtime emits.
const instrumentationName = "github.com/rayrayraykk/agentscope-runtime"

const defaultOTLPEndpoint = "localhost:4317"

// Runtime attribute keys. deployment.mode distinguishes daemon, detached
// and standalone processes in trace backends.
const (
	attrDeploymentMode = attribute.Key("deployment.mode")
	attrAgentName      = attribute.Key("agent.name")
	attrSessionID      = attribute.Key("session.id")
	attrTaskName       = attribute.Key("task.name")
	attrTaskID         = attribute.Key("task.id")
)

// Providers holds the SDK tracer and meter providers. Both fields are nil
// when telemetry is disabled and Shutdown is then a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init sets up the OTel SDK and installs the global providers and
// propagators. mode is the deployment mode the process runs in and is
// attached to the resource. When cfg.Enabled is false Init returns noop
// Providers without touching any external endpoint.
func Init(cfg config.TelemetryConfig, mode string, logger *zap.Logger) (*Providers, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	ctx := context.Background()

	res, err := runtimeResource(ctx, cfg, mode)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}

	tp, err := newTracerProvider(ctx, endpoint, cfg.SampleRate, res)
	if err != nil {
		return nil, err
	}
	mp, err := newMeterProvider(ctx, endpoint, res)
	if err != nil {
		return nil, err
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", endpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("mode", mode),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return &Providers{tp: tp, mp: mp}, nil
}

// runtimeResource describes this process to trace backends: service name,
// version from build info and the deployment mode.
func runtimeResource(ctx context.Context, cfg config.TelemetryConfig, mode string) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
			attrDeploymentMode.String(mode),
		),
	)
}

func newTracerProvider(ctx context.Context, endpoint string, sampleRate float64, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	// Honor an upstream sampling decision; sample roots at the configured
	// rate.
	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRate))
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

func newMeterProvider(ctx context.Context, endpoint string, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

// Shutdown flushes pending spans and metrics and closes the exporters.
// Safe on nil and on noop Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EndFunc closes a span opened by one of the Start helpers, recording err
// as the span outcome.
type EndFunc func(err error)

// StartRun opens a span covering one agent run. Callers must invoke the
// returned EndFunc exactly once when the run reaches a terminal state.
func StartRun(ctx context.Context, agentName, sessionID string) (context.Context, EndFunc) {
	return startSpan(ctx, "agent.run", trace.SpanKindServer,
		attrAgentName.String(agentName),
		attrSessionID.String(sessionID),
	)
}

// StartTask opens a span covering one background task execution.
func StartTask(ctx context.Context, taskName, taskID string) (context.Context, EndFunc) {
	return startSpan(ctx, "task.execute", trace.SpanKindConsumer,
		attrTaskName.String(taskName),
		attrTaskID.String(taskID),
	)
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, EndFunc) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// buildVersion extracts the module version from Go build info, falling
// back to "dev" for test and devel builds.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
