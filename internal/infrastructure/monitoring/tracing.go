package monitoring

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/littlejwt/pkg/config"
	"github.com/turtacn/littlejwt/pkg/constants"
	"github.com/turtacn/littlejwt/pkg/logger"
)

// TracingManager owns the tracer used for token operations.
type TracingManager struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	logger   logger.Logger
}

// TracingOption customizes the tracer provider.
type TracingOption func(*tracingOptions)

type tracingOptions struct {
	processors []sdktrace.SpanProcessor
	global     bool
}

// WithSpanProcessor attaches a processor, typically a batcher around the
// exporter of the host application's choice.
func WithSpanProcessor(p sdktrace.SpanProcessor) TracingOption {
	return func(o *tracingOptions) { o.processors = append(o.processors, p) }
}

// WithExporter attaches exp behind a batch span processor.
func WithExporter(exp sdktrace.SpanExporter) TracingOption {
	return WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exp))
}

// AsGlobal installs the provider as the otel global tracer provider.
func AsGlobal() TracingOption {
	return func(o *tracingOptions) { o.global = true }
}

// NewTracingManager creates the tracing manager. When tracing is disabled the
// global tracer is used, which is a no-op unless the host configured one.
func NewTracingManager(cfg config.TracingConfig, log logger.Logger, opts ...TracingOption) (*TracingManager, error) {
	if log == nil {
		log = logger.L()
	}
	if !cfg.Enabled {
		log.Debug(context.Background(), "Tracing is disabled")
		return &TracingManager{
			tracer: otel.Tracer(constants.TracerName),
			logger: log,
		}, nil
	}

	o := &tracingOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if cfg.JaegerEndpoint != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(
			jaeger.WithEndpoint(cfg.JaegerEndpoint),
		))
		if err != nil {
			return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}
		WithExporter(exporter)(o)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = constants.ServiceName
	}
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	}
	for _, p := range o.processors {
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(p))
	}
	provider := sdktrace.NewTracerProvider(providerOpts...)
	if o.global {
		otel.SetTracerProvider(provider)
	}

	log.Info(context.Background(), "Tracing initialized",
		logger.String("service", serviceName),
		logger.String("endpoint", cfg.JaegerEndpoint),
		logger.Any("sample_rate", cfg.SamplingRate),
	)

	return &TracingManager{
		tracer:   provider.Tracer(constants.TracerName),
		provider: provider,
		logger:   log,
	}, nil
}

// StartSpan starts a span with the given attributes.
func (tm *TracingManager) StartSpan(ctx context.Context, spanName string, attrs map[string]interface{}) (context.Context, trace.Span) {
	attributes := make([]attribute.KeyValue, 0, len(attrs))
	for key, value := range attrs {
		attributes = append(attributes, convertToAttribute(key, value))
	}
	return tm.tracer.Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// RecordError marks the span in ctx as failed.
func (tm *TracingManager) RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanAttributes adds attributes to the span in ctx.
func (tm *TracingManager) SetSpanAttributes(ctx context.Context, attrs map[string]interface{}) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	for key, value := range attrs {
		span.SetAttributes(convertToAttribute(key, value))
	}
}

// TraceID returns the trace id in ctx, or "" outside a span.
func (tm *TracingManager) TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// Shutdown flushes and stops the provider.
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	if tm.provider == nil {
		return nil
	}

	if err := tm.provider.Shutdown(ctx); err != nil {
		tm.logger.Error(ctx, "Failed to shutdown tracing provider", err)
		return err
	}
	return nil
}

func convertToAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// TraceOperation runs fn inside a span named operationName.
func TraceOperation(ctx context.Context, tm *TracingManager, operationName string, attrs map[string]interface{}, fn func(context.Context) error) error {
	ctx, span := tm.StartSpan(ctx, operationName, attrs)
	defer span.End()

	if err := fn(ctx); err != nil {
		tm.RecordError(ctx, err)
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
