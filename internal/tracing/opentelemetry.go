package tracing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"agromind/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "agromind"

// TracingManager manages OpenTelemetry setup and lifecycle
type TracingManager struct {
	config         models.TracingConfig
	logger         *logrus.Logger
	tracerProvider *trace.TracerProvider
}

// NewTracingManager creates a new tracing manager
func NewTracingManager(config models.TracingConfig, logger *logrus.Logger) *TracingManager {
	return &TracingManager{
		config: config,
		logger: logger,
	}
}

// Initialize installs the global tracer provider. It is a no-op when
// tracing is disabled.
func (tm *TracingManager) Initialize(ctx context.Context) error {
	if !tm.config.Enabled {
		tm.logger.Debug("OpenTelemetry tracing is disabled")
		return nil
	}

	res, err := tm.newResource(ctx)
	if err != nil {
		return err
	}
	exporter, err := tm.newExporter(ctx)
	if err != nil {
		return err
	}

	tm.tracerProvider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(tm.config.SampleRate))),
	)
	otel.SetTracerProvider(tm.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	tm.logger.WithFields(logrus.Fields{
		"service":     tm.config.ServiceName,
		"environment": tm.config.Environment,
		"sample_rate": tm.config.SampleRate,
		"exporter":    tm.exporterName(),
	}).Info("OpenTelemetry tracing initialized")
	return nil
}

func (tm *TracingManager) newResource(ctx context.Context) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(tm.config.ServiceName),
			semconv.ServiceVersionKey.String(tm.config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(tm.config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func (tm *TracingManager) exporterName() string {
	if tm.config.UseStdout {
		return "stdout"
	}
	return "otlp-http"
}

// newExporter writes spans to stdout for local runs, otherwise to the
// configured OTLP collector
func (tm *TracingManager) newExporter(ctx context.Context) (trace.SpanExporter, error) {
	if tm.config.UseStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exporter, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(tm.config.OTLPEndpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exporter, nil
}

// Shutdown flushes pending spans
func (tm *TracingManager) Shutdown(ctx context.Context) error {
	if tm.tracerProvider == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := tm.tracerProvider.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

// Extract continues a trace carried in inbound HTTP headers
func Extract(ctx context.Context, header http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(header))
}

// Inject writes the span context of ctx into outbound HTTP headers
func Inject(ctx context.Context, header http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(header))
}

// StartSpan starts an internal span
func StartSpan(ctx context.Context, spanName string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return start(ctx, spanName, oteltrace.SpanKindInternal, attributes)
}

// StartServerSpan starts the span of an inbound request
func StartServerSpan(ctx context.Context, spanName string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return start(ctx, spanName, oteltrace.SpanKindServer, attributes)
}

// StartClientSpan starts the span of an outbound call
func StartClientSpan(ctx context.Context, spanName string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	return start(ctx, spanName, oteltrace.SpanKindClient, attributes)
}

func start(ctx context.Context, spanName string, kind oteltrace.SpanKind, attributes []attribute.KeyValue) (context.Context, oteltrace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName,
		oteltrace.WithSpanKind(kind),
		oteltrace.WithAttributes(attributes...),
	)
}

// AddSpanAttributes adds attributes to the current span
func AddSpanAttributes(ctx context.Context, attributes ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attributes...)
	}
}

// SetSpanStatus sets the status of the current span
func SetSpanStatus(ctx context.Context, code codes.Code, description string) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error, attributes ...attribute.KeyValue) {
	span := oteltrace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, oteltrace.WithAttributes(attributes...))
		span.SetStatus(codes.Error, err.Error())
	}
}

// TraceID returns the OpenTelemetry trace ID of the current span, if valid
func TraceID(ctx context.Context) string {
	sc := oteltrace.SpanFromContext(ctx).SpanContext()
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
