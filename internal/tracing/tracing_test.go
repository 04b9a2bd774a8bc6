package tracing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"agromind/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestGenerateRequestID(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()

	assert.True(t, strings.HasPrefix(a, "req_"))
	assert.Len(t, a, len("req_")+16)
	assert.NotEqual(t, a, b)
}

func TestRequestIDFrom(t *testing.T) {
	assert.Equal(t, "req_client-1", RequestIDFrom("req_client-1"))

	for _, bad := range []string{"", "has space", "line\nbreak", strings.Repeat("a", 65)} {
		got := RequestIDFrom(bad)
		assert.NotEqual(t, bad, got)
		assert.True(t, strings.HasPrefix(got, "req_"))
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req_1")
	assert.Equal(t, "req_1", GetRequestID(ctx))
}

func TestDuration(t *testing.T) {
	assert.Zero(t, Duration(context.Background()))

	ctx := WithStartTime(context.Background(), time.Now().Add(-50*time.Millisecond))
	assert.GreaterOrEqual(t, Duration(ctx), 50*time.Millisecond)
}

func TestTracingManager_Disabled(t *testing.T) {
	tm := NewTracingManager(models.TracingConfig{Enabled: false}, quietLogger())

	require.NoError(t, tm.Initialize(context.Background()))
	assert.Nil(t, tm.tracerProvider)
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestTracingManager_StdoutLifecycle(t *testing.T) {
	tm := NewTracingManager(models.TracingConfig{
		Enabled:        true,
		UseStdout:      true,
		ServiceName:    "agromind-test",
		ServiceVersion: "test",
		Environment:    "test",
		SampleRate:     0,
	}, quietLogger())

	require.NoError(t, tm.Initialize(context.Background()))
	require.NotNil(t, tm.tracerProvider)
	assert.NoError(t, tm.Shutdown(context.Background()))
}

func TestSpanHelpersWithoutProvider(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test.span", attribute.String("group_id", "g1"))
	defer span.End()

	assert.NotPanics(t, func() {
		AddSpanAttributes(ctx, attribute.Int("count", 1))
		SetSpanStatus(ctx, codes.Ok, "")
		RecordError(ctx, errors.New("boom"))
	})
	assert.Empty(t, TraceID(context.Background()))

	for _, startFn := range []func(context.Context, string, ...attribute.KeyValue) (context.Context, oteltrace.Span){StartServerSpan, StartClientSpan} {
		_, s := startFn(ctx, "kind.span")
		assert.NotNil(t, s)
		s.End()
	}
}

func TestExtractInjectRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	inbound := http.Header{}
	inbound.Set("traceparent", parent)

	ctx := Extract(context.Background(), inbound)

	outbound := http.Header{}
	Inject(ctx, outbound)
	assert.Equal(t, parent, outbound.Get("traceparent"))
}
