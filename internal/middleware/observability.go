package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"agromind/internal/httputil"
	"agromind/internal/metrics"
	"agromind/internal/service"
	"agromind/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ObservabilityMiddleware assigns a request ID, opens a span, records
// request metrics and logs the completed request. An incoming X-Request-ID
// header is reused.
func ObservabilityMiddleware(logger *logrus.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			endpoint := routeTemplate(r)
			clientIP := httputil.ClientIP(r, trustProxy)

			ctx, span := tracing.StartServerSpan(tracing.Extract(r.Context(), r.Header), r.Method+" "+endpoint,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", endpoint),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
				attribute.String("client.address", clientIP),
			)
			defer span.End()

			requestID := tracing.RequestIDFrom(r.Header.Get(tracing.RequestIDHeader))
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)
			w.Header().Set(tracing.RequestIDHeader, requestID)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			metrics.AddToGauge(metrics.HTTPRequestsActive, 1, nil, "Currently active HTTP requests")
			defer metrics.AddToGauge(metrics.HTTPRequestsActive, -1, nil, "Currently active HTTP requests")

			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 500 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			labels := map[string]string{
				"method":      r.Method,
				"endpoint":    endpoint,
				"status_code": status,
			}
			metrics.IncrementCounter(metrics.HTTPRequestsTotal, labels, "Total HTTP requests")
			metrics.RecordTimer(metrics.HTTPRequestDuration, duration, labels, "HTTP request duration")

			logLevel := logrus.InfoLevel
			if wrapper.statusCode >= 400 && wrapper.statusCode < 500 {
				logLevel = logrus.WarnLevel
			} else if wrapper.statusCode >= 500 {
				logLevel = logrus.ErrorLevel
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestID,
				service.LogFieldTraceID:    tracing.TraceID(ctx),
				service.LogFieldMethod:     r.Method,
				service.LogFieldURL:        r.URL.Path,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(logLevel, "HTTP request completed")
		})
	}
}

// routeTemplate returns the matched mux route, e.g. "/api/groups/{id}/messages",
// so metrics are not labelled per group. Unmatched requests use the raw path.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// responseWrapper captures status and size. It passes Hijack through so the
// WebSocket endpoint can sit behind the middleware.
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWrapper) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
