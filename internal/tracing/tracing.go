package tracing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	startTimeKey
)

// RequestIDHeader carries the request ID on requests and responses
const RequestIDHeader = "X-Request-ID"

const (
	requestIDPrefix    = "req_"
	maxRequestIDLength = 64
)

// GenerateRequestID returns "req_" followed by 16 hex characters
func GenerateRequestID() string {
	id := uuid.New()
	return requestIDPrefix + strings.ReplaceAll(id.String(), "-", "")[:16]
}

// RequestIDFrom returns the caller's request ID when it is safe to echo and
// log, or a fresh one otherwise.
func RequestIDFrom(header string) string {
	if header == "" || len(header) > maxRequestIDLength {
		return GenerateRequestID()
	}
	for _, c := range header {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return GenerateRequestID()
		}
	}
	return header
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID stored in ctx, or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, startTime)
}

// Duration is the time elapsed since the start time stored in ctx, or zero
func Duration(ctx context.Context) time.Duration {
	start, ok := ctx.Value(startTimeKey).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start)
}
