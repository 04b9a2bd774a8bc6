package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"agromind/internal/privacy"
	"agromind/internal/service"
	"agromind/internal/tracing"

	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls what verbose request logging includes
type DetailedLoggingConfig struct {
	LogRequestHeaders bool
	LogRequestBody    bool
	MaxBodySize       int
	SensitiveHeaders  []string
	SkipPaths         []string
}

func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		LogRequestBody:    true,
		MaxBodySize:       1024,
		SensitiveHeaders:  []string{"authorization", "api-key", "cookie", "x-api-key"},
		SkipPaths:         []string{"/metrics", "/health", "/ws", "/uploads/"},
	}
}

// DetailedLoggingMiddleware logs request headers and small JSON bodies at
// debug level. Phone numbers, user ids and OTP codes in JSON bodies are
// masked. Only mounted when the server runs with -verbose.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			fields := logrus.Fields{
				service.LogFieldRequestID: tracing.GetRequestID(r.Context()),
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.String(),
				"content_length":          r.ContentLength,
				"protocol":                r.Proto,
			}

			if config.LogRequestHeaders {
				headers := make(map[string]string, len(r.Header))
				for name, values := range r.Header {
					if isSensitiveHeader(name, config.SensitiveHeaders) {
						headers[name] = "***MASKED***"
					} else {
						headers[name] = strings.Join(values, ", ")
					}
				}
				fields["request_headers"] = headers
			}

			if config.LogRequestBody && isJSON(r) && r.ContentLength > 0 && r.ContentLength <= int64(config.MaxBodySize) {
				body, err := io.ReadAll(r.Body)
				if err == nil {
					r.Body = io.NopCloser(bytes.NewReader(body))
					fields["request_body"] = maskedJSONBody(body)
				}
			}

			logger.WithFields(fields).Debug("Detailed request logging")
			next.ServeHTTP(w, r)
		})
	}
}

func maskedJSONBody(body []byte) interface{} {
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "***UNPARSEABLE***"
	}
	return privacy.MaskSensitiveFields(decoded)
}

func isSensitiveHeader(headerName string, sensitiveHeaders []string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(sensitive, headerName) {
			return true
		}
	}
	return false
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
