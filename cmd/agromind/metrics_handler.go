package main

import (
	"encoding/json"
	"net/http"

	"agromind/internal/metrics"
	"agromind/internal/service"
	"agromind/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics returns current application metrics
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := tracing.GetRequestID(r.Context())

		s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: requestID,
			service.LogFieldTraceID:   tracing.TraceID(r.Context()),
			service.LogFieldEndpoint:  "/metrics",
		}).Debug("Serving metrics endpoint")

		snapshot := metrics.GetSnapshot()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		if err := encoder.Encode(snapshot); err != nil {
			s.logger.WithFields(logrus.Fields{
				service.LogFieldRequestID: requestID,
				"error":                   err,
			}).Error("Failed to encode metrics response")

			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
