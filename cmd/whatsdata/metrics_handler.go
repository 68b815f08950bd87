package main

import (
	"net/http"

	"whatsdata/internal/metrics"
	"whatsdata/internal/tracing"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// handleMetrics returns the in-process metrics registry as JSON
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestInfo := tracing.GetRequestInfo(r.Context())
		fields := logrus.Fields{
			"request_id": requestInfo.RequestID,
			"trace_id":   requestInfo.TraceID,
			"endpoint":   "/metrics",
		}
		s.logger.WithFields(fields).Debug("Serving metrics endpoint")

		data, err := json.MarshalIndent(metrics.GetAllMetrics(), "", "  ")
		if err != nil {
			s.logger.WithFields(fields).WithError(err).Error("Failed to encode metrics response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		_, _ = w.Write(data)
	}
}
