package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"whatsdata/internal/errors"
	"whatsdata/internal/httputil"
	"whatsdata/internal/metrics"
	"whatsdata/internal/service"
	"whatsdata/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var inFlight atomic.Int64

// ObservabilityMiddleware assigns the request id, opens the request span,
// and records access logs and HTTP metrics
func ObservabilityMiddleware(logger *logrus.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)

			ctx, span := tracing.WithOtelTracing(r.Context(), "http "+r.Method+" "+route)
			defer span.End()

			requestID := tracing.GenerateRequestID()
			if incoming := r.Header.Get(tracing.RequestIDHeader); incoming != "" {
				requestID = tracing.AcceptRequestID(incoming)
			}
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)
			w.Header().Set(tracing.RequestIDHeader, requestID)

			clientIP := httputil.GetClientIP(r, trustProxy)
			tracing.AddSpanAttributes(ctx,
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
				attribute.String("client.address", clientIP),
				attribute.String("request.id", requestID),
			)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			fields := logrus.Fields{
				service.LogFieldMethod:    r.Method,
				service.LogFieldURL:       r.URL.Path,
				service.LogFieldRoute:     route,
				service.LogFieldRemoteIP:  clientIP,
				service.LogFieldUserAgent: r.Header.Get("User-Agent"),
			}
			for _, key := range []string{service.LogFieldContactID, service.LogFieldFromUser, service.LogFieldToUser} {
				if v := r.URL.Query().Get(key); v != "" {
					fields[key] = v
				}
			}
			logger.WithFields(service.LogFields(ctx, fields)).Debug("HTTP request started")

			metrics.SetGauge("http_requests_active", float64(inFlight.Add(1)), nil, "Currently active HTTP requests")
			next.ServeHTTP(wrapper, r)
			metrics.SetGauge("http_requests_active", float64(inFlight.Add(-1)), nil, "Currently active HTTP requests")

			duration := tracing.Duration(ctx)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.body.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 500 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			metrics.ObserveHTTP(r.Method, route, wrapper.statusCode, duration)

			level := logrus.InfoLevel
			switch {
			case wrapper.statusCode >= 500:
				level = logrus.ErrorLevel
			case wrapper.statusCode >= 400:
				level = logrus.WarnLevel
			}

			fields[service.LogFieldStatusCode] = wrapper.statusCode
			fields[service.LogFieldDuration] = duration.Milliseconds()
			fields[service.LogFieldSize] = wrapper.responseSize
			fields[service.LogFieldTraceID] = tracing.GetTraceID(ctx)
			logger.WithFields(service.LogFields(ctx, fields)).Log(level, "HTTP request completed")
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 envelope
func RecoveryMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := errors.New(errors.ErrCodeInternalError, fmt.Sprintf("panic: %v", rec))
					tracing.RecordError(r.Context(), err)
					logger.WithFields(service.LogFields(r.Context(), logrus.Fields{
						service.LogFieldURL: r.URL.Path,
					})).WithError(err).Error("Recovered from handler panic")
					httputil.WriteError(w, r, err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routeTemplate labels metrics by the matched mux template so ids in paths
// do not explode label cardinality
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWrapper captures response metrics
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

// Hijack lets the websocket upgrade pass through the wrapper
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
