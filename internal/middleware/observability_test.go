package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"whatsdata/internal/metrics"
	"whatsdata/internal/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(level)
	return logger, &buf
}

func routed(logger *logrus.Logger, path string, h http.HandlerFunc) http.Handler {
	r := mux.NewRouter()
	r.Use(ObservabilityMiddleware(logger, false))
	r.HandleFunc(path, h)
	return r
}

func TestObservabilityMiddleware(t *testing.T) {
	logger, buf := bufferLogger(logrus.DebugLevel)

	var seenID string
	handler := routed(logger, "/v1/contacts", func(w http.ResponseWriter, r *http.Request) {
		info := tracing.GetRequestInfo(r.Context())
		seenID = info.RequestID
		assert.False(t, info.StartTime.IsZero())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/contacts?contact_id=6281234567890@c.us", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, seenID)
	assert.Equal(t, seenID, rec.Header().Get(tracing.RequestIDHeader))
	_, err := uuid.Parse(seenID)
	assert.NoError(t, err)

	labels := map[string]string{"method": "GET", "route": "/v1/contacts", "status": "200"}
	assert.GreaterOrEqual(t, metrics.GetRegistry().CounterValue("http_requests_total", labels), float64(1))

	out := buf.String()
	assert.Contains(t, out, "HTTP request started")
	assert.Contains(t, out, "HTTP request completed")
	assert.Contains(t, out, `"request_id"`)
	assert.Contains(t, out, `"route":"/v1/contacts"`)
	assert.NotContains(t, out, "6281234567890")
	assert.Contains(t, out, "*********7890@c.us")
}

func TestObservabilityMiddleware_AcceptsClientRequestID(t *testing.T) {
	logger, _ := bufferLogger(logrus.InfoLevel)
	handler := routed(logger, "/health", func(w http.ResponseWriter, r *http.Request) {})

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(tracing.RequestIDHeader, id)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(tracing.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(tracing.RequestIDHeader, "<script>")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.NotEqual(t, "<script>", rec.Header().Get(tracing.RequestIDHeader))
}

func TestObservabilityMiddleware_LogLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, `"level":"info"`},
		{http.StatusNotFound, `"level":"warning"`},
		{http.StatusInternalServerError, `"level":"error"`},
	}

	for _, tt := range tests {
		logger, buf := bufferLogger(logrus.InfoLevel)
		handler := routed(logger, "/x", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

		assert.Equal(t, tt.status, rec.Code)
		assert.Contains(t, buf.String(), tt.level)
	}
}

func TestObservabilityMiddleware_UnmatchedRoute(t *testing.T) {
	logger, buf := bufferLogger(logrus.InfoLevel)
	handler := ObservabilityMiddleware(logger, false)(http.NotFoundHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	assert.Contains(t, buf.String(), `"route":"unmatched"`)
}

func TestRecoveryMiddleware(t *testing.T) {
	logger, buf := bufferLogger(logrus.InfoLevel)
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"INTERNAL_ERROR"`)
	assert.Contains(t, buf.String(), "Recovered from handler panic")
}

func TestResponseWrapper(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusTeapot)
	n, err := w.Write([]byte("hello"))

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusCreated, w.statusCode)
	assert.Equal(t, int64(5), w.responseSize)
	assert.Equal(t, rec, w.Unwrap())

	_, _, err = w.Hijack()
	assert.Error(t, err)
}

func TestObservabilityMiddleware_ConcurrentRequests(t *testing.T) {
	logger, _ := bufferLogger(logrus.WarnLevel)
	handler := routed(logger, "/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/messages", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}()
	}
	wg.Wait()
}

func TestDetailedLoggingMiddleware(t *testing.T) {
	logger, buf := bufferLogger(logrus.DebugLevel)

	var received string
	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
	}))

	payload := `{"id":"6281234567890@c.us","name":"Budi"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/contacts?file=kontak.json", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, payload, received, "body must be restored for the handler")
	out := buf.String()
	assert.Contains(t, out, "Detailed request logging")
	assert.Contains(t, out, "***MASKED***")
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "6281234567890")
	assert.Contains(t, out, "Budi")
}

func TestDetailedLoggingMiddleware_SkipsWhenNotDebug(t *testing.T) {
	logger, buf := bufferLogger(logrus.InfoLevel)
	handler := DetailedLoggingMiddleware(logger, DefaultDetailedLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/contacts", nil))
	assert.Empty(t, buf.String())

	logger.SetLevel(logrus.DebugLevel)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())
}

func TestMaskBody(t *testing.T) {
	masked := maskBody([]byte(`[{"from":"6281234567890@c.us"},1]`), false)
	list, ok := masked.([]interface{})
	require.True(t, ok)
	assert.Equal(t, "*********7890@c.us", list[0].(map[string]interface{})["from"])

	assert.Equal(t, "***UNPARSEABLE***", maskBody([]byte("{"), false))
	assert.Equal(t, "{", maskBody([]byte("{"), true))
}
