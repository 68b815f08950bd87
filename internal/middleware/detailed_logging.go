package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"whatsdata/internal/privacy"
	"whatsdata/internal/service"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// DetailedLoggingConfig controls what the debug request log carries
type DetailedLoggingConfig struct {
	LogRequestHeaders bool
	LogRequestBody    bool
	MaxBodySize       int
	SensitiveHeaders  []string
	SkipEndpoints     []string
}

func DefaultDetailedLoggingConfig() DetailedLoggingConfig {
	return DetailedLoggingConfig{
		LogRequestHeaders: true,
		LogRequestBody:    true,
		MaxBodySize:       4096,
		SensitiveHeaders:  []string{"authorization", "cookie", "x-api-key"},
		SkipEndpoints:     []string{"/metrics", "/health", "/v1/watch"},
	}
}

// DetailedLoggingMiddleware logs query parameters, headers and small JSON
// bodies at debug level. Identifier fields are masked unless the request
// context is verbose. It does nothing when the logger is above debug.
func DetailedLoggingMiddleware(logger *logrus.Logger, config DetailedLoggingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.IsLevelEnabled(logrus.DebugLevel) || skipDetailed(r.URL.Path, config.SkipEndpoints) {
				next.ServeHTTP(w, r)
				return
			}

			fields := logrus.Fields{
				service.LogFieldMethod: r.Method,
				service.LogFieldURL:    r.URL.Path,
			}

			query := make(map[string]interface{})
			for k, v := range r.URL.Query() {
				query[k] = strings.Join(v, ",")
			}
			if len(query) > 0 {
				if !service.IsVerboseLogging(r.Context()) {
					query = privacy.MaskFields(query)
				}
				fields["query"] = query
			}

			if config.LogRequestHeaders {
				headers := make(map[string]string, len(r.Header))
				for name, values := range r.Header {
					if isSensitiveHeader(name, config.SensitiveHeaders) {
						headers[name] = "***MASKED***"
						continue
					}
					headers[name] = strings.Join(values, ", ")
				}
				fields["request_headers"] = headers
			}

			if config.LogRequestBody && r.Body != nil && isJSON(r) {
				if body, ok := readBodyPreview(r, config.MaxBodySize); ok {
					fields["request_body"] = maskBody(body, service.IsVerboseLogging(r.Context()))
				}
			}

			logger.WithFields(service.LogFields(r.Context(), fields)).Debug("Detailed request logging")
			next.ServeHTTP(w, r)
		})
	}
}

// readBodyPreview reads up to limit bytes and restores the body for the handler
func readBodyPreview(r *http.Request, limit int) ([]byte, bool) {
	if r.ContentLength <= 0 || r.ContentLength > int64(limit) {
		return nil, false
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)))
	if err != nil {
		return nil, false
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
	return body, true
}

// maskBody masks identifier fields of a JSON object or array of objects
func maskBody(body []byte, verbose bool) interface{} {
	if verbose {
		return string(body)
	}
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "***UNPARSEABLE***"
	}
	switch v := doc.(type) {
	case map[string]interface{}:
		return privacy.MaskFields(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out[i] = privacy.MaskFields(m)
			} else {
				out[i] = item
			}
		}
		return out
	}
	return doc
}

func skipDetailed(path string, skip []string) bool {
	for _, s := range skip {
		if strings.HasPrefix(path, s) {
			return true
		}
	}
	return false
}

func isSensitiveHeader(name string, sensitive []string) bool {
	for _, s := range sensitive {
		if strings.EqualFold(s, name) {
			return true
		}
	}
	return false
}

func isJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
