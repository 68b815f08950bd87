package versioning

import (
	"context"
	"net/http"
	"strings"

	"whatsdata/internal/httputil"
	"whatsdata/internal/tracing"

	"github.com/sirupsen/logrus"
)

type contextKey string

// VersionContextKey holds the negotiated APIVersion
const VersionContextKey contextKey = "api_version"

// Version headers
const (
	AcceptVersionHeader     = "Accept-Version"
	APIVersionHeader        = "X-API-Version"
	CurrentVersionHeader    = "X-Current-Version"
	SupportedVersionsHeader = "X-Supported-Versions"
)

// ErrCodeVersionIncompatible is the error code for unsupported versions
const ErrCodeVersionIncompatible = "VERSION_INCOMPATIBLE"

// RequestedVersion reads the version from Accept-Version, then X-API-Version.
// Missing or unparseable headers mean the current version.
func RequestedVersion(r *http.Request, logger *logrus.Logger) APIVersion {
	for _, h := range []string{AcceptVersionHeader, APIVersionHeader} {
		raw := strings.TrimSpace(r.Header.Get(h))
		if raw == "" {
			continue
		}
		v, err := ParseVersion(raw)
		if err == nil {
			return v
		}
		if logger != nil {
			logger.WithField("version_string", raw).Debugf("Invalid version in %s header", h)
		}
	}
	return CurrentVersion
}

// Middleware sets the version headers and rejects versions outside the
// supported range: 426 for versions that are too old, 501 for newer majors.
func Middleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(CurrentVersionHeader, CurrentVersion.String())
			w.Header().Set(SupportedVersionsHeader, VersionRange())

			v := RequestedVersion(r, logger)
			if !IsSupported(v) {
				status := http.StatusNotImplemented
				message := "Version " + v.String() + " is not yet available"
				if v.Compare(MinimumSupportedVersion) < 0 {
					status = http.StatusUpgradeRequired
					message = "Version " + v.String() + " is no longer supported"
				}

				logger.WithFields(logrus.Fields{
					"requested_version": v.String(),
					"current_version":   CurrentVersion.String(),
					"path":              r.URL.Path,
				}).Warn("Incompatible API version requested")

				body := httputil.NewEnvelope("error", nil).
					With("success", false).
					With("code", ErrCodeVersionIncompatible).
					With("message", message).
					With("supported_versions", VersionRange())
				if id := tracing.GetRequestID(r.Context()); id != "" {
					body = body.With("request_id", id)
				}
				_ = httputil.WriteJSON(w, status, body)
				return
			}

			ctx := context.WithValue(r.Context(), VersionContextKey, v)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the negotiated version
func FromContext(ctx context.Context) (APIVersion, bool) {
	v, ok := ctx.Value(VersionContextKey).(APIVersion)
	return v, ok
}
