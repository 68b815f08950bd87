package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client address used for rate limiting.
// X-Forwarded-For (first hop) and X-Real-IP are only honoured when
// trustProxy is set; otherwise any client could pick its own key.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
