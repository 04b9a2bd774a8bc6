package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP from the request. Forwarding headers are
// only honoured when trustProxy is set: X-Forwarded-For (first entry) and
// then X-Real-IP. Header values that do not parse as an IP are ignored.
// Otherwise RemoteAddr is used, with IPv6 brackets and port stripped.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}

		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
			return xri
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
