package ratelimiting

import (
	"net"
	"net/http"
	"strings"
)

// IdentityFromRequest identifies the client behind r.
// Proxy headers are trusted since the service runs behind a load balancer.
func IdentityFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}

func AdminSecretFromRequest(r *http.Request) string {
	if secret := r.Header.Get("X-Admin-Secret"); secret != "" {
		return secret
	}
	return r.URL.Query().Get("secret")
}
