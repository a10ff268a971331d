package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

const (
	HeaderAPIKey       = "X-API-Key"
	HeaderUserID       = "X-User-ID"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
	UnknownClientIdent = "unknown"
)

// derives a stable identity for the caller: API key, user id, forwarded-for,
// real-ip, connection address, then "unknown". never returns an empty string.
func ClientID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}

	if userID := strings.TrimSpace(r.Header.Get(HeaderUserID)); userID != "" {
		return userID
	}

	if forwarded := r.Header.Get(HeaderForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get(HeaderRealIP)); realIP != "" {
		return realIP
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
			return host
		}

		return r.RemoteAddr
	}

	return UnknownClientIdent
}
