package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIP extracts the client IP: the first valid entry of X-Forwarded-For,
// then X-Real-IP, then the connection address. Entries may carry ports or
// IPv6 brackets; invalid entries are skipped. IPv6 is returned unbracketed.
func RealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, entry := range strings.Split(xff, ",") {
			if ip := normalizeIP(entry); ip != "" {
				return ip
			}
		}
	}
	if ip := normalizeIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := normalizeIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// normalizeIP parses "1.2.3.4", "1.2.3.4:80", "::1", "[::1]" or "[::1]:443"
// and returns the canonical address, or "" if s holds none.
func normalizeIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip.String()
		}
		return ""
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		if ip := net.ParseIP(s[1 : len(s)-1]); ip != nil {
			return ip.String()
		}
	}
	return ""
}
