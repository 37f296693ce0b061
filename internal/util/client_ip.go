package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller IP from the direct peer address.
// Forwarded headers are intentionally ignored; this service is expected
// to face clients directly.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
