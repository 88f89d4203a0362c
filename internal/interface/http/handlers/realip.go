package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the client address of r. When header is set and present
// on the request, its first element wins: "203.0.113.7, 10.0.0.1" and
// `for="203.0.113.7"` both yield 203.0.113.7. Otherwise the remote address
// is used without its port.
func ClientIP(r *http.Request, header string) string {
	if header != "" {
		if ip := parseForwarded(r.Header.Get(header)); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.Trim(r.RemoteAddr, "[]")
	}
	return host
}

func parseForwarded(value string) string {
	first, _, _ := strings.Cut(value, ",")
	first, _, _ = strings.Cut(first, ";")
	first = strings.TrimSpace(first)
	if len(first) >= 4 && strings.EqualFold(first[:4], "for=") {
		first = first[4:]
	}
	return strings.TrimSpace(strings.Trim(first, `"`))
}

type clientIPKey struct{}

func withClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext returns the address stored by RealIPMiddleware.
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
