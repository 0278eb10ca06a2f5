package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
)

type contextKey string

const (
	contextKeyIP        contextKey = "audit.ip"
	contextKeyUserAgent contextKey = "audit.user_agent"
)

// WithRequest stores the caller's ip and user agent for entries written later
// in the request.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	if r == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, contextKeyIP, ClientIP(r))
	return context.WithValue(ctx, contextKeyUserAgent, r.UserAgent())
}

// RequestInfo returns the ip and user agent stored by WithRequest.
func RequestInfo(ctx context.Context) (ip, userAgent string) {
	if ctx == nil {
		return "", ""
	}
	ip, _ = ctx.Value(contextKeyIP).(string)
	userAgent, _ = ctx.Value(contextKeyUserAgent).(string)
	return ip, userAgent
}

// ClientIP picks the originating address: first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote host.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	if ip := strings.TrimSpace(first); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
