package authkit

import (
	"context"

	"github.com/MrEthical07/authkit/session"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's address to ctx. The engine uses it for
// address throttling, the session fingerprint and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the client's user agent to ctx for the session
// fingerprint.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func fingerprintFromContext(ctx context.Context) session.Fingerprint {
	return session.Fingerprint{
		Address: clientIPFromContext(ctx),
		Agent:   userAgentFromContext(ctx),
	}
}

// ClientIPFromContext returns the address set by WithClientIP, or "".
func ClientIPFromContext(ctx context.Context) string {
	return clientIPFromContext(ctx)
}

// UserAgentFromContext returns the user agent set by WithUserAgent, or "".
func UserAgentFromContext(ctx context.Context) string {
	return userAgentFromContext(ctx)
}
