package ztgate

import "context"

type sourceAddrContextKey struct{}

// WithSourceAddr attaches the tunnel peer's network address to ctx. The
// Gateway records it in audit events for packet and session operations.
func WithSourceAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sourceAddrContextKey{}, addr)
}

func sourceAddrFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	addr, _ := ctx.Value(sourceAddrContextKey{}).(string)
	return addr
}
