package configservice

import "context"

type contextKey int

const requestInfoKey contextKey = iota

// RequestInfo identifies the request an operation runs for. It is carried
// into audit events and notifications.
type RequestInfo struct {
	RequestID string
	Transport string // "http" or "mcp"
}

// WithRequestInfo attaches info to ctx.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey, info)
}

// RequestInfoFrom returns the request info attached to ctx, if any.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(RequestInfo)
	return info
}
