// Package appcontext carries request metadata on the context so handlers,
// engines, and repositories can log and audit without echo in their
// signatures.
package appcontext

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request-id"
	userIDKey    contextKey = "user-id"
	methodKey    contextKey = "method"
	routeKey     contextKey = "route"
	remoteIPKey  contextKey = "remote-ip"
	refererKey   contextKey = "referer"
)

func get(ctx context.Context, key contextKey) string {
	value, _ := ctx.Value(key).(string)
	return value
}

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string { return get(ctx, requestIDKey) }

// SetUserID records the acting operator, used by merge and review audit
// trails.
func SetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string { return get(ctx, userIDKey) }

func SetMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, methodKey, method)
}

func GetMethod(ctx context.Context) string { return get(ctx, methodKey) }

func SetRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeKey, route)
}

func GetRoute(ctx context.Context) string { return get(ctx, routeKey) }

func SetRemoteIP(ctx context.Context, remoteIP string) context.Context {
	return context.WithValue(ctx, remoteIPKey, remoteIP)
}

func GetRemoteIP(ctx context.Context) string { return get(ctx, remoteIPKey) }

func SetReferer(ctx context.Context, referer string) context.Context {
	return context.WithValue(ctx, refererKey, referer)
}

func GetReferer(ctx context.Context) string { return get(ctx, refererKey) }
