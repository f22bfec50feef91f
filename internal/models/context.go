package models

import (
	"context"
)

type requestContextKey struct{}

// RequestMeta carries caller data through context so post-commit sinks can
// correlate events with the request that produced them.
type RequestMeta struct {
	RequestId string // X-Request-ID of the inbound call
	ActorId   string // authenticated user, "provider" for webhooks, "operator" for CLIs
	Source    string // "api", "webhook", "cli"
}

// WithRequestMeta attaches request data to a context.
func WithRequestMeta(ctx context.Context, meta *RequestMeta) context.Context {
	return context.WithValue(ctx, requestContextKey{}, meta)
}

// GetRequestMeta retrieves request data from context, or nil if absent.
func GetRequestMeta(ctx context.Context) *RequestMeta {
	meta, _ := ctx.Value(requestContextKey{}).(*RequestMeta)
	return meta
}
