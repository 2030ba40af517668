package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// NewRequestID 生成请求/批次 ID
func NewRequestID() string {
	return uuid.NewString()
}

// ContextWithRequestID 把请求 ID 放进 ctx
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext 取出请求 ID，没有时返回空串
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx 在 l 上附加 ctx 中的请求 ID
func Ctx(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return l.With().Str("request_id", id).Logger()
	}
	return l
}
