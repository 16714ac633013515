package requestctx

import (
	"context"

	"leavedesk/internal/domain/auth"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	sessionKey   ctxKey = "session"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	if value, ok := ctx.Value(requestIDKey).(string); ok {
		return value
	}
	return ""
}

func WithSession(ctx context.Context, sess auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

func GetSession(ctx context.Context) (auth.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(auth.Session)
	return sess, ok
}
