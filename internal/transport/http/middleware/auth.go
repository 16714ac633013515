package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/requestctx"
	"leavedesk/internal/transport/http/api"
)

// Auth attaches a session when the request carries a usable bearer token.
// With a secret the token must verify; without one it is forwarded opaque.
// Requests without a session continue and are rejected by RequireSession.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := auth.NewSession(secret, token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidToken) {
					slog.Debug("bearer token rejected", "requestId", GetRequestID(r.Context()), "err", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestctx.WithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSession(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="leavedesk"`)
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetSession(ctx context.Context) (auth.Session, bool) {
	return requestctx.GetSession(ctx)
}
