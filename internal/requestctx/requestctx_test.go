package requestctx

import (
	"context"
	"testing"

	"leavedesk/internal/domain/auth"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	if _, ok := GetSession(context.Background()); ok {
		t.Fatal("expected no session on a bare context")
	}
	ctx := WithSession(context.Background(), auth.Session{Token: "tok", UserID: "u1"})
	sess, ok := GetSession(ctx)
	if !ok || sess.UserID != "u1" || sess.BearerToken() != "tok" {
		t.Fatalf("unexpected session %+v", sess)
	}
}
