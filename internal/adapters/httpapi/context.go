package httpapi

import (
	"context"

	"github.com/convention-registry/member-api/internal/platform/auth/sessiontoken"
)

type sessionKey struct{}

func WithSession(ctx context.Context, s sessiontoken.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFromContext(ctx context.Context) (sessiontoken.Session, bool) {
	v, ok := ctx.Value(sessionKey{}).(sessiontoken.Session)
	return v, ok && v.Email != ""
}
