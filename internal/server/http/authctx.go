package httpserver

import (
	"context"

	"github.com/and161185/pollbox/internal/model"
)

type ctxKey string

const (
	identityKey  ctxKey = "pollbox.identity"
	tokenKey     ctxKey = "pollbox.access_token"
	requestIDKey ctxKey = "pollbox.request_id"
)

// WithIdentity stores the authenticated identity and its access token in context.
func WithIdentity(ctx context.Context, id model.Identity, token string) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	return context.WithValue(ctx, tokenKey, token)
}

// IdentityFrom returns the identity resolved for this request, or nil.
func IdentityFrom(ctx context.Context) *model.Identity {
	id, ok := ctx.Value(identityKey).(model.Identity)
	if !ok {
		return nil
	}
	return &id
}

func accessTokenFrom(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey).(string)
	return s
}

// RequestIDFrom returns the request id assigned by the requestID middleware.
func RequestIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

func contextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
