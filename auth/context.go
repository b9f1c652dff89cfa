package auth

import (
	"chat-relay/domain"
	"context"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// BearerToken strips the standard "Bearer " scheme when present.
// A scheme with nothing after it yields no token.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if strings.EqualFold(header, "bearer") {
		return ""
	}
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// WithIdentity injects the authenticated caller for downstream handlers.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}
