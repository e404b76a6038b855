package auth

import "context"

type contextKey string

const claimsContextKey = contextKey("claims")

func WithClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the authenticated caller, if any.
func ClaimsFromContext(ctx context.Context) (*UserClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*UserClaims)
	return claims, ok && claims != nil
}

// ActorFromContext returns the caller's actor key, or fallback when the
// request is unauthenticated.
func ActorFromContext(ctx context.Context, fallback string) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Actor()
	}
	return fallback
}
