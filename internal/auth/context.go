package auth

import (
	"context"

	"github.com/requestping/requestping/internal/model"
)

type contextKey struct{}

// ContextWithPrincipal attaches the authenticated caller to ctx.
func ContextWithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the caller, or nil when unauthenticated.
func PrincipalFromContext(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(contextKey{}).(*model.Principal)
	return p
}

// UserIDFromContext returns the caller's user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return ""
}
