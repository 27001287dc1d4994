package middleware

import (
	"context"
	"net/http"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/model"
)

type principalHolderKey struct{}

// principalHolder lets outer middleware see who inner auth resolved.
type principalHolder struct {
	principal *model.Principal
}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, principalHolderKey{}, h)
}

func principalHolderFrom(ctx context.Context) *principalHolder {
	h, _ := ctx.Value(principalHolderKey{}).(*principalHolder)
	return h
}

// attachPrincipal stores p in the request context for handlers and reports
// it to Logger.
func attachPrincipal(r *http.Request, p *model.Principal) *http.Request {
	if holder := principalHolderFrom(r.Context()); holder != nil {
		holder.principal = p
	}
	return r.WithContext(auth.ContextWithPrincipal(r.Context(), p))
}
