package middleware

import (
	"net/http"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/model"
)

// RequireScope rejects callers holding none of the given scopes. Admin
// implies every scope. Apply after Auth.
func RequireScope(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if p == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			for _, scope := range required {
				if p.HasScope(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions. Required scope: "+required[0])
		})
	}
}

// RequireRead is RequireScope(model.ScopeRead).
func RequireRead() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeRead)
}

// RequireWrite is RequireScope(model.ScopeWrite).
func RequireWrite() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeWrite)
}

// RequireAdmin is RequireScope(model.ScopeAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireScope(model.ScopeAdmin)
}
