package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig lists what cross-origin browsers may do.
type CORSConfig struct {
	// AllowedOrigins are exact origins or "*.example.com" subdomain patterns.
	// Empty denies every cross-origin request.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig allows the request form's methods and headers but no
// origins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key", "X-Request-ID", "Accept"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         86400,
	}
}

// CORS answers preflights and decorates responses for allowed origins.
// Disallowed preflights get 403; disallowed simple requests pass through
// without headers and the browser blocks them.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	exact := make(map[string]bool, len(cfg.AllowedOrigins))
	var suffixes []string
	for _, o := range cfg.AllowedOrigins {
		o = strings.ToLower(o)
		if strings.HasPrefix(o, "*.") {
			suffixes = append(suffixes, o[1:])
			continue
		}
		exact[o] = true
	}

	allowed := func(origin string) bool {
		origin = strings.ToLower(origin)
		if exact[origin] {
			return true
		}
		for _, suffix := range suffixes {
			host := strings.TrimSuffix(origin, suffix)
			if host == origin {
				continue
			}
			// The remainder must be "scheme://sub", not a longer domain
			// that merely ends in the same characters.
			if i := strings.Index(host, "://"); i >= 0 && len(host) > i+3 && !strings.ContainsAny(host[i+3:], "/:") {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions
			if !allowed(origin) {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			if preflight {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				if cfg.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
