package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
)

// minKeyAuthDuration pads API key checks so prefix hits and misses take
// the same time.
const minKeyAuthDuration = 200 * time.Millisecond

// KeyStore looks up API keys by their visible prefix.
type KeyStore interface {
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
}

// UserStore provisions users seen for the first time in a token.
type UserStore interface {
	EnsureUser(ctx context.Context, user *model.User) (*model.User, error)
	TouchLastLogin(ctx context.Context, id string) error
}

// PrincipalCache caches verified API keys.
type PrincipalCache interface {
	GetPrincipal(ctx context.Context, cacheKey string) (*model.Principal, error)
	SetPrincipal(ctx context.Context, cacheKey string, p *model.Principal) error
}

// AuthConfig holds the auth middleware collaborators.
type AuthConfig struct {
	Logger   *slog.Logger
	Keys     KeyStore
	Users    UserStore
	Cache    PrincipalCache
	Tokens   *auth.TokenVerifier
	Metrics  metrics.Recorder
	// DefaultMonthlyLimit is given to users created from a token.
	DefaultMonthlyLimit int
	// MinKeyDuration overrides minKeyAuthDuration. Tests set it to a
	// negative value to disable padding.
	MinKeyDuration time.Duration
}

// Auth resolves the bearer credential to a Principal. API keys
// (rp_live_...) are checked against stored argon2id hashes; anything else
// is verified as an identity-service JWT.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	pad := cfg.MinKeyDuration
	if pad == 0 {
		pad = minKeyAuthDuration
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				cfg.reject(w, r, "missing_credentials")
				return
			}

			var (
				principal *model.Principal
				reason    string
			)
			if auth.LooksLikeAPIKey(token) {
				start := time.Now()
				principal, reason = cfg.authenticateKey(r.Context(), token)
				if pad > 0 {
					if elapsed := time.Since(start); elapsed < pad {
						time.Sleep(pad - elapsed)
					}
				}
			} else {
				principal, reason = cfg.authenticateToken(r.Context(), token)
			}

			if principal == nil {
				cfg.reject(w, r, reason)
				return
			}

			next.ServeHTTP(w, attachPrincipal(r, principal))
		})
	}
}

func (cfg AuthConfig) authenticateKey(ctx context.Context, key string) (*model.Principal, string) {
	parsed, err := auth.ParseAPIKey(key)
	if err != nil {
		return nil, "invalid_format"
	}

	cacheKey := auth.CacheKey(key)
	if cfg.Cache != nil {
		if p, _ := cfg.Cache.GetPrincipal(ctx, cacheKey); p != nil {
			return p, ""
		}
	}

	keys, err := cfg.Keys.GetAPIKeysByPrefix(ctx, parsed.Prefix)
	if err != nil {
		cfg.Logger.Error("api key lookup failed",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(ctx)),
		)
		return nil, "lookup_error"
	}

	// Prefixes can collide; try every candidate.
	var matched *model.APIKey
	for _, k := range keys {
		if ok, err := auth.VerifySecret(key, k.KeyHash); err == nil && ok {
			matched = k
			break
		}
	}
	if matched == nil || matched.IsRevoked() {
		return nil, "invalid_key"
	}

	p := &model.Principal{
		Method:        model.AuthMethodAPIKey,
		UserID:        matched.UserID,
		KeyID:         matched.ID,
		KeyPrefix:     matched.KeyPrefix,
		Scopes:        matched.Scopes,
		RateLimitTier: matched.RateLimitTier,
	}
	if cfg.Cache != nil {
		if err := cfg.Cache.SetPrincipal(ctx, cacheKey, p); err != nil {
			cfg.Logger.Warn("cache principal failed", slog.String("error", err.Error()))
		}
	}

	go func(id string) {
		bg, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cfg.Keys.UpdateAPIKeyLastUsed(bg, id)
	}(matched.ID)

	return p, ""
}

func (cfg AuthConfig) authenticateToken(ctx context.Context, token string) (*model.Principal, string) {
	if cfg.Tokens == nil || !cfg.Tokens.Enabled() {
		return nil, "jwt_disabled"
	}
	claims, err := cfg.Tokens.Verify(token)
	if err != nil {
		return nil, "invalid_token"
	}

	user, err := cfg.Users.EnsureUser(ctx, &model.User{
		ID:                  claims.UserID,
		Email:               claims.Email,
		MonthlyRequestLimit: cfg.DefaultMonthlyLimit,
	})
	if err != nil {
		cfg.Logger.Error("provision user failed",
			slog.String("user_id", claims.UserID),
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(ctx)),
		)
		return nil, "user_error"
	}
	if err := cfg.Users.TouchLastLogin(ctx, user.ID); err != nil {
		cfg.Logger.Warn("update last login failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return &model.Principal{
		Method:        model.AuthMethodJWT,
		UserID:        user.ID,
		Email:         user.Email,
		Scopes:        []string{model.ScopeRead, model.ScopeWrite},
		RateLimitTier: model.TierFree,
	}, ""
}

func (cfg AuthConfig) reject(w http.ResponseWriter, r *http.Request, reason string) {
	cfg.Metrics.IncAuthFailure(reason)
	cfg.Logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
	// One message for every failure so callers cannot probe which part failed.
	writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing credentials")
}

// bearerToken reads "Authorization: Bearer <token>", falling back to X-API-Key.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.Header.Get("X-API-Key")
}
