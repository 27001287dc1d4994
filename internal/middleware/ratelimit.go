package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/cache"
	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
)

// Limiter is the token bucket store.
type Limiter interface {
	CheckCallerRateLimit(ctx context.Context, bucket string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig configures both limiters.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	Metrics metrics.Recorder

	// Per authenticated caller, sized by the principal's tier.
	CallerEnabled bool
	// Per client IP on public endpoints.
	IPEnabled bool
	IPRPS     int
	IPBurst   int
}

func (cfg *RateLimitConfig) recorder() metrics.Recorder {
	if cfg.Metrics == nil {
		return metrics.NewNoop()
	}
	return cfg.Metrics
}

// RateLimitCaller limits authenticated callers. Apply after Auth.
func RateLimitCaller(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFromContext(r.Context())
			if !cfg.CallerEnabled || p == nil {
				next.ServeHTTP(w, r)
				return
			}

			tier, ok := model.TierConfigs[p.RateLimitTier]
			if !ok {
				tier = model.TierConfigs[model.TierFree]
			}
			if tier.RequestsPerMinute == 0 {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Limiter.CheckCallerRateLimit(r.Context(), p.RateLimitKey(), tier.RequestsPerMinute, tier.Burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("user_id", p.UserID),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, tier.RequestsPerMinute, result.Remaining, result.ResetAt)
			if !result.Allowed {
				cfg.recorder().IncRateLimited("caller")
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", "caller"),
					slog.String("user_id", p.UserID),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP limits unauthenticated endpoints per client address. Expects
// chi's RealIP to have normalized RemoteAddr.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.IPEnabled {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			result, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.IPRPS, cfg.IPBurst)
			if err != nil {
				cfg.Logger.Error("IP rate limit check failed", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}

			if !result.Allowed {
				cfg.recorder().IncRateLimited("ip")
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", "ip"),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(retryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Rate limit exceeded. Retry after "+strconv.Itoa(secs)+" seconds.")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
