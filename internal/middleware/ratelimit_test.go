package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/cache"
	"github.com/requestping/requestping/internal/model"
)

type fakeLimiter struct {
	allow   bool
	err     error
	buckets []string
	ips     []string
}

func (f *fakeLimiter) result() *cache.RateLimitResult {
	return &cache.RateLimitResult{Allowed: f.allow, Remaining: 3, ResetAt: time.Now().Add(time.Second), RetryAfter: 2 * time.Second}
}

func (f *fakeLimiter) CheckCallerRateLimit(ctx context.Context, bucket string, rpm, burst int) (*cache.RateLimitResult, error) {
	f.buckets = append(f.buckets, bucket)
	return f.result(), f.err
}

func (f *fakeLimiter) CheckIPRateLimit(ctx context.Context, ip string, rps, burst int) (*cache.RateLimitResult, error) {
	f.ips = append(f.ips, ip)
	return f.result(), f.err
}

func limitedRequest(p *model.Principal) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/requests", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	if p != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), p))
	}
	return req
}

func TestRateLimitCaller(t *testing.T) {
	user := &model.Principal{Method: model.AuthMethodJWT, UserID: "u1", RateLimitTier: model.TierFree}
	unlimited := &model.Principal{Method: model.AuthMethodAPIKey, UserID: "u2", KeyID: "k2", RateLimitTier: model.TierUnlimited}

	tests := []struct {
		name        string
		principal   *model.Principal
		allow       bool
		err         error
		wantStatus  int
		wantBuckets []string
	}{
		{"allowed", user, true, nil, http.StatusOK, []string{"user:u1"}},
		{"limited", user, false, nil, http.StatusTooManyRequests, []string{"user:u1"}},
		{"fails open", user, false, errors.New("redis down"), http.StatusOK, []string{"user:u1"}},
		{"unlimited tier skips", unlimited, false, nil, http.StatusOK, nil},
		{"anonymous skips", nil, false, nil, http.StatusOK, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := &fakeLimiter{allow: tt.allow, err: tt.err}
			mw := RateLimitCaller(RateLimitConfig{
				Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
				Limiter:       limiter,
				CallerEnabled: true,
			})
			rec := httptest.NewRecorder()
			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, limitedRequest(tt.principal))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(limiter.buckets) != len(tt.wantBuckets) || (len(tt.wantBuckets) > 0 && limiter.buckets[0] != tt.wantBuckets[0]) {
				t.Errorf("buckets = %v, want %v", limiter.buckets, tt.wantBuckets)
			}
			if tt.wantStatus == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "2" {
				t.Errorf("Retry-After = %q, want 2", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRateLimitIP(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	mw := RateLimitIP(RateLimitConfig{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limiter:   limiter,
		IPEnabled: true,
		IPRPS:     5,
		IPBurst:   10,
	})
	rec := httptest.NewRecorder()
	mw(http.NotFoundHandler()).ServeHTTP(rec, limitedRequest(nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if len(limiter.ips) != 1 || limiter.ips[0] != "203.0.113.9" {
		t.Errorf("ips = %v", limiter.ips)
	}
}
