package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	callerBucketPrefix = "requestping:rl:caller:"
	ipBucketPrefix     = "requestping:rl:ip:"

	callerBucketTTL = 2 * time.Minute
	ipBucketTTL     = 10 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Bucket describes one token bucket. A zero RatePerSecond means unlimited.
type Bucket struct {
	Key           string
	RatePerSecond float64
	Burst         int
	TTL           time.Duration
}

// CallerBucket sizes the bucket of an authenticated caller from its tier.
func CallerBucket(key string, ratePerMinute, burst int) Bucket {
	return Bucket{
		Key:           callerBucketPrefix + key,
		RatePerSecond: float64(ratePerMinute) / 60,
		Burst:         burst,
		TTL:           callerBucketTTL,
	}
}

// IPBucket sizes the bucket of an anonymous client. Raw addresses are never
// stored.
func IPBucket(ip string, ratePerSecond, burst int) Bucket {
	return Bucket{
		Key:           ipBucketPrefix + ipDigest(ip),
		RatePerSecond: float64(ratePerSecond),
		Burst:         burst,
		TTL:           ipBucketTTL,
	}
}

// takeTokenScript refills by elapsed milliseconds and takes one token.
// Returns {allowed, retry_after_ms, remaining}.
var takeTokenScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1]) / 1000
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now

tokens = math.min(burst, tokens + math.max(0, now - ts) * rate)

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) / rate)
end

redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', key, ttl)

return {allowed, wait, math.floor(tokens)}
`)

// Take consumes one token from b. On a Redis error the result allows the
// call and the error is returned for logging.
func (c *Cache) Take(ctx context.Context, b Bucket) (*RateLimitResult, error) {
	now := time.Now()
	if b.RatePerSecond <= 0 {
		return unlimited(b, now), nil
	}

	out, err := takeTokenScript.Run(ctx, c.client, []string{b.Key},
		b.RatePerSecond, b.Burst, now.UnixMilli(), b.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return unlimited(b, now), fmt.Errorf("rate limit script: %w", err)
	}
	if len(out) != 3 {
		return unlimited(b, now), fmt.Errorf("rate limit script: unexpected reply %v", out)
	}

	return bucketResult(b, now, out[0] == 1, out[1], out[2]), nil
}

// CheckCallerRateLimit takes a token from an authenticated caller's bucket.
func (c *Cache) CheckCallerRateLimit(ctx context.Context, key string, ratePerMinute, burst int) (*RateLimitResult, error) {
	return c.Take(ctx, CallerBucket(key, ratePerMinute, burst))
}

// CheckIPRateLimit takes a token from a client address's bucket.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	return c.Take(ctx, IPBucket(ip, ratePerSecond, burst))
}

func bucketResult(b Bucket, now time.Time, allowed bool, waitMillis, remaining int64) *RateLimitResult {
	refill := time.Duration(float64(time.Second) / b.RatePerSecond)
	return &RateLimitResult{
		Allowed:    allowed,
		Remaining:  remaining,
		ResetAt:    now.Add(refill),
		RetryAfter: time.Duration(waitMillis) * time.Millisecond,
	}
}

func unlimited(b Bucket, now time.Time) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(b.Burst),
		ResetAt:   now.Add(time.Minute),
	}
}

func ipDigest(ip string) string {
	sum := sha256.Sum256([]byte("requestping:" + ip))
	return hex.EncodeToString(sum[:10])
}
