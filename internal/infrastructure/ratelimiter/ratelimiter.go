package ratelimiter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "rl:"
	defaultSourceKey = "X-Forwarded-For"
)

type Limiter interface {
	Allow(ctx context.Context, sourceKey string) (bool, int)
	GetSourceKey(r *http.Request) string
	GetMaxBurst() int
}

// slidingWindowScript counts requests in a rolling window held in a sorted
// set and admits the call atomically. Returns {allowed, remaining}.
const slidingWindowScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)

local current = redis.call('ZCARD', key)
if current >= limit then
    return {0, 0}
end

redis.call('ZADD', key, now, now)
redis.call('PEXPIRE', key, window)

return {1, limit - current - 1}
`

type RateLimiter struct {
	client          *redis.Client
	script          *redis.Script
	window          time.Duration
	maxBurst        int
	sourceHeaderKey string
}

type Options struct {
	MaxRatePerSecond int
	MaxBurst         int
	SourceHeaderKey  string
}

func New(client *redis.Client, options Options) Limiter {
	if options.MaxBurst <= 0 {
		options.MaxBurst = options.MaxRatePerSecond
	}
	if options.SourceHeaderKey == "" {
		options.SourceHeaderKey = defaultSourceKey
	}

	// The burst is spread over a one second window scaled by the rate, so
	// maxBurst requests are admitted per window.
	window := time.Second
	if options.MaxRatePerSecond > 0 {
		window = time.Duration(float64(time.Second) * float64(options.MaxBurst) / float64(options.MaxRatePerSecond))
	}

	return &RateLimiter{
		client:          client,
		script:          redis.NewScript(slidingWindowScript),
		window:          window,
		maxBurst:        options.MaxBurst,
		sourceHeaderKey: options.SourceHeaderKey,
	}
}

func (rl *RateLimiter) Allow(ctx context.Context, sourceKey string) (bool, int) {
	now := time.Now().UnixMilli()

	res, err := rl.script.Run(ctx, rl.client,
		[]string{keyPrefix + sourceKey},
		now, rl.window.Milliseconds(), rl.maxBurst,
	).Int64Slice()
	if err != nil || len(res) != 2 {
		// Fail open: the limiter protects from abuse, it must not take
		// the API down with Redis.
		return true, rl.maxBurst
	}

	return res[0] == 1, int(res[1])
}

func (rl *RateLimiter) GetSourceKey(r *http.Request) string {
	if key := r.Header.Get(rl.sourceHeaderKey); key != "" {
		// First hop wins when the header carries a chain
		if idx := strings.IndexByte(key, ','); idx > 0 {
			return strings.TrimSpace(key[:idx])
		}
		return key
	}

	return r.RemoteAddr
}

func (rl *RateLimiter) GetMaxBurst() int {
	return rl.maxBurst
}
