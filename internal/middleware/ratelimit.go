package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/config"
)

// takeTokenScript refills the caller's bucket for the whole intervals
// elapsed since its last refill, then spends one token if there is one.
// The bucket is a hash {left, refilled_at}.  It returns
// {granted, left, wait_ms}.
var takeTokenScript = redis.NewScript(`
local now, cap, per, every, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])

local left = tonumber(redis.call('HGET', KEYS[1], 'left'))
local at = tonumber(redis.call('HGET', KEYS[1], 'refilled_at'))
if not left or not at then
    left, at = cap, now
end

local steps = math.floor(math.max(0, now - at) / every)
if steps > 0 then
    left = math.min(cap, left + steps * per)
    at = at + steps * every
end

local granted, wait = 0, 0
if left > 0 then
    granted, left = 1, left - 1
else
    wait = math.max(0, every - (now - at))
end

redis.call('HSET', KEYS[1], 'left', left, 'refilled_at', at)
redis.call('EXPIRE', KEYS[1], ttl)
return { granted, left, wait }
`)

// bucketDecision is the outcome of one takeTokenScript call.
type bucketDecision struct {
	Granted bool
	Left    int64
	Wait    time.Duration
}

// RetryAfter is the Retry-After value in whole seconds, rounded up.
func (d bucketDecision) RetryAfter() int {
	return int((d.Wait + time.Second - 1) / time.Second)
}

func takeToken(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (bucketDecision, error) {
	vals, err := takeTokenScript.Run(ctx, rdb, []string{key},
		time.Now().UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return bucketDecision{}, err
	}
	if len(vals) != 3 {
		return bucketDecision{}, fmt.Errorf("token bucket: %d values from script", len(vals))
	}
	return bucketDecision{
		Granted: vals[0] == 1,
		Left:    vals[1],
		Wait:    time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket throttles API callers with a Redis token bucket per
// rate key.  It is a pass-through when disabled or without Redis and
// lets requests through when Redis fails, so a cache outage never
// blocks bookings.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	log = log.Named("ratelimit")
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			d, err := takeToken(c.Request().Context(), rdb, cfg, key)
			if err != nil {
				log.Warn("bucket unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Left, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.Granted {
				return next(c)
			}

			secs := d.RetryAfter()
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				log.Info("throttled", zap.String("key", key), zap.Duration("wait", d.Wait))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "request was throttled",
				"retry_after": secs,
			})
		}
	}
}

// rateKey joins the configured key segments, e.g. "rl:ip:1.2.3.4:user:7".
// Unknown strategies fall back to ip_user_route.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	segments := map[string][]string{
		"ip":    {"ip", ip},
		"user":  {"user", identityKey(c)},
		"route": {"route", c.Request().Method + " " + c.Path()},
	}
	strategy := strings.ToLower(cfg.KeyStrategy)
	switch strategy {
	case "ip", "user", "route", "ip_user", "ip_route", "user_route", "ip_user_route":
	default:
		strategy = "ip_user_route"
	}
	parts := []string{cfg.Prefix}
	for _, name := range strings.Split(strategy, "_") {
		parts = append(parts, segments[name]...)
	}
	return strings.Join(parts, ":")
}
