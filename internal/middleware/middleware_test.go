package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/config"
	"github.com/iliyamo/theatre-booking/internal/utils"
)

const secret = "test-secret"

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func do(e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, uid uint64, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, role, 5)
	require.NoError(t, err)
	return tok.Token
}

func TestJWTAuthAndRole(t *testing.T) {
	e := echo.New()
	g := e.Group("/admin", JWTAuth(secret), RequireRole("ADMIN"))
	g.GET("", func(c echo.Context) error {
		uid, ok := UserID(c)
		require.True(t, ok)
		return c.String(http.StatusOK, strconv.FormatUint(uid, 10))
	})

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/admin", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/admin", "garbage").Code)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/admin", token(t, 3, "USER")).Code)

	rec := do(e, http.MethodGet, "/admin", token(t, 3, "ADMIN"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "3", rec.Body.String())
}

func TestReadOnlyOr(t *testing.T) {
	e := echo.New()
	g := e.Group("/things", ReadOnlyOr(JWTAuth(secret), RequireRole("ADMIN")))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	g.GET("", ok)
	g.POST("", ok)

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/things", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/things", "").Code)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodPost, "/things", token(t, 1, "USER")).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/things", token(t, 1, "ADMIN")).Code)
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}
}

func TestCacheHitAndPurge(t *testing.T) {
	rdb := newRedis(t)
	cache := NewRedisCache(cacheConfig(), rdb, zap.NewNop())

	var hits atomic.Int32
	e := echo.New()
	g := e.Group("/plays", cache.Group("catalog"))
	g.GET("", func(c echo.Context) error {
		n := hits.Add(1)
		return c.JSON(http.StatusOK, echo.Map{"n": n})
	})
	g.POST("", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
	g.DELETE("", func(c echo.Context) error { return c.JSON(http.StatusBadRequest, echo.Map{"error": "x"}) })

	first := do(e, http.MethodGet, "/plays?title=a", "")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, http.MethodGet, "/plays?title=a", "")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), hits.Load())

	// A different query is a different entry.
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/plays?title=b", "").Header().Get("X-Cache"))

	// Failed writes keep the cache.
	do(e, http.MethodDelete, "/plays", "")
	assert.Equal(t, "HIT", do(e, http.MethodGet, "/plays?title=a", "").Header().Get("X-Cache"))

	do(e, http.MethodPost, "/plays", "")
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/plays?title=a", "").Header().Get("X-Cache"))
}

func TestCacheHitKeepsOwnRequestID(t *testing.T) {
	rdb := newRedis(t)
	cache := NewRedisCache(cacheConfig(), rdb, zap.NewNop())
	e := echo.New()
	e.Use(echomw.RequestID())
	e.GET("/plays", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}, cache.Group("catalog"))

	first := do(e, http.MethodGet, "/plays", "")
	second := do(e, http.MethodGet, "/plays", "")
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))

	ids := second.Header().Values(echo.HeaderXRequestID)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, first.Header().Get(echo.HeaderXRequestID), ids[0])
}

func TestPurgeOnWriteClearsOtherGroup(t *testing.T) {
	rdb := newRedis(t)
	cache := NewRedisCache(cacheConfig(), rdb, zap.NewNop())
	e := echo.New()
	e.GET("/performances", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	}, cache.Group("catalog"))
	e.GET("/reservations", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"mine": true})
	}, cache.PurgeOnWrite("catalog"))
	e.POST("/reservations", func(c echo.Context) error {
		return c.NoContent(http.StatusCreated)
	}, cache.PurgeOnWrite("catalog"))

	do(e, http.MethodGet, "/performances", "")
	assert.Equal(t, "HIT", do(e, http.MethodGet, "/performances", "").Header().Get("X-Cache"))

	// Reads through PurgeOnWrite are never cached.
	assert.Empty(t, do(e, http.MethodGet, "/reservations", "").Header().Get("X-Cache"))

	do(e, http.MethodPost, "/reservations", "")
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/performances", "").Header().Get("X-Cache"))
}

func TestCacheSkipsErrors(t *testing.T) {
	rdb := newRedis(t)
	cache := NewRedisCache(cacheConfig(), rdb, zap.NewNop())
	e := echo.New()
	e.GET("/missing", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}, cache.Group("catalog"))

	do(e, http.MethodGet, "/missing", "")
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/missing", "").Header().Get("X-Cache"))
}

func TestCacheDisabledWithoutRedis(t *testing.T) {
	cache := NewRedisCache(cacheConfig(), nil, zap.NewNop())
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, cache.Group("catalog"))
	assert.Empty(t, do(e, http.MethodGet, "/x", "").Header().Get("X-Cache"))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, zap.NewNop()))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	first := do(e, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/", "").Code)

	blocked := do(e, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
}

func TestRateKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/theatre/plays", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/theatre/plays")
	c.Set(CtxUserID, uint64(42))

	cases := map[string]string{
		"ip":         "rl:ip:10.0.0.7",
		"user":       "rl:user:42",
		"user_route": "rl:user:42:route:GET /api/theatre/plays",
		"bogus":      "rl:ip:10.0.0.7:user:42:route:GET /api/theatre/plays",
	}
	for strategy, want := range cases {
		cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}
		assert.Equal(t, want, rateKey(cfg, c), strategy)
	}
}

func TestBucketDecisionRetryAfter(t *testing.T) {
	assert.Equal(t, 0, bucketDecision{}.RetryAfter())
	assert.Equal(t, 1, bucketDecision{Wait: time.Millisecond}.RetryAfter())
	assert.Equal(t, 2, bucketDecision{Wait: 1500 * time.Millisecond}.RetryAfter())
}

func TestTokenBucketFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, zap.NewNop()))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/", "").Code)
}

func TestRequestLoggerPassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(zap.NewNop()))
	e.GET("/", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot, "tea") })
	assert.Equal(t, http.StatusTeapot, do(e, http.MethodGet, "/", "").Code)
}
