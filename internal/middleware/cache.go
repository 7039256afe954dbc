package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/theatre-booking/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	switch {
	case cw.limit <= 0:
		cw.buf.Write(b)
	case cw.size < cw.limit:
		remain := cw.limit - cw.size
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// Cache is a Redis backed response cache.  Entries are grouped so a
// write can drop every cached read that may have changed.
type Cache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log *zap.Logger
}

// NewRedisCache returns a cache.  With caching disabled or a nil client
// every middleware it builds is a pass-through.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, log *zap.Logger) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Cache{cfg: cfg, rdb: rdb, log: log.Named("cache")}
}

func (rc *Cache) enabled() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

// Group caches successful responses of cacheable methods under group.
// Any other request that completes with a 2xx status purges group and
// the extra groups listed in alsoPurge.
func (rc *Cache) Group(group string, alsoPurge ...string) echo.MiddlewareFunc {
	if !rc.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	purge := rc.PurgeOnWrite(append([]string{group}, alsoPurge...)...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		write := purge(next)
		return func(c echo.Context) error {
			if rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return rc.serve(c, group, next)
			}
			return write(c)
		}
	}
}

// PurgeOnWrite purges groups after any request with a non-cacheable
// method completes with a 2xx status.  Nothing is cached.
func (rc *Cache) PurgeOnWrite(groups ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !rc.enabled() {
			return next
		}
		return func(c echo.Context) error {
			if rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			if err := next(c); err != nil {
				return err
			}
			if s := c.Response().Status; s >= 200 && s < 300 {
				for _, g := range groups {
					rc.Purge(context.WithoutCancel(c.Request().Context()), g)
				}
			}
			return nil
		}
	}
}

func (rc *Cache) serve(c echo.Context, group string, next echo.HandlerFunc) error {
	ctx := c.Request().Context()
	key := rc.key(group, c)

	if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
		if status, hdr, body, ok := decodePayload(bs); ok {
			for k, vals := range hdr {
				// Content-Length is recomputed by the server.
				if strings.EqualFold(k, echo.HeaderContentLength) || perRequestHeader(k) {
					continue
				}
				for _, v := range vals {
					c.Response().Header().Add(k, v)
				}
			}
			c.Response().Header().Set("X-Cache", "HIT")
			c.Response().WriteHeader(status)
			if len(body) > 0 {
				_, _ = c.Response().Write(body)
			}
			return nil
		}
	}

	cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: int64(rc.cfg.MaxBodyBytes)}
	c.Response().Writer = cw
	c.Response().Header().Set("X-Cache", "MISS")

	if err := next(c); err != nil {
		return err
	}
	if cw.status != http.StatusOK {
		return nil
	}
	// A truncated body must not be served later.
	if cw.limit > 0 && cw.size > cw.limit {
		return nil
	}
	hdr := make(http.Header, len(c.Response().Header()))
	for k, vals := range c.Response().Header() {
		if perRequestHeader(k) {
			continue
		}
		hdr[k] = append([]string(nil), vals...)
	}
	payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
	if err != nil {
		return nil
	}
	if err := rc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err(); err != nil {
		rc.log.Warn("store failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// perRequestHeader reports whether k belongs to a single exchange and
// must not be stored or replayed.
func perRequestHeader(k string) bool {
	return strings.EqualFold(k, "X-Cache") || strings.EqualFold(k, echo.HeaderXRequestID)
}

// Purge deletes every entry of group.
func (rc *Cache) Purge(ctx context.Context, group string) {
	if !rc.enabled() {
		return
	}
	iter := rc.rdb.Scan(ctx, 0, rc.cfg.Prefix+":"+group+":*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		rc.log.Warn("scan failed", zap.String("group", group), zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := rc.rdb.Del(ctx, keys...).Err(); err != nil {
		rc.log.Warn("purge failed", zap.String("group", group), zap.Error(err))
	}
}

// key builds "<prefix>:<group>:<sha1>" honoring the key strategy.
func (rc *Cache) key(group string, c echo.Context) string {
	r := c.Request()
	var parts []string
	switch strings.ToLower(rc.cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", r.URL.Path}
	case "method_route":
		parts = []string{"method", r.Method, "route", r.URL.Path}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", r.URL.Path, "q", r.URL.RawQuery}
	default: // "route_query"
		parts = []string{"route", r.URL.Path, "q", r.URL.RawQuery}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%s:%x", rc.cfg.Prefix, group, sum[:])
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}
