package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Rate limit defaults.
const (
	DefaultRateLimit       = 100
	DefaultRateLimitWindow = time.Minute
	DefaultBurstSize       = 10
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-Ratelimit-Limit"
	HeaderRateLimitRemaining = "X-Ratelimit-Remaining"
	HeaderRateLimitReset     = "X-Ratelimit-Reset"
)

// RateLimitStore counts requests per key within a fixed window.
type RateLimitStore interface {
	// Increment bumps the counter for key, starting a new window when the key
	// is absent, and returns the new count with the time left in the window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	Logger *slog.Logger
	// Store is the counter backend; a nil store disables limiting.
	Store     RateLimitStore
	Limit     int
	Window    time.Duration
	BurstSize int
	// KeyFunc derives the limiter key; the default uses the user ID or the client IP.
	KeyFunc   func(c echo.Context) string
	SkipPaths []string
	Message   string
}

// DefaultRateLimitConfig returns a RateLimitConfig with sensible defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Logger:    slog.Default(),
		Limit:     DefaultRateLimit,
		Window:    DefaultRateLimitWindow,
		BurstSize: DefaultBurstSize,
		SkipPaths: []string{"/health", "/ready", "/metrics"},
		Message:   "Too many requests. Please try again later.",
	}
}

// RateLimit returns a fixed-window rate limiting middleware. Store failures
// let the request through.
func RateLimit(config RateLimitConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Limit <= 0 {
		config.Limit = DefaultRateLimit
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitWindow
	}
	if config.Message == "" {
		config.Message = "Too many requests. Please try again later."
	}
	if config.KeyFunc == nil {
		config.KeyFunc = defaultRateLimitKey
	}

	skipPaths := make(map[string]struct{}, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = struct{}{}
	}
	totalLimit := int64(config.Limit + config.BurstSize)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if _, ok := skipPaths[path]; ok || config.Store == nil {
				return next(c)
			}

			key := config.KeyFunc(c)
			count, ttl, err := config.Store.Increment(c.Request().Context(), key, config.Window)
			if err != nil {
				config.Logger.Error("failed to increment rate limit counter",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				return next(c)
			}

			header := c.Response().Header()
			header.Set(HeaderRateLimitLimit, strconv.FormatInt(totalLimit, 10))
			header.Set(HeaderRateLimitRemaining, strconv.FormatInt(max(totalLimit-count, 0), 10))
			if ttl > 0 {
				header.Set(HeaderRateLimitReset, strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))
			}

			if count > totalLimit {
				config.Logger.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.Int64("count", count),
					slog.Int64("limit", totalLimit),
					slog.String("path", path),
				)
				return respondRateLimitError(c, config.Message, ttl)
			}

			return next(c)
		}
	}
}

func defaultRateLimitKey(c echo.Context) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.RealIP()
}

func respondRateLimitError(c echo.Context, message string, retryAfter time.Duration) error {
	seconds := int64(retryAfter.Seconds())
	if retryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	}

	return c.JSON(http.StatusTooManyRequests, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":        "RATE_LIMIT_EXCEEDED",
			"message":     message,
			"retry_after": seconds,
		},
	})
}

// MemoryRateLimitStore keeps counters in process memory. It serves mock mode
// and tests.
type MemoryRateLimitStore struct {
	mu     sync.Mutex
	now    func() time.Time
	counts map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryRateLimitStore creates an empty in-memory store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		now:    time.Now,
		counts: make(map[string]*rateLimitEntry),
	}
}

// Increment implements RateLimitStore.
func (s *MemoryRateLimitStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.counts[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		s.counts[key] = entry
	}
	entry.count++
	return entry.count, entry.expiresAt.Sub(now), nil
}

// Reset clears all counters.
func (s *MemoryRateLimitStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]*rateLimitEntry)
}

// RedisRateLimitStore keeps counters in Redis so that every replica shares
// the same window.
type RedisRateLimitStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisRateLimitStore creates a Redis backed store.
func NewRedisRateLimitStore(client redis.Cmdable, keyPrefix string) *RedisRateLimitStore {
	if keyPrefix == "" {
		keyPrefix = "claimservice:ratelimit:"
	}
	return &RedisRateLimitStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Increment implements RateLimitStore. INCR and EXPIRE NX run in one
// transaction, so a window is started exactly once per key.
func (s *RedisRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	fullKey := s.keyPrefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.ExpireNX(ctx, fullKey, window)
		ttl = pipe.PTTL(ctx, fullKey)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	return incr.Val(), max(ttl.Val(), 0), nil
}
