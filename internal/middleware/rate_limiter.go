package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/warrenlibrary/library-backend/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiterConfig defines rate limiting rules
type RateLimiterConfig struct {
	MaxRequests int           // Maximum requests allowed in the window
	Window      time.Duration // Time window (e.g., 1 minute)
}

// Limiter decides whether one more request for key fits in its budget.
type Limiter interface {
	CheckLimit(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimit returns a Gin middleware limiting requests per client IP. Limiter
// errors let the request through.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		allowed, retryAfter, err := limiter.CheckLimit(c.Request.Context(), clientIP)
		if err != nil {
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("ip", clientIP),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if !allowed {
			seconds := int(retryAfter.Round(time.Second).Seconds())
			if seconds < 1 {
				seconds = 1
			}
			logger.Log.Warn("Rate limit exceeded",
				zap.String("ip", clientIP),
				zap.String("path", c.FullPath()),
			)
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests. Please try again later.",
				"retry_after": seconds,
			})
			return
		}

		c.Next()
	}
}

// RateLimiter is a fixed-window counter in Redis, shared by every API
// instance.
type RateLimiter struct {
	redis  *redis.Client
	config RateLimiterConfig
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(redisClient *redis.Client, config RateLimiterConfig) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		config: config,
	}
}

// Middleware returns a Gin middleware function for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return RateLimit(rl)
}

// CheckLimit counts the request against the key's current window.
func (rl *RateLimiter) CheckLimit(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := fmt.Sprintf("ratelimit:%s", key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, err
	}

	// The first request of a window starts its expiry.
	if count == 1 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.Window).Err(); err != nil {
			return false, 0, err
		}
	}

	if count > int64(rl.config.MaxRequests) {
		ttl, err := rl.redis.TTL(ctx, redisKey).Result()
		if err != nil || ttl <= 0 {
			ttl = rl.config.Window
		}
		return false, ttl, nil
	}

	return true, 0, nil
}

// MemoryRateLimiter is a per-key token bucket for single-instance
// deployments without Redis. Each key may burst MaxRequests and refills at
// MaxRequests per Window.
type MemoryRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewMemoryRateLimiter(config RateLimiterConfig) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(config.MaxRequests) / config.Window.Seconds()),
		burst:    config.MaxRequests,
	}
}

// Middleware returns a Gin middleware function for rate limiting
func (ml *MemoryRateLimiter) Middleware() gin.HandlerFunc {
	return RateLimit(ml)
}

func (ml *MemoryRateLimiter) CheckLimit(_ context.Context, key string) (bool, time.Duration, error) {
	limiter := ml.limiterFor(key)

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return false, time.Duration(float64(time.Second) / float64(ml.limit)), nil
	}
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

func (ml *MemoryRateLimiter) limiterFor(key string) *rate.Limiter {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	limiter, exists := ml.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(ml.limit, ml.burst)
		ml.limiters[key] = limiter
	}
	return limiter
}
