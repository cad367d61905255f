package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t testing.TB, maxRequests int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRateLimiter(client, RateLimiterConfig{MaxRequests: maxRequests, Window: window}), mr
}

// loginRouter mounts the limiter the way the API does for its credential
// endpoints.
func loginRouter(limiter Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/login", RateLimit(limiter), func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	})
	return router
}

func postLogin(router http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLimiters_BudgetPerKey(t *testing.T) {
	redisLimiter, _ := newRedisLimiter(t, 3, time.Minute)

	limiters := map[string]Limiter{
		"redis":  redisLimiter,
		"memory": NewMemoryRateLimiter(RateLimiterConfig{MaxRequests: 3, Window: time.Minute}),
	}

	for name, limiter := range limiters {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				allowed, _, err := limiter.CheckLimit(ctx, "198.51.100.7")
				require.NoError(t, err)
				assert.True(t, allowed, "attempt %d", i+1)
			}

			allowed, retryAfter, err := limiter.CheckLimit(ctx, "198.51.100.7")
			require.NoError(t, err)
			assert.False(t, allowed)
			assert.Greater(t, retryAfter, time.Duration(0))
			assert.LessOrEqual(t, retryAfter, time.Minute)

			// Another client is unaffected.
			allowed, _, err = limiter.CheckLimit(ctx, "198.51.100.8")
			require.NoError(t, err)
			assert.True(t, allowed)
		})
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl, mr := newRedisLimiter(t, 2, time.Second)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.CheckLimit(ctx, "student")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _, err := rl.CheckLimit(ctx, "student")
	require.NoError(t, err)
	assert.False(t, allowed)

	mr.FastForward(2 * time.Second)

	allowed, _, err = rl.CheckLimit(ctx, "student")
	require.NoError(t, err)
	assert.True(t, allowed, "a new window starts once the key expires")
}

func TestRateLimit_RejectsWithRetryAfter(t *testing.T) {
	rl, _ := newRedisLimiter(t, 1, time.Minute)
	router := loginRouter(rl)

	assert.Equal(t, http.StatusUnauthorized, postLogin(router, "203.0.113.5:40000").Code)

	w := postLogin(router, "203.0.113.5:40000")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests. Please try again later.", body["error"])
	assert.Equal(t, float64(60), body["retry_after"])
}

func TestRateLimit_FailsOpenWhenRedisDown(t *testing.T) {
	rl, mr := newRedisLimiter(t, 1, time.Minute)
	mr.Close()
	router := loginRouter(rl)

	for i := 0; i < 3; i++ {
		w := postLogin(router, "203.0.113.5:40000")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "attempt %d should reach the handler", i+1)
	}
}

func TestMemoryRateLimiter_RefillsOverTime(t *testing.T) {
	// 20 per second refills one token every 50ms.
	ml := NewMemoryRateLimiter(RateLimiterConfig{MaxRequests: 20, Window: time.Second})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		allowed, _, err := ml.CheckLimit(ctx, "burst")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, retryAfter, err := ml.CheckLimit(ctx, "burst")
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(retryAfter + 20*time.Millisecond)

	allowed, _, err = ml.CheckLimit(ctx, "burst")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func BenchmarkRateLimiter_CheckLimit(b *testing.B) {
	rl, _ := newRedisLimiter(b, 1000000, time.Minute)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = rl.CheckLimit(ctx, "198.51.100.7")
	}
}

func BenchmarkMemoryRateLimiter_Middleware(b *testing.B) {
	router := loginRouter(NewMemoryRateLimiter(RateLimiterConfig{MaxRequests: 1000000, Window: time.Minute}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		postLogin(router, "203.0.113.5:40000")
	}
}
