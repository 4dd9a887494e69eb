package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"dd-copilot/internal/config"
	"dd-copilot/internal/logger"
	"dd-copilot/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func skipRateLimit(c *gin.Context) bool {
	return c.FullPath() == "/health"
}

func rejectRateLimited(c *gin.Context, limit, window int) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", "0")
	c.Header("X-RateLimit-Reset", strconv.FormatInt(
		time.Now().Add(time.Duration(window)*time.Second).Unix(), 10))

	utils.RespondWithError(c, http.StatusTooManyRequests,
		"rate_limit_exceeded",
		"Too many requests. Please try again later.",
		gin.H{
			"retry_after": window,
			"limit":       limit,
		})
	c.Abort()
}

// RateLimitMiddleware implements rate limiting using Redis.
// It limits requests per IP + endpoint combination and fails open.
func RateLimitMiddleware(rdb *redis.Client, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipRateLimit(c) {
			c.Next()
			return
		}

		key := "ratelimit:" + c.ClientIP() + ":" + c.FullPath()

		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		if count == 1 {
			rdb.Expire(ctx, key, time.Duration(cfg.RateLimitWindow)*time.Second)
		}

		if count > int64(cfg.RateLimitReqs) {
			rejectRateLimited(c, cfg.RateLimitReqs, cfg.RateLimitWindow)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.RateLimitReqs))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.RateLimitReqs-int(count)))
		c.Next()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalRateLimiter is the in-process fallback used when Redis is not configured
type LocalRateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	maxVisitors int
	limit       rate.Limit
	burst       int
	window      int
}

func NewLocalRateLimiter(cfg *config.Config) *LocalRateLimiter {
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = 60
	}
	burst := cfg.RateLimitReqs
	if burst <= 0 {
		burst = 1
	}
	return &LocalRateLimiter{
		visitors:    make(map[string]*visitor),
		maxVisitors: 10000,
		limit:       rate.Limit(float64(burst) / float64(window)),
		burst:       burst,
		window:      window,
	}
}

func (l *LocalRateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	v, ok := l.visitors[key]
	if !ok {
		if len(l.visitors) >= l.maxVisitors {
			l.evict(now)
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// evict drops visitors idle for more than one window. When none are idle the
// least recently seen visitor goes, so the map never exceeds maxVisitors.
// Caller holds mu.
func (l *LocalRateLimiter) evict(now time.Time) {
	idle := time.Duration(l.window) * time.Second
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, key)
		}
	}

	for len(l.visitors) > 0 && len(l.visitors) >= l.maxVisitors {
		var oldestKey string
		var oldest time.Time
		for key, v := range l.visitors {
			if oldestKey == "" || v.lastSeen.Before(oldest) {
				oldestKey, oldest = key, v.lastSeen
			}
		}
		delete(l.visitors, oldestKey)
	}
}

// Middleware limits requests per IP + endpoint combination
func (l *LocalRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if skipRateLimit(c) {
			c.Next()
			return
		}
		if !l.allow(c.ClientIP() + ":" + c.FullPath()) {
			rejectRateLimited(c, l.burst, l.window)
			return
		}
		c.Next()
	}
}
