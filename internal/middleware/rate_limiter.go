package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/internhub/backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RateLimiter creates a per-IP fixed window rate limiting middleware.
// Requests pass through when Redis is unavailable.
func RateLimiter(redisClient redis.UniversalClient, cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return fixedWindowLimiter(redisClient, log, "rate_limit", cfg.RateLimitRequests, cfg.RateLimitDuration, gin.H{
		"error": "Too many requests",
	})
}

// fixedWindowLimiter counts requests per client IP under prefix. The first
// request of a window sets the expiry.
func fixedWindowLimiter(redisClient redis.UniversalClient, log *logrus.Logger, prefix string, limit int, window time.Duration, body gin.H) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := fmt.Sprintf("%s:%s", prefix, c.ClientIP())

		count, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			log.WithError(err).WithField("limiter", prefix).Warn("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if count == 1 {
			if err := redisClient.Expire(ctx, key, window).Err(); err != nil {
				log.WithError(err).WithField("limiter", prefix).Warn("rate limiter failed to set window")
			}
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		if count > int64(limit) {
			ttl, _ := redisClient.TTL(ctx, key).Result()
			if ttl < 0 {
				ttl = window
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

			resp := gin.H{"retry_after": int(ttl.Seconds())}
			for k, v := range body {
				resp[k] = v
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, resp)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(int64(limit)-count, 10))
		c.Next()
	}
}
