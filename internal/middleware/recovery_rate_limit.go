package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/internhub/backend/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RecoveryRateLimit caps password recovery calls per client IP in a longer
// window than the global limiter, so one client cannot cycle codes for many
// phone numbers.
func RecoveryRateLimit(redisClient redis.UniversalClient, cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return fixedWindowLimiter(redisClient, log, "recovery_limit", cfg.RecoveryRateLimitRequests, cfg.RecoveryRateLimitWindow, gin.H{
		"success": false,
		"message": "Too many password recovery requests. Please try again later.",
	})
}
