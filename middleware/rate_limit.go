package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"preventanyl/utils"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Redis        *redis.Client
	Requests     int           // Number of requests allowed
	Window       time.Duration // Time window
	KeyPrefix    string        // Redis key prefix
	SkipPaths    []string      // Paths to skip rate limiting
	ErrorMessage string        // Custom error message
}

// RateLimitStrategy decides which caller a request is counted against.
type RateLimitStrategy string

const (
	StrategyIP       RateLimitStrategy = "ip"
	StrategyUserOrIP RateLimitStrategy = "user_or_ip"
	StrategyDevice   RateLimitStrategy = "device"
)

// RateLimiter is a sliding window log over a Redis sorted set.
type RateLimiter struct {
	config   RateLimitConfig
	strategy RateLimitStrategy
}

func NewRateLimiter(config RateLimitConfig, strategy RateLimitStrategy) *RateLimiter {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "rate_limit"
	}
	if config.ErrorMessage == "" {
		config.ErrorMessage = "Rate limit exceeded"
	}

	return &RateLimiter{
		config:   config,
		strategy: strategy,
	}
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.config.Redis == nil || rl.config.Requests <= 0 || hasPrefix(c.Request.URL.Path, rl.config.SkipPaths) {
			c.Next()
			return
		}

		key := rl.getKey(c)
		if key == "" {
			c.Next()
			return
		}

		allowed, resetTime, remaining, err := rl.checkRateLimit(c.Request.Context(), key)
		if err != nil {
			logrus.Errorf("Rate limit check failed: %v", err)
			// Allow request to proceed on error
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetTime).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			utils.RateLimitResponse(c, rl.config.ErrorMessage)
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string) (allowed bool, resetTime time.Time, remaining int, err error) {
	now := time.Now()
	window := rl.config.Window
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := rl.config.Redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-window).UnixNano()))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, key, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, time.Time{}, 0, err
	}

	current := count.Val()
	remaining = rl.config.Requests - int(current) - 1
	if remaining < 0 {
		remaining = 0
	}
	resetTime = now.Add(window)
	allowed = current < int64(rl.config.Requests)

	// rejected requests do not consume the window
	if !allowed {
		rl.config.Redis.ZRem(ctx, key, member)
	}

	return allowed, resetTime, remaining, nil
}

func (rl *RateLimiter) getKey(c *gin.Context) string {
	prefix := rl.config.KeyPrefix

	switch rl.strategy {
	case StrategyDevice:
		if deviceID := c.GetString("deviceID"); deviceID != "" {
			return prefix + ":device:" + deviceID
		}
		return prefix + ":ip:" + c.ClientIP()
	case StrategyUserOrIP:
		if userID := c.GetString("userID"); userID != "" {
			return prefix + ":user:" + userID
		}
		return prefix + ":ip:" + c.ClientIP()
	default:
		return prefix + ":ip:" + c.ClientIP()
	}
}

// APIRateLimit bounds general API traffic per user or IP.
func APIRateLimit(client *redis.Client, requestsPerMinute int) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{
		Redis:     client,
		Requests:  requestsPerMinute,
		Window:    time.Minute,
		KeyPrefix: "rate_limit:api",
		SkipPaths: []string{"/health", "/ws"},
	}, StrategyUserOrIP).Middleware()
}

// AuthRateLimit slows down credential guessing.
func AuthRateLimit(client *redis.Client) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{
		Redis:        client,
		Requests:     10,
		Window:       time.Minute,
		KeyPrefix:    "rate_limit:auth",
		ErrorMessage: "Too many authentication attempts",
	}, StrategyIP).Middleware()
}

// HelpRateLimit bounds help requests per device. It must run after
// RequireDevice.
func HelpRateLimit(client *redis.Client, requestsPerMinute int) gin.HandlerFunc {
	return NewRateLimiter(RateLimitConfig{
		Redis:        client,
		Requests:     requestsPerMinute,
		Window:       time.Minute,
		KeyPrefix:    "rate_limit:help",
		ErrorMessage: "Too many help requests from this device",
	}, StrategyDevice).Middleware()
}
