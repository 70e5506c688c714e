package middleware

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sofico/sofico_wallet/internal/auth"
	"github.com/sofico/sofico_wallet/internal/funding"
)

// RateLimit caps requests per principal (or client IP) per minute using a Redis counter.
// It fails open without Redis or on cache errors.
func RateLimit(cache *redis.Client, scope string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := c.IP()
		if p, ok := auth.FromContext(c.UserContext()); ok {
			subject = p.UserID
		}
		key := "rl:" + scope + ":" + subject

		ctx := c.UserContext()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return c.Status(http.StatusTooManyRequests).JSON(funding.ErrorResponse{
				Error:   "RateLimited",
				Message: "too many requests, try again later",
			})
		}
		return c.Next()
	}
}
