package middleware

import (
	"github.com/gofiber/fiber/v2"
)

type keyedLimiter interface {
	Allow(key string) bool
}

// RateLimitByIP throttles unauthenticated endpoints such as login and password reset.
func RateLimitByIP(limiter keyedLimiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !limiter.Allow("ip:" + c.IP()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		}
		return c.Next()
	}
}
