package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const CronSecretHeader = "X-Cron-Secret"

// CronSecret guards scheduler-triggered endpoints. The secret may be sent in
// X-Cron-Secret or as a bearer token. An empty configured secret disables the endpoint.
func CronSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
		}
		provided := strings.TrimSpace(c.Get(CronSecretHeader))
		if provided == "" {
			provided, _ = BearerToken(c.Get(fiber.HeaderAuthorization))
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}
		return c.Next()
	}
}
