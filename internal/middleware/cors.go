package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const functionAllowHeaders = "authorization, x-client-info, apikey, content-type, x-razorpay-signature, x-cron-secret"

// FunctionCORS answers preflight requests on function endpoints with an empty 200 and
// adds the CORS headers to every response.
func FunctionCORS(origins string) fiber.Handler {
	allowed := parseOrigins(origins)
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderAccessControlAllowOrigin, allowOrigin(allowed, c.Get(fiber.HeaderOrigin)))
		c.Set(fiber.HeaderAccessControlAllowHeaders, functionAllowHeaders)
		c.Set(fiber.HeaderAccessControlAllowMethods, "POST, OPTIONS")
		if c.Method() == fiber.MethodOptions {
			return c.Status(fiber.StatusOK).SendString("")
		}
		return c.Next()
	}
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func allowOrigin(allowed []string, origin string) string {
	if len(allowed) == 0 {
		return "*"
	}
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return candidate
		}
	}
	return allowed[0]
}
