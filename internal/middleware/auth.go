package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Caller, error)
}

var (
	ErrMissingAuthorization   = errors.New("missing authorization header")
	ErrMalformedAuthorization = errors.New("invalid authorization header format")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingAuthorization
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", ErrMalformedAuthorization
	}
	return parts[1], nil
}

// AuthRequired resolves the bearer token into an auth.Caller stored under
// auth.LocalsKey.
func AuthRequired(authenticator Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := BearerToken(c.Get(fiber.HeaderAuthorization))
		if errors.Is(err, ErrMissingAuthorization) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		caller, err := authenticator.Authenticate(c.Context(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(auth.LocalsKey, caller)
		return c.Next()
	}
}

// RequireRole rejects callers whose role is not listed. It must run after AuthRequired.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, _ := c.Locals(auth.LocalsKey).(auth.Caller)
		for _, role := range roles {
			if caller.Role == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	}
}
