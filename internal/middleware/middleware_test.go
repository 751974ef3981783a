package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator struct {
	caller auth.Caller
	err    error
	token  string
}

func (s *stubAuthenticator) Authenticate(_ context.Context, token string) (auth.Caller, error) {
	s.token = token
	return s.caller, s.err
}

func callerEcho(c *fiber.Ctx) error {
	caller, _ := c.Locals(auth.LocalsKey).(auth.Caller)
	return c.JSON(fiber.Map{"user_id": caller.UserID, "role": caller.Role})
}

func TestAuthRequiredStoresCaller(t *testing.T) {
	authenticator := &stubAuthenticator{caller: auth.Caller{UserID: 7, Role: "client"}}
	app := fiber.New()
	app.Get("/me", AuthRequired(authenticator), callerEcho)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer abc.def")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc.def", authenticator.token)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"user_id":7,"role":"client"}`, string(body))
}

func TestAuthRequiredRejects(t *testing.T) {
	cases := map[string]struct {
		header string
		err    error
		want   string
	}{
		"missing":   {header: "", want: "Missing authorization header"},
		"malformed": {header: "Token abc", want: "Invalid authorization header format"},
		"invalid":   {header: "Bearer abc", err: errors.New("bad"), want: "Invalid or expired token"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/me", AuthRequired(&stubAuthenticator{err: tc.err}), callerEcho)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.JSONEq(t, `{"error":"`+tc.want+`"}`, string(body))
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.LocalsKey, auth.Caller{UserID: 1, Role: c.Get("X-Role")})
		return c.Next()
	})
	app.Get("/admin", RequireRole("admin"), callerEcho)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Role", "client")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Role", "admin")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFunctionCORSPreflight(t *testing.T) {
	app := fiber.New()
	functions := app.Group("/functions/v1", FunctionCORS("https://app.example.com"))
	functions.Post("/cancel-booking", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})

	req := httptest.NewRequest(http.MethodOptions, "/functions/v1/cancel-booking", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	body, _ := io.ReadAll(resp.Body)
	assert.Empty(t, body)

	req = httptest.NewRequest(http.MethodPost, "/functions/v1/cancel-booking", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "authorization")
}

func TestCronSecret(t *testing.T) {
	app := fiber.New()
	app.Post("/sweep", CronSecret("s3cret"), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	cases := map[string]struct {
		header string
		value  string
		want   int
	}{
		"header": {header: CronSecretHeader, value: "s3cret", want: http.StatusOK},
		"bearer": {header: "Authorization", value: "Bearer s3cret", want: http.StatusOK},
		"wrong":  {header: CronSecretHeader, value: "nope", want: http.StatusUnauthorized},
		"absent": {want: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/sweep", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestCronSecretDisabledWhenUnset(t *testing.T) {
	app := fiber.New()
	app.Post("/sweep", CronSecret(""), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/sweep", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type countingLimiter struct{ remaining int }

func (l *countingLimiter) Allow(string) bool {
	l.remaining--
	return l.remaining >= 0
}

func TestRateLimitByIP(t *testing.T) {
	app := fiber.New()
	app.Post("/login", RateLimitByIP(&countingLimiter{remaining: 1}), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
