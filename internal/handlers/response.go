package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func callerFrom(c *fiber.Ctx) auth.Caller {
	caller, _ := c.Locals(auth.LocalsKey).(auth.Caller)
	return caller
}

// bindJSON parses and validates a request body. Failures wrap ErrInvalidInput.
func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("%w: invalid request body", services.ErrInvalidInput)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", services.ErrInvalidInput, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return "invalid request body"
	}
	first := fieldErrors[0]
	if first.Tag() == "required" {
		return first.Field() + " is required"
	}
	return first.Field() + " is invalid"
}

func parseIDParam(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s", services.ErrInvalidInput, name)
	}
	return id, nil
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// statusFor maps the service error taxonomy onto REST status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrAuthenticationRequired):
		return fiber.StatusUnauthorized, "Authentication required"
	case errors.Is(err, services.ErrInvalidCredentials):
		return fiber.StatusUnauthorized, "Invalid email or password"
	case errors.Is(err, services.ErrTokenRevoked):
		return fiber.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, services.ErrSignatureMismatch):
		return fiber.StatusBadRequest, "Payment verification failed"
	case errors.Is(err, services.ErrInvalidResetCode):
		return fiber.StatusBadRequest, "Invalid or expired reset code"
	case errors.Is(err, services.ErrInvalidInput):
		return fiber.StatusBadRequest, detail(err, services.ErrInvalidInput, "Invalid request")
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound, detail(err, services.ErrNotFound, "resource") + " not found"
	case errors.Is(err, services.ErrConflict):
		return fiber.StatusConflict, detail(err, services.ErrConflict, "Conflict")
	case errors.Is(err, services.ErrInvalidStateTransition):
		return fiber.StatusConflict, detail(err, services.ErrInvalidStateTransition, "Invalid state transition")
	case errors.Is(err, services.ErrRateLimited):
		return fiber.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, services.ErrStorageUnavailable):
		return fiber.StatusInternalServerError, "File storage is not configured"
	case errors.Is(err, services.ErrExternalService):
		return fiber.StatusInternalServerError, "External service failure"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

// detail returns the reason appended to a sentinel by the services, e.g. "item" from
// "not found: item".
func detail(err, sentinel error, fallback string) string {
	message := err.Error()
	prefix := sentinel.Error() + ": "
	if strings.HasPrefix(message, prefix) {
		return message[len(prefix):]
	}
	return fallback
}

func writeError(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	return c.Status(status).JSON(fiber.Map{"error": message})
}

// writeFunctionError narrows codes to the set function clients understand: denied
// access is reported as 401 and conflicts as 400.
func writeFunctionError(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	switch status {
	case fiber.StatusForbidden:
		status = fiber.StatusUnauthorized
	case fiber.StatusConflict, fiber.StatusTooManyRequests:
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func functionOK(c *fiber.Ctx, payload fiber.Map) error {
	if payload == nil {
		payload = fiber.Map{}
	}
	payload["success"] = true
	return c.JSON(payload)
}
