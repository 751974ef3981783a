package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

type authApplicationService interface {
	Register(ctx context.Context, input services.RegisterInput) (*services.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*services.Session, error)
	GetUser(ctx context.Context, caller auth.Caller) (*models.User, error)
	Refresh(ctx context.Context, caller auth.Caller) (*services.Session, error)
	SignOut(ctx context.Context, caller auth.Caller, scope string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type AuthHandler struct {
	service authApplicationService
}

func NewAuthHandler(service authApplicationService) *AuthHandler {
	return &AuthHandler{service: service}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type signOutRequest struct {
	Scope string `json:"scope" validate:"omitempty,oneof=local global"`
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetPasswordRequest struct {
	Email    string `json:"email" validate:"required"`
	Code     string `json:"code" validate:"required,len=6,numeric"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	session, err := h.service.Register(c.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		FullName: req.FullName,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	session, err := h.service.SignInWithPassword(c.Context(), req.Email, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(session)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := h.service.GetUser(c.Context(), callerFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	session, err := h.service.Refresh(c.Context(), callerFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(session)
}

func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	var req signOutRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return writeError(c, err)
		}
	}
	if err := h.service.SignOut(c.Context(), callerFrom(c), req.Scope); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RequestPasswordReset always answers 202 so the endpoint cannot be used to probe for
// registered emails.
func (h *AuthHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var req passwordResetRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := h.service.RequestPasswordReset(c.Context(), req.Email); err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "If the account exists a reset code has been sent"})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := h.service.ResetPassword(c.Context(), req.Email, req.Code, req.Password); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Password updated"})
}
